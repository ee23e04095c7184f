package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html><head><title>Pricing</title><style>.x{color:red}</style></head>
<body>
<nav><a href="/">Home</a><a href="/blog">Blog</a></nav>
<h1>Simple pricing</h1>
<div class="plan"><h2>Pro</h2><p>$49/mo billed yearly</p></div>
<section class="testimonials-section"><p>Acme changed our life</p></section>
<div id="cookie-banner">We use cookies</div>
<script>window.__STATE__ = {}</script>
<footer>© 2024 Acme</footer>
</body></html>`

func TestExtractor_Text(t *testing.T) {
	t.Parallel()

	text, err := New().Text([]byte(page), "https://acme.com/pricing")
	require.NoError(t, err)

	require.Contains(t, text, "# Simple pricing")
	require.Contains(t, text, "## Pro")
	require.Contains(t, text, "$49/mo billed yearly")
	require.NotContains(t, text, "Acme changed our life")
	require.NotContains(t, text, "cookies")
	require.NotContains(t, text, "__STATE__")
	require.NotContains(t, text, "Blog")
	require.NotContains(t, text, "2024")
	require.NotContains(t, text, "color:red")
}

func TestExtractor_EmptyDocument(t *testing.T) {
	t.Parallel()

	text, err := New().Text([]byte(`<html><body><script>app()</script></body></html>`), "https://acme.com")
	require.NoError(t, err)
	require.Empty(t, text)
}
