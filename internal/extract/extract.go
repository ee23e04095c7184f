// Package extract turns fetched markup into markdown text for the normalizer.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Elements that never carry page copy.
const dropSelector = "script, style, noscript, svg, iframe, template, nav, footer"

// Class or id names of blocks that churn without product signal.
var lowSignalBlock = regexp.MustCompile(`\b(?:testimonials?|faqs?|footer|cookies?|consent|newsletter|social|share|reviews?)\b`)

// Extractor prunes, sanitizes and converts markup. It is safe for concurrent use.
type Extractor struct {
	policy    *bluemonday.Policy
	converter *converter.Converter
}

// New builds an Extractor.
func New() *Extractor {
	return &Extractor{
		policy: bluemonday.UGCPolicy(),
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Text returns the page copy of markup as markdown. If conversion fails the
// pruned document's plain text is returned instead.
func (e *Extractor) Text(markup []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}
	doc.Find(dropSelector).Remove()
	doc.Find("[class], [id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		names := strings.ToLower(s.AttrOr("class", "") + " " + s.AttrOr("id", ""))
		return lowSignalBlock.MatchString(names)
	}).Remove()

	pruned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render pruned markup: %w", err)
	}
	clean := e.policy.Sanitize(pruned)

	text, err := e.converter.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(text) == "" {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.TrimSpace(text), nil
}
