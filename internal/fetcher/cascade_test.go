package fetcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/selector"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

var (
	richPage  = "<html><body><p>" + strings.Repeat("Our pricing starts at $99/mo. ", 30) + "</p></body></html>"
	shellPage = `<html><body><div id="root"></div><p>Loading</p></body></html>`
	emptyPage = `<html><body><script>render()</script></body></html>`
)

func newCascade(cheap, accurate *fakeFetcher, limiter Limiter) *Cascade {
	return NewCascade(cheap, accurate, limiter, extract.New(), selector.NewEscalator(0), nil)
}

func TestCascade_CheapAccepted(t *testing.T) {
	t.Parallel()

	cheap := &fakeFetcher{body: richPage}
	accurate := &fakeFetcher{body: richPage}
	limiter := &fakeLimiter{}

	got, err := newCascade(cheap, accurate, limiter).Fetch(context.Background(), Request{
		URL:             "https://acme.com/pricing",
		Strategy:        watch.StrategyCheap,
		ExpectedSymbols: []string{"$"},
	})
	require.NoError(t, err)
	require.Equal(t, watch.StrategyCheap, got.Strategy)
	require.False(t, got.Escalated)
	require.Contains(t, got.Content.Text, "$99/mo")
	require.Len(t, got.Content.Fingerprint, 64)
	require.Equal(t, 0, accurate.callCount())
	require.Equal(t, []string{"cheap"}, limiter.backends)
}

func TestCascade_EscalatesOnWrongGeo(t *testing.T) {
	t.Parallel()

	cheap := &fakeFetcher{body: richPage}
	accurate := &fakeFetcher{body: strings.ReplaceAll(richPage, "$", "€")}

	got, err := newCascade(cheap, accurate, nil).Fetch(context.Background(), Request{
		URL:             "https://acme.com/pricing",
		Strategy:        watch.StrategyCheap,
		Locale:          "de-DE",
		ExpectedSymbols: []string{"€"},
	})
	require.NoError(t, err)
	require.True(t, got.Escalated)
	require.Equal(t, selector.ReasonMissingSymbols, got.EscalationReason)
	require.Equal(t, watch.StrategyAccurate, got.Strategy)
	require.Contains(t, got.Content.Text, "€99/mo")
	require.Equal(t, "de-DE", accurate.lastRequest().Locale)
}

func TestCascade_EscalationFailureKeepsCheapResult(t *testing.T) {
	t.Parallel()

	cheap := &fakeFetcher{body: shellPage}
	accurate := &fakeFetcher{err: &watch.FetchError{Kind: watch.FetchTimeout}}

	got, err := newCascade(cheap, accurate, nil).Fetch(context.Background(), Request{
		URL:      "https://acme.com",
		Strategy: watch.StrategyCheap,
	})
	require.NoError(t, err)
	require.Equal(t, watch.StrategyCheap, got.Strategy)
	require.True(t, got.EscalationFailed)
	require.Equal(t, selector.ReasonShortContent, got.EscalationReason)
	require.Equal(t, 1, accurate.callCount())
}

func TestCascade_EmptyCheapEscalates(t *testing.T) {
	t.Parallel()

	cheap := &fakeFetcher{body: emptyPage}
	accurate := &fakeFetcher{body: richPage}

	got, err := newCascade(cheap, accurate, nil).Fetch(context.Background(), Request{
		URL:      "https://acme.com",
		Strategy: watch.StrategyCheap,
	})
	require.NoError(t, err)
	require.True(t, got.Escalated)
	require.Equal(t, "empty_content", got.EscalationReason)

	accurate = &fakeFetcher{body: emptyPage}
	_, err = newCascade(&fakeFetcher{body: emptyPage}, accurate, nil).Fetch(context.Background(), Request{
		URL:      "https://acme.com",
		Strategy: watch.StrategyCheap,
	})
	require.Equal(t, watch.FetchEmpty, watch.FetchErrorKindOf(err))
}

func TestCascade_CheapFailureDoesNotEscalate(t *testing.T) {
	t.Parallel()

	cheap := &fakeFetcher{status: 403, err: errors.New("Forbidden")}
	accurate := &fakeFetcher{body: richPage}

	_, err := newCascade(cheap, accurate, nil).Fetch(context.Background(), Request{
		URL:      "https://acme.com",
		Strategy: watch.StrategyCheap,
	})
	require.Equal(t, watch.FetchBlocked, watch.FetchErrorKindOf(err))
	require.Equal(t, 0, accurate.callCount())
}

func TestCascade_AccurateStartNeverFallsBack(t *testing.T) {
	t.Parallel()

	cheap := &fakeFetcher{body: richPage}
	accurate := &fakeFetcher{body: shellPage}

	got, err := newCascade(cheap, accurate, nil).Fetch(context.Background(), Request{
		URL:      "https://acme.com",
		Strategy: watch.StrategyAccurate,
	})
	require.NoError(t, err)
	require.Equal(t, watch.StrategyAccurate, got.Strategy)
	require.False(t, got.Escalated)
	require.Equal(t, 0, cheap.callCount())
}

func TestCascade_LimiterErrorIsFetchError(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{err: context.DeadlineExceeded}
	_, err := newCascade(&fakeFetcher{body: richPage}, &fakeFetcher{}, limiter).Fetch(context.Background(), Request{
		URL:      "https://acme.com",
		Strategy: watch.StrategyCheap,
	})
	require.Equal(t, watch.FetchTimeout, watch.FetchErrorKindOf(err))
}

type fakeFetcher struct {
	mu       sync.Mutex
	body     string
	status   int
	err      error
	requests []watch.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req watch.FetchRequest) (watch.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return watch.FetchResponse{StatusCode: f.status}, f.err
	}
	return watch.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(f.body), Strategy: req.Strategy}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeFetcher) lastRequest() watch.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeLimiter struct {
	mu       sync.Mutex
	err      error
	backends []string
}

func (l *fakeLimiter) Wait(_ context.Context, backend, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backends = append(l.backends, backend)
	return l.err
}
