package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/normalize"
	"github.com/JakeFAU/pagewatch/internal/selector"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Limiter paces requests per backend and host.
type Limiter interface {
	Wait(ctx context.Context, backend, rawURL string) error
}

// TextExtractor turns markup into text for the normalizer.
type TextExtractor interface {
	Text(markup []byte, pageURL string) (string, error)
}

// Request describes one cascade run.
type Request struct {
	URL             string
	Strategy        watch.Strategy
	Locale          string
	Timezone        string
	ExpectedSymbols []string
}

// Result is the content a cascade settled on.
type Result struct {
	URL        string
	Content    normalize.Content
	Raw        []byte
	Strategy   watch.Strategy
	StatusCode int
	Duration   time.Duration
	// Escalated is set when the accurate backend produced the result after a
	// cheap attempt.
	Escalated        bool
	EscalationReason string
	// EscalationFailed is set when the accurate retry failed and the cheap
	// result was kept.
	EscalationFailed bool
}

// Cascade fetches cheap first and escalates to the accurate backend at most once.
type Cascade struct {
	backends  map[watch.Strategy]watch.Fetcher
	limiter   Limiter
	extractor TextExtractor
	escalator selector.Escalator
	logger    *zap.Logger
}

// NewCascade wires the two backends. A nil limiter disables pacing.
func NewCascade(
	cheap, accurate watch.Fetcher,
	limiter Limiter,
	extractor TextExtractor,
	escalator selector.Escalator,
	logger *zap.Logger,
) *Cascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cascade{
		backends: map[watch.Strategy]watch.Fetcher{
			watch.StrategyCheap:    cheap,
			watch.StrategyAccurate: accurate,
		},
		limiter:   limiter,
		extractor: extractor,
		escalator: escalator,
		logger:    logger.Named("cascade"),
	}
}

// Fetch runs the cascade. A cheap result that looks unreliable, or that
// extracts to nothing, is retried once with the accurate backend. When that
// retry fails a usable cheap result is kept.
func (c *Cascade) Fetch(ctx context.Context, req Request) (Result, error) {
	strategy := req.Strategy
	if !strategy.Valid() {
		strategy = watch.StrategyCheap
	}
	first, err := c.attempt(ctx, strategy, req)
	if strategy == watch.StrategyAccurate {
		return first, err
	}

	var reason string
	switch {
	case err != nil && watch.FetchErrorKindOf(err) == watch.FetchEmpty:
		reason = "empty_content"
	case err != nil:
		return Result{}, err
	default:
		var escalate bool
		if reason, escalate = c.escalator.Check(first.Content.Text, req.ExpectedSymbols); !escalate {
			return first, nil
		}
	}

	metrics.ObserveEscalation(reason)
	second, escErr := c.attempt(ctx, watch.StrategyAccurate, req)
	if escErr != nil {
		if err != nil {
			return Result{}, err
		}
		c.logger.Warn("escalation failed, keeping cheap result",
			zap.String("url", req.URL),
			zap.String("reason", reason),
			zap.Error(escErr),
		)
		first.EscalationReason = reason
		first.EscalationFailed = true
		return first, nil
	}
	second.Escalated = true
	second.EscalationReason = reason
	return second, nil
}

func (c *Cascade) attempt(ctx context.Context, strategy watch.Strategy, req Request) (Result, error) {
	backend, ok := c.backends[strategy]
	if !ok || backend == nil {
		return Result{}, ClassifyError(strategy, req.URL, 0, errors.New("no backend for strategy"))
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, string(strategy), req.URL); err != nil {
			return Result{}, ClassifyError(strategy, req.URL, 0, err)
		}
	}

	resp, err := backend.Fetch(ctx, watch.FetchRequest{
		URL:      req.URL,
		Strategy: strategy,
		Locale:   req.Locale,
		Timezone: req.Timezone,
	})
	if err != nil {
		fe := ClassifyError(strategy, req.URL, resp.StatusCode, err)
		metrics.ObserveFetch(string(strategy), string(fe.Kind))
		return Result{}, fe
	}

	pageURL := resp.URL
	if pageURL == "" {
		pageURL = req.URL
	}
	text, err := c.extractor.Text(resp.Body, pageURL)
	if err != nil {
		metrics.ObserveFetch(string(strategy), string(watch.FetchUnknown))
		return Result{}, ClassifyError(strategy, req.URL, resp.StatusCode, fmt.Errorf("extract: %w", err))
	}
	content := normalize.New(text)
	if content.Text == "" {
		metrics.ObserveFetch(string(strategy), string(watch.FetchEmpty))
		return Result{}, &watch.FetchError{Kind: watch.FetchEmpty, Strategy: strategy, URL: req.URL, StatusCode: resp.StatusCode}
	}
	metrics.ObserveFetch(string(strategy), "ok")

	return Result{
		URL:        pageURL,
		Content:    content,
		Raw:        resp.Body,
		Strategy:   strategy,
		StatusCode: resp.StatusCode,
		Duration:   resp.Duration,
	}, nil
}
