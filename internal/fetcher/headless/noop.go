package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// ErrUnavailable is the cause reported by Noop.
var ErrUnavailable = errors.New("headless fetcher not configured")

// Noop stands in for the accurate backend when no browser is available. Every
// fetch fails, so a cascade keeps its cheap result.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns an unknown FetchError.
func (Noop) Fetch(_ context.Context, request watch.FetchRequest) (watch.FetchResponse, error) {
	return watch.FetchResponse{}, &watch.FetchError{
		Kind:     watch.FetchUnknown,
		Strategy: watch.StrategyAccurate,
		URL:      request.URL,
		Err:      ErrUnavailable,
	}
}
