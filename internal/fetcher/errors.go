// Package fetcher holds the fetch cascade and the error mapping shared by the
// cheap and accurate backends.
package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Status codes that mean the site refused us rather than failed.
var blockedStatus = map[int]struct{}{
	http.StatusUnauthorized:               {},
	http.StatusForbidden:                  {},
	http.StatusTooManyRequests:            {},
	http.StatusUnavailableForLegalReasons: {},
	http.StatusServiceUnavailable:         {},
}

// ClassifyError wraps a backend failure as a typed FetchError.
func ClassifyError(strategy watch.Strategy, url string, status int, err error) *watch.FetchError {
	var existing *watch.FetchError
	if errors.As(err, &existing) {
		return existing
	}
	kind := watch.FetchUnknown
	if _, ok := blockedStatus[status]; ok {
		kind = watch.FetchBlocked
	} else if isTimeout(err) {
		kind = watch.FetchTimeout
	}
	return &watch.FetchError{Kind: kind, Strategy: strategy, URL: url, StatusCode: status, Err: err}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
