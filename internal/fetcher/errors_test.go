package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	for _, status := range []int{401, 403, 429, 451, 503} {
		got := ClassifyError(watch.StrategyCheap, "https://acme.com", status, errors.New("refused"))
		require.Equal(t, watch.FetchBlocked, got.Kind, status)
	}

	got := ClassifyError(watch.StrategyAccurate, "https://acme.com", 0, fmt.Errorf("navigate: %w", context.DeadlineExceeded))
	require.Equal(t, watch.FetchTimeout, got.Kind)
	require.Equal(t, watch.StrategyAccurate, got.Strategy)

	got = ClassifyError(watch.StrategyCheap, "https://acme.com", http.StatusInternalServerError, errors.New("boom"))
	require.Equal(t, watch.FetchUnknown, got.Kind)
	require.Equal(t, watch.FetchUnknown, watch.FetchErrorKindOf(errors.New("plain")))

	typed := &watch.FetchError{Kind: watch.FetchEmpty}
	require.Same(t, typed, ClassifyError(watch.StrategyCheap, "", 0, fmt.Errorf("wrap: %w", typed)))
}
