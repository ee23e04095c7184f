package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1}, nil)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "cheap", "https://acme.com/pricing"))
	require.NoError(t, l.Wait(ctx, "cheap", "https://acme.com/plans"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_KeysByBackendAndHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "cheap", "https://acme.com"))
	require.NoError(t, l.Wait(ctx, "accurate", "https://acme.com"))
	require.NoError(t, l.Wait(ctx, "cheap", "https://other.com"))
	require.Error(t, l.Wait(ctx, "cheap", "https://ACME.com/pricing"))
}

func TestLimiter_BackendOverrideAndUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1}, map[string]Config{"cheap": {RPS: 0}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "cheap", "https://acme.com"))
	}
}
