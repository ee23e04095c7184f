package memorylease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func TestLeaser_ClaimRelease(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(clock)
	ctx := context.Background()

	lease, err := l.Claim(ctx, "t1", time.Minute)
	require.NoError(t, err)
	_, err = l.Claim(ctx, "t1", time.Minute)
	require.ErrorIs(t, err, watch.ErrLeaseHeld)

	require.NoError(t, l.Release(ctx, lease))
	require.ErrorIs(t, l.Release(ctx, lease), watch.ErrLeaseLost)
}

func TestLeaser_ExpiryFreesTarget(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(clock)
	ctx := context.Background()

	stale, err := l.Claim(ctx, "t1", time.Minute)
	require.NoError(t, err)

	clock.advance(2 * time.Minute)
	fresh, err := l.Claim(ctx, "t1", time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, stale.Token, fresh.Token)

	require.ErrorIs(t, l.Release(ctx, stale), watch.ErrLeaseLost)
	require.NoError(t, l.Release(ctx, fresh))
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
