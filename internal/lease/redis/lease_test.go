package redislease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

func newLeaser(t *testing.T) (*Leaser, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "", wallClock{}), mr
}

func TestLeaser_ClaimIsExclusive(t *testing.T) {
	t.Parallel()

	l, mr := newLeaser(t)
	ctx := context.Background()

	lease, err := l.Claim(ctx, "t1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, DefaultPrefix+"t1", lease.Key)
	require.NotEmpty(t, lease.Token)

	_, err = l.Claim(ctx, "t1", time.Minute)
	require.ErrorIs(t, err, watch.ErrLeaseHeld)

	_, err = l.Claim(ctx, "t2", time.Minute)
	require.NoError(t, err)

	got, err := mr.Get(lease.Key)
	require.NoError(t, err)
	require.Equal(t, lease.Token, got)
}

func TestLeaser_ReleaseFreesTarget(t *testing.T) {
	t.Parallel()

	l, _ := newLeaser(t)
	ctx := context.Background()

	lease, err := l.Claim(ctx, "t1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, lease))

	_, err = l.Claim(ctx, "t1", time.Minute)
	require.NoError(t, err)
}

func TestLeaser_LapsedLease(t *testing.T) {
	t.Parallel()

	l, mr := newLeaser(t)
	ctx := context.Background()

	stale, err := l.Claim(ctx, "t1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Claim(ctx, "t1", time.Minute)
	require.NoError(t, err)

	require.ErrorIs(t, l.Release(ctx, stale), watch.ErrLeaseLost)
	require.NoError(t, l.Release(ctx, fresh))
}
