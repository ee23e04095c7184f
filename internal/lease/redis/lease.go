// Package redislease hands out per-target leases stored in Redis.
package redislease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// DefaultPrefix namespaces lease keys.
const DefaultPrefix = "pagewatch:lease:"

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Leaser implements watch.Leaser with SET NX PX and a compare-and-delete release.
type Leaser struct {
	client redis.UniversalClient
	prefix string
	clock  watch.Clock
}

// New constructs a Leaser. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string, clock watch.Clock) *Leaser {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Leaser{client: client, prefix: prefix, clock: clock}
}

// Claim takes the target's lease for ttl or returns watch.ErrLeaseHeld.
func (l *Leaser) Claim(ctx context.Context, targetID string, ttl time.Duration) (watch.Lease, error) {
	lease := watch.Lease{
		Key:       l.prefix + targetID,
		Token:     uuid.NewString(),
		ExpiresAt: l.clock.Now().Add(ttl),
	}
	ok, err := l.client.SetNX(ctx, lease.Key, lease.Token, ttl).Result()
	if err != nil {
		return watch.Lease{}, fmt.Errorf("claim lease %s: %w", targetID, err)
	}
	if !ok {
		return watch.Lease{}, watch.ErrLeaseHeld
	}
	return lease, nil
}

// Release drops the lease if this token still owns it. A lapsed or stolen lease
// returns watch.ErrLeaseLost.
func (l *Leaser) Release(ctx context.Context, lease watch.Lease) error {
	result, err := releaseScript.Run(ctx, l.client, []string{lease.Key}, lease.Token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", lease.Key, err)
	}
	if result == 0 {
		return watch.ErrLeaseLost
	}
	return nil
}
