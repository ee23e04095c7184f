// Package memorylease provides an in-process watch.Leaser.
package memorylease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Leaser keeps leases in a map. Expired entries are treated as free.
type Leaser struct {
	mu     sync.Mutex
	leases map[string]watch.Lease
	clock  watch.Clock
}

// New constructs an empty Leaser.
func New(clock watch.Clock) *Leaser {
	return &Leaser{leases: make(map[string]watch.Lease), clock: clock}
}

// Claim takes the target's lease for ttl or returns watch.ErrLeaseHeld.
func (l *Leaser) Claim(_ context.Context, targetID string, ttl time.Duration) (watch.Lease, error) {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.leases[targetID]; ok && now.Before(held.ExpiresAt) {
		return watch.Lease{}, watch.ErrLeaseHeld
	}
	lease := watch.Lease{Key: targetID, Token: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	l.leases[targetID] = lease
	return lease, nil
}

// Release drops the lease if the token still owns it.
func (l *Leaser) Release(_ context.Context, lease watch.Lease) error {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.leases[lease.Key]
	if !ok || held.Token != lease.Token || !now.Before(held.ExpiresAt) {
		return watch.ErrLeaseLost
	}
	delete(l.leases, lease.Key)
	return nil
}
