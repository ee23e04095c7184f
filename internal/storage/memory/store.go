package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Store implements watch.Store in memory.
type Store struct {
	mu        sync.RWMutex
	targets   map[string]watch.Target
	snapshots map[string][]watch.Snapshot // per target, oldest first
	alerts    []watch.Alert
	quotas    map[string]watch.QuotaState
}

var _ watch.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		targets:   make(map[string]watch.Target),
		snapshots: make(map[string][]watch.Snapshot),
		quotas:    make(map[string]watch.QuotaState),
	}
}

// PutTarget inserts or replaces a target.
func (s *Store) PutTarget(target watch.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target.Status == "" {
		target.Status = watch.TargetStatusActive
	}
	s.targets[target.ID] = target
}

// SetPlan assigns a tenant's plan.
func (s *Store) SetPlan(ownerID string, plan watch.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotaLocked(ownerID)
	q.Plan = plan
	s.quotas[ownerID] = q
}

// Snapshots returns every stored snapshot of a target, oldest first.
func (s *Store) Snapshots(targetID string) []watch.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snapshots[targetID])
}

// Alerts returns every stored alert in insertion order.
func (s *Store) Alerts() []watch.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.alerts)
}

// GetTarget loads one target by ID.
func (s *Store) GetTarget(_ context.Context, targetID string) (watch.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[targetID]
	if !ok {
		return watch.Target{}, watch.ErrNotFound
	}
	return t, nil
}

// ListActiveTargets returns every active target ordered by ID.
func (s *Store) ListActiveTargets(_ context.Context) ([]watch.Target, error) {
	return s.filterTargets(func(t watch.Target) bool { return t.Status == watch.TargetStatusActive }), nil
}

// ListOwnerTargets returns one tenant's active targets ordered by ID.
func (s *Store) ListOwnerTargets(_ context.Context, ownerID string) ([]watch.Target, error) {
	return s.filterTargets(func(t watch.Target) bool {
		return t.OwnerID == ownerID && t.Status == watch.TargetStatusActive
	}), nil
}

// ListTargetIDs returns all of a tenant's target IDs.
func (s *Store) ListTargetIDs(_ context.Context, ownerID string) ([]string, error) {
	targets := s.filterTargets(func(t watch.Target) bool { return t.OwnerID == ownerID })
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	return ids, nil
}

func (s *Store) filterTargets(keep func(watch.Target) bool) []watch.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []watch.Target
	for _, t := range s.targets {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkSuccess resets failure state and stamps the check time.
func (s *Store) MarkSuccess(_ context.Context, targetID string, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[targetID]
	if !ok {
		return watch.ErrNotFound
	}
	t.FailureCount = 0
	t.LastFailureAt = nil
	t.LastCheckedAt = &checkedAt
	s.targets[targetID] = t
	return nil
}

// MarkFailure records a failed run.
func (s *Store) MarkFailure(
	_ context.Context,
	targetID string,
	failureCount int,
	status watch.TargetStatus,
	failedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[targetID]
	if !ok {
		return watch.ErrNotFound
	}
	t.FailureCount = failureCount
	t.Status = status
	t.LastFailureAt = &failedAt
	s.targets[targetID] = t
	return nil
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (s *Store) RecentSnapshots(_ context.Context, targetID string, limit int) ([]watch.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.snapshots[targetID]
	out := make([]watch.Snapshot, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// InsertSnapshot appends a snapshot.
func (s *Store) InsertSnapshot(_ context.Context, snap watch.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.TargetID] = append(s.snapshots[snap.TargetID], snap)
	return nil
}

// DeleteSnapshotsBefore drops snapshots older than cutoff, always keeping the
// newest one per target.
func (s *Store) DeleteSnapshotsBefore(_ context.Context, targetIDs []string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range targetIDs {
		all := s.snapshots[id]
		if len(all) == 0 {
			continue
		}
		newest := len(all) - 1
		kept := all[:0:0]
		for i, snap := range all {
			if i != newest && snap.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, snap)
		}
		s.snapshots[id] = kept
	}
	return deleted, nil
}

// InsertAlert appends an alert.
func (s *Store) InsertAlert(_ context.Context, alert watch.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

// CountAlertsSince counts a target's alerts created at or after since.
func (s *Store) CountAlertsSince(_ context.Context, targetID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.TargetID == targetID && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// DeleteAlertsBefore drops alerts older than cutoff for the given targets.
func (s *Store) DeleteAlertsBefore(_ context.Context, targetIDs []string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	kept := s.alerts[:0:0]
	for _, a := range s.alerts {
		if slices.Contains(targetIDs, a.TargetID) && a.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return deleted, nil
}

func (s *Store) quotaLocked(ownerID string) watch.QuotaState {
	q, ok := s.quotas[ownerID]
	if !ok {
		q = watch.QuotaState{OwnerID: ownerID, Plan: watch.PlanFree}
	}
	return q
}

// GetQuota returns a tenant's counters.
func (s *Store) GetQuota(_ context.Context, ownerID string) (watch.QuotaState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quotaLocked(ownerID), nil
}

// IncrementManualChecks bumps the manual-check counter.
func (s *Store) IncrementManualChecks(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotaLocked(ownerID)
	q.ManualChecksToday++
	s.quotas[ownerID] = q
	return nil
}

// IncrementCrawls bumps the crawl counter.
func (s *Store) IncrementCrawls(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotaLocked(ownerID)
	q.CrawlsToday++
	s.quotas[ownerID] = q
	return nil
}

// GlobalCrawlsToday sums crawl counters.
func (s *Store) GlobalCrawlsToday(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, q := range s.quotas {
		total += q.CrawlsToday
	}
	return total, nil
}

// ResetDailyQuotas zeroes every counter.
func (s *Store) ResetDailyQuotas(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, q := range s.quotas {
		q.ManualChecksToday = 0
		q.CrawlsToday = 0
		q.ResetAt = at
		s.quotas[id] = q
	}
	return nil
}

// ListTenants returns every owner with at least one target.
func (s *Store) ListTenants(_ context.Context) ([]watch.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []watch.Tenant
	for _, t := range s.targets {
		if _, ok := seen[t.OwnerID]; ok {
			continue
		}
		seen[t.OwnerID] = struct{}{}
		out = append(out, watch.Tenant{ID: t.OwnerID, Plan: s.quotaLocked(t.OwnerID).Plan})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OwnerActivity counts targets added since the given time and the tenant's
// lifetime snapshot and alert totals.
func (s *Store) OwnerActivity(_ context.Context, ownerID string, since time.Time) (watch.OwnerActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	act := watch.OwnerActivity{OwnerID: ownerID}
	for _, t := range s.targets {
		if t.OwnerID != ownerID {
			continue
		}
		if !t.CreatedAt.Before(since) {
			act.TargetsAdded24h++
		}
		act.Snapshots += len(s.snapshots[t.ID])
	}
	for _, a := range s.alerts {
		if a.OwnerID == ownerID {
			act.MeaningfulAlerts++
		}
	}
	return act, nil
}
