// Package retention enforces plan-based lifetimes on snapshots and alerts.
package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// DefaultFreeDays is the free plan's retention window.
const DefaultFreeDays = 7

// Store is the persistence surface the sweeper needs.
type Store interface {
	ListTenants(ctx context.Context) ([]watch.Tenant, error)
	ListTargetIDs(ctx context.Context, ownerID string) ([]string, error)
	DeleteSnapshotsBefore(ctx context.Context, targetIDs []string, cutoff time.Time) (int64, error)
	DeleteAlertsBefore(ctx context.Context, targetIDs []string, cutoff time.Time) (int64, error)
}

// Policy maps plans to retention windows in days. Plans without a positive
// window are unbounded.
type Policy map[watch.Plan]int

// DefaultPolicy keeps free-plan data for a week and paid data forever.
func DefaultPolicy() Policy {
	return Policy{watch.PlanFree: DefaultFreeDays}
}

// Window resolves the plan's retention window. ok is false for unbounded plans.
func (p Policy) Window(plan watch.Plan) (time.Duration, bool) {
	if plan == "" {
		plan = watch.PlanFree
	}
	days, found := p[plan]
	if !found || days <= 0 {
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}

// Report summarizes one sweep.
type Report struct {
	Tenants          int   `json:"tenants"`
	Swept            int   `json:"swept"`
	Skipped          int   `json:"skipped"`
	Failed           int   `json:"failed"`
	SnapshotsDeleted int64 `json:"snapshots_deleted"`
	AlertsDeleted    int64 `json:"alerts_deleted"`
}

// Sweeper deletes expired history tenant by tenant.
type Sweeper struct {
	store  Store
	policy Policy
	clock  watch.Clock
	logger *zap.Logger
}

// New constructs a Sweeper. A nil policy uses DefaultPolicy.
func New(store Store, policy Policy, clock watch.Clock, logger *zap.Logger) *Sweeper {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, policy: policy, clock: clock, logger: logger.Named("sweeper")}
}

// Run sweeps every tenant. Only a failure to list tenants aborts the run; a
// failure for one tenant is counted and the rest continue.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	start := s.clock.Now()

	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		s.elapsed(start)
		return Report{}, fmt.Errorf("list tenants: %w", watch.Persist("list tenants", err))
	}

	report := Report{Tenants: len(tenants)}
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			s.elapsed(start)
			return report, fmt.Errorf("sweep interrupted: %w", err)
		}
		window, bounded := s.policy.Window(tenant.Plan)
		if !bounded {
			report.Skipped++
			continue
		}
		snaps, alerts, err := s.sweepTenant(ctx, tenant, start.Add(-window))
		report.SnapshotsDeleted += snaps
		report.AlertsDeleted += alerts
		if err != nil {
			report.Failed++
			s.logger.Error("retention sweep failed for tenant",
				zap.String("owner_id", tenant.ID),
				zap.Error(err),
			)
			continue
		}
		report.Swept++
	}

	metrics.ObserveRetention("snapshots", report.SnapshotsDeleted)
	metrics.ObserveRetention("alerts", report.AlertsDeleted)
	s.logger.Info("retention sweep complete",
		zap.Int("tenants", report.Tenants),
		zap.Int("swept", report.Swept),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int64("snapshots_deleted", report.SnapshotsDeleted),
		zap.Int64("alerts_deleted", report.AlertsDeleted),
		zap.Duration("duration", s.elapsed(start)),
	)
	return report, nil
}

// elapsed records the run duration on the injected clock.
func (s *Sweeper) elapsed(start time.Time) time.Duration {
	d := s.clock.Now().Sub(start)
	metrics.ObserveRun("retention", d)
	return d
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenant watch.Tenant, cutoff time.Time) (int64, int64, error) {
	ids, err := s.store.ListTargetIDs(ctx, tenant.ID)
	if err != nil {
		return 0, 0, watch.Persist("list target ids", err)
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}
	alerts, err := s.store.DeleteAlertsBefore(ctx, ids, cutoff)
	if err != nil {
		return 0, 0, watch.Persist("delete alerts", err)
	}
	snaps, err := s.store.DeleteSnapshotsBefore(ctx, ids, cutoff)
	if err != nil {
		return 0, alerts, watch.Persist("delete snapshots", err)
	}
	return snaps, alerts, nil
}
