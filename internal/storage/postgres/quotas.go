package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// GetQuota returns a tenant's daily counters. A tenant with no row is on the
// free plan with nothing used.
func (s *Store) GetQuota(ctx context.Context, ownerID string) (watch.QuotaState, error) {
	var (
		q    watch.QuotaState
		plan string
	)
	err := s.pool.QueryRow(ctx, `
SELECT owner_id, plan, manual_checks_today, crawls_today, reset_at
FROM tenant_quotas WHERE owner_id = $1`, ownerID).
		Scan(&q.OwnerID, &plan, &q.ManualChecksToday, &q.CrawlsToday, &q.ResetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return watch.QuotaState{OwnerID: ownerID, Plan: watch.PlanFree}, nil
	}
	if err != nil {
		return watch.QuotaState{}, watch.Persist("get quota", err)
	}
	q.Plan = watch.Plan(plan)
	return q, nil
}

// IncrementManualChecks bumps the tenant's manual-check counter.
func (s *Store) IncrementManualChecks(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO tenant_quotas (owner_id, manual_checks_today) VALUES ($1, 1)
ON CONFLICT (owner_id) DO UPDATE
SET manual_checks_today = tenant_quotas.manual_checks_today + 1`, ownerID)
	if err != nil {
		return watch.Persist("increment manual checks", err)
	}
	return nil
}

// IncrementCrawls bumps the tenant's crawl counter.
func (s *Store) IncrementCrawls(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO tenant_quotas (owner_id, crawls_today) VALUES ($1, 1)
ON CONFLICT (owner_id) DO UPDATE
SET crawls_today = tenant_quotas.crawls_today + 1`, ownerID)
	if err != nil {
		return watch.Persist("increment crawls", err)
	}
	return nil
}

// GlobalCrawlsToday sums crawl counters across tenants.
func (s *Store) GlobalCrawlsToday(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(sum(crawls_today), 0) FROM tenant_quotas`).Scan(&n); err != nil {
		return 0, watch.Persist("global crawls", err)
	}
	return n, nil
}

// ResetDailyQuotas zeroes every tenant's counters.
func (s *Store) ResetDailyQuotas(ctx context.Context, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant_quotas SET manual_checks_today = 0, crawls_today = 0, reset_at = $1`, at)
	if err != nil {
		return watch.Persist("reset quotas", err)
	}
	return nil
}

// ListTenants returns every owner that has at least one target.
func (s *Store) ListTenants(ctx context.Context) ([]watch.Tenant, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT t.owner_id, COALESCE(q.plan, 'free')
FROM targets t
LEFT JOIN tenant_quotas q ON q.owner_id = t.owner_id
ORDER BY t.owner_id`)
	if err != nil {
		return nil, watch.Persist("list tenants", err)
	}
	defer rows.Close()
	var out []watch.Tenant
	for rows.Next() {
		var id, plan string
		if err := rows.Scan(&id, &plan); err != nil {
			return nil, watch.Persist("list tenants", err)
		}
		out = append(out, watch.Tenant{ID: id, Plan: watch.Plan(plan)})
	}
	if err := rows.Err(); err != nil {
		return nil, watch.Persist("list tenants", err)
	}
	return out, nil
}

// OwnerActivity counts targets added since the given time together with the
// tenant's lifetime snapshot and alert totals.
func (s *Store) OwnerActivity(ctx context.Context, ownerID string, since time.Time) (watch.OwnerActivity, error) {
	act := watch.OwnerActivity{OwnerID: ownerID}
	err := s.pool.QueryRow(ctx, `
SELECT
  (SELECT count(*) FROM targets WHERE owner_id = $1 AND created_at >= $2),
  (SELECT count(*) FROM snapshots s JOIN targets t ON t.id = s.target_id WHERE t.owner_id = $1),
  (SELECT count(*) FROM alerts WHERE owner_id = $1)`, ownerID, since).
		Scan(&act.TargetsAdded24h, &act.Snapshots, &act.MeaningfulAlerts)
	if err != nil {
		return watch.OwnerActivity{}, watch.Persist("owner activity", err)
	}
	return act, nil
}
