package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

const targetColumns = `id, owner_id, url, status, failure_count, last_checked_at, last_failure_at,
	created_at, requires_browser, locale, timezone, expected_symbols`

func scanTarget(row pgx.Row) (watch.Target, error) {
	var (
		t      watch.Target
		status string
	)
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.URL,
		&status,
		&t.FailureCount,
		&t.LastCheckedAt,
		&t.LastFailureAt,
		&t.CreatedAt,
		&t.RequiresBrowser,
		&t.Locale,
		&t.Timezone,
		&t.ExpectedSymbols,
	)
	t.Status = watch.TargetStatus(status)
	return t, err
}

func (s *Store) queryTargets(ctx context.Context, op, query string, args ...any) ([]watch.Target, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, watch.Persist(op, err)
	}
	defer rows.Close()
	var out []watch.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, watch.Persist(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, watch.Persist(op, err)
	}
	return out, nil
}

// GetTarget loads one target by ID.
func (s *Store) GetTarget(ctx context.Context, targetID string) (watch.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, targetID)
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return watch.Target{}, watch.ErrNotFound
	}
	if err != nil {
		return watch.Target{}, watch.Persist("get target", err)
	}
	return t, nil
}

// ListActiveTargets returns every target in the active state.
func (s *Store) ListActiveTargets(ctx context.Context) ([]watch.Target, error) {
	return s.queryTargets(ctx, "list active targets",
		`SELECT `+targetColumns+` FROM targets WHERE status = $1 ORDER BY id`,
		string(watch.TargetStatusActive))
}

// ListOwnerTargets returns one tenant's active targets.
func (s *Store) ListOwnerTargets(ctx context.Context, ownerID string) ([]watch.Target, error) {
	return s.queryTargets(ctx, "list owner targets",
		`SELECT `+targetColumns+` FROM targets WHERE owner_id = $1 AND status = $2 ORDER BY id`,
		ownerID, string(watch.TargetStatusActive))
}

// ListTargetIDs returns the IDs of all of a tenant's targets regardless of status.
func (s *Store) ListTargetIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM targets WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, watch.Persist("list target ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, watch.Persist("list target ids", err)
	}
	return ids, nil
}

// MarkSuccess resets the failure counter and stamps the check time.
func (s *Store) MarkSuccess(ctx context.Context, targetID string, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE targets
SET failure_count = 0, last_failure_at = NULL, last_checked_at = $2
WHERE id = $1`, targetID, checkedAt)
	if err != nil {
		return watch.Persist("mark success", err)
	}
	if tag.RowsAffected() == 0 {
		return watch.ErrNotFound
	}
	return nil
}

// MarkFailure records a failed run in one statement.
func (s *Store) MarkFailure(
	ctx context.Context,
	targetID string,
	failureCount int,
	status watch.TargetStatus,
	failedAt time.Time,
) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE targets
SET failure_count = $2, status = $3, last_failure_at = $4
WHERE id = $1`, targetID, failureCount, string(status), failedAt)
	if err != nil {
		return watch.Persist("mark failure", err)
	}
	if tag.RowsAffected() == 0 {
		return watch.ErrNotFound
	}
	return nil
}
