package postgres

import (
	"context"
	"time"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// RecentSnapshots returns up to limit snapshots for a target, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, targetID string, limit int) ([]watch.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, target_id, text, fingerprint, source, raw_uri, reverted, created_at
FROM snapshots
WHERE target_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, watch.Persist("recent snapshots", err)
	}
	defer rows.Close()
	var out []watch.Snapshot
	for rows.Next() {
		var (
			snap   watch.Snapshot
			source string
		)
		if err := rows.Scan(
			&snap.ID,
			&snap.TargetID,
			&snap.Text,
			&snap.Fingerprint,
			&source,
			&snap.RawURI,
			&snap.Reverted,
			&snap.CreatedAt,
		); err != nil {
			return nil, watch.Persist("recent snapshots", err)
		}
		snap.Source = watch.Strategy(source)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, watch.Persist("recent snapshots", err)
	}
	return out, nil
}

// InsertSnapshot appends a snapshot.
func (s *Store) InsertSnapshot(ctx context.Context, snap watch.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO snapshots (id, target_id, text, fingerprint, source, raw_uri, reverted, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		snap.ID,
		snap.TargetID,
		snap.Text,
		snap.Fingerprint,
		string(snap.Source),
		snap.RawURI,
		snap.Reverted,
		snap.CreatedAt,
	)
	if err != nil {
		return watch.Persist("insert snapshot", err)
	}
	return nil
}

// DeleteSnapshotsBefore removes snapshots created before cutoff for the given
// targets. The newest snapshot of each target always survives.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, targetIDs []string, cutoff time.Time) (int64, error) {
	if len(targetIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
DELETE FROM snapshots
WHERE target_id = ANY($1)
  AND created_at < $2
  AND id NOT IN (
    SELECT DISTINCT ON (target_id) id
    FROM snapshots
    WHERE target_id = ANY($1)
    ORDER BY target_id, created_at DESC, id DESC
  )`, targetIDs, cutoff)
	if err != nil {
		return 0, watch.Persist("delete snapshots", err)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert appends an alert.
func (s *Store) InsertAlert(ctx context.Context, alert watch.Alert) error {
	var details []byte
	if len(alert.Details) > 0 {
		details = alert.Details
	}
	reasons := alert.ReasonCodes
	if reasons == nil {
		reasons = []string{}
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO alerts (
	id, target_id, owner_id, snapshot_id, prev_snapshot_id,
	severity, summary, reason_codes, details, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		alert.ID,
		alert.TargetID,
		alert.OwnerID,
		alert.SnapshotID,
		alert.PrevSnapshotID,
		string(alert.Severity),
		alert.Summary,
		reasons,
		details,
		alert.CreatedAt,
	)
	if err != nil {
		return watch.Persist("insert alert", err)
	}
	return nil
}

// CountAlertsSince counts a target's alerts created at or after since.
func (s *Store) CountAlertsSince(ctx context.Context, targetID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM alerts WHERE target_id = $1 AND created_at >= $2`,
		targetID, since,
	).Scan(&n)
	if err != nil {
		return 0, watch.Persist("count alerts", err)
	}
	return n, nil
}

// DeleteAlertsBefore removes alerts created before cutoff for the given targets.
func (s *Store) DeleteAlertsBefore(ctx context.Context, targetIDs []string, cutoff time.Time) (int64, error) {
	if len(targetIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alerts WHERE target_id = ANY($1) AND created_at < $2`,
		targetIDs, cutoff)
	if err != nil {
		return 0, watch.Persist("delete alerts", err)
	}
	return tag.RowsAffected(), nil
}
