package watch

import (
	"context"
	"time"
)

// TargetStore reads targets and persists their eligibility state.
type TargetStore interface {
	GetTarget(ctx context.Context, targetID string) (Target, error)
	ListActiveTargets(ctx context.Context) ([]Target, error)
	ListOwnerTargets(ctx context.Context, ownerID string) ([]Target, error)
	ListTargetIDs(ctx context.Context, ownerID string) ([]string, error)
	// MarkSuccess zeroes failure_count, clears last_failure_at and stamps last_checked_at.
	MarkSuccess(ctx context.Context, targetID string, checkedAt time.Time) error
	// MarkFailure writes the new failure count, status and last_failure_at in one update.
	MarkFailure(ctx context.Context, targetID string, failureCount int, status TargetStatus, failedAt time.Time) error
}

// SnapshotStore persists snapshots and answers recency-ordered queries.
type SnapshotStore interface {
	// RecentSnapshots returns up to limit snapshots, newest first.
	RecentSnapshots(ctx context.Context, targetID string, limit int) ([]Snapshot, error)
	InsertSnapshot(ctx context.Context, snapshot Snapshot) error
	// DeleteSnapshotsBefore removes snapshots older than cutoff, keeping the newest per target.
	DeleteSnapshotsBefore(ctx context.Context, targetIDs []string, cutoff time.Time) (int64, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) error
	CountAlertsSince(ctx context.Context, targetID string, since time.Time) (int, error)
	DeleteAlertsBefore(ctx context.Context, targetIDs []string, cutoff time.Time) (int64, error)
}

// QuotaStore tracks per-tenant counters and global volume.
type QuotaStore interface {
	GetQuota(ctx context.Context, ownerID string) (QuotaState, error)
	IncrementManualChecks(ctx context.Context, ownerID string) error
	IncrementCrawls(ctx context.Context, ownerID string) error
	GlobalCrawlsToday(ctx context.Context) (int, error)
	ResetDailyQuotas(ctx context.Context, at time.Time) error
}

// TenantStore lists tenants and aggregates their activity.
type TenantStore interface {
	ListTenants(ctx context.Context) ([]Tenant, error)
	OwnerActivity(ctx context.Context, ownerID string, since time.Time) (OwnerActivity, error)
}

// Store is the full persistence surface the pipeline depends on.
type Store interface {
	TargetStore
	SnapshotStore
	AlertStore
	QuotaStore
	TenantStore
}

// Fetcher fetches a URL with one backend.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Lease is a short-lived claim on one target.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Leaser hands out per-target ownership tokens. A lapsed lease frees the target.
type Leaser interface {
	Claim(ctx context.Context, targetID string, ttl time.Duration) (Lease, error)
	Release(ctx context.Context, lease Lease) error
}

// InsightRequest is the structured input handed to the narrative writer.
type InsightRequest struct {
	Alert       Alert    `json:"alert"`
	URL         string   `json:"url"`
	Changes     []string `json:"changes"`
	PrevText    string   `json:"prev_text"`
	CurrentText string   `json:"current_text"`
}

// InsightWriter hands change context to an external narrative generator.
type InsightWriter interface {
	RequestInsight(ctx context.Context, request InsightRequest) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
