// Package watch defines the core types shared across the change-detection pipeline.
package watch

import (
	"encoding/json"
	"time"
)

// TargetStatus represents the lifecycle state of a monitored page.
type TargetStatus string

// Target status values persisted in the target store.
const (
	TargetStatusActive TargetStatus = "active"
	TargetStatusPaused TargetStatus = "paused"
	TargetStatusError  TargetStatus = "error"
)

// Strategy names a fetch backend.
type Strategy string

// Fetch strategies. Cheap is a plain HTTP collector, accurate is a headless browser.
const (
	StrategyCheap    Strategy = "cheap"
	StrategyAccurate Strategy = "accurate"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyCheap || s == StrategyAccurate
}

// Plan is a tenant's subscription tier.
type Plan string

// Known plans. Every plan other than free is treated as paid.
const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// IsPaid reports whether the plan is a paid tier.
func (p Plan) IsPaid() bool {
	return p != "" && p != PlanFree
}

// Target is a monitored external page belonging to a tenant.
type Target struct {
	ID              string       `json:"id"`
	OwnerID         string       `json:"owner_id"`
	URL             string       `json:"url"`
	Status          TargetStatus `json:"status"`
	FailureCount    int          `json:"failure_count"`
	LastCheckedAt   *time.Time   `json:"last_checked_at,omitempty"`
	LastFailureAt   *time.Time   `json:"last_failure_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	RequiresBrowser bool         `json:"requires_browser"`
	Locale          string       `json:"locale,omitempty"`
	Timezone        string       `json:"timezone,omitempty"`
	ExpectedSymbols []string     `json:"expected_symbols,omitempty"`
}

// Snapshot is one normalized capture of a target's content. Snapshots are immutable.
type Snapshot struct {
	ID          string    `json:"id"`
	TargetID    string    `json:"target_id"`
	Text        string    `json:"text"`
	Fingerprint string    `json:"fingerprint"`
	Source      Strategy  `json:"source"`
	RawURI      string    `json:"raw_uri,omitempty"`
	Reverted    bool      `json:"reverted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Severity grades a classified change.
type Severity string

// Severity values, from most to least urgent.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityMinor  Severity = "minor"
	SeverityNone   Severity = ""
)

// Alert is created only for a change classified as meaningful. Alerts are append-only.
type Alert struct {
	ID             string          `json:"id"`
	TargetID       string          `json:"target_id"`
	OwnerID        string          `json:"owner_id"`
	SnapshotID     string          `json:"snapshot_id"`
	PrevSnapshotID string          `json:"prev_snapshot_id"`
	Severity       Severity        `json:"severity"`
	Summary        string          `json:"summary"`
	ReasonCodes    []string        `json:"reason_codes"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Tenant is an owning user as seen by the retention sweeper.
type Tenant struct {
	ID   string `json:"id"`
	Plan Plan   `json:"plan"`
}

// QuotaState tracks a tenant's daily counters.
type QuotaState struct {
	OwnerID           string    `json:"owner_id"`
	Plan              Plan      `json:"plan"`
	ManualChecksToday int       `json:"manual_checks_today"`
	CrawlsToday       int       `json:"crawls_today"`
	ResetAt           time.Time `json:"reset_at"`
}

// OwnerActivity aggregates a tenant's history for abuse heuristics.
type OwnerActivity struct {
	OwnerID          string `json:"owner_id"`
	TargetsAdded24h  int    `json:"targets_added_24h"`
	Snapshots        int    `json:"snapshots"`
	MeaningfulAlerts int    `json:"meaningful_alerts"`
}

// FetchRequest captures everything a backend needs to fetch a page.
type FetchRequest struct {
	URL       string
	Strategy  Strategy
	Locale    string
	Timezone  string
	UserAgent string
}

// FetchResponse is the raw result of one backend fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Strategy   Strategy
}
