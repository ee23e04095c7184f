// Package orchestrator runs the change-detection pipeline for batches of
// targets and for single manual checks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/eligibility"
	"github.com/JakeFAU/pagewatch/internal/fetcher"
	"github.com/JakeFAU/pagewatch/internal/guardrail"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/selector"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Defaults applied when Config fields are zero.
const (
	DefaultConcurrency      = 4
	DefaultTickDeadline     = 50 * time.Minute
	DefaultLeaseTTL         = 5 * time.Minute
	DefaultHistoryDepth     = eligibility.DefaultHistoryDepth
	DefaultThrottleInterval = 72 * time.Hour
)

// Status is the terminal state of one target run.
type Status string

// Run statuses.
const (
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusReverted  Status = "reverted"
	StatusBaseline  Status = "baseline"
	StatusSkipped   Status = "skipped"
	StatusDenied    Status = "denied"
	StatusFailed    Status = "failed"
	StatusDeferred  Status = "deferred"
)

// Outcome reports what happened to one target.
type Outcome struct {
	TargetID   string         `json:"target_id"`
	Status     Status         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Guardrail  guardrail.Flag `json:"guardrail,omitempty"`
	SnapshotID string         `json:"snapshot_id,omitempty"`
	AlertID    string         `json:"alert_id,omitempty"`
	Severity   watch.Severity `json:"severity,omitempty"`
	Changes    []string       `json:"changes,omitempty"`
	Strategy   watch.Strategy `json:"strategy,omitempty"`
	Escalated  bool           `json:"escalated"`
	Paused     bool           `json:"paused"`
	// Err is set for failed runs. It is not serialized.
	Err error `json:"-"`
}

// Summary aggregates a batch run.
type Summary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Unchanged int `json:"unchanged"`
	Alerts    int `json:"alerts"`
	Reverts   int `json:"reverts"`
	Skipped   int `json:"skipped"`
	Throttled int `json:"throttled"`
	Failed    int `json:"failed"`
	Paused    int `json:"paused"`
	Deferred  int `json:"deferred"`
}

func (s *Summary) add(o Outcome) {
	switch o.Status {
	case StatusChanged, StatusUnchanged, StatusReverted, StatusBaseline:
		s.Processed++
	}
	switch o.Status {
	case StatusChanged:
		if o.AlertID != "" {
			s.Alerts++
		}
	case StatusUnchanged:
		s.Unchanged++
	case StatusReverted:
		s.Reverts++
	case StatusSkipped, StatusDenied:
		if o.Guardrail == guardrail.FlagVolatile {
			s.Throttled++
		} else {
			s.Skipped++
		}
	case StatusFailed:
		s.Failed++
		if o.Paused {
			s.Paused++
		}
	case StatusDeferred:
		s.Deferred++
	}
}

// ContentFetcher is the fetch cascade.
type ContentFetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (fetcher.Result, error)
}

// Config tunes the orchestrator.
type Config struct {
	Concurrency      int
	TickDeadline     time.Duration
	LeaseTTL         time.Duration
	HistoryDepth     int
	ProvenWindow     int
	ThrottleInterval time.Duration
	AlertTopic       string
	BlobPrefix       string
	Limits           guardrail.Limits
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.TickDeadline <= 0 {
		c.TickDeadline = DefaultTickDeadline
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = DefaultHistoryDepth
	}
	if c.ProvenWindow <= 0 {
		c.ProvenWindow = selector.DefaultProvenWindow
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = DefaultThrottleInterval
	}
	if c.Limits == (guardrail.Limits{}) {
		c.Limits = guardrail.DefaultLimits()
	}
	return c
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Store      watch.Store
	Fetcher    ContentFetcher
	Classifier *diff.Classifier
	Leaser     watch.Leaser
	Blobs      watch.BlobStore
	Publisher  watch.Publisher
	Insights   watch.InsightWriter
	Clock      watch.Clock
	IDs        watch.IDGenerator
}

// Orchestrator ties the pipeline stages together.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	gate   *eligibility.Gate
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Store == nil || deps.Fetcher == nil || deps.Leaser == nil || deps.Clock == nil || deps.IDs == nil {
		return nil, errors.New("orchestrator: store, fetcher, leaser, clock and id generator are required")
	}
	if deps.Classifier == nil {
		deps.Classifier = diff.NewClassifier(diff.Options{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		gate:   eligibility.New(deps.Store, deps.Clock, logger),
		logger: logger.Named("orchestrator"),
	}, nil
}

// Gate exposes the eligibility gate used by the orchestrator.
func (o *Orchestrator) Gate() *eligibility.Gate {
	return o.gate
}

// Tick processes every active target.
func (o *Orchestrator) Tick(ctx context.Context) (Summary, error) {
	targets, err := o.deps.Store.ListActiveTargets(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active targets: %w", err)
	}
	return o.runBatch(ctx, "tick", targets)
}

// TickOwner processes one tenant's active targets.
func (o *Orchestrator) TickOwner(ctx context.Context, ownerID string) (Summary, error) {
	targets, err := o.deps.Store.ListOwnerTargets(ctx, ownerID)
	if err != nil {
		return Summary{}, fmt.Errorf("list owner targets: %w", err)
	}
	return o.runBatch(ctx, "tick_owner", targets)
}

func (o *Orchestrator) runBatch(ctx context.Context, job string, targets []watch.Target) (Summary, error) {
	start := o.deps.Clock.Now()
	summary := Summary{Total: len(targets)}
	defer func() {
		metrics.ObserveRun(job, o.deps.Clock.Now().Sub(start))
	}()

	if global := o.globalCheck(ctx); global.Flagged {
		summary.Deferred = len(targets)
		o.logger.Warn("global throttle tripped, deferring batch",
			zap.String("job", job),
			zap.String("message", global.Message),
			zap.Int("deferred", len(targets)),
		)
		return summary, nil
	}

	owners := o.ownerFlags(ctx, targets)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TickDeadline)
	defer cancel()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.cfg.Concurrency)
	record := func(out Outcome) {
		mu.Lock()
		summary.add(out)
		mu.Unlock()
	}
	for _, target := range targets {
		if ctx.Err() != nil {
			record(Outcome{TargetID: target.ID, Status: StatusDeferred})
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				record(Outcome{TargetID: target.ID, Status: StatusDeferred})
				return nil
			}
			record(o.process(ctx, target.ID, eligibility.ModeScheduled, owners[target.OwnerID]))
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info("batch complete",
		zap.String("job", job),
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("alerts", summary.Alerts),
		zap.Int("reverts", summary.Reverts),
		zap.Int("skipped", summary.Skipped),
		zap.Int("throttled", summary.Throttled),
		zap.Int("failed", summary.Failed),
		zap.Int("paused", summary.Paused),
		zap.Int("deferred", summary.Deferred),
	)
	return summary, nil
}

// CheckTarget runs a manual check. Guardrail and eligibility denials come back
// as an Outcome with StatusDenied; a missing target is watch.ErrNotFound.
func (o *Orchestrator) CheckTarget(ctx context.Context, targetID string) (Outcome, error) {
	target, err := o.deps.Store.GetTarget(ctx, targetID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get target: %w", err)
	}
	quota, err := o.deps.Store.GetQuota(ctx, target.OwnerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get quota: %w", err)
	}

	verdict := guardrail.MostRestrictive(
		guardrail.CheckManualSpam(quota.Plan, quota.ManualChecksToday, o.cfg.Limits),
		o.globalCheck(ctx),
	)
	if verdict.Flagged {
		o.observeGuardrail(target, verdict)
		return o.finish(target, Outcome{
			TargetID:  target.ID,
			Status:    StatusDenied,
			Reason:    verdict.Message,
			Guardrail: verdict.Flag,
		}), nil
	}

	if decision := o.gate.Evaluate(target, eligibility.ModeManual); !decision.Eligible {
		return o.finish(target, Outcome{TargetID: target.ID, Status: StatusDenied, Reason: decision.Reason}), nil
	}

	return o.process(ctx, target.ID, eligibility.ModeManual, o.ownerFlag(ctx, target.OwnerID)), nil
}

func (o *Orchestrator) globalCheck(ctx context.Context) guardrail.Result {
	crawls, err := o.deps.Store.GlobalCrawlsToday(ctx)
	if err != nil {
		o.logger.Warn("global crawl count unavailable", zap.Error(err))
		return guardrail.Result{}
	}
	res := guardrail.CheckGlobal(crawls, o.cfg.Limits)
	if res.Flagged {
		metrics.ObserveGuardrail(string(res.Flag), string(res.Action))
	}
	return res
}

// ownerFlags evaluates the per-tenant hoarding check once per batch.
func (o *Orchestrator) ownerFlags(ctx context.Context, targets []watch.Target) map[string]guardrail.Result {
	out := make(map[string]guardrail.Result)
	for _, t := range targets {
		if _, ok := out[t.OwnerID]; ok {
			continue
		}
		out[t.OwnerID] = o.ownerFlag(ctx, t.OwnerID)
	}
	return out
}

func (o *Orchestrator) ownerFlag(ctx context.Context, ownerID string) guardrail.Result {
	since := o.deps.Clock.Now().Add(-24 * time.Hour)
	activity, err := o.deps.Store.OwnerActivity(ctx, ownerID, since)
	if err != nil {
		o.logger.Warn("owner activity unavailable", zap.String("owner_id", ownerID), zap.Error(err))
		return guardrail.Result{}
	}
	return guardrail.DetectHoarding(activity, o.cfg.Limits)
}

func (o *Orchestrator) observeGuardrail(target watch.Target, res guardrail.Result) {
	metrics.ObserveGuardrail(string(res.Flag), string(res.Action))
	o.logger.Info("guardrail flagged",
		zap.String("target_id", target.ID),
		zap.String("owner_id", target.OwnerID),
		zap.String("flag", string(res.Flag)),
		zap.String("action", string(res.Action)),
		zap.String("message", res.Message),
	)
}

func (o *Orchestrator) finish(target watch.Target, out Outcome) Outcome {
	metrics.ObserveTarget(string(out.Status))
	if out.Status == StatusFailed {
		o.logger.Warn("target run failed",
			zap.String("target_id", target.ID),
			zap.String("owner_id", target.OwnerID),
			zap.String("url", target.URL),
			zap.String("reason", out.Reason),
			zap.Bool("paused", out.Paused),
			zap.Error(out.Err),
		)
	}
	return out
}
