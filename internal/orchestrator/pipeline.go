package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/eligibility"
	"github.com/JakeFAU/pagewatch/internal/fetcher"
	"github.com/JakeFAU/pagewatch/internal/guardrail"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/selector"
	"github.com/JakeFAU/pagewatch/internal/storage"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

const tracerName = "github.com/JakeFAU/pagewatch/internal/orchestrator"

// Reasons reported on skipped outcomes.
const (
	reasonLeaseHeld      = "target is being processed by another worker"
	reasonURLNotEligible = "url is not a pricing, plans or features page"
	reasonInterrupted    = "run interrupted before completion"
)

// run carries per-target state through the pipeline stages.
type run struct {
	target  watch.Target
	history []watch.Snapshot
	last    *watch.Snapshot
	now     time.Time
}

// process runs one target end to end under its lease.
func (o *Orchestrator) process(
	ctx context.Context,
	targetID string,
	mode eligibility.Mode,
	ownerFlag guardrail.Result,
) Outcome {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator.process",
		trace.WithAttributes(attribute.String("target.id", targetID)))
	defer span.End()

	lease, err := o.deps.Leaser.Claim(ctx, targetID, o.cfg.LeaseTTL)
	if errors.Is(err, watch.ErrLeaseHeld) {
		metrics.ObserveLeaseContention()
		metrics.ObserveTarget(string(StatusSkipped))
		return Outcome{TargetID: targetID, Status: StatusSkipped, Reason: reasonLeaseHeld}
	}
	if err != nil {
		out := Outcome{TargetID: targetID, Status: StatusFailed, Reason: "lease unavailable", Err: err}
		return o.finish(watch.Target{ID: targetID}, out)
	}
	defer func() {
		// The run context may already be past its deadline.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.deps.Leaser.Release(releaseCtx, lease); err != nil {
			o.logger.Warn("lease release failed", zap.String("target_id", targetID), zap.Error(err))
		}
	}()

	// Reload under the lease so state transitions start from the latest row.
	target, err := o.deps.Store.GetTarget(ctx, targetID)
	if err != nil {
		return o.finish(watch.Target{ID: targetID}, failed(targetID, "load target", err))
	}
	span.SetAttributes(attribute.String("owner.id", target.OwnerID))

	out := o.pipeline(ctx, target, mode, ownerFlag)
	out.TargetID = target.ID
	if out.Status == StatusFailed && ctx.Err() != nil {
		out = interrupted(target.ID, out.Strategy, out.Err)
	}
	span.SetAttributes(attribute.String("outcome", string(out.Status)))
	if out.Status == StatusFailed {
		span.SetStatus(codes.Error, out.Reason)
		if out.Err != nil {
			span.RecordError(out.Err)
		}
	}
	return o.finish(target, out)
}

func (o *Orchestrator) pipeline(
	ctx context.Context,
	target watch.Target,
	mode eligibility.Mode,
	ownerFlag guardrail.Result,
) Outcome {
	if decision := o.gate.Evaluate(target, mode); !decision.Eligible {
		status := StatusSkipped
		if mode == eligibility.ModeManual {
			status = StatusDenied
		}
		return Outcome{Status: status, Reason: decision.Reason}
	}
	if !eligibility.IsEligibleURL(target.URL) {
		return Outcome{Status: StatusSkipped, Reason: reasonURLNotEligible}
	}
	if mode == eligibility.ModeManual {
		// Only a check that holds the lease is charged.
		if err := o.deps.Store.IncrementManualChecks(ctx, target.OwnerID); err != nil {
			return failed(target.ID, "consume manual check", err)
		}
	}

	history, err := o.deps.Store.RecentSnapshots(ctx, target.ID, o.cfg.HistoryDepth)
	if err != nil {
		return failed(target.ID, "load history", err)
	}
	r := &run{target: target, history: history, now: o.deps.Clock.Now()}
	if len(history) > 0 {
		r.last = &history[0]
	}

	if out, stop := o.applyGuardrails(ctx, r, ownerFlag); stop {
		return out
	}

	strategy := selector.Decide(
		selector.ContextFor(target),
		r.last,
		selector.DetermineBest(history, o.cfg.ProvenWindow),
	)
	if err := o.deps.Store.IncrementCrawls(ctx, target.OwnerID); err != nil {
		return failed(target.ID, "count crawl", err)
	}
	res, err := o.deps.Fetcher.Fetch(ctx, fetcher.Request{
		URL:             target.URL,
		Strategy:        strategy,
		Locale:          target.Locale,
		Timezone:        target.Timezone,
		ExpectedSymbols: selector.ExpectedSymbols(target),
	})
	if err != nil {
		if ctx.Err() != nil {
			// The caller ended the run, not the backend.
			return interrupted(target.ID, strategy, err)
		}
		return o.fetchFailed(ctx, target, strategy, err)
	}
	return o.settle(ctx, r, res)
}

// applyGuardrails evaluates the per-target checks. stop is true when the run
// must not continue.
func (o *Orchestrator) applyGuardrails(ctx context.Context, r *run, ownerFlag guardrail.Result) (Outcome, bool) {
	volatile := guardrail.Result{}
	if len(r.history) > 0 {
		window := r.history
		if n := o.cfg.Limits.VolatileWindow; n > 0 && len(window) > n {
			window = window[:n]
		}
		since := window[len(window)-1].CreatedAt
		alerts, err := o.deps.Store.CountAlertsSince(ctx, r.target.ID, since)
		if err != nil {
			return failed(r.target.ID, "count alerts", err), true
		}
		volatile = guardrail.DetectVolatilePage(r.history, alerts, o.cfg.Limits)
	}

	verdict := guardrail.MostRestrictive(ownerFlag, volatile)
	if !verdict.Flagged {
		return Outcome{}, false
	}
	o.observeGuardrail(r.target, verdict)
	switch verdict.Action {
	case guardrail.ActionWarn:
		return Outcome{}, false
	case guardrail.ActionThrottle:
		if last := r.target.LastCheckedAt; last == nil || r.now.Sub(*last) >= o.cfg.ThrottleInterval {
			return Outcome{}, false
		}
		return Outcome{Status: StatusSkipped, Reason: verdict.Message, Guardrail: verdict.Flag}, true
	case guardrail.ActionPause:
		return Outcome{Status: StatusDeferred, Reason: verdict.Message, Guardrail: verdict.Flag}, true
	default:
		return Outcome{Status: StatusDenied, Reason: verdict.Message, Guardrail: verdict.Flag}, true
	}
}

func (o *Orchestrator) fetchFailed(ctx context.Context, target watch.Target, strategy watch.Strategy, err error) Outcome {
	kind := watch.FetchErrorKindOf(err)
	paused, recErr := o.gate.RecordFailure(ctx, target, target.FailureCount)
	if recErr != nil {
		return failed(target.ID, "record failure", errors.Join(err, recErr))
	}
	return Outcome{
		Status:   StatusFailed,
		Reason:   fmt.Sprintf("fetch %s", kind),
		Strategy: strategy,
		Paused:   paused,
		Err:      err,
	}
}

// settle compares the fetched content with history and persists the result.
func (o *Orchestrator) settle(ctx context.Context, r *run, res fetcher.Result) Outcome {
	out := Outcome{Strategy: res.Strategy, Escalated: res.Escalated}
	content := res.Content

	if r.last != nil && r.last.Fingerprint == content.Fingerprint {
		if err := o.gate.RecordSuccess(ctx, r.target); err != nil {
			return failed(r.target.ID, "record success", err)
		}
		out.Status = StatusUnchanged
		out.SnapshotID = r.last.ID
		return out
	}

	snap := watch.Snapshot{
		TargetID:    r.target.ID,
		Text:        content.Text,
		Fingerprint: content.Fingerprint,
		Source:      res.Strategy,
		CreatedAt:   r.now,
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return failed(r.target.ID, "snapshot id", err)
	}
	snap.ID = id
	out.SnapshotID = id

	var (
		verdict diff.Classification
		delta   diff.Result
	)
	switch {
	case r.last == nil:
		out.Status = StatusBaseline
	case eligibility.IsHashSeenRecently(content.Fingerprint, r.history):
		snap.Reverted = true
		out.Status = StatusReverted
	default:
		delta, err = diff.Compute(r.last.Text, content.Text, r.last.Fingerprint, content.Fingerprint)
		if err != nil {
			return failed(r.target.ID, "diff", err)
		}
		verdict = o.deps.Classifier.Classify(delta)
		out.Status = StatusChanged
		out.Severity = verdict.Severity
		out.Changes = verdict.Changes
	}

	snap.RawURI = o.archive(ctx, r.target, content.Fingerprint, res.Raw)
	if err := o.deps.Store.InsertSnapshot(ctx, snap); err != nil {
		return failed(r.target.ID, "insert snapshot", err)
	}

	if verdict.Meaningful {
		alertID, err := o.raiseAlert(ctx, r, snap, delta, verdict, res)
		if err != nil {
			return failed(r.target.ID, "insert alert", err)
		}
		out.AlertID = alertID
	}

	if err := o.gate.RecordSuccess(ctx, r.target); err != nil {
		return failed(r.target.ID, "record success", err)
	}
	return out
}

// archive stores the raw markup. Failures are logged and leave the URI empty.
func (o *Orchestrator) archive(ctx context.Context, target watch.Target, fingerprint string, raw []byte) string {
	if o.deps.Blobs == nil || len(raw) == 0 {
		return ""
	}
	path := storage.ArchivePath(o.cfg.BlobPrefix, target.ID, fingerprint)
	uri, err := o.deps.Blobs.PutObject(ctx, path, storage.ContentTypeHTML, raw)
	if err != nil {
		o.logger.Warn("archive raw markup failed",
			zap.String("target_id", target.ID),
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	return uri
}

type alertDetails struct {
	URL              string         `json:"url"`
	Strategy         watch.Strategy `json:"strategy"`
	Escalated        bool           `json:"escalated"`
	EscalationReason string         `json:"escalation_reason,omitempty"`
	Changes          []string       `json:"changes"`
	Segments         []diff.Segment `json:"segments"`
}

func (o *Orchestrator) raiseAlert(
	ctx context.Context,
	r *run,
	snap watch.Snapshot,
	delta diff.Result,
	verdict diff.Classification,
	res fetcher.Result,
) (string, error) {
	details, err := json.Marshal(alertDetails{
		URL:              r.target.URL,
		Strategy:         res.Strategy,
		Escalated:        res.Escalated,
		EscalationReason: res.EscalationReason,
		Changes:          verdict.Changes,
		Segments:         delta.Segments,
	})
	if err != nil {
		return "", fmt.Errorf("marshal alert details: %w", err)
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("alert id: %w", err)
	}
	alert := watch.Alert{
		ID:             id,
		TargetID:       r.target.ID,
		OwnerID:        r.target.OwnerID,
		SnapshotID:     snap.ID,
		PrevSnapshotID: r.last.ID,
		Severity:       verdict.Severity,
		Summary:        verdict.Summary(),
		ReasonCodes:    verdict.ReasonCodes,
		Details:        details,
		CreatedAt:      r.now,
	}
	if err := o.deps.Store.InsertAlert(ctx, alert); err != nil {
		return "", err
	}
	metrics.ObserveAlert(string(alert.Severity))
	o.logger.Info("meaningful change",
		zap.String("target_id", alert.TargetID),
		zap.String("owner_id", alert.OwnerID),
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.Strings("reasons", alert.ReasonCodes),
	)
	o.notify(ctx, r, alert, verdict.Changes, snap.Text)
	return id, nil
}

// notify hands the alert to the dispatch and insight collaborators. Neither
// affects the outcome.
func (o *Orchestrator) notify(ctx context.Context, r *run, alert watch.Alert, changes []string, current string) {
	if o.deps.Publisher != nil && o.cfg.AlertTopic != "" {
		event := AlertEvent{Alert: alert, URL: r.target.URL, Changes: changes}
		if _, err := o.deps.Publisher.Publish(ctx, o.cfg.AlertTopic, event); err != nil {
			o.logger.Warn("publish alert failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
	if o.deps.Insights != nil {
		err := o.deps.Insights.RequestInsight(ctx, watch.InsightRequest{
			Alert:       alert,
			URL:         r.target.URL,
			Changes:     changes,
			PrevText:    r.last.Text,
			CurrentText: current,
		})
		if err != nil {
			o.logger.Warn("insight request failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
}

// interrupted defers a run whose context ended. The target row is untouched
// so the next tick picks it up with no failure recorded.
func interrupted(targetID string, strategy watch.Strategy, err error) Outcome {
	return Outcome{
		TargetID: targetID,
		Status:   StatusDeferred,
		Reason:   reasonInterrupted,
		Strategy: strategy,
		Err:      err,
	}
}

func failed(targetID, stage string, err error) Outcome {
	return Outcome{
		TargetID: targetID,
		Status:   StatusFailed,
		Reason:   stage,
		Err:      err,
	}
}
