// Package eligibility decides whether a target may be crawled right now and
// records the outcome of each attempt.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

const (
	// FailureThreshold is the consecutive failure count that pauses a target.
	FailureThreshold = 3
	// CooldownWindow blocks retries after a failure.
	CooldownWindow = 24 * time.Hour
)

// Decision is the gate's verdict. Ineligibility is a value, never an error.
type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Mode distinguishes scheduled ticks from manual checks.
type Mode int

const (
	// ModeScheduled applies every rule.
	ModeScheduled Mode = iota
	// ModeManual skips the once-per-day rule.
	ModeManual
)

type rule struct {
	name string
	// skipManual exempts manual checks from the rule.
	skipManual bool
	deny       func(target watch.Target, now time.Time) (string, bool)
}

// rules is evaluated in order; the first denial wins.
var rules = []rule{
	{
		name: "inactive",
		deny: func(target watch.Target, _ time.Time) (string, bool) {
			if target.Status != watch.TargetStatusActive {
				return fmt.Sprintf("target status is %s", target.Status), true
			}
			return "", false
		},
	},
	{
		name: "failure_threshold",
		deny: func(target watch.Target, _ time.Time) (string, bool) {
			return "paused due to repeated failures", target.FailureCount >= FailureThreshold
		},
	},
	{
		name: "cooldown",
		deny: func(target watch.Target, now time.Time) (string, bool) {
			if target.LastFailureAt == nil {
				return "", false
			}
			return "in failure cooldown period", now.Sub(*target.LastFailureAt) < CooldownWindow
		},
	},
	{
		name:       "checked_today",
		skipManual: true,
		deny: func(target watch.Target, now time.Time) (string, bool) {
			if target.LastCheckedAt == nil {
				return "", false
			}
			return "already checked today", sameUTCDay(*target.LastCheckedAt, now)
		},
	},
}

// RuleNames lists the rules in evaluation order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// Evaluate applies the rule table to target at now.
func Evaluate(target watch.Target, now time.Time, mode Mode) Decision {
	for _, r := range rules {
		if mode == ModeManual && r.skipManual {
			continue
		}
		if reason, denied := r.deny(target, now); denied {
			return Decision{Reason: reason}
		}
	}
	return Decision{Eligible: true}
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Gate wraps the rule table with the state transitions recorded after each attempt.
type Gate struct {
	store  watch.TargetStore
	clock  watch.Clock
	logger *zap.Logger
}

// New constructs a Gate.
func New(store watch.TargetStore, clock watch.Clock, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, clock: clock, logger: logger.Named("eligibility")}
}

// Evaluate decides whether target may be crawled now.
func (g *Gate) Evaluate(target watch.Target, mode Mode) Decision {
	return Evaluate(target, g.clock.Now(), mode)
}

// RecordSuccess zeroes the failure count, clears the last failure and stamps the
// check time.
func (g *Gate) RecordSuccess(ctx context.Context, target watch.Target) error {
	if err := g.store.MarkSuccess(ctx, target.ID, g.clock.Now()); err != nil {
		return watch.Persist("mark success", err)
	}
	return nil
}

// RecordFailure increments the failure count from prior. Reaching the threshold
// moves the target to error status and reports paused.
func (g *Gate) RecordFailure(ctx context.Context, target watch.Target, prior int) (bool, error) {
	next := prior + 1
	status := target.Status
	paused := next >= FailureThreshold
	if paused {
		status = watch.TargetStatusError
	}
	if err := g.store.MarkFailure(ctx, target.ID, next, status, g.clock.Now()); err != nil {
		return false, watch.Persist("mark failure", err)
	}
	if paused {
		g.logger.Warn("target paused after repeated failures",
			zap.String("target_id", target.ID),
			zap.Int("failure_count", next),
		)
	}
	return paused, nil
}
