// Package guardrail holds the abuse and throttle checks. Each check is a pure
// function over aggregate counts supplied by the caller; a flag is a policy
// outcome, not an error.
package guardrail

import (
	"fmt"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Action is what the caller should do about a flag.
type Action string

// Actions from least to most restrictive.
const (
	ActionNone      Action = ""
	ActionWarn      Action = "warn"
	ActionThrottle  Action = "throttle"
	ActionSoftBlock Action = "soft_block"
	ActionPause     Action = "pause"
)

func (a Action) rank() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionThrottle:
		return 2
	case ActionSoftBlock:
		return 3
	case ActionPause:
		return 4
	default:
		return 0
	}
}

// Flag names the check that fired.
type Flag string

// Flags raised by the checks in this package.
const (
	FlagManualSpam Flag = "manual_check_spam"
	FlagHoarding   Flag = "target_hoarding"
	FlagVolatile   Flag = "volatile_page"
	FlagGlobal     Flag = "global_throttle"
)

// Result is the outcome of one check.
type Result struct {
	Flagged bool   `json:"flagged"`
	Flag    Flag   `json:"flag,omitempty"`
	Message string `json:"message,omitempty"`
	Action  Action `json:"action,omitempty"`
}

// Limits parameterizes every check.
type Limits struct {
	ManualChecksFree int
	ManualChecksPaid int

	HoardingTargets   int
	HoardingAlertRate float64

	VolatileWindow       int
	VolatileMinSnapshots int
	VolatileChangeRate   float64
	VolatileAlertRate    float64

	// GlobalBaseline is the expected daily crawl volume. Zero disables the check.
	GlobalBaseline   int
	GlobalMultiplier float64
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		ManualChecksFree:     1,
		ManualChecksPaid:     5,
		HoardingTargets:      20,
		HoardingAlertRate:    0.01,
		VolatileWindow:       10,
		VolatileMinSnapshots: 5,
		VolatileChangeRate:   0.70,
		VolatileAlertRate:    0.02,
		GlobalBaseline:       10000,
		GlobalMultiplier:     1.5,
	}
}

// ManualLimit returns the plan's daily manual-check allowance.
func (l Limits) ManualLimit(plan watch.Plan) int {
	if plan.IsPaid() {
		return l.ManualChecksPaid
	}
	return l.ManualChecksFree
}

// CheckManualSpam flags a tenant whose manual-check counter already reached the
// plan limit, before the check is attempted.
func CheckManualSpam(plan watch.Plan, checksToday int, limits Limits) Result {
	limit := limits.ManualLimit(plan)
	if checksToday < limit {
		return Result{}
	}
	if plan == "" {
		plan = watch.PlanFree
	}
	return Result{
		Flagged: true,
		Flag:    FlagManualSpam,
		Message: fmt.Sprintf("Daily manual check limit reached (%d/%d on %s plan)", checksToday, limit, plan),
		Action:  ActionSoftBlock,
	}
}

// DetectHoarding flags a tenant who added many targets in the trailing day while
// almost none of their snapshots ever produced a meaningful alert.
func DetectHoarding(activity watch.OwnerActivity, limits Limits) Result {
	if activity.TargetsAdded24h <= limits.HoardingTargets {
		return Result{}
	}
	rate := ratio(activity.MeaningfulAlerts, activity.Snapshots)
	if rate >= limits.HoardingAlertRate {
		return Result{}
	}
	return Result{
		Flagged: true,
		Flag:    FlagHoarding,
		Message: fmt.Sprintf("%d targets added in 24h with a %.1f%% meaningful alert rate", activity.TargetsAdded24h, rate*100),
		Action:  ActionWarn,
	}
}

// DetectVolatilePage flags a target that churns constantly without mattering.
// history is newest first; alerts counts meaningful alerts over the same window.
// The change rate is the share of distinct fingerprints in the window.
func DetectVolatilePage(history []watch.Snapshot, alerts int, limits Limits) Result {
	window := history
	if limits.VolatileWindow > 0 && len(window) > limits.VolatileWindow {
		window = window[:limits.VolatileWindow]
	}
	n := len(window)
	if n == 0 || n < limits.VolatileMinSnapshots {
		return Result{}
	}
	distinct := make(map[string]struct{}, n)
	for _, snap := range window {
		distinct[snap.Fingerprint] = struct{}{}
	}
	changeRate := ratio(len(distinct), n)
	alertRate := ratio(alerts, n)
	if changeRate <= limits.VolatileChangeRate || alertRate >= limits.VolatileAlertRate {
		return Result{}
	}
	return Result{
		Flagged: true,
		Flag:    FlagVolatile,
		Message: fmt.Sprintf("%d of last %d snapshots differ with %d meaningful alerts", len(distinct), n, alerts),
		Action:  ActionThrottle,
	}
}

// CheckGlobal trips when today's crawl volume exceeds the baseline multiple.
func CheckGlobal(crawlsToday int, limits Limits) Result {
	if limits.GlobalBaseline <= 0 {
		return Result{}
	}
	ceiling := float64(limits.GlobalBaseline) * limits.GlobalMultiplier
	if float64(crawlsToday) <= ceiling {
		return Result{}
	}
	return Result{
		Flagged: true,
		Flag:    FlagGlobal,
		Message: fmt.Sprintf("Global crawl volume %d exceeds %.0f", crawlsToday, ceiling),
		Action:  ActionPause,
	}
}

// MostRestrictive returns the flagged result with the strongest action. Ties keep
// the earliest result. No flags yields the zero Result.
func MostRestrictive(results ...Result) Result {
	var worst Result
	for _, r := range results {
		if r.Flagged && r.Action.rank() > worst.Action.rank() {
			worst = r
		}
	}
	return worst
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
