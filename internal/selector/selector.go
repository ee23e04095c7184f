// Package selector picks the fetch strategy for a target's next run and decides
// when a cheap fetch should be escalated to the headless browser.
package selector

import (
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// DefaultProvenWindow is the number of recent snapshots that must agree before a
// strategy counts as proven.
const DefaultProvenWindow = 2

// Context carries the per-run requirements that can force a strategy.
type Context struct {
	// RequiresBrowser mandates browser-grade rendering.
	RequiresBrowser bool
	Locale          string
	Timezone        string
}

// ContextFor derives the run context from a target. Timezone-sensitive pages
// need a browser to emulate the zone.
func ContextFor(target watch.Target) Context {
	return Context{
		RequiresBrowser: target.RequiresBrowser || target.Timezone != "",
		Locale:          target.Locale,
		Timezone:        target.Timezone,
	}
}

// Decide returns the strategy for the next run. Rules short-circuit in order:
// a browser mandate, no history, a sticky accurate escalation, a proven
// strategy, then the cheap default.
func Decide(ctx Context, last *watch.Snapshot, proven *watch.Strategy) watch.Strategy {
	switch {
	case ctx.RequiresBrowser:
		return watch.StrategyAccurate
	case last == nil:
		return watch.StrategyCheap
	case last.Source == watch.StrategyAccurate:
		return watch.StrategyAccurate
	case proven != nil && proven.Valid():
		return *proven
	default:
		return watch.StrategyCheap
	}
}

// DetermineBest inspects the newest window snapshots (history is newest first)
// and returns their shared strategy, or nil when the window is short or mixed.
// A non-positive window uses DefaultProvenWindow.
func DetermineBest(history []watch.Snapshot, window int) *watch.Strategy {
	if window <= 0 {
		window = DefaultProvenWindow
	}
	if len(history) < window {
		return nil
	}
	first := history[0].Source
	if !first.Valid() {
		return nil
	}
	for _, snap := range history[1:window] {
		if snap.Source != first {
			return nil
		}
	}
	return &first
}
