package selector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func strategyPtr(s watch.Strategy) *watch.Strategy { return &s }

func snaps(sources ...watch.Strategy) []watch.Snapshot {
	out := make([]watch.Snapshot, len(sources))
	for i, s := range sources {
		out[i] = watch.Snapshot{Source: s}
	}
	return out
}

func TestDecide_BrowserMandateOverridesEverything(t *testing.T) {
	t.Parallel()

	last := &watch.Snapshot{Source: watch.StrategyCheap}
	got := Decide(Context{RequiresBrowser: true}, last, strategyPtr(watch.StrategyCheap))
	require.Equal(t, watch.StrategyAccurate, got)
}

func TestDecide_Rules(t *testing.T) {
	t.Parallel()

	cheap := &watch.Snapshot{Source: watch.StrategyCheap}
	accurate := &watch.Snapshot{Source: watch.StrategyAccurate}

	require.Equal(t, watch.StrategyCheap, Decide(Context{}, nil, strategyPtr(watch.StrategyAccurate)))
	require.Equal(t, watch.StrategyAccurate, Decide(Context{}, accurate, strategyPtr(watch.StrategyCheap)))
	require.Equal(t, watch.StrategyAccurate, Decide(Context{}, cheap, strategyPtr(watch.StrategyAccurate)))
	require.Equal(t, watch.StrategyCheap, Decide(Context{}, cheap, nil))
}

func TestContextFor(t *testing.T) {
	t.Parallel()

	// A locale alone rides on Accept-Language; the escalator catches a wrong geo variant.
	localeOnly := ContextFor(watch.Target{Locale: "de-DE"})
	require.False(t, localeOnly.RequiresBrowser)
	require.Equal(t, "de-DE", localeOnly.Locale)
	require.Equal(t, watch.StrategyCheap, Decide(localeOnly, nil, nil))
	require.True(t, ContextFor(watch.Target{Timezone: "Europe/Berlin"}).RequiresBrowser)
	require.True(t, ContextFor(watch.Target{RequiresBrowser: true}).RequiresBrowser)
}

func TestDetermineBest_DefaultWindow(t *testing.T) {
	t.Parallel()

	got := DetermineBest(snaps(watch.StrategyAccurate, watch.StrategyAccurate, watch.StrategyCheap), 0)
	require.NotNil(t, got)
	require.Equal(t, watch.StrategyAccurate, *got)

	require.Nil(t, DetermineBest(snaps(watch.StrategyAccurate, watch.StrategyCheap), 0))
	require.Nil(t, DetermineBest(snaps(watch.StrategyCheap), 0))
	require.Nil(t, DetermineBest(nil, 0))
}

func TestDetermineBest_CustomWindow(t *testing.T) {
	t.Parallel()

	history := snaps(watch.StrategyCheap, watch.StrategyCheap, watch.StrategyCheap, watch.StrategyAccurate, watch.StrategyAccurate)

	got := DetermineBest(history, 3)
	require.NotNil(t, got)
	require.Equal(t, watch.StrategyCheap, *got)

	require.Nil(t, DetermineBest(history, 4))
	require.Nil(t, DetermineBest(history, 6))
}
