package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

var now = time.Date(2024, 6, 9, 3, 0, 0, 0, time.UTC)

func TestPolicy_Window(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	window, ok := p.Window(watch.PlanFree)
	require.True(t, ok)
	require.Equal(t, 7*24*time.Hour, window)

	_, ok = p.Window(watch.PlanPro)
	require.False(t, ok)

	window, ok = p.Window("")
	require.True(t, ok)
	require.Equal(t, 7*24*time.Hour, window)
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		tenants: []watch.Tenant{
			{ID: "free-1", Plan: watch.PlanFree},
			{ID: "pro-1", Plan: watch.PlanPro},
			{ID: "free-empty", Plan: watch.PlanFree},
			{ID: "free-broken", Plan: watch.PlanFree},
			{ID: "free-2", Plan: watch.PlanFree},
		},
		targets: map[string][]string{
			"free-1":      {"t1", "t2"},
			"pro-1":       {"t3"},
			"free-broken": {"t4"},
			"free-2":      {"t5"},
		},
		failSnapshotsFor: "t4",
	}

	report, err := New(store, nil, fixedClock{now}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{
		Tenants:          5,
		Swept:            3,
		Skipped:          1,
		Failed:           1,
		SnapshotsDeleted: 6,
		AlertsDeleted:    4,
	}, report)

	require.Equal(t, now.Add(-7*24*time.Hour), store.cutoff)
	require.NotContains(t, store.sweptIDs, "t3")
	require.Contains(t, store.sweptIDs, "t5")
}

func TestSweeper_ListTenantsErrorAborts(t *testing.T) {
	t.Parallel()

	store := &fakeStore{listErr: errors.New("db down")}
	_, err := New(store, nil, fixedClock{now}, nil).Run(context.Background())
	require.Error(t, err)

	var perr *watch.PersistenceError
	require.ErrorAs(t, err, &perr)
}

func TestSweeper_CustomPolicy(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		tenants: []watch.Tenant{{ID: "pro-1", Plan: watch.PlanPro}},
		targets: map[string][]string{"pro-1": {"t1"}},
	}
	policy := Policy{watch.PlanFree: 7, watch.PlanPro: 90}

	report, err := New(store, policy, fixedClock{now}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Swept)
	require.Equal(t, now.Add(-90*24*time.Hour), store.cutoff)
}

func TestSweeper_DurationUsesInjectedClock(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	clock := &stepClock{t: now, step: 90 * time.Second}
	store := &fakeStore{
		tenants: []watch.Tenant{{ID: "free-1", Plan: watch.PlanFree}},
		targets: map[string][]string{"free-1": {"t1"}},
	}

	_, err := New(store, nil, clock, zap.New(core)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, now.Add(-7*24*time.Hour), store.cutoff)

	done := logs.FilterMessage("retention sweep complete").All()
	require.Len(t, done, 1)
	require.Equal(t, 90*time.Second, done[0].ContextMap()["duration"])
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// stepClock advances by step after every read.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

type fakeStore struct {
	mu               sync.Mutex
	tenants          []watch.Tenant
	targets          map[string][]string
	listErr          error
	failSnapshotsFor string
	cutoff           time.Time
	sweptIDs         []string
}

func (f *fakeStore) ListTenants(context.Context) ([]watch.Tenant, error) {
	return f.tenants, f.listErr
}

func (f *fakeStore) ListTargetIDs(_ context.Context, ownerID string) ([]string, error) {
	return f.targets[ownerID], nil
}

func (f *fakeStore) DeleteSnapshotsBefore(_ context.Context, ids []string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if id == f.failSnapshotsFor {
			return 0, errors.New("delete failed")
		}
	}
	f.cutoff = cutoff
	f.sweptIDs = append(f.sweptIDs, ids...)
	return int64(2 * len(ids)), nil
}

func (f *fakeStore) DeleteAlertsBefore(_ context.Context, ids []string, _ time.Time) (int64, error) {
	return int64(len(ids)), nil
}
