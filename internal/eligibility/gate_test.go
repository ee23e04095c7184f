package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

func TestEvaluate_InactiveAlwaysIneligible(t *testing.T) {
	t.Parallel()

	for _, status := range []watch.TargetStatus{watch.TargetStatusPaused, watch.TargetStatusError, ""} {
		target := watch.Target{Status: status}
		for _, mode := range []Mode{ModeScheduled, ModeManual} {
			got := Evaluate(target, now, mode)
			require.False(t, got.Eligible)
			require.Equal(t, "target status is "+string(status), got.Reason)
		}
	}
}

func TestEvaluate_DecisionOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		target watch.Target
		want   Decision
	}{
		{
			name:   "eligible with no history",
			target: watch.Target{Status: watch.TargetStatusActive},
			want:   Decision{Eligible: true},
		},
		{
			name: "threshold wins over cooldown",
			target: watch.Target{
				Status:        watch.TargetStatusActive,
				FailureCount:  3,
				LastFailureAt: at(now.Add(-time.Hour)),
			},
			want: Decision{Reason: "paused due to repeated failures"},
		},
		{
			name: "cooldown",
			target: watch.Target{
				Status:        watch.TargetStatusActive,
				FailureCount:  1,
				LastFailureAt: at(now.Add(-23 * time.Hour)),
			},
			want: Decision{Reason: "in failure cooldown period"},
		},
		{
			name: "cooldown elapsed",
			target: watch.Target{
				Status:        watch.TargetStatusActive,
				FailureCount:  1,
				LastFailureAt: at(now.Add(-25 * time.Hour)),
			},
			want: Decision{Eligible: true},
		},
		{
			name: "checked earlier today",
			target: watch.Target{
				Status:        watch.TargetStatusActive,
				LastCheckedAt: at(now.Add(-11 * time.Hour)),
			},
			want: Decision{Reason: "already checked today"},
		},
		{
			name: "checked yesterday within 24h",
			target: watch.Target{
				Status:        watch.TargetStatusActive,
				LastCheckedAt: at(now.Add(-13 * time.Hour)),
			},
			want: Decision{Eligible: true},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Evaluate(tc.target, now, ModeScheduled))
		})
	}
}

func TestEvaluate_UTCDayBoundary(t *testing.T) {
	t.Parallel()

	midnight := time.Date(2024, 5, 11, 0, 30, 0, 0, time.UTC)
	target := watch.Target{
		Status:        watch.TargetStatusActive,
		LastCheckedAt: at(midnight.Add(-time.Hour)),
	}
	require.True(t, Evaluate(target, midnight, ModeScheduled).Eligible)

	eastern := time.FixedZone("EST", -5*3600)
	sameDay := watch.Target{
		Status:        watch.TargetStatusActive,
		LastCheckedAt: at(time.Date(2024, 5, 10, 19, 0, 0, 0, eastern)),
	}
	require.False(t, Evaluate(sameDay, midnight, ModeScheduled).Eligible)
}

func TestEvaluate_ManualSkipsCheckedToday(t *testing.T) {
	t.Parallel()

	target := watch.Target{
		Status:        watch.TargetStatusActive,
		LastCheckedAt: at(now.Add(-time.Hour)),
	}
	require.False(t, Evaluate(target, now, ModeScheduled).Eligible)
	require.True(t, Evaluate(target, now, ModeManual).Eligible)

	target.FailureCount = FailureThreshold
	require.Equal(t, "paused due to repeated failures", Evaluate(target, now, ModeManual).Reason)
}

func TestRuleNames_Order(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"inactive", "failure_threshold", "cooldown", "checked_today"}, RuleNames())
}

func TestGate_RecordFailure(t *testing.T) {
	t.Parallel()

	for prior := 0; prior < FailureThreshold; prior++ {
		store := &fakeTargetStore{}
		gate := New(store, fixedClock{now}, nil)
		target := watch.Target{ID: "t1", Status: watch.TargetStatusActive, FailureCount: prior}

		paused, err := gate.RecordFailure(context.Background(), target, prior)
		require.NoError(t, err)
		require.Equal(t, prior+1, store.failureCount)
		require.Equal(t, now, store.failedAt)
		if prior == FailureThreshold-1 {
			require.True(t, paused)
			require.Equal(t, watch.TargetStatusError, store.status)
		} else {
			require.False(t, paused)
			require.Equal(t, watch.TargetStatusActive, store.status)
		}
	}
}

func TestGate_RecordSuccess(t *testing.T) {
	t.Parallel()

	store := &fakeTargetStore{}
	gate := New(store, fixedClock{now}, nil)
	require.NoError(t, gate.RecordSuccess(context.Background(), watch.Target{ID: "t1"}))
	require.Equal(t, "t1", store.successID)
	require.Equal(t, now, store.checkedAt)
}

func TestGate_PersistenceErrorsSurface(t *testing.T) {
	t.Parallel()

	store := &fakeTargetStore{err: errors.New("db down")}
	gate := New(store, fixedClock{now}, nil)

	err := gate.RecordSuccess(context.Background(), watch.Target{ID: "t1"})
	var perr *watch.PersistenceError
	require.ErrorAs(t, err, &perr)

	paused, err := gate.RecordFailure(context.Background(), watch.Target{ID: "t1"}, 2)
	require.False(t, paused)
	require.ErrorAs(t, err, &perr)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeTargetStore struct {
	watch.TargetStore

	err          error
	successID    string
	checkedAt    time.Time
	failureCount int
	status       watch.TargetStatus
	failedAt     time.Time
}

func (f *fakeTargetStore) MarkSuccess(_ context.Context, id string, checkedAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.successID = id
	f.checkedAt = checkedAt
	return nil
}

func (f *fakeTargetStore) MarkFailure(_ context.Context, _ string, count int, status watch.TargetStatus, failedAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.failureCount = count
	f.status = status
	f.failedAt = failedAt
	return nil
}
