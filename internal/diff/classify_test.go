package diff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func TestClassify_PricingIsHigh(t *testing.T) {
	t.Parallel()

	c := NewClassifier(Options{})
	got := c.Classify(compute(t, "pro $49/mo. team $99/mo", "pro $59/mo. team $99/mo"))

	require.True(t, got.Meaningful)
	require.Equal(t, watch.SeverityHigh, got.Severity)
	require.Equal(t, []string{ReasonPricing}, got.ReasonCodes)
	require.Equal(t, []string{"Pricing updated: Pro:$49→$59"}, got.Changes)
	require.Equal(t, "Pricing updated: Pro:$49→$59", got.Summary())
}

func TestClassify_Categories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		prev   string
		curr   string
		reason string
		item   string
	}{
		{
			name:   "plan added",
			prev:   "starter $9/mo. pro $49/mo",
			curr:   "starter $9/mo. pro $49/mo. enterprise $199/mo",
			reason: ReasonPlanAdded,
			item:   "Plan added: enterprise $199/mo",
		},
		{
			name:   "plan removed",
			prev:   "starter $9/mo. pro $49/mo. enterprise $199/mo",
			curr:   "starter $9/mo. pro $49/mo",
			reason: ReasonPlanRemoved,
			item:   "Plan removed: enterprise $199/mo",
		},
		{
			name:   "feature added",
			prev:   "pro $49/mo. includes 10 projects",
			curr:   "pro $49/mo. includes 10 projects. now with sso",
			reason: ReasonFeature,
			item:   "Feature added: now with sso",
		},
		{
			name:   "positioning",
			prev:   "the simple way to ship",
			curr:   "the fastest platform for teams",
			reason: ReasonPositioning,
			item:   "Positioning changed: the fastest platform for teams",
		},
	}
	c := NewClassifier(Options{})
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(compute(t, tc.prev, tc.curr))
			require.True(t, got.Meaningful)
			require.Equal(t, watch.SeverityMedium, got.Severity)
			require.Equal(t, []string{tc.reason}, got.ReasonCodes)
			require.Equal(t, []string{tc.item}, got.Changes)
		})
	}
}

func TestClassify_MinorRespectsPolicy(t *testing.T) {
	t.Parallel()

	result := compute(t, "hello world", "hello there world")

	got := NewClassifier(Options{}).Classify(result)
	require.False(t, got.Meaningful)
	require.Equal(t, watch.SeverityMinor, got.Severity)
	require.Equal(t, []string{ReasonMinor}, got.ReasonCodes)

	got = NewClassifier(Options{AlertOnMinor: true}).Classify(result)
	require.True(t, got.Meaningful)
	require.Equal(t, watch.SeverityMinor, got.Severity)
}

func TestClassify_NoChanges(t *testing.T) {
	t.Parallel()

	got := NewClassifier(Options{AlertOnMinor: true}).Classify(Result{})
	require.False(t, got.Meaningful)
	require.Equal(t, watch.SeverityNone, got.Severity)
}

func TestClassify_KeywordsMatchWholeWords(t *testing.T) {
	t.Parallel()

	c := NewClassifier(Options{})
	require.False(t, c.plans.in("our product is great"))
	require.True(t, c.plans.in("the Pro tier"))
	require.True(t, c.positioning.in("an all-in-one workspace"))
}
