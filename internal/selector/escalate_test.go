package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func pricingPage() string {
	return strings.Repeat("Our pricing starts at $99/mo ", 20)
}

func TestShouldEscalate_ExpectedSymbols(t *testing.T) {
	t.Parallel()

	content := pricingPage()
	require.Greater(t, len(content), DefaultMinContentLength)
	require.False(t, ShouldEscalate(content, []string{"$"}))
	require.True(t, ShouldEscalate(content, []string{"€"}))
	require.False(t, ShouldEscalate(content, nil))
}

func TestEscalator_Reasons(t *testing.T) {
	t.Parallel()

	e := NewEscalator(0)

	reason, escalate := e.Check("pro $49/mo", nil)
	require.True(t, escalate)
	require.Equal(t, ReasonShortContent, reason)

	reason, escalate = e.Check(strings.Repeat("no prices here at all ", 40), nil)
	require.True(t, escalate)
	require.Equal(t, ReasonNoPricing, reason)

	reason, escalate = e.Check(strings.Repeat("starter 12/month ", 40), []string{"£"})
	require.True(t, escalate)
	require.Equal(t, ReasonMissingSymbols, reason)

	reason, escalate = e.Check(strings.Repeat("starter 12/month ", 40), []string{"£", "12/month"})
	require.False(t, escalate)
	require.Empty(t, reason)
}

func TestEscalator_CustomMinimum(t *testing.T) {
	t.Parallel()

	_, escalate := NewEscalator(5).Check("pro $49", nil)
	require.False(t, escalate)
}

func TestSymbolsForLocale(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"$"}, SymbolsForLocale("en-US"))
	require.Equal(t, []string{"£"}, SymbolsForLocale("en-GB"))
	require.Equal(t, []string{"€"}, SymbolsForLocale("de-DE"))
	require.Equal(t, []string{"€"}, SymbolsForLocale("fr-FR"))
	require.Equal(t, []string{"₹"}, SymbolsForLocale("hi-IN"))
	require.Nil(t, SymbolsForLocale(""))
	require.Nil(t, SymbolsForLocale("!!"))
}

func TestExpectedSymbols_ExplicitWins(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"CHF"}, ExpectedSymbols(watch.Target{Locale: "de-DE", ExpectedSymbols: []string{"CHF"}}))
	require.Equal(t, []string{"€"}, ExpectedSymbols(watch.Target{Locale: "de-DE"}))
}
