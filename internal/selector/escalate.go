package selector

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// DefaultMinContentLength is the normalized length below which a cheap fetch is
// treated as an unrendered shell.
const DefaultMinContentLength = 500

// Escalation reasons.
const (
	ReasonShortContent   = "short_content"
	ReasonNoPricing      = "no_pricing_pattern"
	ReasonMissingSymbols = "missing_expected_symbols"
)

var pricingPattern = regexp.MustCompile(`(?i)[$€₹£]\s?\d|\d+(?:[.,]\d+)?\s*/?\s*(?:mo|month|year|yr)s?\b`)

// Escalator decides whether a cheap result needs an accurate re-fetch.
type Escalator struct {
	MinContentLength int
}

// NewEscalator creates an Escalator; zero uses DefaultMinContentLength.
func NewEscalator(minLength int) Escalator {
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}
	return Escalator{MinContentLength: minLength}
}

// Check returns the first escalation reason found in normalized text. Any single
// reason triggers escalation. An empty expected list skips the symbol check.
func (e Escalator) Check(normalized string, expected []string) (string, bool) {
	minLength := e.MinContentLength
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}
	if len([]rune(normalized)) < minLength {
		return ReasonShortContent, true
	}
	if !pricingPattern.MatchString(normalized) {
		return ReasonNoPricing, true
	}
	if len(expected) > 0 && !containsAny(normalized, expected) {
		return ReasonMissingSymbols, true
	}
	return "", false
}

// ShouldEscalate applies the default Escalator.
func ShouldEscalate(normalized string, expected []string) bool {
	_, escalate := NewEscalator(0).Check(normalized, expected)
	return escalate
}

func containsAny(text string, symbols []string) bool {
	for _, sym := range symbols {
		sym = strings.ToLower(strings.TrimSpace(sym))
		if sym != "" && strings.Contains(text, sym) {
			return true
		}
	}
	return false
}

var euroZone = map[string]struct{}{
	"AT": {}, "BE": {}, "CY": {}, "DE": {}, "EE": {}, "ES": {}, "FI": {}, "FR": {}, "GR": {}, "HR": {},
	"IE": {}, "IT": {}, "LT": {}, "LU": {}, "LV": {}, "MT": {}, "NL": {}, "PT": {}, "SI": {}, "SK": {},
}

var regionSymbols = map[string][]string{
	"US": {"$"}, "CA": {"$"}, "AU": {"$"}, "NZ": {"$"}, "SG": {"$"}, "MX": {"$"},
	"GB": {"£"},
	"IN": {"₹"},
	"JP": {"¥"},
}

// SymbolsForLocale maps a BCP-47 locale to the currency symbols a correctly
// geo-targeted page should show. Unknown or empty locales return nil.
func SymbolsForLocale(locale string) []string {
	if strings.TrimSpace(locale) == "" {
		return nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil
	}
	region, confidence := tag.Region()
	if confidence == language.No {
		return nil
	}
	code := region.String()
	if _, ok := euroZone[code]; ok {
		return []string{"€"}
	}
	return regionSymbols[code]
}

// ExpectedSymbols returns the target's explicit symbols, falling back to its locale.
func ExpectedSymbols(target watch.Target) []string {
	if len(target.ExpectedSymbols) > 0 {
		return target.ExpectedSymbols
	}
	return SymbolsForLocale(target.Locale)
}
