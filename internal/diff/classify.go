package diff

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Reason codes attached to alerts.
const (
	ReasonPricing     = "pricing_changed"
	ReasonPlanAdded   = "plan_added"
	ReasonPlanRemoved = "plan_removed"
	ReasonFeature     = "feature_added"
	ReasonPositioning = "positioning_changed"
	ReasonMinor       = "minor_change"
)

// reasonOrder fixes the order reason codes are reported in.
var reasonOrder = []string{ReasonPricing, ReasonPlanAdded, ReasonPlanRemoved, ReasonFeature, ReasonPositioning}

// maxItemLength bounds a quoted segment in a change item.
const maxItemLength = 80

// Classification is the meaningfulness verdict for one Result.
type Classification struct {
	Meaningful  bool           `json:"meaningful"`
	Severity    watch.Severity `json:"severity"`
	ReasonCodes []string       `json:"reason_codes"`
	// Changes is the explainable list of concrete changed items.
	Changes []string `json:"changes"`
}

// Summary joins the change items into one line.
func (c Classification) Summary() string {
	return strings.Join(c.Changes, "; ")
}

// Options configures a Classifier.
type Options struct {
	// AlertOnMinor makes uncategorized changes alertable at minor severity.
	AlertOnMinor bool
}

var (
	planKeywords = []string{
		"plan", "plans", "tier", "starter", "basic", "pro", "premium", "business", "enterprise",
		"team", "teams", "growth", "scale", "startup", "personal", "plus", "free", "hobby", "standard",
	}
	planNouns       = []string{"plan", "plans", "tier"}
	featureKeywords = []string{
		"feature", "features", "includes", "including", "included", "integration", "integrations",
		"support", "unlimited", "api", "sso", "analytics", "introducing", "now available", "new",
		"add on", "storage", "seats", "users", "projects", "dashboards", "reports", "automation",
	}
	positioningKeywords = []string{
		"the only", "the best", "leading", "platform", "built for", "designed for", "for teams",
		"fastest", "all in one", "mission", "powerful", "easiest", "ai powered", "trusted",
		"number one", "world class", "modern",
	}
)

var pricePattern = regexp.MustCompile(`[$€₹£¥]\s?\d[\d,]*(?:\.\d+)?|\d[\d,]*(?:\.\d+)?\s?/\s?(?:mo|month|yr|year)\b`)

// keywordSet matches whole words through an Aho-Corasick automaton. Keywords
// and input are both reduced to space-padded alphanumeric words.
type keywordSet struct {
	matcher *ahocorasick.Matcher
}

func newKeywordSet(keywords []string) keywordSet {
	padded := make([]string, len(keywords))
	for i, kw := range keywords {
		padded[i] = " " + words(kw) + " "
	}
	return keywordSet{matcher: ahocorasick.NewStringMatcher(padded)}
}

func (k keywordSet) in(text string) bool {
	return len(k.matcher.MatchThreadSafe([]byte(" "+words(text)+" "))) > 0
}

func words(text string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}), " ")
}

// Classifier decides whether a Result is meaningful. It is safe for concurrent use.
type Classifier struct {
	alertOnMinor bool
	plans        keywordSet
	planNouns    keywordSet
	features     keywordSet
	positioning  keywordSet
}

// NewClassifier builds the keyword automata.
func NewClassifier(opts Options) *Classifier {
	return &Classifier{
		alertOnMinor: opts.AlertOnMinor,
		plans:        newKeywordSet(planKeywords),
		planNouns:    newKeywordSet(planNouns),
		features:     newKeywordSet(featureKeywords),
		positioning:  newKeywordSet(positioningKeywords),
	}
}

// Classify inspects each segment independently. Pricing escalates to high
// severity, any other category to medium, and an uncategorized change is minor.
func (c *Classifier) Classify(result Result) Classification {
	if !result.HasChanges {
		return Classification{Severity: watch.SeverityNone}
	}
	// cases.Caser is stateful, so each call gets its own.
	caser := cases.Title(language.English)
	found := make(map[string]bool)
	var changes []string
	note := func(reason, item string) {
		found[reason] = true
		changes = append(changes, item)
	}

	for _, seg := range result.Segments {
		switch seg.Kind {
		case KindChanged:
			before, after := prices(seg.Before), prices(seg.After)
			switch {
			case !samePrices(before, after):
				note(ReasonPricing, pricingItem(caser, seg, before, after))
			case c.positioning.in(seg.After):
				note(ReasonPositioning, "Positioning changed: "+clip(seg.After))
			case c.features.in(seg.After) && !c.features.in(seg.Before):
				note(ReasonFeature, "Feature added: "+clip(seg.After))
			}
		case KindAdded:
			c.classifyAddRemove(seg.After, true, note)
		case KindRemoved:
			c.classifyAddRemove(seg.Before, false, note)
		}
	}

	var codes []string
	for _, reason := range reasonOrder {
		if found[reason] {
			codes = append(codes, reason)
		}
	}
	switch {
	case found[ReasonPricing]:
		return Classification{Meaningful: true, Severity: watch.SeverityHigh, ReasonCodes: codes, Changes: changes}
	case len(codes) > 0:
		return Classification{Meaningful: true, Severity: watch.SeverityMedium, ReasonCodes: codes, Changes: changes}
	default:
		return Classification{
			Meaningful:  c.alertOnMinor,
			Severity:    watch.SeverityMinor,
			ReasonCodes: []string{ReasonMinor},
			Changes:     []string{"Minor content change"},
		}
	}
}

func (c *Classifier) classifyAddRemove(text string, added bool, note func(string, string)) {
	hasPrice := len(prices(text)) > 0
	isPlan := c.plans.in(text) && (hasPrice || c.planNouns.in(text))
	switch {
	case isPlan && added:
		note(ReasonPlanAdded, "Plan added: "+clip(text))
	case isPlan:
		note(ReasonPlanRemoved, "Plan removed: "+clip(text))
	case hasPrice && added:
		note(ReasonPricing, "Pricing added: "+strings.Join(prices(text), ", "))
	case hasPrice:
		note(ReasonPricing, "Pricing removed: "+strings.Join(prices(text), ", "))
	case added && c.features.in(text):
		note(ReasonFeature, "Feature added: "+clip(text))
	case c.positioning.in(text):
		note(ReasonPositioning, "Positioning changed: "+clip(text))
	}
}

func prices(text string) []string {
	found := pricePattern.FindAllString(text, -1)
	for i, p := range found {
		found[i] = strings.ReplaceAll(p, " ", "")
	}
	return found
}

func samePrices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pricingItem renders "Pricing updated: Pro:$49→$59". The label is the last few
// words before the first price in the new text.
func pricingItem(caser cases.Caser, seg Segment, before, after []string) string {
	label := priceLabel(seg.After)
	if label == "" {
		label = priceLabel(seg.Before)
	}
	change := strings.Join(before, ",") + "→" + strings.Join(after, ",")
	if label == "" {
		return "Pricing updated: " + change
	}
	return fmt.Sprintf("Pricing updated: %s:%s", caser.String(label), change)
}

func priceLabel(text string) string {
	loc := pricePattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	fields := strings.Fields(words(text[:loc[0]]))
	if len(fields) > 2 {
		fields = fields[len(fields)-2:]
	}
	return strings.Join(fields, " ")
}

func clip(text string) string {
	runes := []rune(text)
	if len(runes) <= maxItemLength {
		return text
	}
	return string(runes[:maxItemLength]) + "…"
}
