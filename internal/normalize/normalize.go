// Package normalize canonicalizes raw page text into a stable, low-noise form and
// fingerprints it. Every step operates on the output of the previous one.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLength is the normalized text budget in characters.
const MaxLength = 4000

// Content is a normalized text plus its fingerprint.
type Content struct {
	Text        string
	Fingerprint string
}

// New normalizes raw and fingerprints the result. Identical raw input always
// yields an identical Content.
func New(raw string) Content {
	text := Normalize(raw)
	return Content{Text: text, Fingerprint: Fingerprint(text)}
}

// maxPasses bounds the fixpoint loop in Normalize. Every pass after the first
// only shrinks the text, so it settles quickly.
const maxPasses = 8

// Normalize applies the full transform. It is idempotent: a cut made by
// truncation can expose a new boilerplate match at the edge, so the transform is
// repeated until the text stops changing.
func Normalize(raw string) string {
	text := pass(raw)
	for i := 1; i < maxPasses; i++ {
		next := pass(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func pass(text string) string {
	text = strings.ToLower(text)
	text = stripSections(text)
	text = stripBoilerplate(text)
	text = stripContacts(text)
	text = collapseWhitespace(text)
	text = canonicalGlyphs(text)
	return truncate(text, MaxLength)
}

// Fingerprint returns the hex SHA-256 digest of normalized text.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsFingerprint reports whether s looks like a value produced by Fingerprint.
func IsFingerprint(s string) bool {
	return fingerprintPattern.MatchString(s)
}

var (
	headingLine = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	// Titles of sections that churn without carrying product signal.
	lowSignalTitle = regexp.MustCompile(`^(?:testimonials?|customer stories|reviews|` +
		`what (?:our )?(?:customers|clients|users) (?:are )?say(?:ing)?|` +
		`faqs?|frequently asked questions|questions\?|` +
		`(?:trusted|loved|used) by\b.*|as seen (?:in|on)|our customers|footer)[\s:!.?]*$`)
)

// stripSections drops markdown sections whose heading names a low-signal block,
// up to the next heading of the same or a higher level. Single-line input has no
// section structure left and passes through untouched.
func stripSections(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	out := make([]string, 0, len(lines))
	skipLevel := 0
	for _, line := range lines {
		m := headingLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if skipLevel == 0 {
				out = append(out, line)
			}
			continue
		}
		level := len(m[1])
		if skipLevel > 0 && level > skipLevel {
			continue
		}
		skipLevel = 0
		if lowSignalTitle.MatchString(m[2]) {
			skipLevel = level
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

const (
	dash    = `[-‐‑‒–—―−]`
	// Numeric dates need a four-digit year so version numbers and ranges survive.
	year    = `(?:19|20)\d{2}`
	day     = `(?:0?[1-9]|[12]\d|3[01])`
	dateSep = `(?:` + dash + `|/|\.)`
	months  = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|` +
		`sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
)

// Boilerplate patterns. None of them distinguish a newline from a space so that a
// second pass over collapsed text finds nothing new.
var boilerplate = []*regexp.Regexp{
	// social links and badges in markdown
	regexp.MustCompile(`\[?!?\[[^\]]*\](?:\([^)\s]*\)\])?\([^)\s]*[/.](?:twitter\.com|x\.com|facebook\.com|` +
		`linkedin\.com|instagram\.com|youtube\.com|tiktok\.com|github\.com|discord\.gg|t\.co)[^)\s]*\)`),
	// copyright
	regexp.MustCompile(`(?:©|\(c\)|\bcopyright\b)\s*(?:\d{4}(?:\s*` + dash + `\s*\d{4})?)?`),
	regexp.MustCompile(`\ball rights reserved\.?`),
	// security and compliance badges, before the legal phrases that share words
	regexp.MustCompile(`\b(?:soc ?2(?: type (?:ii|i|2|1))?(?: (?:compliant|certified|audited))?|` +
		`iso ?27001(?: (?:compliant|certified))?|hipaa(?: compliant)?|gdpr(?: (?:compliant|ready))?|` +
		`pci` + dash + `?\s?dss(?: (?:compliant|level 1))?|ccpa(?: compliant)?)\b`),
	// legal policy mentions
	regexp.MustCompile(`\b(?:privacy (?:policy|notice)|terms (?:of (?:service|use)|and conditions|& conditions)|` +
		`cookie policy|acceptable use policy|data processing (?:agreement|addendum)|legal notice|imprint)\b`),
	// cookie consent
	regexp.MustCompile(`\b(?:(?:this (?:site|website) |we )uses? cookies|accept (?:all )?cookies|` +
		`reject (?:all )?cookies|cookie (?:settings|preferences|consent)|manage cookies|` +
		`do not sell(?: or share)? my personal information)\b`),
	// newsletter calls to action
	regexp.MustCompile(`\b(?:(?:subscribe to|sign up for|join) (?:our )?newsletter|` +
		`get (?:the )?latest (?:news|updates)|newsletter)\b`),
	// funding badges
	regexp.MustCompile(`\b(?:backed by (?:[a-z0-9&]+ ){0,4}(?:combinator|capital|ventures|partners)|` +
		`y ?combinator(?: [swf]\d{2})?|yc [swf]\d{2}|` +
		`raised \$?\d+(?:\.\d+)?\s*(?:k|m|mm|million|b|billion)|series [a-e] (?:funded|funding|round))\b`),
	// "last updated" markers
	regexp.MustCompile(`\b(?:last (?:updated|modified|reviewed)|updated on|effective date)\s*:?`),
	// calendar dates
	regexp.MustCompile(`\b` + year + dateSep + `(?:0?[1-9]|1[0-2])` + dateSep + day + `\b`),
	regexp.MustCompile(`\b` + day + dateSep + day + dateSep + year + `\b`),
	regexp.MustCompile(`\b` + months + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)?\s+` + months + `\.?,?\s+\d{4}\b`),
	regexp.MustCompile(`\b(?:january|february|march|april|june|july|august|september|october|november|december)\s+\d{4}\b`),
	// relative time
	regexp.MustCompile(`\b(?:\d+|an?|one|a few)\s+(?:seconds?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?)\s+ago\b`),
	regexp.MustCompile(`\b(?:just now|yesterday)\b`),
}

func stripBoilerplate(text string) string {
	for _, re := range boilerplate {
		text = re.ReplaceAllString(text, " ")
	}
	return text
}

var (
	urlPattern   = regexp.MustCompile(`\b(?:https?://|www\.)[^\s<>()"']+`)
	emailPattern = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	emptyTarget  = regexp.MustCompile(`\]\(\s*\)`)
)

func stripContacts(text string) string {
	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, " ")
	return emptyTarget.ReplaceAllString(text, "]")
}

var whitespace = regexp.MustCompile(`[\s\p{Zs}\x{200B}\x{FEFF}]+`)

func collapseWhitespace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

var glyphs = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`, "«", `"`, "»", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
)

func canonicalGlyphs(text string) string {
	return glyphs.Replace(text)
}

// truncate cuts text to limit characters, preferring the last ". " that falls in
// the final fifth of the budget.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	floor := limit - limit/5
	if idx := strings.LastIndex(cut, ". "); idx >= 0 && utf8.RuneCountInString(cut[:idx]) >= floor {
		return cut[:idx+1]
	}
	return strings.TrimSpace(cut)
}
