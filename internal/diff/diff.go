// Package diff compares normalized snapshots and classifies whether the change
// matters enough to alert on.
package diff

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/JakeFAU/pagewatch/internal/normalize"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Kind describes one segment-level edit.
type Kind string

// Segment edit kinds.
const (
	KindAdded   Kind = "added"
	KindRemoved Kind = "removed"
	KindChanged Kind = "changed"
)

// Segment is one edited unit of text. Before is empty for additions and After is
// empty for removals.
type Segment struct {
	Kind   Kind   `json:"kind"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Result describes the delta between two snapshots. It is never persisted.
type Result struct {
	HasChanges bool      `json:"has_changes"`
	Segments   []Segment `json:"segments,omitempty"`
}

// Sentence ends, inline bullets and flattened markdown headings.
var segmentBreak = regexp.MustCompile(`[.!?]\s+|\s+[-*|•]\s+|\s+#{1,6}\s+`)

// Split breaks normalized text into comparable segments.
func Split(text string) []string {
	parts := segmentBreak.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimLeft(p, "#"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Compute diffs two normalized texts. Equal fingerprints short-circuit to no
// change. Fingerprints that are malformed or do not match their text yield a
// ClassificationError.
func Compute(prevText, currText, prevFingerprint, currFingerprint string) (Result, error) {
	if err := validate("previous", prevText, prevFingerprint); err != nil {
		return Result{}, err
	}
	if err := validate("current", currText, currFingerprint); err != nil {
		return Result{}, err
	}
	if prevFingerprint == currFingerprint {
		return Result{}, nil
	}

	before, after := Split(prevText), Split(currText)
	matcher := difflib.NewMatcher(before, after)
	var segments []Segment
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'd':
			for _, s := range before[op.I1:op.I2] {
				segments = append(segments, Segment{Kind: KindRemoved, Before: s})
			}
		case 'i':
			for _, s := range after[op.J1:op.J2] {
				segments = append(segments, Segment{Kind: KindAdded, After: s})
			}
		case 'r':
			segments = append(segments, pairReplace(before[op.I1:op.I2], after[op.J1:op.J2])...)
		}
	}
	// Segmentation can hide a change that only moved a boundary.
	if len(segments) == 0 {
		segments = []Segment{{Kind: KindChanged, Before: prevText, After: currText}}
	}
	return Result{HasChanges: true, Segments: segments}, nil
}

// pairReplace matches replaced segments positionally; leftovers become plain
// additions or removals.
func pairReplace(before, after []string) []Segment {
	n := len(before)
	if len(after) < n {
		n = len(after)
	}
	out := make([]Segment, 0, len(before)+len(after)-n)
	for i := 0; i < n; i++ {
		out = append(out, Segment{Kind: KindChanged, Before: before[i], After: after[i]})
	}
	for _, s := range before[n:] {
		out = append(out, Segment{Kind: KindRemoved, Before: s})
	}
	for _, s := range after[n:] {
		out = append(out, Segment{Kind: KindAdded, After: s})
	}
	return out
}

func validate(which, text, fingerprint string) error {
	if !normalize.IsFingerprint(fingerprint) {
		return &watch.ClassificationError{Reason: which + " fingerprint is malformed"}
	}
	if normalize.Fingerprint(text) != fingerprint {
		return &watch.ClassificationError{Reason: which + " fingerprint does not match its text"}
	}
	return nil
}
