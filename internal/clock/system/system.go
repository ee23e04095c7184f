// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Clock reads the wall clock in UTC. Day boundaries in the gate and the
// quota rollover are UTC days.
type Clock struct{}

var _ watch.Clock = Clock{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
