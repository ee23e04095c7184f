package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLeaseHeld is returned when another worker owns the target.
	ErrLeaseHeld = errors.New("lease held by another worker")
	// ErrLeaseLost is returned when releasing a lease that already lapsed.
	ErrLeaseLost = errors.New("lease no longer held")
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchTimeout FetchErrorKind = "timeout"
	FetchBlocked FetchErrorKind = "blocked"
	FetchEmpty   FetchErrorKind = "empty"
	FetchUnknown FetchErrorKind = "unknown"
)

// FetchError is returned when a backend cannot produce usable content.
type FetchError struct {
	Kind       FetchErrorKind
	Strategy   Strategy
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s fetch %s: %s", e.Strategy, e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchErrorKindOf extracts the kind of a wrapped FetchError, or FetchUnknown.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FetchUnknown
}

// ClassificationError reports malformed snapshot input to the diff engine.
// It is fatal to one target's run only.
type ClassificationError struct {
	Reason string
}

func (e *ClassificationError) Error() string {
	return "classification: " + e.Reason
}

// PersistenceError wraps a storage-layer failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persist wraps err as a PersistenceError unless it is nil.
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
