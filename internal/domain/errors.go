package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound is returned when a run handle is unknown or evicted.
	ErrRunNotFound = errors.New("run not found")

	// ErrAbortedByUser is the terminal error of a cancelled run.
	ErrAbortedByUser = errors.New("aborted by user")

	// ErrNoTargetSucceeded is the terminal error of a run whose every target
	// failed.
	ErrNoTargetSucceeded = errors.New("No target successfully written")
)

// ValidationError reports a malformed input event.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	if e.Value == nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Reason, e.Value)
}

// DataIntegrityError is returned when more than one stored scenario shares a
// hash. It is never retried.
type DataIntegrityError struct {
	Hash  int64
	Count int
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("%d scenarios share hash %d", e.Count, e.Hash)
}

// NoTargetsError is returned when the area query yields no rows.
type NoTargetsError struct{}

func (e *NoTargetsError) Error() string {
	return "No target cells found (zero cells)"
}

// AllTargetsMalformedError is returned when every target row is malformed.
type AllTargetsMalformedError struct {
	Count int
}

func (e *AllTargetsMalformedError) Error() string {
	return "All target cells are malformed (missing or non-numeric values)"
}

// AreaTooSmallError is returned when the resolved radius is below the search
// step, i.e. the epicentral intensity is already under the reference.
type AreaTooSmallError struct {
	IRef   float64
	Radius float64
}

func (e *AreaTooSmallError) Error() string {
	return fmt.Sprintf("Epicentral intensity smaller than intensity reference = %.2f mw", e.IRef)
}

// PerTargetError wraps the failure of one target computation. It is counted
// on the session and never becomes the run error.
type PerTargetError struct {
	TargetID  int64
	GeocellID int64
	Err       error
}

func (e *PerTargetError) Error() string {
	return fmt.Sprintf("target %d (geocell %d): %v", e.TargetID, e.GeocellID, e.Err)
}

func (e *PerTargetError) Unwrap() error { return e.Err }

// IllegalStateError is returned when an operation is not allowed in the
// current run state.
type IllegalStateError struct {
	Op    string
	State string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}
