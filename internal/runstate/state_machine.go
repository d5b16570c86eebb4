package runstate

import "fmt"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusUninit  Status = "UNINIT"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusAborted Status = "ABORTED"
)

// ValidateTransition checks if a status transition is valid.
// Returns an error if the transition is not allowed.
func ValidateTransition(from, to Status) error {
	validTransitions := map[Status][]Status{
		StatusUninit: {
			StatusRunning, // Input validated
			StatusAborted, // Invalid input
		},
		StatusRunning: {
			StatusDone,    // All targets finished, or stopped without error
			StatusAborted, // Coordinator error, cancellation or total failure
		},
		// Terminal states
		StatusDone:    {},
		StatusAborted: {},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}

// IsTerminal checks if a status is terminal (no further transitions).
func IsTerminal(s Status) bool {
	return s == StatusDone || s == StatusAborted
}
