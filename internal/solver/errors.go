package solver

import "errors"

// Sentinel errors for optimize sessions.
var (
	ErrInvalidGoal       = errors.New("invalid schedulable goal")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrLoadFailed        = errors.New("failed to load goals")
)
