package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrGoalNotFound  = errors.New("goal not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrSessionActive = errors.New("optimize session already active")
	ErrNoSession     = errors.New("no optimize session")
)
