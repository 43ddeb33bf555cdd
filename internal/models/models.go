// Package models defines the core domain types for ordo.
package models

import "time"

// GoalStatus represents the current state of a goal.
type GoalStatus string

const (
	GoalStatusPending   GoalStatus = "pending"
	GoalStatusSucceeded GoalStatus = "succeeded"
	GoalStatusFailed    GoalStatus = "failed"
	GoalStatusCancelled GoalStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusPending, GoalStatusSucceeded, GoalStatusFailed, GoalStatusCancelled:
		return true
	}
	return false
}

// Goal is a unit of work the user wants done at some point in time.
type Goal struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	DurationEstimate  int64      `json:"duration_estimate"` // ms
	Status            GoalStatus `json:"status"`
	UtilityFunctionID string     `json:"utility_function_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TimeUtilityFunction stores a utility curve as two parallel arrays.
type TimeUtilityFunction struct {
	ID         string    `json:"id"`
	StartTimes []int64   `json:"start_times"`
	Utils      []float64 `json:"utils"`
	CreatedAt  time.Time `json:"created_at"`
}

// GoalEvent is one scheduling of a goal. The most recent active event is the
// goal's current schedule.
type GoalEvent struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goal_id"`
	StartTime int64     `json:"start_time"` // epoch ms
	EndTime   int64     `json:"end_time"`   // epoch ms
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	GoalID     string    `json:"goal_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
