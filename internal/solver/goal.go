package solver

import (
	"fmt"

	"github.com/fentz26/ordo/internal/utility"
)

// Goal is the unit the optimizer moves around: a duration, a utility curve
// and a proposed start time.
type Goal struct {
	ID       string
	Duration int64 // ms, > 0
	Utility  *utility.Function
	Start    int64 // epoch ms
}

// NewGoal validates and builds a Goal.
func NewGoal(id string, duration int64, u *utility.Function, start int64) (Goal, error) {
	switch {
	case id == "":
		return Goal{}, fmt.Errorf("%w: empty id", ErrInvalidGoal)
	case duration <= 0:
		return Goal{}, fmt.Errorf("%w: goal %s has duration %d", ErrInvalidGoal, id, duration)
	case u == nil:
		return Goal{}, fmt.Errorf("%w: goal %s has no utility function", ErrInvalidGoal, id)
	}
	return Goal{ID: id, Duration: duration, Utility: u, Start: start}, nil
}

// End is the exclusive end of the occupied interval.
func (g Goal) End() int64 {
	return g.Start + g.Duration
}

// Value integrates the goal's utility over its occupied interval.
func (g Goal) Value() (float64, error) {
	return g.Utility.Integrate(g.Start, g.End())
}

// Assignment is the ordered set of goals being optimized.
type Assignment []Goal

// Clone copies the assignment. Utility functions are immutable and shared.
func (a Assignment) Clone() Assignment {
	if a == nil {
		return nil
	}
	out := make(Assignment, len(a))
	copy(out, a)
	return out
}
