package utility

import "errors"

// Sentinel errors for utility function construction and evaluation.
var (
	ErrNoPoints       = errors.New("utility function needs at least one point")
	ErrLengthMismatch = errors.New("start times and utilities differ in length")
	ErrDuplicateTime  = errors.New("two points share the same time")
	ErrNonFinite      = errors.New("utility is not a finite number")
	ErrOutOfRange     = errors.New("point time outside the supported range")
	ErrInvalidWindow  = errors.New("integration window ends before it starts")
)
