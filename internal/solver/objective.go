package solver

import (
	"fmt"
	"math"
)

// DefaultSpan is the width of the uniform window a neighbor's start time
// is shifted within, centred on zero.
const DefaultSpan int64 = 10_000_000

// Rand is a uniform source on [0, 1). *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// ExpectedValue sums every goal's integrated utility. An empty assignment
// is worth zero.
func ExpectedValue(a Assignment) (float64, error) {
	sum := 0.0
	for _, g := range a {
		v, err := g.Value()
		if err != nil {
			return 0, fmt.Errorf("goal %s: %w", g.ID, err)
		}
		sum += v
	}
	return sum, nil
}

// Neighbor returns a copy of a in which one goal, picked uniformly, has its
// start shifted by a uniform offset in [-span/2, span/2). The goal index is
// drawn before the offset. An empty assignment yields an empty copy.
func Neighbor(a Assignment, r Rand, span int64) Assignment {
	out := a.Clone()
	if len(out) == 0 {
		return out
	}

	i := int(r.Float64() * float64(len(out)))
	if i >= len(out) {
		i = len(out) - 1
	}
	offset := math.Round((r.Float64() - 0.5) * float64(span))
	out[i].Start += int64(offset)
	return out
}
