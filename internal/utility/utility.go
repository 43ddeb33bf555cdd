// Package utility implements piecewise-linear time-utility functions.
//
// A Function maps an instant (epoch milliseconds) to a preference score. It
// is extended to the whole time line by two sentinel knots that hold the
// first and last real utilities constant.
package utility

import (
	"fmt"
	"math"
	"sort"
)

// MaxTime is the time of the right sentinel knot. MinTime mirrors it.
const (
	MaxTime int64 = 999999999999999
	MinTime int64 = -MaxTime
)

// Point is a single knot of a utility curve.
type Point struct {
	Time    int64   `json:"time"`
	Utility float64 `json:"utility"`
}

// Function is an immutable piecewise-linear curve.
type Function struct {
	// knots holds the real points sorted by time, wrapped in the two sentinels.
	knots []Point
}

// New builds a Function from points given in any order.
func New(points []Point) (*Function, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	for i, p := range sorted {
		if math.IsNaN(p.Utility) || math.IsInf(p.Utility, 0) {
			return nil, fmt.Errorf("point at %d: %w", p.Time, ErrNonFinite)
		}
		if p.Time <= MinTime || p.Time >= MaxTime {
			return nil, fmt.Errorf("point at %d: %w", p.Time, ErrOutOfRange)
		}
		if i > 0 && sorted[i-1].Time == p.Time {
			return nil, fmt.Errorf("point at %d: %w", p.Time, ErrDuplicateTime)
		}
	}

	knots := make([]Point, 0, len(sorted)+2)
	knots = append(knots, Point{Time: MinTime, Utility: sorted[0].Utility})
	knots = append(knots, sorted...)
	knots = append(knots, Point{Time: MaxTime, Utility: sorted[len(sorted)-1].Utility})

	return &Function{knots: knots}, nil
}

// FromSeries zips parallel time and utility arrays into a Function.
func FromSeries(times []int64, utils []float64) (*Function, error) {
	if len(times) != len(utils) {
		return nil, ErrLengthMismatch
	}
	points := make([]Point, len(times))
	for i := range times {
		points[i] = Point{Time: times[i], Utility: utils[i]}
	}
	return New(points)
}

// Points returns a copy of the real knots, sorted by time.
func (f *Function) Points() []Point {
	out := make([]Point, len(f.knots)-2)
	copy(out, f.knots[1:len(f.knots)-1])
	return out
}

// Knots returns a copy of every knot including both sentinels.
func (f *Function) Knots() []Point {
	out := make([]Point, len(f.knots))
	copy(out, f.knots)
	return out
}

// ValueAt returns the interpolated utility at t.
func (f *Function) ValueAt(t int64) float64 {
	first, last := f.knots[0], f.knots[len(f.knots)-1]
	if t <= first.Time {
		return first.Utility
	}
	if t >= last.Time {
		return last.Utility
	}

	// i is the least knot with Time >= t; i > 0 since t > first.Time.
	i := sort.Search(len(f.knots), func(i int) bool { return f.knots[i].Time >= t })
	b := f.knots[i]
	if b.Time == t {
		return b.Utility
	}
	return lerp(f.knots[i-1], b, t)
}

// Integrate returns the definite integral of the curve over [t0, t1]
// using the trapezoidal rule over every knot inside the window.
func (f *Function) Integrate(t0, t1 int64) (float64, error) {
	if t1 < t0 {
		return 0, fmt.Errorf("[%d, %d]: %w", t0, t1, ErrInvalidWindow)
	}
	if t1 == t0 {
		return 0, nil
	}

	// knots strictly inside (t0, t1)
	lo := sort.Search(len(f.knots), func(i int) bool { return f.knots[i].Time > t0 })
	hi := sort.Search(len(f.knots), func(i int) bool { return f.knots[i].Time >= t1 })

	prev := Point{Time: t0, Utility: f.ValueAt(t0)}
	sum := 0.0
	for _, k := range f.knots[lo:hi] {
		sum += trapezoid(prev, k)
		prev = k
	}
	sum += trapezoid(prev, Point{Time: t1, Utility: f.ValueAt(t1)})
	return sum, nil
}

func trapezoid(a, b Point) float64 {
	return (a.Utility + b.Utility) / 2 * float64(b.Time-a.Time)
}

func lerp(a, b Point, t int64) float64 {
	if a.Time == b.Time || a.Utility == b.Utility {
		return a.Utility
	}
	frac := float64(t-a.Time) / float64(b.Time-a.Time)
	return a.Utility + (b.Utility-a.Utility)*frac
}
