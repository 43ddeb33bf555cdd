package solver

import (
	"math/rand"
	"testing"

	"github.com/fentz26/ordo/internal/utility"
)

const (
	minute = int64(60 * 1000)
	hour   = 60 * minute
)

// seqRand replays a fixed sequence of draws.
type seqRand struct {
	vals []float64
	i    int
}

func (r *seqRand) Float64() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func mustUtility(t *testing.T, points ...utility.Point) *utility.Function {
	t.Helper()
	u, err := utility.New(points)
	if err != nil {
		t.Fatalf("utility.New failed: %v", err)
	}
	return u
}

func mustGoal(t *testing.T, id string, duration int64, u *utility.Function, start int64) Goal {
	t.Helper()
	g, err := NewGoal(id, duration, u, start)
	if err != nil {
		t.Fatalf("NewGoal failed: %v", err)
	}
	return g
}

func TestNewGoalValidation(t *testing.T) {
	u := mustUtility(t, utility.Point{Time: 0, Utility: 1})

	if _, err := NewGoal("", hour, u, 0); err == nil {
		t.Error("Expected error for empty id")
	}
	if _, err := NewGoal("g", 0, u, 0); err == nil {
		t.Error("Expected error for zero duration")
	}
	if _, err := NewGoal("g", hour, nil, 0); err == nil {
		t.Error("Expected error for missing utility")
	}

	g := mustGoal(t, "g", 30*minute, u, hour)
	if g.End() != hour+30*minute {
		t.Errorf("Expected end %d, got %d", hour+30*minute, g.End())
	}
}

func TestExpectedValueEmpty(t *testing.T) {
	v, err := ExpectedValue(nil)
	if err != nil {
		t.Fatalf("ExpectedValue failed: %v", err)
	}
	if v != 0 {
		t.Errorf("Expected 0 for empty assignment, got %v", v)
	}
	v, _ = ExpectedValue(Assignment{})
	if v != 0 {
		t.Errorf("Expected 0 for empty assignment, got %v", v)
	}
}

func TestExpectedValueSumsGoals(t *testing.T) {
	flat := mustUtility(t, utility.Point{Time: 0, Utility: 2})
	ramp := mustUtility(t, utility.Point{Time: 0, Utility: 0}, utility.Point{Time: hour, Utility: 10})

	a := Assignment{
		mustGoal(t, "a", hour, flat, 0),
		mustGoal(t, "b", hour, ramp, 0),
	}
	got, err := ExpectedValue(a)
	if err != nil {
		t.Fatalf("ExpectedValue failed: %v", err)
	}
	want := 2*float64(hour) + 5*float64(hour)
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNeighborLocality(t *testing.T) {
	u := mustUtility(t, utility.Point{Time: 0, Utility: 1})
	a := Assignment{
		mustGoal(t, "a", hour, u, 0),
		mustGoal(t, "b", 2*hour, u, hour),
		mustGoal(t, "c", 3*hour, u, 2*hour),
	}
	original := a.Clone()

	// index draw 0.5 -> goal 1, offset draw 0.75 -> +0.25 * span
	r := &seqRand{vals: []float64{0.5, 0.75}}
	n := Neighbor(a, r, DefaultSpan)

	for i := range a {
		if a[i] != original[i] {
			t.Fatalf("Neighbor mutated its input at %d", i)
		}
	}

	changed := 0
	for i := range n {
		if n[i].ID != a[i].ID || n[i].Duration != a[i].Duration || n[i].Utility != a[i].Utility {
			t.Errorf("Goal %d changed in more than its start", i)
		}
		if n[i].Start != a[i].Start {
			changed++
			if i != 1 {
				t.Errorf("Expected goal 1 to move, goal %d moved", i)
			}
			if delta := n[i].Start - a[i].Start; delta != DefaultSpan/4 {
				t.Errorf("Expected shift %d, got %d", DefaultSpan/4, delta)
			}
		}
	}
	if changed != 1 {
		t.Errorf("Expected exactly one goal to move, %d moved", changed)
	}
}

func TestNeighborOffsetRange(t *testing.T) {
	u := mustUtility(t, utility.Point{Time: 0, Utility: 1})
	a := Assignment{mustGoal(t, "a", hour, u, 0), mustGoal(t, "b", hour, u, 0)}
	r := rand.New(rand.NewSource(3))

	for i := 0; i < 1000; i++ {
		n := Neighbor(a, r, DefaultSpan)
		for _, g := range n {
			if g.Start < -DefaultSpan/2 || g.Start > DefaultSpan/2 {
				t.Fatalf("Offset %d outside +/- %d", g.Start, DefaultSpan/2)
			}
		}
	}
}

func TestNeighborIndexClamped(t *testing.T) {
	u := mustUtility(t, utility.Point{Time: 0, Utility: 1})
	a := Assignment{mustGoal(t, "a", hour, u, 0), mustGoal(t, "b", hour, u, 0)}

	// a source that returns exactly 1 must not index past the end
	n := Neighbor(a, &seqRand{vals: []float64{1, 1}}, DefaultSpan)
	if n[1].Start != DefaultSpan/2 {
		t.Errorf("Expected last goal to move by %d, got %d", DefaultSpan/2, n[1].Start)
	}
}

func TestNeighborEmpty(t *testing.T) {
	r := &seqRand{vals: []float64{0.3}}
	if n := Neighbor(Assignment{}, r, DefaultSpan); len(n) != 0 {
		t.Errorf("Expected empty neighbor, got %d goals", len(n))
	}
	if r.i != 0 {
		t.Errorf("Neighbor of an empty assignment drew %d random numbers", r.i)
	}
}

func TestGreedyAcceptance(t *testing.T) {
	g := Greedy{}
	tests := []struct {
		current, candidate float64
		want               bool
	}{
		{1, 2, true},
		{2, 2, true},
		{2, 1, false},
		{-5, -4, true},
	}
	for _, tt := range tests {
		if got := g.Accept(tt.current, tt.candidate); got != tt.want {
			t.Errorf("Accept(%v, %v) = %v, want %v", tt.current, tt.candidate, got, tt.want)
		}
	}
}

func TestAnnealingAcceptance(t *testing.T) {
	// draws below exp(-1) ~ 0.37 accept a worse candidate at T=1
	a := NewAnnealing(&seqRand{vals: []float64{0.1, 0.9}}, 1, 0.5)

	if !a.Accept(0, 1) {
		t.Error("Improvement should always be accepted")
	}
	if a.Temperature() != 0.5 {
		t.Errorf("Expected temperature 0.5 after one decision, got %v", a.Temperature())
	}

	a = NewAnnealing(&seqRand{vals: []float64{0.1, 0.9}}, 1, 1)
	if !a.Accept(1, 0) {
		t.Error("Expected worse candidate accepted on a low draw")
	}
	if a.Accept(1, 0) {
		t.Error("Expected worse candidate rejected on a high draw")
	}

	cold := NewAnnealing(&seqRand{vals: []float64{0}}, 0, 0.9)
	if cold.Accept(1, 0) {
		t.Error("Zero temperature must behave greedily")
	}

	if got := NewAnnealing(nil, 1, 7).cooling; got != 1 {
		t.Errorf("Expected invalid cooling clamped to 1, got %v", got)
	}
}
