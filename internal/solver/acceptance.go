package solver

import "math"

// Acceptance decides whether a candidate assignment replaces the current one.
type Acceptance interface {
	Accept(current, candidate float64) bool
}

// Greedy accepts any candidate that does not lower the expected value.
type Greedy struct{}

// Accept implements Acceptance.
func (Greedy) Accept(current, candidate float64) bool {
	return candidate >= current
}

// Annealing accepts improvements and takes a worse candidate with
// probability exp((candidate-current)/T). T is multiplied by Cooling after
// every decision. It is not safe for concurrent use; a Session serializes
// calls.
type Annealing struct {
	rand        Rand
	temperature float64
	cooling     float64
}

// NewAnnealing creates an annealing policy. A cooling factor outside (0, 1]
// is treated as 1.
func NewAnnealing(r Rand, temperature, cooling float64) *Annealing {
	if cooling <= 0 || cooling > 1 {
		cooling = 1
	}
	return &Annealing{rand: r, temperature: temperature, cooling: cooling}
}

// Temperature returns the current temperature.
func (a *Annealing) Temperature() float64 {
	return a.temperature
}

// Accept implements Acceptance.
func (a *Annealing) Accept(current, candidate float64) bool {
	t := a.temperature
	a.temperature *= a.cooling

	if candidate >= current {
		return true
	}
	if t <= 0 {
		return false
	}
	return a.rand.Float64() < math.Exp((candidate-current)/t)
}
