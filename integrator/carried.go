package integrator

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vector is the simplest Carriable: a bare state vector, used when no STM
// is being propagated (e.g. truth-trajectory generation for arc
// simulation, spec §4.3's C4/C6 consumers).
type Vector []float64

func (v Vector) Add(o Vector) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] + o[i]
	}
	return out
}

func (v Vector) Scale(f float64) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] * f
	}
	return out
}

// VectorNorm is an ErrorNorm over Vector using the RSS of the position
// (and, if present, velocity) components.
func VectorNorm(a, b Vector) float64 {
	var ss float64
	for i := range a {
		d := a[i] - b[i]
		ss += d * d
	}
	return sqrt(ss)
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Sqrt(x)
}

// StateTM carries a state vector alongside its State Transition Matrix, the
// tagged pair spec §9 requires instead of a single flattened vector: Φ
// never leaks into the state's own arithmetic, and a consumer that only
// wants the state can ignore Phi entirely.
type StateTM struct {
	X   Vector
	Phi *mat.Dense
}

func (s StateTM) Add(o StateTM) StateTM {
	r, c := s.Phi.Dims()
	phi := mat.NewDense(r, c, nil)
	phi.Add(s.Phi, o.Phi)
	return StateTM{X: s.X.Add(o.X), Phi: phi}
}

func (s StateTM) Scale(f float64) StateTM {
	r, c := s.Phi.Dims()
	phi := mat.NewDense(r, c, nil)
	phi.Scale(f, s.Phi)
	return StateTM{X: s.X.Scale(f), Phi: phi}
}

// StateTMNorm measures error on the X component only: Φ's own local
// truncation error is dominated by the state's, and spec §4.2 only ever
// judges tolerance against the state/measurement-relevant components.
func StateTMNorm(a, b StateTM) float64 {
	return VectorNorm(a.X, b.X)
}
