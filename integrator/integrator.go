// Package integrator implements the adaptive embedded Runge-Kutta
// propagator of spec §4.2 (C3): step-doubling-free error estimation from a
// single embedded Butcher tableau, error-ratio power-law step-size control
// (no PI term), backward
// integration, and cooperative cancellation.
//
// The carried quantity is generic (spec §9: "the state and its companion
// State Transition Matrix travel together as a tagged pair, never flattened
// into one vector") — any type satisfying Carriable can be propagated,
// whether that is a bare state vector or a (state, Φ) pair. This
// generalizes the teacher's fixed-step, non-adaptive Integrable interface
// (src/integrator/rk4.go), which only ever carried a flat []float64.
package integrator

import (
	"fmt"
	"math"
	"time"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/nyxerr"
)

// Carriable is anything an Integrator can propagate: it must support
// addition (for summing weighted stage derivatives) and scalar
// multiplication (for scaling a derivative by a step size).
type Carriable[T any] interface {
	Add(T) T
	Scale(float64) T
}

// DerivFunc evaluates the right-hand side of the ODE at epoch t, state y.
type DerivFunc[T Carriable[T]] func(t nyx.Epoch, y T) (T, error)

// ErrorNorm computes a scalar measure of the difference between two
// carried states, used to judge whether a step's local error is within
// tolerance.
type ErrorNorm[T Carriable[T]] func(a, b T) float64

// Config holds the adaptive step controller's tunables, matching spec
// §4.2's formulas exactly: on accept, h' = min(MaxStep, h*s*(tol/err)^(1/(p+1)));
// on reject, h' = max(MinStep, h*s*(tol/err)^(1/p)), with s in [SafetyLow,
// SafetyHigh].
type Config struct {
	Tolerance             float64
	MinStep, MaxStep      nyx.Duration
	SafetyLow, SafetyHigh float64
	MaxRejections         int

	// Event search precision pair: refinement stops once the bracket is
	// narrower than EventTimeTolSec or the event scalar's magnitude drops
	// below EventValueTol (whichever comes first). Zero selects the
	// defaults of 1e-6 s and 1e-9.
	EventTimeTolSec float64
	EventValueTol   float64
}

// DefaultConfig mirrors commonly used Dormand-Prince tolerances: tight
// enough for orbit determination reference trajectories, loose enough to
// take multi-minute steps in a quiet two-body regime.
func DefaultConfig() Config {
	return Config{
		Tolerance:     1e-12,
		MinStep:       nyx.Seconds(1e-3),
		MaxStep:       nyx.Seconds(900),
		SafetyLow:     0.8,
		SafetyHigh:    0.95,
		MaxRejections: 12,
	}
}

// Integrator drives a Tableau over a DerivFunc, producing accepted steps
// that satisfy Config.Tolerance.
type Integrator[T Carriable[T]] struct {
	Tableau Tableau
	Deriv   DerivFunc[T]
	Norm    ErrorNorm[T]
	Cfg     Config

	// Deadline, if non-nil, is a wall-epoch past which Step refuses to
	// start a new accepted step, returning a Cancelled error — the
	// cooperative cancellation mechanism of spec §5.
	Deadline *nyx.Epoch
}

// New builds an Integrator around tab, using the given derivative function
// and the caller-supplied error norm (e.g. VectorNorm).
func New[T Carriable[T]](tab Tableau, deriv DerivFunc[T], norm ErrorNorm[T], cfg Config) *Integrator[T] {
	return &Integrator[T]{Tableau: tab, Deriv: deriv, Norm: norm, Cfg: cfg}
}

// Step attempts one adaptive step of (signed) size h starting at (t, y),
// shrinking h on rejection until the embedded error estimate satisfies
// Cfg.Tolerance or Cfg.MaxRejections is exhausted. It returns the accepted
// solution, the epoch reached, and the step size to try next.
func (in *Integrator[T]) Step(t nyx.Epoch, y T, h nyx.Duration) (T, nyx.Epoch, nyx.Duration, error) {
	var zero T
	if in.Deadline != nil && !time.Now().Before(in.Deadline.UTC()) {
		return zero, t, h, nyxerr.Cancelled("integrator.Step")
	}
	tab := in.Tableau
	p := float64(tab.Order)
	attempt := h
	for rej := 0; ; rej++ {
		stages := make([]T, tab.Stages)
		for i := 0; i < tab.Stages; i++ {
			acc := y
			for j := 0; j < i; j++ {
				if tab.A[i][j] == 0 {
					continue
				}
				acc = acc.Add(stages[j].Scale(tab.A[i][j] * attempt.Seconds()))
			}
			ti := t.Add(nyx.Seconds(tab.C[i] * attempt.Seconds()))
			k, err := in.Deriv(ti, acc)
			if err != nil {
				return zero, t, h, err
			}
			stages[i] = k
		}
		high := y
		low := y
		for i := 0; i < tab.Stages; i++ {
			if tab.B[i] != 0 {
				high = high.Add(stages[i].Scale(tab.B[i] * attempt.Seconds()))
			}
			if tab.BHat[i] != 0 {
				low = low.Add(stages[i].Scale(tab.BHat[i] * attempt.Seconds()))
			}
		}
		errNorm := in.Norm(high, low)
		if errNorm <= in.Cfg.Tolerance || rej >= in.Cfg.MaxRejections {
			next := in.grow(attempt, errNorm, p)
			return high, t.Add(attempt), next, nil
		}
		attempt = in.shrink(attempt, errNorm, p)
		if attempt.Seconds() == 0 {
			return zero, t, h, nyxerr.Propagation("integrator.Step", fmt.Errorf("step size collapsed to zero seeking tolerance %g", in.Cfg.Tolerance))
		}
	}
}

func (in *Integrator[T]) grow(h nyx.Duration, errNorm, p float64) nyx.Duration {
	if errNorm == 0 {
		errNorm = 1e-300
	}
	s := in.safety(errNorm)
	factor := s * pow(in.Cfg.Tolerance/errNorm, 1/(p+1))
	out := h.Scale(factor)
	return clampDuration(out, in.Cfg.MinStep, in.Cfg.MaxStep)
}

func (in *Integrator[T]) shrink(h nyx.Duration, errNorm, p float64) nyx.Duration {
	s := in.safety(errNorm)
	factor := s * pow(in.Cfg.Tolerance/errNorm, 1/p)
	out := h.Scale(factor)
	return clampDuration(out, in.Cfg.MinStep, in.Cfg.MaxStep)
}

func (in *Integrator[T]) safety(errNorm float64) float64 {
	if errNorm > in.Cfg.Tolerance {
		return in.Cfg.SafetyLow
	}
	return in.Cfg.SafetyHigh
}

func clampDuration(h, min, max nyx.Duration) nyx.Duration {
	neg := h.IsNegative()
	abs := h
	if neg {
		abs = h.Neg()
	}
	if abs.Cmp(min) < 0 {
		abs = min
	}
	if abs.Cmp(max) > 0 {
		abs = max
	}
	if neg {
		return abs.Neg()
	}
	return abs
}

// Integrate advances y from t0 to t1 (t1 may precede t0 for backward
// integration — every Step call above is already sign-agnostic in h) using
// h0 as the initial step guess, returning the state at t1. Spec §4.2
// requires backward integration to retrace a forward run to the documented
// tolerance; since Step only ever scales the signed Duration it is handed,
// reversing h0's sign is sufficient and no special-cased backward path is
// needed.
func (in *Integrator[T]) Integrate(t0 nyx.Epoch, y0 T, t1 nyx.Epoch, h0 nyx.Duration) (T, error) {
	t, y := t0, y0
	h := h0
	forward := t1.Sub(t0).Seconds() >= 0
	for {
		remaining := t1.Sub(t).Seconds()
		if remaining == 0 {
			return y, nil
		}
		step := h
		if forward && step.Seconds() > remaining {
			step = nyx.Seconds(remaining)
		}
		if !forward && step.Seconds() < remaining {
			step = nyx.Seconds(remaining)
		}
		next, reached, hNext, err := in.Step(t, y, step)
		if err != nil {
			return y, err
		}
		t, y, h = reached, next, hNext
	}
}

func pow(base, exp float64) float64 {
	if base <= 0 {
		return 1
	}
	return math.Pow(base, exp)
}
