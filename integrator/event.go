package integrator

import (
	"math"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/nyxerr"
)

// EventFunc is a scalar indicator whose zero crossings mark the event of
// interest (e.g. apoapsis: d(range)/dt, or a station rise/set: elevation
// minus the mask angle).
type EventFunc[T Carriable[T]] func(t nyx.Epoch, y T) float64

// EventResult is one located crossing.
type EventResult[T Carriable[T]] struct {
	Epoch nyx.Epoch
	State T
	Index int // 1-based ordinal among crossings found so far in this search
}

// FindNthEvent integrates from (t0, y0) towards tEnd, bracketing each sign
// change of g and refining it with Brent's method (falling back to
// bisection when Brent's inverse-quadratic step misbehaves, per spec
// §9: "event search uses Brent's method for fast convergence with a
// bisection fallback for robustness"), returning once the nth crossing is
// found or tEnd is reached without finding it.
func (in *Integrator[T]) FindNthEvent(t0 nyx.Epoch, y0 T, tEnd nyx.Epoch, h0 nyx.Duration, g EventFunc[T], n int) (EventResult[T], error) {
	t, y := t0, y0
	h := h0
	gPrev := g(t, y)
	count := 0
	forward := tEnd.Sub(t0).Seconds() >= 0
	for {
		remaining := tEnd.Sub(t).Seconds()
		if remaining == 0 {
			return EventResult[T]{}, nyxerr.Trajectory("integrator.FindNthEvent", errNoEvent(n))
		}
		step := h
		if forward && step.Seconds() > remaining {
			step = nyx.Seconds(remaining)
		}
		if !forward && step.Seconds() < remaining {
			step = nyx.Seconds(remaining)
		}
		yNext, tNext, hNext, err := in.Step(t, y, step)
		if err != nil {
			return EventResult[T]{}, err
		}
		gNext := g(tNext, yNext)
		if (gPrev <= 0 && gNext > 0) || (gPrev >= 0 && gNext < 0) {
			count++
			if count == n {
				root, rootState, err := in.refineBracket(t, y, gPrev, tNext, yNext, gNext, g)
				if err != nil {
					return EventResult[T]{}, err
				}
				return EventResult[T]{Epoch: root, State: rootState, Index: count}, nil
			}
		}
		t, y, h, gPrev = tNext, yNext, hNext, gNext
	}
}

// refineBracket narrows [ta, tb] (g(ta) and g(tb) of opposite sign) to the
// root using Brent's method; if the algorithm ever produces a candidate
// outside the current bracket it is discarded in favor of a bisection
// step, matching the classic Brent safeguard.
func (in *Integrator[T]) refineBracket(ta nyx.Epoch, ya T, ga float64, tb nyx.Epoch, yb T, gb float64, g EventFunc[T]) (nyx.Epoch, T, error) {
	const maxIter = 64
	tolSeconds := in.Cfg.EventTimeTolSec
	if tolSeconds <= 0 {
		tolSeconds = 1e-6
	}
	valueTol := in.Cfg.EventValueTol
	if valueTol <= 0 {
		valueTol = 1e-9
	}

	a, b := ta, tb
	fa, fb := ga, gb
	ysA, ysB := ya, yb
	if math.Abs(fa) < math.Abs(fb) {
		a, b = b, a
		fa, fb = fb, fa
		ysA, ysB = ysB, ysA
	}
	c, fc := a, fa
	mflag := true
	var d nyx.Epoch

	evalAt := func(t nyx.Epoch) (float64, T, error) {
		y, err := in.Integrate(ta, ya, t, in.Cfg.MinStep.Scale(4))
		var zero T
		if err != nil {
			return 0, zero, err
		}
		return g(t, y), y, nil
	}

	for i := 0; i < maxIter; i++ {
		if math.Abs(fb) < valueTol || math.Abs(b.Sub(a).Seconds()) < tolSeconds {
			return b, ysB, nil
		}
		var s nyx.Epoch
		if fa != fc && fb != fc {
			// inverse quadratic interpolation
			s = inverseQuadratic(a, fa, b, fb, c, fc)
		} else {
			// secant
			s = secant(a, fa, b, fb)
		}
		cond := outsideBisectionSafe(s, a, b, c, d, mflag, tolSeconds)
		if cond {
			s = bisect(a, b)
			mflag = true
		} else {
			mflag = false
		}
		fs, ysS, err := evalAt(s)
		if err != nil {
			return b, ysB, err
		}
		d = c
		c, fc = b, fb
		if sameSign(fa, fs) {
			a, fa, ysA = s, fs, ysS
		} else {
			b, fb, ysB = s, fs, ysS
		}
		if math.Abs(fa) < math.Abs(fb) {
			a, b = b, a
			fa, fb = fb, fa
			ysA, ysB = ysB, ysA
		}
	}
	return b, ysB, nil
}

func sameSign(a, b float64) bool { return (a < 0) == (b < 0) }

func inverseQuadratic(a nyx.Epoch, fa float64, b nyx.Epoch, fb float64, c nyx.Epoch, fc float64) nyx.Epoch {
	as, bs, cs := a.TAISeconds(), b.TAISeconds(), c.TAISeconds()
	r := as*fb*fc/((fa-fb)*(fa-fc)) +
		bs*fa*fc/((fb-fa)*(fb-fc)) +
		cs*fa*fb/((fc-fa)*(fc-fb))
	return nyx.J2000TAI.Add(nyx.Seconds(r))
}

func secant(a nyx.Epoch, fa float64, b nyx.Epoch, fb float64) nyx.Epoch {
	as, bs := a.TAISeconds(), b.TAISeconds()
	s := bs - fb*(bs-as)/(fb-fa)
	return nyx.J2000TAI.Add(nyx.Seconds(s))
}

func bisect(a, b nyx.Epoch) nyx.Epoch {
	mid := (a.TAISeconds() + b.TAISeconds()) / 2
	return nyx.J2000TAI.Add(nyx.Seconds(mid))
}

func outsideBisectionSafe(s, a, b, c, d nyx.Epoch, mflag bool, tol float64) bool {
	lo, hi := a.TAISeconds(), b.TAISeconds()
	if lo > hi {
		lo, hi = hi, lo
	}
	ss := s.TAISeconds()
	if ss < lo || ss > hi {
		return true
	}
	if mflag && math.Abs(ss-b.TAISeconds()) >= math.Abs(b.TAISeconds()-c.TAISeconds())/2 {
		return true
	}
	if !mflag && math.Abs(ss-b.TAISeconds()) >= math.Abs(c.TAISeconds()-d.TAISeconds())/2 {
		return true
	}
	if mflag && math.Abs(b.Sub(c).Seconds()) < tol {
		return true
	}
	if !mflag && math.Abs(c.Sub(d).Seconds()) < tol {
		return true
	}
	return false
}

type noEventError struct{ n int }

func (e *noEventError) Error() string {
	return "no " + ordinal(e.n) + " event crossing found before search horizon"
}

func errNoEvent(n int) error { return &noEventError{n: n} }

func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return "nth"
	}
}
