package dynamics

import (
	"math"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/frame"
)

// Zonal is a spherical-harmonics zonal (J2/J3/J4) perturbation, computed
// directly in the propagation's inertial frame — the same simplification
// the teacher's Perturbations.Perturb Cartesian branch makes (ignoring the
// body's rotation within the harmonic term itself). A fully general
// degree/order Legendre expansion in the body-fixed frame is not
// implemented; J2 is the dominant term for every scenario spec §8
// exercises.
type Zonal struct {
	Body       frame.Frame
	Radius     float64 // km
	J2, J3, J4 float64
}

func (z Zonal) Name() string { return "zonal:" + z.Body.Name }

func (z Zonal) Acceleration(t nyx.Epoch, s State, svc frame.Service) ([]float64, error) {
	R := s.R
	r := nyx.Norm(R)
	if r == 0 {
		return []float64{0, 0, 0}, nil
	}
	z2 := R[2] * R[2]
	r2 := r * r
	out := make([]float64, 3)
	if z.J2 != 0 {
		acc := -(3 * z.Body.GM * z.J2 * z.Radius * z.Radius) / (2 * math.Pow(r, 5))
		out[0] += acc * R[0] * (1 - 5*z2/r2)
		out[1] += acc * R[1] * (1 - 5*z2/r2)
		out[2] += acc * R[2] * (3 - 5*z2/r2)
	}
	if z.J3 != 0 {
		// Vallado eq. 8-27, zonal J3 term.
		c := -(5 * z.Body.GM * z.J3 * math.Pow(z.Radius, 3)) / (2 * math.Pow(r, 7))
		z3 := z2 * R[2]
		out[0] += c * R[0] * (3*R[2] - 7*z3/r2)
		out[1] += c * R[1] * (3*R[2] - 7*z3/r2)
		out[2] += c * (6*z2 - 7*z2*z2/r2 - 3.0/5*r2)
	}
	if z.J4 != 0 {
		c := (15 * z.Body.GM * z.J4 * math.Pow(z.Radius, 4)) / (8 * math.Pow(r, 7))
		out[0] += c * R[0] * (1 - 14*z2/r2 + 21*z2*z2/(r2*r2))
		out[1] += c * R[1] * (1 - 14*z2/r2 + 21*z2*z2/(r2*r2))
		out[2] += c * R[2] * (5 - 70*z2/(3*r2) + 21*z2*z2/(r2*r2))
	}
	return out, nil
}
