package od

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RICRotation builds the 3x3 direction cosine matrix from the inertial
// frame into the Radial/In-track/Cross-track frame defined by r, v: its
// rows are rUnit, iUnit = cross(cUnit, rUnit) and cUnit = unit(H), the
// same axes trajectory.RICDiff uses.
func RICRotation(r, v []float64) *mat.Dense {
	rHat := unit(r)
	h := cross(r, v)
	cHat := unit(h)
	iHat := cross(cHat, rHat)
	vals := make([]float64, 9)
	for i := 0; i < 3; i++ {
		vals[i] = rHat[i]
		vals[i+3] = iHat[i]
		vals[i+6] = cHat[i]
	}
	return mat.NewDense(3, 3, vals)
}

// RotateQToECI maps a 3x3 process-noise covariance expressed in the RIC
// frame into the inertial frame the filter propagates in. dcm maps
// inertial vectors into RIC, so QECI = dcmᵀ * Q * dcm.
func RotateQToECI(qRIC *mat.Dense, dcm *mat.Dense) *mat.Dense {
	var tmp, out mat.Dense
	tmp.Mul(qRIC, dcm)
	out.Mul(dcm.T(), &tmp)
	return &out
}

// DiscreteProcessNoise builds the exact continuous-to-discrete process
// noise for a piecewise-constant acceleration PSD q (3x3) over a gap Δt:
//
//	Q_pp = (Δt³/3)·q,  Q_pv = (Δt²/2)·q,  Q_vv = Δt·q
//
// assembled into the 6x6 position/velocity block layout. Note this is not
// the Γ·q·Γᵀ rank-3 mapping (Γ = [[Δt²/2·I],[Δt·I]]) the teacher's
// cmd/od/main.go stacks — that approximation yields Q_pp = Δt⁴/4·q and
// cannot reproduce the analytic blocks for any Γ; the closed form is used
// directly instead.
func DiscreteProcessNoise(dtSeconds float64, q *mat.Dense) *mat.Dense {
	dt := dtSeconds
	pp := dt * dt * dt / 3
	pv := dt * dt / 2
	vv := dt
	out := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			qij := q.At(i, j)
			out.Set(i, j, pp*qij)
			out.Set(i, j+3, pv*qij)
			out.Set(i+3, j, pv*qij)
			out.Set(i+3, j+3, vv*qij)
		}
	}
	return out
}

func unit(v []float64) []float64 {
	var n float64
	for _, x := range v {
		n += x * x
	}
	if n == 0 {
		return v
	}
	n = math.Sqrt(n)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func cross(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
