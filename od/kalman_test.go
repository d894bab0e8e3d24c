package od

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/nyxerr"
)

// constVelFilter builds a 1D constant-velocity toy filter: state (x, ẋ),
// STM for step dt, position-only measurements.
func constVelFilter(p0Diag float64, rMeas float64) *Filter {
	x0 := mat.NewVecDense(2, nil)
	p0 := mat.NewDense(2, 2, []float64{p0Diag, 0, 0, p0Diag})
	r := mat.NewDense(1, 1, []float64{rMeas})
	return NewFilter(x0, p0, nil, r)
}

func constVelPhi(dt float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{1, dt, 0, 1})
}

var posH = mat.NewDense(1, 2, []float64{1, 0})

func TestPredictGrowsCovariance(t *testing.T) {
	f := constVelFilter(1, 0.01)
	f.Prepare(constVelPhi(10), nil)
	if err := f.Predict(); err != nil {
		t.Fatal(err)
	}
	// Φ P Φᵀ for constant velocity inflates position uncertainty.
	if f.P.At(0, 0) <= 1 {
		t.Fatalf("position variance %f did not grow", f.P.At(0, 0))
	}
}

func TestPredictWithSNC(t *testing.T) {
	// 1D constant velocity, P0 = I, Φ(10): ΦPΦᵀ = [[101, 10], [10, 1]].
	// The exact discrete noise for q = 1e-3 over Δt = 10 adds
	// [[Δt³/3, Δt²/2], [Δt²/2, Δt]]·q on top.
	f := constVelFilter(1, 0.01)
	dt, q := 10.0, 1e-3
	f.Prepare(constVelPhi(dt), nil)
	f.PreparePNT(mat.NewDense(2, 2, []float64{
		dt * dt * dt / 3 * q, dt * dt / 2 * q,
		dt * dt / 2 * q, dt * q,
	}))
	if err := f.Predict(); err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(f.P.At(0, 0), 101+1000.0/3*q, 1e-12) {
		t.Fatalf("P[0][0] = %.15f", f.P.At(0, 0))
	}
	if !scalar.EqualWithinAbs(f.P.At(0, 1), 10+50*q, 1e-12) {
		t.Fatalf("P[0][1] = %.15f", f.P.At(0, 1))
	}
	if !scalar.EqualWithinAbs(f.P.At(1, 1), 1+10*q, 1e-12) {
		t.Fatalf("P[1][1] = %.15f", f.P.At(1, 1))
	}
}

func TestUpdateShrinksCovarianceAndMovesState(t *testing.T) {
	f := constVelFilter(1, 0.01)
	f.Prepare(constVelPhi(1), posH)
	if err := f.Predict(); err != nil {
		t.Fatal(err)
	}
	pBefore := f.P.At(0, 0)
	prefit := mat.NewVecDense(1, []float64{0.5})
	postfit, gain, err := f.Update(prefit)
	if err != nil {
		t.Fatal(err)
	}
	if f.P.At(0, 0) >= pBefore {
		t.Fatalf("update did not shrink position variance: %f vs %f", f.P.At(0, 0), pBefore)
	}
	if f.X.AtVec(0) <= 0 || f.X.AtVec(0) >= 0.5 {
		t.Fatalf("state %f not pulled toward the measurement", f.X.AtVec(0))
	}
	if gain == nil {
		t.Fatal("no gain returned")
	}
	// Postfit is smaller than prefit when the gain is well-conditioned.
	if math.Abs(postfit.AtVec(0)) >= 0.5 {
		t.Fatalf("postfit %f not reduced", postfit.AtVec(0))
	}
}

func TestJosephFormSymmetry(t *testing.T) {
	f := constVelFilter(1, 1e-4)
	for k := 0; k < 50; k++ {
		f.Prepare(constVelPhi(10), posH)
		if err := f.Predict(); err != nil {
			t.Fatal(err)
		}
		if _, _, err := f.Update(mat.NewVecDense(1, []float64{0.1})); err != nil {
			t.Fatal(err)
		}
		asym := nyx.MaxAbsAsymmetry(f.P)
		if asym >= 1e-12 {
			t.Fatalf("‖P - Pᵀ‖∞ = %g after update %d", asym, k)
		}
		for i := 0; i < 2; i++ {
			if f.P.At(i, i) < 0 {
				t.Fatalf("negative diagonal %g at %d", f.P.At(i, i), i)
			}
		}
	}
}

func TestNISAndResidualGate(t *testing.T) {
	f := constVelFilter(1, 0.01)
	f.Prepare(constVelPhi(1), posH)
	f.Predict()
	small, err := f.NIS(mat.NewVecDense(1, []float64{0.1}))
	if err != nil {
		t.Fatal(err)
	}
	big, err := f.NIS(mat.NewVecDense(1, []float64{100}))
	if err != nil {
		t.Fatal(err)
	}
	if small >= big {
		t.Fatalf("NIS ordering broken: %f vs %f", small, big)
	}
	if !AcceptResidual(small, 1) {
		t.Fatalf("small residual (NIS %f) rejected", small)
	}
	if AcceptResidual(big, 1) {
		t.Fatalf("outlier (NIS %f) accepted", big)
	}
}

func TestFilterRequiresPrepare(t *testing.T) {
	f := constVelFilter(1, 0.01)
	if err := f.Predict(); err == nil {
		t.Fatal("Predict without Prepare accepted")
	}
	if _, _, err := f.Update(mat.NewVecDense(1, []float64{1})); err == nil {
		t.Fatal("Update without Prepare accepted")
	}
}

func TestEKFToggle(t *testing.T) {
	f := constVelFilter(1, 0.01)
	if f.EKFEnabled() {
		t.Fatal("EKF on at construction")
	}
	f.EnableEKF()
	if !f.EKFEnabled() {
		t.Fatal("EnableEKF had no effect")
	}
	f.DisableEKF()
	if f.EKFEnabled() {
		t.Fatal("DisableEKF had no effect")
	}
}

func TestDiscreteProcessNoiseBlocks(t *testing.T) {
	q := mat.NewDense(3, 3, []float64{
		1e-6, 0, 0,
		0, 2e-6, 0,
		0, 0, 3e-6,
	})
	dt := 2.0
	qd := DiscreteProcessNoise(dt, q)
	r, c := qd.Dims()
	if r != 6 || c != 6 {
		t.Fatalf("Q dims %dx%d", r, c)
	}
	pp := dt * dt * dt / 3 // 8/3
	pv := dt * dt / 2      // 2
	vv := dt               // 2
	for i := 0; i < 3; i++ {
		qi := q.At(i, i)
		if !scalar.EqualWithinAbs(qd.At(i, i), pp*qi, 1e-18) {
			t.Fatalf("Q_pp[%d] = %g, want %g", i, qd.At(i, i), pp*qi)
		}
		if !scalar.EqualWithinAbs(qd.At(i, i+3), pv*qi, 1e-18) {
			t.Fatalf("Q_pv[%d] = %g, want %g", i, qd.At(i, i+3), pv*qi)
		}
		if !scalar.EqualWithinAbs(qd.At(i+3, i), pv*qi, 1e-18) {
			t.Fatalf("Q_vp[%d] = %g, want %g", i, qd.At(i+3, i), pv*qi)
		}
		if !scalar.EqualWithinAbs(qd.At(i+3, i+3), vv*qi, 1e-18) {
			t.Fatalf("Q_vv[%d] = %g, want %g", i, qd.At(i+3, i+3), vv*qi)
		}
	}
	if asym := nyx.MaxAbsAsymmetry(qd); asym != 0 {
		t.Fatalf("Q asymmetric by %g", asym)
	}
	// Off-diagonal couplings of q propagate into every block.
	q.Set(0, 1, 5e-7)
	q.Set(1, 0, 5e-7)
	qd = DiscreteProcessNoise(dt, q)
	if !scalar.EqualWithinAbs(qd.At(0, 1), pp*5e-7, 1e-18) {
		t.Fatalf("Q_pp off-diagonal = %g", qd.At(0, 1))
	}
	if !scalar.EqualWithinAbs(qd.At(0, 4), pv*5e-7, 1e-18) {
		t.Fatalf("Q_pv off-diagonal = %g", qd.At(0, 4))
	}
}

func TestPredictSymmetrizes(t *testing.T) {
	// Seed an asymmetric covariance; Predict must hand back a perfectly
	// symmetric P⁻ regardless.
	f := constVelFilter(1, 0.01)
	f.P.Set(0, 1, 0.3)
	f.P.Set(1, 0, 0.1)
	f.Prepare(constVelPhi(7), nil)
	if err := f.Predict(); err != nil {
		t.Fatal(err)
	}
	if asym := nyx.MaxAbsAsymmetry(f.P); asym != 0 {
		t.Fatalf("P⁻ asymmetric by %g after Predict", asym)
	}
}

func TestUpdateCholeskyFailureIsFilterError(t *testing.T) {
	// A wildly indefinite S (negative covariance, negative R) cannot be
	// factorized; the failure must surface as the filter-kind error with
	// the offending matrix in the message, not a panic or a generic
	// inversion error.
	f := constVelFilter(1, 0.01)
	f.P.Set(0, 0, -100)
	f.P.Set(1, 1, -100)
	f.R = mat.NewDense(1, 1, []float64{-1})
	f.Prepare(constVelPhi(1), posH)
	_, _, err := f.Update(mat.NewVecDense(1, []float64{0.1}))
	if err == nil {
		t.Fatal("indefinite innovation covariance accepted")
	}
	if !errors.Is(err, nyxerr.Filter("", nil)) {
		t.Fatalf("not a filter-kind error: %v", err)
	}
	if !strings.Contains(err.Error(), "cholesky") {
		t.Fatalf("error does not name the cholesky failure: %v", err)
	}
}

func TestRICRotationOrthonormal(t *testing.T) {
	dcm := RICRotation([]float64{7000, 100, -200}, []float64{0.1, 7.5, 0.3})
	var ddt mat.Dense
	ddt.Mul(dcm, dcm.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if !scalar.EqualWithinAbs(ddt.At(i, j), want, 1e-12) {
				t.Fatalf("DCM not orthonormal at [%d][%d]: %f", i, j, ddt.At(i, j))
			}
		}
	}
	// Rotating a diagonal Q through the DCM preserves the trace.
	q := mat.NewDense(3, 3, []float64{1e-6, 0, 0, 0, 2e-6, 0, 0, 0, 3e-6})
	rotated := RotateQToECI(q, dcm)
	if !scalar.EqualWithinAbs(mat.Trace(rotated), 6e-6, 1e-18) {
		t.Fatalf("trace not preserved: %g", mat.Trace(rotated))
	}
}
