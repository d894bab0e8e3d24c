package od

import "gonum.org/v1/gonum/mat"

// Estimate is one filter step's full record: the state deviation (or, in
// EKF mode, the already-folded-back full state) and covariance both before
// (predicted) and after (filtered) any measurement update, plus the STM
// used to get there — kept distinct so the RTS smoother (smoother.go) has
// everything it needs without re-deriving anything.
type Estimate struct {
	XPred, XFilt *mat.VecDense
	PPred, PFilt *mat.Dense
	Phi          *mat.Dense

	HasMeasurement  bool
	Prefit, Postfit *mat.VecDense
	NIS             float64
	Rejected        bool
}
