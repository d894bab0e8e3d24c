package od

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/arcsim"
	"github.com/hartmut/nyx/station"
)

func TestStepPredictOnlyRecordsHistory(t *testing.T) {
	p := NewODProcess(constVelFilter(1, 0.01), EKFConfig{Trigger: -1}, SNCConfig{})
	est, err := p.StepPredictOnly(constVelPhi(5))
	if err != nil {
		t.Fatal(err)
	}
	if est.HasMeasurement {
		t.Fatal("predict-only step claims a measurement")
	}
	if len(p.History) != 1 {
		t.Fatalf("history length %d", len(p.History))
	}
	if p.State() != StatePredicting {
		t.Fatalf("state %v", p.State())
	}
}

func TestResidualRejectionIsNonFatal(t *testing.T) {
	p := NewODProcess(constVelFilter(1, 0.01), EKFConfig{Trigger: -1}, SNCConfig{})
	// An absurd measurement must be rejected without touching the state.
	msr := testMeasurement(1000)
	est, err := p.StepUpdate(0, constVelPhi(1), posH, msr, []float64{7000, 0, 0}, []float64{0, 7.5, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !est.Rejected {
		t.Fatal("outlier accepted")
	}
	if est.Postfit != nil {
		t.Fatal("rejected measurement produced a postfit")
	}
	// Filtered estimate equals predicted when rejected.
	for i := 0; i < 2; i++ {
		if est.XFilt.AtVec(i) != est.XPred.AtVec(i) {
			t.Fatal("rejection updated the state")
		}
	}
	// The next, sane measurement is accepted normally.
	est2, err := p.StepUpdate(60, constVelPhi(1), posH, testMeasurement(0.1), []float64{7000, 0, 0}, []float64{0, 7.5, 0})
	if err != nil {
		t.Fatal(err)
	}
	if est2.Rejected {
		t.Fatal("sane measurement rejected after an outlier")
	}
}

func TestEKFTriggerAfterNMeasurements(t *testing.T) {
	trigger := 3
	p := NewODProcess(constVelFilter(1, 0.01), EKFConfig{Trigger: trigger}, SNCConfig{})
	for k := 0; k < trigger+1; k++ {
		if p.Filter.EKFEnabled() {
			t.Fatalf("EKF on after only %d accepted measurements", k)
		}
		if _, err := p.StepUpdate(float64(k*60), constVelPhi(1), posH, testMeasurement(0.01), []float64{7000, 0, 0}, []float64{0, 7.5, 0}); err != nil {
			t.Fatal(err)
		}
	}
	if !p.Filter.EKFEnabled() {
		t.Fatal("EKF never triggered")
	}
}

func TestEKFDisableOnGap(t *testing.T) {
	p := NewODProcess(constVelFilter(1, 0.01), EKFConfig{Trigger: 1, DisableDtSecs: 180}, SNCConfig{})
	for k := 0; k < 3; k++ {
		if _, err := p.StepUpdate(float64(k*60), constVelPhi(1), posH, testMeasurement(0.01), []float64{7000, 0, 0}, []float64{0, 7.5, 0}); err != nil {
			t.Fatal(err)
		}
	}
	if !p.Filter.EKFEnabled() {
		t.Fatal("EKF not on before the gap")
	}
	// A 1000s gap exceeds the 180s disable threshold.
	if _, err := p.StepUpdate(120+1000, constVelPhi(1), posH, testMeasurement(0.01), []float64{7000, 0, 0}, []float64{0, 7.5, 0}); err != nil {
		t.Fatal(err)
	}
	if p.Filter.EKFEnabled() {
		t.Fatal("EKF survived a data gap past the disable threshold")
	}
}

// testMeasurement fabricates a measurement whose first (range) component
// carries the given prefit magnitude; the toy filter's 1x2 H only ever
// consumes that first component.
func testMeasurement(value float64) station.Measurement {
	return station.Measurement{Visible: true, Range: value}
}

func TestSmootherTerminalAndImprovement(t *testing.T) {
	// Run a forward pass on the constant-velocity toy, then smooth.
	p := NewODProcess(constVelFilter(100, 0.01), EKFConfig{Trigger: -1}, SNCConfig{})
	for k := 0; k < 10; k++ {
		if _, err := p.StepUpdate(float64(k), constVelPhi(1), posH, testMeasurement(0.05), []float64{7000, 0, 0}, []float64{0, 7.5, 0}); err != nil {
			t.Fatal(err)
		}
	}
	last := p.History[len(p.History)-1]
	lastX := mat.NewVecDense(2, nil)
	lastX.CopyVec(last.XFilt)
	lastP := mat.NewDense(2, 2, nil)
	lastP.Copy(last.PFilt)

	firstVarBefore := p.History[0].PFilt.At(0, 0)
	if err := SmoothAll(p.History); err != nil {
		t.Fatal(err)
	}
	// Terminal condition: the last estimate is untouched.
	for i := 0; i < 2; i++ {
		if last.XFilt.AtVec(i) != lastX.AtVec(i) {
			t.Fatal("smoother moved the terminal estimate")
		}
	}
	if !mat.EqualApprox(last.PFilt, lastP, 0) {
		t.Fatal("smoother touched the terminal covariance")
	}
	// The smoothed initial covariance benefits from downstream data.
	if got := p.History[0].PFilt.At(0, 0); got >= firstVarBefore {
		t.Fatalf("smoothing did not reduce initial position variance: %g vs %g", got, firstVarBefore)
	}
	// Smoothed covariances stay symmetric.
	for k, est := range p.History {
		if asym := nyx.MaxAbsAsymmetry(est.PFilt); asym > 1e-9 {
			t.Fatalf("smoothed P asymmetric at step %d: %g", k, asym)
		}
	}
}

func TestSmoothAllEmptyHistory(t *testing.T) {
	if err := SmoothAll(nil); err != nil {
		t.Fatal(err)
	}
}

func TestProcessStateNames(t *testing.T) {
	names := map[processState]string{
		StateIdle:       "idle",
		StatePredicting: "predicting",
		StateUpdating:   "updating",
		StateIterating:  "iterating",
		StateSmoothing:  "smoothing",
		StateDone:       "done",
		StateFailed:     "failed",
	}
	for s, want := range names {
		if s.String() != want {
			t.Fatalf("%d = %q", s, s.String())
		}
	}
}

// toyArc builds a constant-cadence arc of identical measurements carrying
// a real station geometry (so HTilde is well-posed) for driving
// RunArc/Iterate without a full orbital simulation.
func toyArc(n int, value float64) *arcsim.TrackingArc {
	st := station.NewStation("toy", 0, 0, 0, 0, station.NewWhiteNoise(1e-10, 1e-14, nil))
	arc := &arcsim.TrackingArc{DeviceNames: []string{"toy"}}
	for k := 0; k < n; k++ {
		arc.Measurements = append(arc.Measurements, arcsim.DeviceMeasurement{
			Device: "toy",
			Msr: station.Measurement{
				Visible:       true,
				Range:         value,
				RangeRate:     0,
				TrueRange:     1000,
				TrueRangeRate: 0.1,
				Station:       st,
				Epoch:         nyx.J2000TAI.Add(nyx.Seconds(float64(k+1) * 60)),
			},
		})
	}
	return arc
}

// sixDimFilter builds a position/velocity filter sized for the 2x6 HTilde
// the station measurement model produces.
func sixDimFilter() *Filter {
	x0 := mat.NewVecDense(6, nil)
	p0 := nyx.ScaledDenseIdentity(6, 1)
	r := mat.NewDense(2, 2, []float64{1e-4, 0, 0, 1e-10})
	return NewFilter(x0, p0, nil, r)
}

func identityStep(calls *int) StepFunc {
	return func(dtSeconds float64) ([]float64, []float64, *mat.Dense, error) {
		if calls != nil {
			*calls++
		}
		return []float64{7000, 0, 0}, []float64{0, 7.5, 0}, nyx.DenseIdentity(6), nil
	}
}

func TestRunArcCompletes(t *testing.T) {
	p := NewODProcess(sixDimFilter(), EKFConfig{Trigger: -1}, SNCConfig{})
	if err := p.RunArc(toyArc(6, 1e-5), identityStep(nil), true); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateDone {
		t.Fatalf("state %v after RunArc", p.State())
	}
	if len(p.History) != 6 {
		t.Fatalf("history length %d", len(p.History))
	}
}

func TestIterateConverges(t *testing.T) {
	p := NewODProcess(sixDimFilter(), EKFConfig{Trigger: -1}, SNCConfig{})
	arc := toyArc(8, 1e-5)
	passes := 0
	newPass := func(pass int, smoothedInit *mat.VecDense) (StepFunc, error) {
		passes++
		if pass == 0 && smoothedInit != nil {
			t.Fatal("first pass handed a smoothed initial estimate")
		}
		if pass > 0 && smoothedInit == nil {
			t.Fatal("later pass missing the smoothed initial estimate")
		}
		return identityStep(nil), nil
	}
	outcome, err := p.Iterate(arc, IterConfig{}, newPass)
	if err != nil {
		t.Fatal(err)
	}
	// With a deterministic propagation and identical measurements, the
	// second pass reproduces the first's smoothed initial estimate
	// exactly, so the RSS change vanishes and iteration converges.
	if outcome != Converged {
		t.Fatalf("outcome %v", outcome)
	}
	if passes != 2 {
		t.Fatalf("converged after %d passes, want 2", passes)
	}
	if p.State() != StateDone {
		t.Fatalf("state %v", p.State())
	}
}

func TestResetPassRestoresInitialCondition(t *testing.T) {
	p := NewODProcess(constVelFilter(1, 0.01), EKFConfig{Trigger: 1}, SNCConfig{})
	for k := 0; k < 5; k++ {
		if _, err := p.StepUpdate(float64(k), constVelPhi(1), posH, testMeasurement(0.01), []float64{7000, 0, 0}, []float64{0, 7.5, 0}); err != nil {
			t.Fatal(err)
		}
	}
	if len(p.History) != 5 || !p.Filter.EKFEnabled() {
		t.Fatal("forward pass did not run as expected")
	}
	p.resetPass()
	if len(p.History) != 0 {
		t.Fatal("history survived reset")
	}
	if p.Filter.EKFEnabled() {
		t.Fatal("EKF survived reset")
	}
	if p.Filter.P.At(0, 0) != 1 || p.Filter.X.AtVec(0) != 0 {
		t.Fatal("filter state not rewound to the initial condition")
	}
}

func TestRunArcSkipsMeasurementsBeforeStart(t *testing.T) {
	p := NewODProcess(sixDimFilter(), EKFConfig{Trigger: -1}, SNCConfig{})
	start := nyx.J2000TAI.Add(nyx.Seconds(150))
	p.Start = &start
	arc := toyArc(5, 0.01) // epochs at 60, 120, ..., 300
	calls := 0
	if err := p.RunArc(arc, identityStep(&calls), false); err != nil {
		t.Fatal(err)
	}
	// Only the measurements at 180, 240 and 300 survive the start gate.
	if calls != 3 {
		t.Fatalf("step called %d times, want 3", calls)
	}
	if p.State() != StateDone {
		t.Fatalf("state %v", p.State())
	}
}

func TestChiSquareGateMonotone(t *testing.T) {
	if !AcceptResidual(0, 2) {
		t.Fatal("zero NIS rejected")
	}
	if AcceptResidual(math.Inf(1), 2) {
		t.Fatal("infinite NIS accepted")
	}
	// Unknown dof falls back to the 2-dof threshold.
	if AcceptResidual(6.5, 17) {
		t.Fatal("fallback threshold not applied")
	}
}
