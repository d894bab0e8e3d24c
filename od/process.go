package od

import (
	"math"
	"os"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/mat"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/arcsim"
	"github.com/hartmut/nyx/nyxerr"
	"github.com/hartmut/nyx/station"
)

// processState names where an ODProcess sits in its run (spec §4.7's
// processor state machine), mirroring the phases cmd/od/main.go walks
// through imperatively (predict-only steps, measurement updates, optional
// smoothing pass) but made explicit here since this package has no global
// viper-driven main() to fall back on.
type processState int

const (
	StateIdle processState = iota
	StatePredicting
	StateUpdating
	StateIterating
	StateSmoothing
	StateDone
	StateFailed
)

func (s processState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePredicting:
		return "predicting"
	case StateUpdating:
		return "updating"
	case StateIterating:
		return "iterating"
	case StateSmoothing:
		return "smoothing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EKFConfig controls when the processor promotes a CKF run to EKF mode and
// when it falls back, ported from cmd/od/main.go's ekfTrigger/ekfDisableTime
// viper settings.
type EKFConfig struct {
	Trigger       int     // measurement count after which EKF turns on; <0 disables EKF entirely
	DisableDtSecs float64 // if >0, a measurement gap longer than this drops back to CKF
}

// SNCConfig controls State Noise Compensation gating, ported from
// cmd/od/main.go's sncEnabled/sncDisableTime/sncRIC viper settings.
type SNCConfig struct {
	Enabled       bool
	DisableDtSecs float64
	RIC           bool
	QRIC          *mat.Dense // 3x3 process noise in the RIC frame, used when RIC is true
}

// StepFunc propagates the reference state/STM from one epoch to the next,
// returning the updated position/velocity (for RIC/SNC bookkeeping) and the
// STM accumulated over the step. The ODProcess is deliberately decoupled
// from any particular dynamics model — the caller supplies this closure,
// typically backed by dynamics.Model plus integrator.Integrator[StateTM].
type StepFunc func(dtSeconds float64) (r, v []float64, phi *mat.Dense, err error)

// ODProcess drives Filter across a tracking arc's measurements, folding in
// EKF promotion, SNC gating, χ² residual rejection, and an optional RTS
// smoothing pass — the explicit state machine spec §4.6/§4.7 calls for,
// built from the imperative control flow of cmd/od/main.go's measurement
// loop (reproduced here as distinct states rather than inline branches).
type ODProcess struct {
	Filter *Filter
	EKF    EKFConfig
	SNC    SNCConfig

	// Start, when set, drops arc measurements timestamped before the
	// filter's start epoch instead of failing the run.
	Start *nyx.Epoch

	// RejectSigma is the residual-rejection threshold: a measurement whose
	// standardized innovation √(yᵀS⁻¹y) exceeds it is recorded but not
	// folded in. Zero selects the default of 4.
	RejectSigma float64

	state        processState
	ckfMeasCount int
	lastEpochSec float64
	haveLast     bool

	History []*Estimate

	// x0/p0 snapshot the filter's initial condition so Iterate can rewind
	// the whole forward pass for another batch iteration.
	x0 *mat.VecDense
	p0 *mat.Dense

	logger kitlog.Logger
}

// NewODProcess builds a processor around an already-constructed Filter.
func NewODProcess(f *Filter, ekf EKFConfig, snc SNCConfig) *ODProcess {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "component", "od.ODProcess")
	return &ODProcess{
		Filter: f,
		EKF:    ekf,
		SNC:    snc,
		state:  StateIdle,
		x0:     cloneVec(f.X),
		p0:     cloneDense(f.P),
		logger: klog,
	}
}

// resetPass rewinds the processor and its filter to the initial condition
// captured at construction, discarding history, EKF promotion and SNC
// bookkeeping, so a fresh forward pass can run over the same arc.
func (p *ODProcess) resetPass() {
	p.Filter.X = cloneVec(p.x0)
	p.Filter.P = cloneDense(p.p0)
	p.Filter.DisableEKF()
	p.Filter.ClearSNC()
	p.ckfMeasCount = 0
	p.haveLast = false
	p.lastEpochSec = 0
	p.History = nil
}

// State reports the processor's current phase.
func (p *ODProcess) State() processState { return p.state }

// StepPredictOnly advances the filter through a time update with no
// measurement (cmd/od/main.go's "no truth measurement here, let's only
// predict" branch).
func (p *ODProcess) StepPredictOnly(phi *mat.Dense) (*Estimate, error) {
	p.state = StatePredicting
	p.Filter.Prepare(phi, nil)
	if err := p.Filter.Predict(); err != nil {
		return nil, nyxerr.Filter("ODProcess.StepPredictOnly", err)
	}
	est := &Estimate{
		XPred: cloneVec(p.Filter.X), PPred: cloneDense(p.Filter.P),
		XFilt: cloneVec(p.Filter.X), PFilt: cloneDense(p.Filter.P),
		Phi: phi,
	}
	p.History = append(p.History, est)
	return est, nil
}

// StepUpdate folds in a real measurement: EKF promotion/demotion, SNC
// gating, Predict, χ² rejection, and Update — the full body of
// cmd/od/main.go's "Let's perform a full update since there is a
// measurement" branch, reorganized into explicit steps.
func (p *ODProcess) StepUpdate(epochSec float64, phi, hTilde *mat.Dense, msr station.Measurement, r, v []float64) (*Estimate, error) {
	p.state = StateUpdating

	dt := 0.0
	if p.haveLast {
		dt = epochSec - p.lastEpochSec
	}

	if !p.Filter.EKFEnabled() && p.EKF.Trigger >= 0 && p.ckfMeasCount == p.EKF.Trigger {
		p.Filter.EnableEKF()
		p.logger.Log("event", "ekf_enabled", "meas", p.ckfMeasCount)
	} else if p.Filter.EKFEnabled() && p.EKF.DisableDtSecs > 0 && dt > p.EKF.DisableDtSecs {
		p.Filter.DisableEKF()
		p.ckfMeasCount = 0
		p.logger.Log("event", "ekf_disabled", "dt", dt)
	}

	p.Filter.Prepare(phi, hTilde)

	if p.SNC.Enabled && (p.SNC.DisableDtSecs <= 0 || dt < p.SNC.DisableDtSecs) {
		if p.SNC.RIC && p.SNC.QRIC != nil {
			dcm := RICRotation(r, v)
			p.Filter.SetNoise(RotateQToECI(p.SNC.QRIC, dcm), p.Filter.R)
		}
		if p.Filter.Q != nil {
			p.Filter.PreparePNT(DiscreteProcessNoise(dt, p.Filter.Q))
		} else {
			p.Filter.ClearSNC()
		}
	} else {
		p.Filter.ClearSNC()
	}

	if err := p.Filter.Predict(); err != nil {
		return nil, nyxerr.Filter("ODProcess.StepUpdate", err)
	}
	xPred := cloneVec(p.Filter.X)
	pPred := cloneDense(p.Filter.P)

	prefit := msr.StateVector()
	nis, err := p.Filter.NIS(prefit)
	if err != nil {
		return nil, nyxerr.Filter("ODProcess.StepUpdate", err)
	}
	sigma := p.RejectSigma
	if sigma <= 0 {
		sigma = 4
	}
	accepted := math.Sqrt(nis) <= sigma

	est := &Estimate{
		XPred: xPred, PPred: pPred,
		Phi:            phi,
		HasMeasurement: true,
		Prefit:         prefit,
		NIS:            nis,
		Rejected:       !accepted,
	}

	if !accepted {
		p.logger.Log("event", "residual_rejected", "nis", nis, "sigma", sigma)
		est.XFilt, est.PFilt = xPred, pPred
	} else {
		postfit, _, err := p.Filter.Update(prefit)
		if err != nil {
			return nil, nyxerr.Filter("ODProcess.StepUpdate", err)
		}
		est.Postfit = postfit
		est.XFilt = cloneVec(p.Filter.X)
		est.PFilt = cloneDense(p.Filter.P)
		p.ckfMeasCount++
	}

	rows, _ := est.PFilt.Dims()
	for i := 0; i < rows; i++ {
		if d := est.PFilt.At(i, i); d < 0 {
			p.logger.Log("level", "warning", "event", "negative_covariance_diagonal", "index", i, "value", d)
		}
	}

	p.History = append(p.History, est)
	p.lastEpochSec = epochSec
	p.haveLast = true
	return est, nil
}

// RunArc drives the processor across every measurement in a pre-generated
// tracking arc in epoch order, calling step for the reference-state
// propagation between consecutive measurement epochs (spec §4.6/§4.7's
// full OD run over a simulated arc, port of cmd/od/main.go's measurement
// channel loop without the CSV/viper plumbing).
func (p *ODProcess) RunArc(arc *arcsim.TrackingArc, step StepFunc, smoothing bool) error {
	for _, dm := range arc.Measurements {
		if dm.Msr.IsZero() {
			continue
		}
		// Measurements taken before the filter's start epoch are skipped,
		// not fatal.
		if p.Start != nil && dm.Msr.Epoch.Before(*p.Start) {
			continue
		}
		var dt float64
		if p.haveLast {
			dt = dm.Msr.Epoch.TAISeconds() - p.lastEpochSec
		}
		r, v, phi, err := step(dt)
		if err != nil {
			p.state = StateFailed
			return nyxerr.Filter("ODProcess.RunArc", err).WithEpoch(dm.Msr.Epoch.UTC()).WithDevice(dm.Device)
		}
		hTilde := dm.Msr.HTilde(r, v)
		if _, err := p.StepUpdate(dm.Msr.Epoch.TAISeconds(), phi, hTilde, dm.Msr, r, v); err != nil {
			p.state = StateFailed
			return err
		}
	}
	if smoothing {
		p.state = StateSmoothing
		if err := SmoothAll(p.History); err != nil {
			p.state = StateFailed
			return nyxerr.Filter("ODProcess.RunArc", err)
		}
	}
	p.state = StateDone
	return nil
}

// IterConfig bounds a batch iteration run.
type IterConfig struct {
	MaxIter  int     // 0 means the default of 10 passes
	RSSTolKM float64 // 0 means the default of 1e-3 km
}

// IterOutcome reports how Iterate terminated.
type IterOutcome uint8

const (
	Converged IterOutcome = iota
	MaxIterReached
)

func (o IterOutcome) String() string {
	if o == Converged {
		return "converged"
	}
	return "max_iter_reached"
}

// Iterate performs batch-style refinement: run a full forward pass with
// RTS smoothing over the arc, fold the smoothed initial estimate back into
// the caller's reference via newPass, and repeat until the RSS position
// change between consecutive smoothed initial estimates drops below the
// tolerance or MaxIter passes have run.
//
// newPass is called before each pass with the pass index and the previous
// pass's smoothed initial deviation (nil on the first pass); it applies the
// deviation to whatever reference state the caller propagates and returns a
// fresh StepFunc for the new pass.
func (p *ODProcess) Iterate(arc *arcsim.TrackingArc, conf IterConfig, newPass func(pass int, smoothedInit *mat.VecDense) (StepFunc, error)) (IterOutcome, error) {
	maxIter := conf.MaxIter
	if maxIter <= 0 {
		maxIter = 10
	}
	tol := conf.RSSTolKM
	if tol <= 0 {
		tol = 1e-3
	}
	var prevInit *mat.VecDense
	for pass := 0; pass < maxIter; pass++ {
		p.state = StateIterating
		step, err := newPass(pass, prevInit)
		if err != nil {
			p.state = StateFailed
			return MaxIterReached, nyxerr.Filter("ODProcess.Iterate", err)
		}
		p.resetPass()
		if err := p.RunArc(arc, step, true); err != nil {
			p.state = StateFailed
			return MaxIterReached, err
		}
		if len(p.History) == 0 {
			p.state = StateFailed
			return MaxIterReached, nyxerr.Filter("ODProcess.Iterate", errEmptyArc)
		}
		init := p.History[0].XFilt
		if prevInit != nil {
			var rss float64
			for i := 0; i < 3 && i < init.Len(); i++ {
				d := init.AtVec(i) - prevInit.AtVec(i)
				rss += d * d
			}
			if math.Sqrt(rss) < tol {
				p.logger.Log("event", "iterate_converged", "pass", pass)
				p.state = StateDone
				return Converged, nil
			}
		}
		prevInit = cloneVec(init)
	}
	p.logger.Log("event", "iterate_max_iter", "passes", maxIter)
	p.state = StateDone
	return MaxIterReached, nil
}

const errEmptyArc = filterErr("arc contains no usable measurements")

func cloneVec(v *mat.VecDense) *mat.VecDense {
	if v == nil {
		return nil
	}
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}

func cloneDense(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Copy(m)
	return out
}
