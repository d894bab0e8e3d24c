// Package trajectory implements spec §4.3's (C4) interpolated state
// history: a sequence of discrete samples spanning an arc, queried at
// arbitrary epochs via piecewise Hermite splines fit over moving windows of
// samples, with event search and frame conversion layered on top.
//
// Grounded on original_source/src/md/trajectory/mod.rs's `InterpState`
// trait and its `Orbit`/`Spacecraft` implementations, adapted from Rust's
// static-size-allocator-generic interpolation into a plain Go slice-based
// one; the teacher repo (ChristopherRabotin/smd) predates this trajectory
// design entirely and only ever produced CSV/JSON output (export.go), so
// this package's structure follows the original Rust source directly while
// its error handling and naming follow the teacher's Go idiom.
package trajectory

import (
	"sort"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/frame"
	"github.com/hartmut/nyx/nyxerr"
)

// interpolationSamples is the window size each Hermite fit uses: 8 samples
// producing a degree-15 polynomial per axis, matching the original's
// INTERPOLATION_SAMPLES constant.
const interpolationSamples = 8

// Sample is one discrete state on the trajectory.
type Sample struct {
	Epoch    nyx.Epoch
	R, V     [3]float64
	FuelMass float64 // kg; 0 if not tracked
	Cr       float64
	HasCr    bool
}

// Trajectory is a time-ordered set of samples over a fixed frame, queryable
// at any epoch within its span via Hermite interpolation.
type Trajectory struct {
	Frame   frame.Frame
	samples []Sample
	sorted  bool
}

// New creates an empty trajectory anchored to the given frame.
func New(f frame.Frame) *Trajectory {
	return &Trajectory{Frame: f}
}

// Add appends a sample, invalidating the sort-order cache.
func (t *Trajectory) Add(s Sample) {
	t.samples = append(t.samples, s)
	t.sorted = false
}

func (t *Trajectory) ensureSorted() {
	if t.sorted {
		return
	}
	sort.Slice(t.samples, func(i, j int) bool {
		return t.samples[i].Epoch.Before(t.samples[j].Epoch)
	})
	t.sorted = true
}

// SampleEpochs returns the epoch of every stored sample in time order,
// the row axis ioexport's trajectory schema walks.
func (t *Trajectory) SampleEpochs() []nyx.Epoch {
	t.ensureSorted()
	out := make([]nyx.Epoch, len(t.samples))
	for i, s := range t.samples {
		out[i] = s.Epoch
	}
	return out
}

// Span returns the trajectory's first and last sample epochs.
func (t *Trajectory) Span() (nyx.Epoch, nyx.Epoch, error) {
	t.ensureSorted()
	if len(t.samples) == 0 {
		return nyx.Epoch{}, nyx.Epoch{}, nyxerr.Trajectory("trajectory.Span", errEmpty)
	}
	return t.samples[0].Epoch, t.samples[len(t.samples)-1].Epoch, nil
}

// At interpolates the state at the requested epoch using the
// interpolationSamples samples whose epochs most tightly bracket it.
func (t *Trajectory) At(at nyx.Epoch) (Sample, error) {
	t.ensureSorted()
	n := len(t.samples)
	if n == 0 {
		return Sample{}, nyxerr.Trajectory("trajectory.At", errEmpty).WithEpoch(at.UTC())
	}
	start, end := t.samples[0].Epoch, t.samples[n-1].Epoch
	if at.Before(start) || end.Before(at) {
		return Sample{}, nyxerr.Trajectory("trajectory.At", errOutOfSpline(at, start, end)).WithEpoch(at.UTC())
	}
	window := t.window(at)
	return interpolate(window, at)
}

// window selects up to interpolationSamples consecutive samples centered
// as closely as possible on `at`.
func (t *Trajectory) window(at nyx.Epoch) []Sample {
	n := len(t.samples)
	idx := sort.Search(n, func(i int) bool { return !t.samples[i].Epoch.Before(at) })
	half := interpolationSamples / 2
	lo := idx - half
	if lo < 0 {
		lo = 0
	}
	hi := lo + interpolationSamples
	if hi > n {
		hi = n
		lo = hi - interpolationSamples
		if lo < 0 {
			lo = 0
		}
	}
	return t.samples[lo:hi]
}

func interpolate(window []Sample, at nyx.Epoch) (Sample, error) {
	epochsTDB := make([]float64, len(window))
	for i, s := range window {
		epochsTDB[i] = s.Epoch.TDBSeconds()
	}
	target := at.TDBSeconds()

	var out Sample
	out.Epoch = at
	for axis := 0; axis < 3; axis++ {
		pos := make([]float64, len(window))
		vel := make([]float64, len(window))
		for i, s := range window {
			pos[i] = s.R[axis]
			vel[i] = s.V[axis]
		}
		p, v, err := hermiteEval(epochsTDB, pos, vel, target)
		if err != nil {
			return Sample{}, err
		}
		out.R[axis] = p
		out.V[axis] = v
	}

	// Fuel mass (and Cr, when estimated) are linearly interpolated between
	// the window's endpoints rather than splined — matching the original's
	// documented exception ("should really be a Lagrange interpolation
	// here" per its own comment) since fuel consumption is not smooth
	// enough across a maneuver boundary to trust a high-order fit.
	first, last := window[0], window[len(window)-1]
	span := last.Epoch.Sub(first.Epoch).Seconds()
	if span == 0 {
		out.FuelMass = first.FuelMass
		out.Cr, out.HasCr = first.Cr, first.HasCr
	} else {
		frac := at.Sub(first.Epoch).Seconds() / span
		out.FuelMass = first.FuelMass + frac*(last.FuelMass-first.FuelMass)
		if first.HasCr && last.HasCr {
			out.Cr = first.Cr + frac*(last.Cr-first.Cr)
			out.HasCr = true
		}
	}
	return out, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errEmpty = sentinelErr("trajectory has no samples")

func errOutOfSpline(req, start, end nyx.Epoch) error {
	return sentinelErr("requested epoch " + req.String() + " outside trajectory span [" + start.String() + ", " + end.String() + "]")
}
