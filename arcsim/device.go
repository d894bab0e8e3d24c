package arcsim

import (
	"math/rand"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/station"
	"github.com/hartmut/nyx/trajectory"
)

// Device is anything the arc simulator can poll for a measurement at a
// given epoch — a thin seam over station.Station so a future device type
// (e.g. an inter-satellite link) could plug into the same scheduler
// without changing TrackingArcSim.
type Device interface {
	Name() string
	// Measure returns (measurement, true) if the device is visible and
	// chooses to report a measurement at this epoch, (zero, false)
	// otherwise. lastSeconds is the elapsed time since this device's last
	// reported measurement, used to advance any colored noise process.
	Measure(epoch nyx.Epoch, sample trajectory.Sample, lastSeconds float64, estimateSize int) (station.Measurement, bool)
}

// StationDevice adapts a station.Station into a Device: visible and above
// the elevation mask is the sole gating condition at the device level —
// availability windows and duty cycling are the arc simulator's job, not
// the device's, matching the original's separation between
// TrackingDeviceSim (measure-or-not based on physical visibility) and
// TrkConfig (schedule-based gating).
type StationDevice struct {
	Station station.Station
	// Traj enables integrated Doppler: when the station configures a
	// positive integration time and a trajectory is available, the
	// device differences interpolated range over that window instead of
	// reporting instantaneous range-rate.
	Traj *trajectory.Trajectory
}

func (d StationDevice) Name() string { return d.Station.Name }

func (d StationDevice) Measure(epoch nyx.Epoch, sample trajectory.Sample, lastSeconds float64, estimateSize int) (station.Measurement, bool) {
	r := []float64{sample.R[0], sample.R[1], sample.R[2]}
	v := []float64{sample.V[0], sample.V[1], sample.V[2]}
	if !d.Station.Visible(epoch, r) {
		return station.Measurement{}, false
	}
	m := d.Station.PerformMeasurement(epoch, lastSeconds, r, v, estimateSize)
	if T := d.Station.IntegrationTimeS; T > 0 && d.Traj != nil && m.Visible {
		priorEpoch := epoch.Add(nyx.Seconds(-T))
		if prior, err := d.Traj.At(priorEpoch); err == nil {
			rPrior := []float64{prior.R[0], prior.R[1], prior.R[2]}
			integrated := (m.TrueRange - d.Station.TopocentricRange(priorEpoch, rPrior)) / T
			// Transplant the already-drawn Doppler noise onto the
			// integrated value; the measurement stays referenced to the
			// end of the integration window.
			m.RangeRate = integrated + (m.RangeRate - m.TrueRangeRate)
			m.TrueRangeRate = integrated
		}
	}
	return m, m.Visible
}

// seededRand builds a deterministic PRNG portable across platforms (spec
// §5's PRNG portability note): math/rand's default source is specified to
// be platform- and version-stable for a given seed, unlike the process
// entropy source rand.New(rand.NewSource(time.Now()...)) the teacher's
// station.go used per-construction.
func seededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
