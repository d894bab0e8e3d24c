package station

import (
	"fmt"
	"math"

	"github.com/hartmut/nyx"
	"gonum.org/v1/gonum/mat"
)

// Measurement is one range/range-rate observation, ported field-for-field
// from the teacher's Measurement type (station.go) with Timeθgst
// generalized into the epoch it was taken at (the sidereal angle is
// recomputed from the epoch rather than stored separately, since
// station.gstRad is now a pure function of epoch).
type Measurement struct {
	Visible                  bool
	Range, RangeRate         float64 // noisy
	TrueRange, TrueRangeRate float64
	// Azimuth (east-of-north) and Elevation in degrees, geometric values
	// at the measurement epoch; HasAzEl distinguishes a populated pair
	// from the zero value.
	Azimuth, Elevation float64
	HasAzEl            bool
	Epoch              nyx.Epoch
	Station            Station
	estimateSize       int
}

// StateVector returns (range, range-rate) as a 2-vector.
func (m Measurement) StateVector() *mat.VecDense {
	return mat.NewVecDense(2, []float64{m.Range, m.RangeRate})
}

// IsZero reports a never-populated Measurement (the "no measurement this
// tick" sentinel the teacher's IsNil checked for).
func (m Measurement) IsZero() bool { return m.Range == 0 && m.RangeRate == 0 }

func (m Measurement) String() string {
	return fmt.Sprintf("%s@%s", m.Station.Name, m.Epoch.UTC())
}

// PerformMeasurement computes the ideal range/range-rate for an ECI
// spacecraft position/velocity as seen from s, adds the station's noise
// model, and reports visibility against the elevation mask — the
// generalized form of the teacher's Station.PerformMeasurement, now
// driven purely by (epoch, r, v) instead of a full smd.State.
func (s Station) PerformMeasurement(epoch nyx.Epoch, dtSinceLastSeconds float64, r, v []float64, estimateSize int) Measurement {
	theta := gstRad(epoch)
	rECEF := eci2ecef(r, theta)
	vECEF := eci2ecef(v, theta)

	rhoECEF, rho, el, az := s.RangeElAz(rECEF)
	vDiffECEF := make([]float64, 3)
	for i := 0; i < 3; i++ {
		vDiffECEF[i] = (vECEF[i] - s.V[i]) / rho
	}
	rhoDot := nyx.Dot(rhoECEF, vDiffECEF)

	rangeNoise, rateNoise := s.Noise.Sample(dtSinceLastSeconds)
	return Measurement{
		Visible:       el >= s.ElevationMaskDeg,
		Range:         rho + rangeNoise,
		RangeRate:     rhoDot + rateNoise,
		TrueRange:     rho,
		TrueRangeRate: rhoDot,
		Azimuth:       az,
		Elevation:     el,
		HasAzEl:       true,
		Epoch:         epoch,
		Station:       s,
		estimateSize:  estimateSize,
	}
}

// HTilde returns the linearized measurement-partials matrix
// ∂(ρ,ρ̇)/∂x evaluated at this measurement's state, sized 2 x
// estimateSize (never below 6; spacecraft.EstimateSize reports 6, 7 or 8
// depending on what is being solved for) — ported from the teacher's HTilde,
// generalized from the hardcoded rowsH=6 case.
func (m Measurement) HTilde(r, v []float64) *mat.Dense {
	theta := gstRad(m.Epoch)
	stationR := ecef2eci(m.Station.R, theta)
	stationV := ecef2eci(m.Station.V, theta)

	x, y, z := r[0], r[1], r[2]
	xDot, yDot, zDot := v[0], v[1], v[2]
	xS, yS, zS := stationR[0], stationR[1], stationR[2]
	xSDot, ySDot, zSDot := stationV[0], stationV[1], stationV[2]

	cols := m.estimateSize
	if cols < 6 {
		cols = 6
	}
	H := mat.NewDense(2, cols, nil)
	rho := m.TrueRange
	rhoDot := m.TrueRangeRate
	H.Set(0, 0, (x-xS)/rho)
	H.Set(0, 1, (y-yS)/rho)
	H.Set(0, 2, (z-zS)/rho)
	H.Set(1, 0, (xDot-xSDot)/rho+(rhoDot/math.Pow(rho, 2))*(x-xS))
	H.Set(1, 1, (yDot-ySDot)/rho+(rhoDot/math.Pow(rho, 2))*(y-yS))
	H.Set(1, 2, (zDot-zSDot)/rho+(rhoDot/math.Pow(rho, 2))*(z-zS))
	H.Set(1, 3, (x-xS)/rho)
	H.Set(1, 4, (y-yS)/rho)
	H.Set(1, 5, (z-zS)/rho)
	return H
}
