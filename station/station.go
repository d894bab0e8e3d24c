// Package station implements spec §4.4's (C5) ground-station and
// measurement model: topocentric geometry, range/range-rate measurement
// generation with combined white and Gauss-Markov colored noise, and the
// analytic measurement-partials (H̃) matrix the filter needs.
//
// Grounded on the teacher's station.go (Station/Measurement/HTilde,
// DSN-station constructors), generalized from its hardcoded 6x6 H̃
// dimension to the estimation-state-size-aware form spacecraft.go's
// EstimateSize introduces. The teacher's own station.go calls
// GEO2ECEF/ECI2ECEF/ECEF2ECI/EarthRotationRate, none of which are defined
// anywhere in its tree (confirmed by grep, consistent with the
// already-documented broken-reference pattern in orbit.go) — these are
// reimplemented here from the standard geodetic/sidereal conventions
// (Vallado, "Fundamentals of Astrodynamics and Applications").
package station

import (
	"fmt"
	"math"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/frame"
)

const (
	r2d = 180 / math.Pi
	d2r = 1 / r2d
)

// earthRotationRate is Earth's mean sidereal rotation rate, rad/s.
const earthRotationRate = 7.292115146706979e-5

// earthFlattening and earthEquatorialRadiusKM parameterize the WGS84-like
// reference ellipsoid used by GEO2ECEF.
const (
	earthFlattening         = 1.0 / 298.257223563
	earthEquatorialRadiusKM = 6378.1363
)

// GEO2ECEF converts geodetic altitude (km above the ellipsoid), latitude
// and longitude (radians) to an ECEF position vector (Vallado alg. 51).
func GEO2ECEF(altitudeKM, latRad, lonRad float64) []float64 {
	sinLat := math.Sin(latRad)
	e2 := earthFlattening * (2 - earthFlattening)
	c := earthEquatorialRadiusKM / math.Sqrt(1-e2*sinLat*sinLat)
	s := c * (1 - e2)
	return []float64{
		(c + altitudeKM) * math.Cos(latRad) * math.Cos(lonRad),
		(c + altitudeKM) * math.Cos(latRad) * math.Sin(lonRad),
		(s + altitudeKM) * sinLat,
	}
}

// gstRad returns the Greenwich sidereal angle at epoch, modeled as a pure
// mean-rotation accumulation from J2000 (no nutation/precession
// correction, adequate at the arc-second level over mission-length spans
// this engine operates on).
func gstRad(epoch nyx.Epoch) float64 {
	const gstAtJ2000 = 1.7528311414 // radians, mean GST at J2000.0
	theta := gstAtJ2000 + earthRotationRate*epoch.TAISeconds()
	return math.Mod(theta, 2*math.Pi)
}

func eci2ecef(v []float64, theta float64) []float64 {
	return nyx.MxV33(nyx.R3(theta), v)
}

func ecef2eci(v []float64, theta float64) []float64 {
	return nyx.MxV33(nyx.R3(-theta), v)
}

// Station is a ground tracking device: fixed ECEF position, an elevation
// mask, and the combined noise model PerformMeasurement applies.
type Station struct {
	Name             string
	R, V             []float64 // ECEF, km and km/s (V from Earth's corotation)
	LatRad, LonRad   float64
	AltitudeKM       float64
	ElevationMaskDeg float64
	Center           frame.Frame
	Noise            Noise
	// IntegrationTimeS, when positive, switches Doppler to the integrated
	// finite-difference form (ρ(t) - ρ(t-T))/T over this window; the
	// measurement is referenced to the end of the integration interval.
	IntegrationTimeS float64
}

// TopocentricRange returns the instantaneous range (km) to an ECI position
// at the given epoch, the quantity integrated Doppler differences.
func (s Station) TopocentricRange(epoch nyx.Epoch, rECI []float64) float64 {
	theta := gstRad(epoch)
	_, rho, _, _ := s.RangeElAz(eci2ecef(rECI, theta))
	return rho
}

// NewStation builds a station at the given geodetic coordinates (degrees)
// and elevation mask (degrees).
func NewStation(name string, altitudeKM, elevationMaskDeg, latDeg, lonDeg float64, noise Noise) Station {
	latRad, lonRad := latDeg*d2r, lonDeg*d2r
	r := GEO2ECEF(altitudeKM, latRad, lonRad)
	v := nyx.Cross([]float64{0, 0, earthRotationRate}, r)
	return Station{
		Name: name, R: r, V: v,
		LatRad: latRad, LonRad: lonRad,
		AltitudeKM: altitudeKM, ElevationMaskDeg: elevationMaskDeg,
		Center: frame.Earth, Noise: noise,
	}
}

// RangeElAz returns the topocentric range vector (SEZ-adjacent, ECEF
// origin at the station), range, elevation and azimuth (degrees) of an
// ECEF spacecraft position.
func (s Station) RangeElAz(rECEF []float64) (rhoECEF []float64, rho, elDeg, azDeg float64) {
	rhoECEF = make([]float64, 3)
	for i := 0; i < 3; i++ {
		rhoECEF[i] = rECEF[i] - s.R[i]
	}
	rho = nyx.Norm(rhoECEF)
	rSEZ := nyx.MxV33(nyx.R3(s.LonRad), rhoECEF)
	rSEZ = nyx.MxV33(nyx.R2(math.Pi/2-s.LatRad), rSEZ)
	sinEl := math.Max(-1, math.Min(1, rSEZ[2]/rho)) // rounding can push the ratio past ±1
	elDeg = math.Asin(sinEl) * r2d
	azDeg = math.Mod(2*math.Pi+math.Atan2(rSEZ[1], -rSEZ[0]), 2*math.Pi) * r2d
	return
}

// Visible reports whether a spacecraft at ECI position r is above the
// station's elevation mask at epoch.
func (s Station) Visible(epoch nyx.Epoch, rECI []float64) bool {
	theta := gstRad(epoch)
	rECEF := eci2ecef(rECI, theta)
	_, _, el, _ := s.RangeElAz(rECEF)
	return el >= s.ElevationMaskDeg
}

func (s Station) String() string {
	return fmt.Sprintf("%s (%.4f,%.4f) alt=%.3fkm mask=%.1fdeg", s.Name, s.LatRad/d2r, s.LonRad/d2r, s.AltitudeKM, s.ElevationMaskDeg)
}
