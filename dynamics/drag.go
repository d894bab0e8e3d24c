package dynamics

import (
	"math"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/frame"
)

// Atmosphere abstracts an atmospheric density model, the "harmonised
// atmosphere interface" spec §4.1 requires: given an altitude above the
// body's mean radius in km, return density in kg/km^3.
type Atmosphere interface {
	Density(altitudeKM float64) float64
}

// ExpAtmosphere is a simple exponential density model, ρ(h) = ρ0 *
// exp(-(h-h0)/H), parameterised per reference altitude band — the
// textbook-standard approximation (Vallado table 8-4) used when a detailed
// atmosphere (NRLMSISE, Harris-Priester) is unavailable.
type ExpAtmosphere struct {
	RefAltitudeKM float64
	RefDensity    float64 // kg/km^3
	ScaleHeightKM float64
}

func (a ExpAtmosphere) Density(altitudeKM float64) float64 {
	return a.RefDensity * math.Exp(-(altitudeKM-a.RefAltitudeKM)/a.ScaleHeightKM)
}

// DefaultLEOAtmosphere is tuned to the ~400-600km LEO band the reference
// scenarios (spec §8, S1/S4/S5) operate in, following Vallado's 450km
// exponential band (ρ0=1.454e-13 kg/m^3, H=60.828km, converted to kg/km^3).
var DefaultLEOAtmosphere = ExpAtmosphere{
	RefAltitudeKM: 450,
	RefDensity:    1.454e-13 * 1e9, // kg/m^3 -> kg/km^3
	ScaleHeightKM: 60.828,
}

// Drag is atmospheric drag, computed in the body-fixed (co-rotating) frame
// so that the atmosphere's corotation with the body is accounted for, per
// spec §4.1.
type Drag struct {
	Body       frame.Frame
	Atmosphere Atmosphere
	// RotationRadPerSec is the body's sidereal rotation rate, used to
	// compute the atmosphere-relative velocity (v_rel = v - ω x r).
	RotationRadPerSec float64
}

func (d Drag) Name() string { return "drag" }

func (d Drag) Acceleration(t nyx.Epoch, s State, svc frame.Service) ([]float64, error) {
	r := nyx.Norm(s.R)
	altitude := r - bodyRadiusFor(d.Body)
	if altitude < 0 {
		altitude = 0
	}
	rho := d.Atmosphere.Density(altitude)
	if rho <= 0 {
		return []float64{0, 0, 0}, nil
	}
	omega := []float64{0, 0, d.RotationRadPerSec}
	atmV := nyx.Cross(omega, s.R)
	vRel := make([]float64, 3)
	for i := 0; i < 3; i++ {
		vRel[i] = s.V[i] - atmV[i]
	}
	vRelNorm := nyx.Norm(vRel)
	if vRelNorm == 0 {
		return []float64{0, 0, 0}, nil
	}
	// a = -0.5 * Cd * (A/m) * rho * vRel^2 * vRelHat, area in m^2, mass in
	// kg, rho in kg/km^3, giving km/s^2 directly given vRel in km/s.
	coeff := -0.5 * s.Cd * (s.SRPArea / 1e6) / s.Mass * rho
	out := make([]float64, 3)
	for i := 0; i < 3; i++ {
		out[i] = coeff * vRelNorm * vRel[i]
	}
	return out, nil
}

func bodyRadiusFor(f frame.Frame) float64 {
	switch f.Body {
	case "Earth":
		return 6378.1363
	case "Mars":
		return 3396.19
	case "Venus":
		return 6051.8
	default:
		return 0
	}
}
