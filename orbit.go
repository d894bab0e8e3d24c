package nyx

import (
	"fmt"
	"math"

	"github.com/hartmut/nyx/frame"
	"github.com/hartmut/nyx/nyxerr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// Precise ε
	eccentricityε = 5e-5                         // 0.00005
	angleε        = (5e-3 / 360) * (2 * math.Pi) // 0.005 degrees
	distanceε     = 2e1                          // 20 km
	// Coarse ε (for interplanetary flight)
	eccentricityLgε = 1e-2                         // 0.01
	angleLgε        = (5e-1 / 360) * (2 * math.Pi) // 0.5 degrees
	distanceLgε     = 5e2                          // 500 km
	// velocity ε for circular orbit equality
	velocityε = 1e-4 // in km/s
)

// Orbit is position (km) and velocity (km/s) in a given frame, plus that
// frame's gravitational parameter. The classical orbital elements are pure
// functions of (r, v, μ), cached on first computation and invalidated
// whenever r or v change (spec §3, Orbit state).
type Orbit struct {
	rVec, vVec []float64
	Origin     frame.Frame

	cacheHash                                                 float64
	ccha, cche, cchi, cchΩ, cchω, cchν, cchλ, cchtildeω, cchu float64
}

// Energyξ returns the specific mechanical energy ξ = v²/2 - μ/r.
func (o Orbit) Energyξ() float64 {
	return math.Pow(o.VNorm(), 2)/2 - o.Origin.GM/o.RNorm()
}

// H returns the orbital angular momentum vector r x v.
func (o Orbit) H() []float64 {
	return Cross(o.rVec, o.vVec)
}

// HNorm returns the norm of the orbital angular momentum.
func (o Orbit) HNorm() float64 {
	return o.RNorm() * o.VNorm() * o.CosΦfpa()
}

// CosΦfpa returns the cosine of the flight path angle. Per Vallado p. 105,
// do not take math.Acos of this value directly; use math.Atan2(SinΦfpa(),
// CosΦfpa()) to avoid a quadrant ambiguity.
func (o Orbit) CosΦfpa() float64 {
	_, e, _, _, _, ν, _, _, _ := o.Elements()
	switch {
	case e < eccentricityε:
		return 1
	case scalar.EqualWithinAbs(e, 1, eccentricityε):
		return math.Cos(ν / 2)
	case e > 1:
		cosh2 := math.Pow((e+math.Cos(ν))/(1+e*math.Cos(ν)), 2)
		return math.Sqrt((e*e - 1) / (e*e*cosh2 - 1))
	default:
		ecosν := e * math.Cos(ν)
		return (1 + ecosν) / math.Sqrt(1+2*ecosν+math.Pow(e, 2))
	}
}

// SinΦfpa returns the sine of the flight path angle.
func (o Orbit) SinΦfpa() float64 {
	_, e, _, _, _, ν, _, _, _ := o.Elements()
	switch {
	case e < eccentricityε:
		return 0
	case scalar.EqualWithinAbs(e, 1, eccentricityε):
		return math.Sin(ν / 2)
	case e > 1:
		sinν, cosν := math.Sincos(ν)
		cosh2 := math.Pow((e+cosν)/(1+e*cosν), 2)
		sinh := sinν * math.Sqrt(e*e-1) / (1 + e*cosν)
		return -(e * sinh) / math.Sqrt(e*e*cosh2-1)
	default:
		sinν, cosν := math.Sincos(ν)
		return (e * sinν) / math.Sqrt(1+2*e*cosν+math.Pow(e, 2))
	}
}

// SemiParameter returns the orbit's semi-latus rectum p = a(1-e²).
func (o Orbit) SemiParameter() float64 {
	a, e, _, _, _, _, _, _, _ := o.Elements()
	return a * (1 - e*e)
}

// Apoapsis returns the apoapsis radius.
func (o Orbit) Apoapsis() float64 {
	a, e, _, _, _, _, _, _, _ := o.Elements()
	return a * (1 + e)
}

// Periapsis returns the periapsis radius.
func (o Orbit) Periapsis() float64 {
	a, e, _, _, _, _, _, _, _ := o.Elements()
	return a * (1 - e)
}

// SinCosE returns the eccentric (or hyperbolic) anomaly trig functions.
func (o Orbit) SinCosE() (sinE, cosE float64) {
	_, e, _, _, _, ν, _, _, _ := o.Elements()
	sinν, cosν := math.Sincos(ν)
	denom := 1 + e*cosν
	if e > 1 {
		sinE = math.Sqrt(e*e-1) * sinν / denom
	} else {
		sinE = math.Sqrt(1-e*e) * sinν / denom
	}
	cosE = (e + cosν) / denom
	return
}

// Period returns the orbital period as a Duration.
func (o Orbit) Period() Duration {
	a, _, _, _, _, _, _, _, _ := o.Elements()
	return Seconds(2 * math.Pi * math.Sqrt(math.Pow(a, 3)/o.Origin.GM))
}

// RV returns the (r, v) pair.
func (o Orbit) RV() ([]float64, []float64) { return o.rVec, o.vVec }

// R returns the position vector.
func (o Orbit) R() []float64 { return o.rVec }

// RNorm returns the norm of the position vector.
func (o Orbit) RNorm() float64 { return Norm(o.rVec) }

// V returns the velocity vector.
func (o Orbit) V() []float64 { return o.vVec }

// VNorm returns the norm of the velocity vector.
func (o Orbit) VNorm() float64 { return Norm(o.vVec) }

// Elements returns (a, e, i, Ω, ω, ν, λ, tildeω, u) in radians. Algorithm
// from Vallado, 4th edition, p. 113 (RV2COE); results are cached and
// invalidated whenever r/v are replaced via SetRV.
func (o *Orbit) Elements() (a, e, i, Ω, ω, ν, λ, tildeω, u float64) {
	if o.hashValid() {
		return o.ccha, o.cche, o.cchi, o.cchΩ, o.cchω, o.cchν, o.cchλ, o.cchtildeω, o.cchu
	}
	hVec := Cross(o.rVec, o.vVec)
	n := Cross([]float64{0, 0, 1}, hVec)
	v := Norm(o.vVec)
	r := Norm(o.rVec)
	ξ := (v*v)/2 - o.Origin.GM/r
	a = -o.Origin.GM / (2 * ξ)
	eVec := make([]float64, 3)
	for i := 0; i < 3; i++ {
		eVec[i] = ((v*v-o.Origin.GM/r)*o.rVec[i] - Dot(o.rVec, o.vVec)*o.vVec[i]) / o.Origin.GM
	}
	e = Norm(eVec)
	if e < eccentricityε {
		e = eccentricityε
	}
	i = math.Acos(hVec[2] / Norm(hVec))
	if i < angleε {
		i = angleε
	}
	ω = math.Acos(Dot(n, eVec) / (Norm(n) * e))
	if math.IsNaN(ω) {
		ω = 0
	}
	if eVec[2] < 0 {
		ω = 2*math.Pi - ω
	}
	Ω = math.Acos(n[0] / Norm(n))
	if math.IsNaN(Ω) {
		Ω = angleε
	}
	if n[1] < 0 {
		Ω = 2*math.Pi - Ω
	}
	cosν := Dot(eVec, o.rVec) / (e * r)
	if abscosν := math.Abs(cosν); abscosν > 1 && scalar.EqualWithinAbs(abscosν, 1, 1e-12) {
		cosν = Sign(cosν)
	}
	ν = math.Acos(cosν)
	if math.IsNaN(ν) {
		ν = 0
	}
	if Dot(o.rVec, o.vVec) < 0 {
		ν = 2*math.Pi - ν
	}
	i = math.Mod(i, 2*math.Pi)
	Ω = math.Mod(Ω, 2*math.Pi)
	ω = math.Mod(ω, 2*math.Pi)
	ν = math.Mod(ν, 2*math.Pi)
	λ = math.Mod(ω+Ω+ν, 2*math.Pi)
	tildeω = math.Mod(ω+Ω, 2*math.Pi)
	if e < eccentricityε {
		u = math.Acos(Dot(n, o.rVec) / (Norm(n) * r))
	} else {
		u = math.Mod(ν+ω, 2*math.Pi)
	}
	o.ccha, o.cche, o.cchi, o.cchΩ, o.cchω = a, e, i, Ω, ω
	o.cchν, o.cchλ, o.cchtildeω, o.cchu = ν, λ, tildeω, u
	o.computeHash()
	return
}

// MeanAnomaly returns the mean anomaly, valid for hyperbolic orbits only.
func (o Orbit) MeanAnomaly() float64 {
	_, e, _, _, _, _, _, _, _ := o.Elements()
	sinH, cosH := o.SinCosE()
	H := math.Atan2(sinH, cosH)
	return e*math.Sinh(H) - H
}

func (o *Orbit) computeHash() {
	o.cacheHash = 0
	for i := 0; i < 3; i++ {
		o.cacheHash += o.rVec[i] + o.vVec[i]
	}
}

func (o Orbit) hashValid() bool {
	exptdHash := 0.0
	for i := 0; i < 3; i++ {
		exptdHash += o.rVec[i] + o.vVec[i]
	}
	return o.cacheHash == exptdHash
}

// SetRV replaces the position/velocity pair in place (used by the
// integrator after each accepted step) and invalidates the element cache.
func (o *Orbit) SetRV(r, v []float64) {
	o.rVec, o.vVec = r, v
}

// String implements fmt.Stringer.
func (o Orbit) String() string {
	a, e, i, Ω, ω, ν, λ, _, u := o.Elements()
	return fmt.Sprintf("r=%.1f a=%.1f e=%.4f i=%.3f Ω=%.3f ω=%.3f ν=%.3f λ=%.3f u=%.3f",
		Norm(o.rVec), a, e, Rad2deg(i), Rad2deg(Ω), Rad2deg(ω), Rad2deg(ν), Rad2deg(λ), Rad2deg(u))
}

func (o Orbit) epsilons() (float64, float64, float64) {
	if o.Origin.Equals(frame.Sun) {
		return distanceLgε, eccentricityLgε, angleLgε
	}
	return distanceε, eccentricityε, angleε
}

// Equals returns whether two orbits are identical with free true anomaly.
// Use StrictlyEquals to also check true anomaly.
func (o Orbit) Equals(o1 Orbit) (bool, error) {
	if !o.Origin.Equals(o1.Origin) {
		return false, fmt.Errorf("different origin")
	}
	_, eε, aε := o.epsilons()
	a, e, i, Ω, ω, _, λ, _, u := o.Elements()
	a1, e1, i1, Ω1, ω1, _, λ1, _, u1 := o1.Elements()
	if !scalar.EqualWithinAbs(a, a1, distanceε) {
		return false, fmt.Errorf("semi major axis invalid")
	}
	if !scalar.EqualWithinAbs(e, e1, eε) {
		return false, fmt.Errorf("eccentricity invalid")
	}
	if !scalar.EqualWithinAbs(i, i1, aε) {
		return false, fmt.Errorf("inclination invalid")
	}
	if !scalar.EqualWithinAbs(Ω, Ω1, aε) {
		return false, fmt.Errorf("RAAN invalid")
	}
	if e < eccentricityε {
		if i > angleε {
			if !scalar.EqualWithinAbs(u, u1, aε) {
				return false, fmt.Errorf("argument of latitude invalid")
			}
		} else if !scalar.EqualWithinAbs(λ, λ1, aε) {
			return false, fmt.Errorf("true longitude invalid")
		}
	} else if !scalar.EqualWithinAbs(ω, ω1, aε) {
		return false, fmt.Errorf("argument of perigee invalid")
	}
	return true, nil
}

// StrictlyEquals returns whether two orbits are identical, including true
// anomaly / position-velocity vectors for circular orbits.
func (o Orbit) StrictlyEquals(o1 Orbit) (bool, error) {
	_, e, _, _, _, ν, _, _, _ := o.Elements()
	_, _, _, _, _, ν1, _, _, _ := o1.Elements()
	if scalar.EqualWithinAbs(e, 0, 2*eccentricityε) {
		if floats.EqualApprox(o.rVec, o1.rVec, 1) && floats.EqualApprox(o.vVec, o1.vVec, velocityε) {
			return true, nil
		}
		return false, fmt.Errorf("vectors not equal")
	} else if e > eccentricityε && !scalar.EqualWithinAbs(ν, ν1, angleε) {
		return false, fmt.Errorf("true anomaly invalid")
	}
	return o.Equals(o1)
}

// ToXCentric converts this orbit to the provided frame's origin, querying
// the ephemeris service for the relative heliocentric offset (spec §6
// translate contract). Replaces the teacher's SPICE/meeus-config branches
// with the single Service abstraction.
func (o *Orbit) ToXCentric(b frame.Frame, epoch Epoch, svc frame.Service) error {
	if o.Origin.Name == b.Name {
		return nyxerr.Ephemeris("to_x_centric", fmt.Errorf("already in orbit around %s", b.Name)).WithDevice(b.Name)
	}
	r, v, err := svc.Translate(o.Origin, b, epoch)
	if err != nil {
		return nyxerr.Ephemeris("to_x_centric", err).WithEpoch(epoch.UTC())
	}
	for i := 0; i < 3; i++ {
		o.rVec[i] -= r[i]
		o.vVec[i] -= v[i]
	}
	o.Origin = b
	o.computeHash()
	return nil
}

// NewOrbitFromOE creates an orbit from classical orbital elements.
// WARNING: angles must be in degrees, not radians.
func NewOrbitFromOE(a, e, i, Ω, ω, ν float64, c frame.Frame) *Orbit {
	i = i * deg2rad
	Ω = Ω * deg2rad
	ω = ω * deg2rad
	ν = ν * deg2rad

	if e < eccentricityε {
		if i < angleε {
			Ω = 0
			ω = 0
			ν = math.Mod(ω+Ω+ν, 2*math.Pi)
		} else {
			ω = 0
			ν = math.Mod(ν+ω, 2*math.Pi)
		}
	} else if i < angleε {
		Ω = 0
		ω = math.Mod(ω+Ω, 2*math.Pi)
	}
	p := a * (1 - e*e)
	if scalar.EqualWithinAbs(e, 1, eccentricityε) || e > 1 {
		panic("should initialize parabolic or hyperbolic orbits with R, V")
	}
	μOp := math.Sqrt(c.GM / p)
	sinν, cosν := math.Sincos(ν)
	rPQW := []float64{p * cosν / (1 + e*cosν), p * sinν / (1 + e*cosν), 0}
	vPQW := []float64{-μOp * sinν, μOp * (e + cosν), 0}
	rIJK := Rot313Vec(-ω, -i, -Ω, rPQW)
	vIJK := Rot313Vec(-ω, -i, -Ω, vPQW)
	orbit := &Orbit{rVec: rIJK, vVec: vIJK, Origin: c}
	orbit.Elements()
	return orbit
}

// NewOrbitFromRV returns an Orbit from the R and V vectors.
func NewOrbitFromRV(R, V []float64, c frame.Frame) *Orbit {
	orbit := &Orbit{rVec: R, vVec: V, Origin: c}
	orbit.Elements()
	return orbit
}

// Radii2ae returns the semi-major axis and eccentricity from apoapsis and
// periapsis radii.
func Radii2ae(rA, rP float64) (a, e float64) {
	if rA < rP {
		panic("periapsis cannot be greater than apoapsis")
	}
	a = (rP + rA) / 2
	e = (rA - rP) / (rA + rP)
	return
}
