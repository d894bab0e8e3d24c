package station

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/hartmut/nyx"
)

func quietNoise() Noise {
	// Vanishingly small variances so geometry checks see the true values.
	return NewWhiteNoise(1e-30, 1e-30, rand.New(rand.NewSource(7)))
}

func TestGEO2ECEF(t *testing.T) {
	// On the equator at the prime meridian, the station sits on the +x
	// axis at one equatorial radius.
	r := GEO2ECEF(0, 0, 0)
	if !scalar.EqualWithinAbs(r[0], earthEquatorialRadiusKM, 1e-9) {
		t.Fatalf("equatorial x = %f", r[0])
	}
	if !scalar.EqualWithinAbs(r[1], 0, 1e-9) || !scalar.EqualWithinAbs(r[2], 0, 1e-9) {
		t.Fatalf("equatorial y,z = %f, %f", r[1], r[2])
	}
	// At the pole, x and y vanish and z is the polar radius (smaller than
	// equatorial, by the flattening).
	p := GEO2ECEF(0, math.Pi/2, 0)
	if !scalar.EqualWithinAbs(p[0], 0, 1e-6) || !scalar.EqualWithinAbs(p[1], 0, 1e-6) {
		t.Fatalf("polar x,y = %f, %f", p[0], p[1])
	}
	if p[2] >= earthEquatorialRadiusKM || p[2] < 6350 {
		t.Fatalf("polar radius = %f", p[2])
	}
}

func TestRangeElAzOverhead(t *testing.T) {
	st := NewStation("test", 0, 5, 30, 45, quietNoise())
	// A spacecraft directly above the station (same geodetic direction,
	// higher altitude) sits at 90° elevation.
	above := GEO2ECEF(500, st.LatRad, st.LonRad)
	_, rho, el, _ := st.RangeElAz(above)
	if rho <= 0 {
		t.Fatalf("range %f", rho)
	}
	if !scalar.EqualWithinAbs(el, 90, 0.2) {
		t.Fatalf("elevation overhead = %f", el)
	}
}

func TestVisibilityMask(t *testing.T) {
	st := NewStation("masked", 0, 10, 0, 0, quietNoise())
	// Overhead at J2000 (mapped into ECI with that epoch's sidereal angle)
	// is visible; the antipode is not.
	theta := gstRad(nyx.J2000TAI)
	overheadECEF := GEO2ECEF(1000, 0, 0)
	overheadECI := ecef2eci(overheadECEF, theta)
	if !st.Visible(nyx.J2000TAI, overheadECI) {
		t.Fatal("overhead spacecraft invisible")
	}
	antipodeECI := ecef2eci([]float64{-overheadECEF[0], 0, 0}, theta)
	if st.Visible(nyx.J2000TAI, antipodeECI) {
		t.Fatal("antipodal spacecraft visible")
	}
}

func TestPerformMeasurementGeometry(t *testing.T) {
	st := NewStation("geom", 0, 0, 0, 0, quietNoise())
	theta := gstRad(nyx.J2000TAI)
	rECEF := GEO2ECEF(800, 0, 0)
	rECI := ecef2eci(rECEF, theta)
	// Co-rotating spacecraft: ECEF-frame velocity equals the corotation
	// term, so the range rate vanishes.
	vECI := ecef2eci(nyx.Cross([]float64{0, 0, earthRotationRate}, rECEF), theta)
	m := st.PerformMeasurement(nyx.J2000TAI, 60, rECI, vECI, 6)
	if !m.Visible {
		t.Fatal("overhead not visible")
	}
	if !scalar.EqualWithinAbs(m.TrueRange, 800, 2) {
		t.Fatalf("range = %f, want ~800", m.TrueRange)
	}
	if !scalar.EqualWithinAbs(m.TrueRangeRate, 0, 1e-6) {
		t.Fatalf("range rate = %g for co-rotating target", m.TrueRangeRate)
	}
	if !scalar.EqualWithinAbs(m.Range, m.TrueRange, 1e-9) {
		t.Fatalf("quiet noise moved range by %g", m.Range-m.TrueRange)
	}
}

func TestHTildeDims(t *testing.T) {
	st := NewStation("htilde", 0, 0, 0, 0, quietNoise())
	theta := gstRad(nyx.J2000TAI)
	rECI := ecef2eci(GEO2ECEF(800, 0, 0), theta)
	vECI := []float64{0, 7.5, 0}
	for _, n := range []int{6, 7, 9} {
		m := st.PerformMeasurement(nyx.J2000TAI, 60, rECI, vECI, n)
		H := m.HTilde(rECI, vECI)
		rows, cols := H.Dims()
		if rows != 2 || cols != n {
			t.Fatalf("HTilde dims %dx%d, want 2x%d", rows, cols, n)
		}
		// Range partials with respect to velocity are zero.
		for j := 3; j < 6; j++ {
			if H.At(0, j) != 0 {
				t.Fatalf("∂ρ/∂v[%d] = %g", j-3, H.At(0, j))
			}
		}
	}
}

func TestWhiteNoiseDeterminism(t *testing.T) {
	a := NewWhiteNoise(1e-6, 1e-12, rand.New(rand.NewSource(42)))
	b := NewWhiteNoise(1e-6, 1e-12, rand.New(rand.NewSource(42)))
	for i := 0; i < 10; i++ {
		ra, rra := a.Sample(60)
		rb, rrb := b.Sample(60)
		if ra != rb || rra != rrb {
			t.Fatalf("same seed diverged at draw %d", i)
		}
	}
}

func TestGaussMarkovProperties(t *testing.T) {
	gm := NewGaussMarkov(3600, 0.01, rand.New(rand.NewSource(3)))
	// The process stays bounded near its steady-state sigma.
	for i := 0; i < 1000; i++ {
		v := gm.Step(60)
		if math.Abs(v) > 0.01*6 {
			t.Fatalf("bias %g wandered past 6 sigma", v)
		}
	}
	if gm.Value() == 0 {
		t.Fatal("process never moved")
	}
	// Zero time constant disables the process.
	off := NewGaussMarkov(0, 0.01, rand.New(rand.NewSource(3)))
	if off.Step(60) != 0 {
		t.Fatal("disabled process produced a bias")
	}
}
