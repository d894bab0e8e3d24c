package dynamics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/frame"
)

func leoState() State {
	return State{
		R:    []float64{7000, 0, 0},
		V:    []float64{0, 7.546, 0},
		Mass: 1000,
		Cr:   1.8, Cd: 2.2, SRPArea: 10,
	}
}

func TestTwoBodyEOM(t *testing.T) {
	m := NewModel(frame.Earth, nil)
	s := leoState()
	xdot, err := m.EOM(nyx.J2000TAI, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(xdot) != 6 {
		t.Fatalf("derivative length %d", len(xdot))
	}
	if !floats.EqualApprox(xdot[0:3], s.V, 1e-12) {
		t.Fatalf("ṙ = %v, want v", xdot[0:3])
	}
	// a = -μ/r² pointing back along +x.
	want := -frame.Earth.GM / (7000 * 7000)
	if !scalar.EqualWithinAbs(xdot[3], want, 1e-12) {
		t.Fatalf("a_x = %g, want %g", xdot[3], want)
	}
	if xdot[4] != 0 || xdot[5] != 0 {
		t.Fatalf("off-axis two-body acceleration: %v", xdot[3:6])
	}
}

func TestEOMRejectsZeroRadius(t *testing.T) {
	m := NewModel(frame.Earth, nil)
	s := leoState()
	s.R = []float64{0, 0, 0}
	if _, err := m.EOM(nyx.J2000TAI, s); err == nil {
		t.Fatal("zero radius accepted")
	}
}

func TestJacobianMatchesTwoBodyClosedForm(t *testing.T) {
	m := NewModel(frame.Earth, nil)
	s := leoState()
	A, err := m.Jacobian(nyx.J2000TAI, s)
	if err != nil {
		t.Fatal(err)
	}
	// Closed form: ∂a/∂r = μ(3 r̂r̂ᵀ - I)/r³.
	r := nyx.Norm(s.R)
	mu := frame.Earth.GM
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 3 * mu * s.R[i] * s.R[j] / math.Pow(r, 5)
			if i == j {
				want -= mu / math.Pow(r, 3)
			}
			if !scalar.EqualWithinAbs(A.At(i+3, j), want, 1e-9) {
				t.Fatalf("A[%d][%d] = %g, want %g", i+3, j, A.At(i+3, j), want)
			}
		}
	}
	// Velocity identity block.
	for i := 0; i < 3; i++ {
		if A.At(i, i+3) != 1 {
			t.Fatalf("dr/dv block broken at %d", i)
		}
	}
}

func TestEOMWithSTMDims(t *testing.T) {
	m := NewModel(frame.Earth, nil)
	s := leoState()
	phi := nyx.DenseIdentity(6)
	xdot, phiDot, err := m.EOMWithSTM(nyx.J2000TAI, s, phi)
	if err != nil {
		t.Fatal(err)
	}
	if len(xdot) != 6 {
		t.Fatalf("xdot length %d", len(xdot))
	}
	r, c := phiDot.Dims()
	if r != 6 || c != 6 {
		t.Fatalf("Φ̇ dims %dx%d", r, c)
	}
	// With Φ = I, Φ̇ = A.
	A, _ := m.Jacobian(nyx.J2000TAI, s)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if !scalar.EqualWithinAbs(phiDot.At(i, j), A.At(i, j), 1e-12) {
				t.Fatalf("Φ̇ != A at [%d][%d]", i, j)
			}
		}
	}
}

func TestZonalJ2Direction(t *testing.T) {
	z := Zonal{Body: frame.Earth, Radius: 6378.1363, J2: 1.08262668e-3}
	// On the equator, J2 pulls inward (negative radial).
	acc, err := z.Acceleration(nyx.J2000TAI, State{R: []float64{7000, 0, 0}, V: []float64{0, 7.5, 0}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if acc[0] >= 0 {
		t.Fatalf("equatorial J2 radial acceleration %g not inward", acc[0])
	}
	if acc[2] != 0 {
		t.Fatalf("equatorial J2 out-of-plane acceleration %g", acc[2])
	}
	// Over the pole the z-term flips sign relative to the equator's radial pull.
	accPole, err := z.Acceleration(nyx.J2000TAI, State{R: []float64{0, 0, 7000}, V: []float64{7.5, 0, 0}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if accPole[2] <= 0 {
		t.Fatalf("polar J2 z-acceleration %g not outward", accPole[2])
	}
}

func TestConstantThrustWindow(t *testing.T) {
	start := nyx.FromTAISecondsSinceJ2000(100)
	end := nyx.FromTAISecondsSinceJ2000(200)
	th := ConstantThrust{
		Start: start, End: end,
		Direction: []float64{1, 0, 0},
		ThrustN:   10, IspS: 300,
	}
	s := leoState()
	before, _ := th.Acceleration(nyx.FromTAISecondsSinceJ2000(50), s, nil)
	if nyx.Norm(before) != 0 {
		t.Fatal("thrust active before window")
	}
	during, _ := th.Acceleration(nyx.FromTAISecondsSinceJ2000(150), s, nil)
	// 10 N on 1000 kg = 0.01 m/s² = 1e-5 km/s².
	if !scalar.EqualWithinAbs(during[0], 1e-5, 1e-12) {
		t.Fatalf("thrust acceleration %g", during[0])
	}
	after, _ := th.Acceleration(nyx.FromTAISecondsSinceJ2000(250), s, nil)
	if nyx.Norm(after) != 0 {
		t.Fatal("thrust active after window")
	}
}

func TestExpAtmosphereDecreasing(t *testing.T) {
	atm := DefaultLEOAtmosphere
	if atm.Density(500) >= atm.Density(400) {
		t.Fatal("density not decreasing with altitude")
	}
	if !scalar.EqualWithinRel(atm.Density(atm.RefAltitudeKM), atm.RefDensity, 1e-12) {
		t.Fatal("reference altitude density mismatch")
	}
}
