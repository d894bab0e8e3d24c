package nyx

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func TestNormUnit(t *testing.T) {
	v := []float64{3, 4, 0}
	if got := Norm(v); got != 5 {
		t.Fatalf("Norm = %f", got)
	}
	u := Unit(v)
	if !floats.EqualApprox(u, []float64{0.6, 0.8, 0}, 1e-12) {
		t.Fatalf("Unit = %v", u)
	}
	zero := Unit([]float64{0, 0, 0})
	if Norm(zero) != 0 {
		t.Fatalf("Unit of zero vector = %v", zero)
	}
}

func TestCrossDot(t *testing.T) {
	i := []float64{1, 0, 0}
	j := []float64{0, 1, 0}
	if got := Cross(i, j); !floats.EqualApprox(got, []float64{0, 0, 1}, 1e-12) {
		t.Fatalf("i x j = %v", got)
	}
	if got := Dot(i, j); got != 0 {
		t.Fatalf("i . j = %f", got)
	}
	if got := Dot([]float64{1, 2, 3}, []float64{4, 5, 6}); got != 32 {
		t.Fatalf("dot = %f", got)
	}
}

func TestSign(t *testing.T) {
	if Sign(-3) != -1 || Sign(3) != 1 || Sign(0) != 1 {
		t.Fatal("Sign broken")
	}
}

func TestSphericalCartesianRoundTrip(t *testing.T) {
	a := []float64{7000, math.Pi / 3, math.Pi / 5}
	b := Cartesian2Spherical(Spherical2Cartesian(a))
	if !floats.EqualApprox(a, b, 1e-9) {
		t.Fatalf("round trip %v -> %v", a, b)
	}
}

func TestDegRadConversions(t *testing.T) {
	if got := Deg2rad(180); !scalar.EqualWithinAbs(got, math.Pi, 1e-12) {
		t.Fatalf("Deg2rad(180) = %f", got)
	}
	if got := Rad2deg(math.Pi); !scalar.EqualWithinAbs(got, 180, 1e-12) {
		t.Fatalf("Rad2deg(pi) = %f", got)
	}
	if got := Deg2rad(-90); !scalar.EqualWithinAbs(got, 3*math.Pi/2, 1e-12) {
		t.Fatalf("Deg2rad(-90) = %f", got)
	}
	if got := Rad2deg180(3 * math.Pi / 2); !scalar.EqualWithinAbs(got, -90, 1e-12) {
		t.Fatalf("Rad2deg180(3pi/2) = %f", got)
	}
}

func TestDenseIdentity(t *testing.T) {
	i3 := DenseIdentity(3)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			want := 0.0
			if r == c {
				want = 1
			}
			if i3.At(r, c) != want {
				t.Fatalf("identity[%d][%d] = %f", r, c, i3.At(r, c))
			}
		}
	}
	s := ScaledDenseIdentity(2, 5)
	if s.At(0, 0) != 5 || s.At(1, 1) != 5 || s.At(0, 1) != 0 {
		t.Fatal("scaled identity broken")
	}
}

func TestSymmetrize(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 4, 3})
	s := Symmetrize(m)
	if MaxAbsAsymmetry(s) != 0 {
		t.Fatalf("asymmetry after Symmetrize = %g", MaxAbsAsymmetry(s))
	}
	if s.At(0, 1) != 3 || s.At(1, 0) != 3 {
		t.Fatalf("off-diagonals = %f, %f", s.At(0, 1), s.At(1, 0))
	}
	if got := MaxAbsAsymmetry(m); got != 2 {
		t.Fatalf("asymmetry of original = %f", got)
	}
}
