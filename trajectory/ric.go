package trajectory

import (
	"math"

	"github.com/hartmut/nyx"
)

// RICSample is one epoch's radial/in-track/cross-track difference between
// two trajectories, the standard way to compare a filter's estimated
// trajectory against a reference or truth run (spec §4.3's `ric_diff`).
type RICSample struct {
	Epoch                                nyx.Epoch
	RadialKM, InTrackKM, CrossTrackKM    float64
	RadialKMS, InTrackKMS, CrossTrackKMS float64
}

// RICDiff samples both trajectories at `other`'s epochs (clamped to the
// overlap of their spans) and expresses `other` minus the receiver in the
// receiver's own RIC frame at each epoch.
func (t *Trajectory) RICDiff(other *Trajectory) ([]RICSample, error) {
	other.ensureSorted()
	var out []RICSample
	for _, os := range other.samples {
		ref, err := t.At(os.Epoch)
		if err != nil {
			continue // outside overlap; skip rather than fail the whole diff
		}
		rHat, iHat, cHat := ricFrame(ref.R, ref.V)
		dR := sub3(os.R, ref.R)
		dV := sub3(os.V, ref.V)
		out = append(out, RICSample{
			Epoch:         os.Epoch,
			RadialKM:      dot3(dR, rHat),
			InTrackKM:     dot3(dR, iHat),
			CrossTrackKM:  dot3(dR, cHat),
			RadialKMS:     dot3(dV, rHat),
			InTrackKMS:    dot3(dV, iHat),
			CrossTrackKMS: dot3(dV, cHat),
		})
	}
	return out, nil
}

func ricFrame(r, v [3]float64) (rHat, iHat, cHat [3]float64) {
	rHat = unit3(r)
	cHat = unit3(cross3(r, v))
	iHat = cross3(cHat, rHat)
	return
}

func sub3(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func dot3(a, b [3]float64) float64    { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}
func unit3(a [3]float64) [3]float64 {
	n := math.Sqrt(dot3(a, a))
	if n == 0 {
		return a
	}
	return [3]float64{a[0] / n, a[1] / n, a[2] / n}
}
