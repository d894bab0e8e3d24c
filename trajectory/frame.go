package trajectory

import (
	"github.com/hartmut/nyx/frame"
	"github.com/hartmut/nyx/nyxerr"
)

// ToFrame returns a new trajectory with every sample translated into
// target via svc, the per-sample equivalent of Orbit.ToXCentric.
func (t *Trajectory) ToFrame(target frame.Frame, svc frame.Service) (*Trajectory, error) {
	t.ensureSorted()
	out := New(target)
	for _, s := range t.samples {
		r, v, err := svc.Translate(t.Frame, target, s.Epoch)
		if err != nil {
			return nil, nyxerr.Ephemeris("trajectory.ToFrame", err).WithEpoch(s.Epoch.UTC())
		}
		ns := s
		for i := 0; i < 3; i++ {
			ns.R[i] = s.R[i] - r[i]
			ns.V[i] = s.V[i] - v[i]
		}
		out.Add(ns)
	}
	return out, nil
}
