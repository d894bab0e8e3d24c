package dynamics

import (
	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/frame"
)

// ThirdBody adds the point-mass gravity of another body (Sun, Moon, a
// planetary barycenter), queried from the ephemeris Service, using the
// standard indirect-term formulation so that the acceleration is relative
// to the (non-inertial) central body rather than an inertial frame:
//
//	a = μ_third * ( (d - r)/|d - r|^3 - d/|d|^3 )
//
// where d is the third body's position relative to the propagation center
// and r is the spacecraft's position relative to the same center.
type ThirdBody struct {
	Body   frame.Frame
	center frame.Frame
}

func (tb ThirdBody) Name() string { return "third_body:" + tb.Body.Name }

func (tb ThirdBody) Acceleration(t nyx.Epoch, s State, svc frame.Service) ([]float64, error) {
	// Service.BodyPosition expects a center frame; ThirdBody does not know
	// the Model's center directly, so the composite model always calls
	// contributors with s.R already expressed relative to Model.Center and
	// resolves the third-body position via the same center, stored in
	// tb.center by WithCenter.
	d, err := svc.BodyPosition(tb.Body.Body, tb.center, t)
	if err != nil {
		return nil, err
	}
	diff := make([]float64, 3)
	for i := 0; i < 3; i++ {
		diff[i] = d[i] - s.R[i]
	}
	rDiff := nyx.Norm(diff)
	rD := nyx.Norm(d)
	out := make([]float64, 3)
	for i := 0; i < 3; i++ {
		out[i] = tb.Body.GM * (diff[i]/(rDiff*rDiff*rDiff) - d[i]/(rD*rD*rD))
	}
	return out, nil
}

// center is set by WithCenter so BodyPosition can be queried relative to
// the propagation's central frame without every contributor needing a
// reference back to the owning Model.
func (tb ThirdBody) WithCenter(center frame.Frame) Contributor {
	tb.center = center
	return tb
}
