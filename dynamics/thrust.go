package dynamics

import (
	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/frame"
)

// g0 is standard gravity, used for the Isp -> mass-flow-rate conversion.
const g0 = 9.80665e-3 // km/s^2

// ConstantThrust models a fixed-direction, fixed-magnitude maneuver burn
// active within [Start, End), consuming fuel at the rate implied by its
// specific impulse. Direction is a unit vector in the propagation's
// inertial frame.
type ConstantThrust struct {
	Start, End nyx.Epoch
	Direction  []float64 // unit vector, inertial frame
	ThrustN    float64   // newtons
	IspS       float64   // seconds
}

func (c ConstantThrust) Name() string { return "constant_thrust" }

func (c ConstantThrust) active(t nyx.Epoch) bool {
	return !t.Before(c.Start) && t.Before(c.End)
}

func (c ConstantThrust) Acceleration(t nyx.Epoch, s State, svc frame.Service) ([]float64, error) {
	if !c.active(t) {
		return []float64{0, 0, 0}, nil
	}
	// N = kg*m/s^2; divide by mass (kg) then convert m/s^2 -> km/s^2.
	accelMag := (c.ThrustN / s.Mass) / 1000
	out := make([]float64, 3)
	for i := 0; i < 3; i++ {
		out[i] = accelMag * c.Direction[i]
	}
	return out, nil
}

// FuelRate returns the (negative) fuel mass flow rate in kg/s of the burn,
// per the rocket equation ṁ = -F/(Isp*g0). It does not check the burn
// window itself; Model applies it only at epochs where the burn is active.
func (c ConstantThrust) FuelRate(s State) float64 {
	if c.ThrustN == 0 {
		return 0
	}
	return -c.ThrustN / (c.IspS * g0 * 1000) // g0 is km/s^2; convert to m/s^2 for N/(m/s^2)=kg
}
