package nyx

import (
	"fmt"
	"os"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/mat"
)

// Spacecraft is the estimation state carried through propagation: an Orbit
// plus physical parameters (spec §3, Spacecraft state) and, when the filter
// is estimating more than position/velocity, a state transition matrix Φ of
// compatible size (6x6 orbit-only, 7x7 with Cr or fuel, 8x8 with both).
//
// Invariant: DryMass, FuelMass >= 0; Cr, Cd >= 0; when Φ is non-nil its
// dimension equals EstimateSize().
type Spacecraft struct {
	Name     string
	Orbit    Orbit
	DryMass  float64 // kg
	FuelMass float64 // kg, negative is invalid
	Cr       float64 // coefficient of reflectivity
	Cd       float64 // drag coefficient
	SRPArea  float64 // m^2

	EstimateFuel bool // whether fuel mass is part of the estimated state
	EstimateCr   bool // whether Cr is part of the estimated state

	STM *mat.Dense // nil when the STM side channel is not carried

	logger kitlog.Logger
}

// SCLogInit builds a logfmt logger decorated with the spacecraft's name,
// the way the teacher's SCLogInit/LogInfo pair does.
func SCLogInit(name string) kitlog.Logger {
	l := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	return kitlog.With(l, "subsys", "spacecraft", "craft", name)
}

// Mass returns the total vehicle mass (dry + fuel). A vehicle with
// non-positive mass is considered a modelling error; callers that estimate
// fuel are expected to catch a negative fuel mass via PropagationError
// before it reaches here.
func (sc *Spacecraft) Mass() float64 {
	m := sc.DryMass
	if sc.FuelMass > 0 {
		m += sc.FuelMass
	}
	return m
}

// EstimateSize returns the dimension n of the estimated state vector: 6
// (position/velocity), plus 1 if Cr is estimated, plus 1 if fuel mass is
// estimated.
func (sc *Spacecraft) EstimateSize() int {
	n := 6
	if sc.EstimateCr {
		n++
	}
	if sc.EstimateFuel {
		n++
	}
	return n
}

// InitSTM sets Φ to the identity of the appropriate size for this
// spacecraft's estimated state.
func (sc *Spacecraft) InitSTM() {
	sc.STM = DenseIdentity(sc.EstimateSize())
}

// LogInfo logs the spacecraft's current state at notice level, mirroring
// the teacher's LogInfo.
func (sc *Spacecraft) LogInfo(epoch Epoch) {
	if sc.logger == nil {
		sc.logger = SCLogInit(sc.Name)
	}
	sc.logger.Log("level", "notice", "epoch", epoch.String(), "orbit", sc.Orbit.String(),
		"fuel_kg", sc.FuelMass, "mass_kg", sc.Mass())
}

// String implements fmt.Stringer.
func (sc Spacecraft) String() string {
	return fmt.Sprintf("%s m=%.3fkg fuel=%.3fkg Cr=%.3f Cd=%.3f orbit={%s}",
		sc.Name, sc.Mass(), sc.FuelMass, sc.Cr, sc.Cd, sc.Orbit)
}

// NewSpacecraft returns a spacecraft with an initialized logger, ready for
// propagation. estimateCr/estimateFuel select the size of the STM the
// dynamics/integrator packages will carry alongside it.
func NewSpacecraft(name string, orbit Orbit, dryMass, fuelMass, cr, cd, srpArea float64, estimateCr, estimateFuel bool) *Spacecraft {
	sc := &Spacecraft{
		Name: name, Orbit: orbit, DryMass: dryMass, FuelMass: fuelMass,
		Cr: cr, Cd: cd, SRPArea: srpArea,
		EstimateCr: estimateCr, EstimateFuel: estimateFuel,
		logger: SCLogInit(name),
	}
	sc.InitSTM()
	return sc
}

// StateVector packs the estimated state into a flat vector in the fixed
// order (r, v, [Cr], [fuel]), the layout dynamics/A-matrix construction and
// the od package's H matrices assume throughout.
func (sc *Spacecraft) StateVector() []float64 {
	x := make([]float64, sc.EstimateSize())
	r, v := sc.Orbit.RV()
	copy(x[0:3], r)
	copy(x[3:6], v)
	idx := 6
	if sc.EstimateCr {
		x[idx] = sc.Cr
		idx++
	}
	if sc.EstimateFuel {
		x[idx] = sc.FuelMass
	}
	return x
}

// SetStateVector writes a flat state vector (same layout as StateVector)
// back into the spacecraft, invalidating the Orbit's element cache.
func (sc *Spacecraft) SetStateVector(x []float64) {
	r := append([]float64{}, x[0:3]...)
	v := append([]float64{}, x[3:6]...)
	sc.Orbit.SetRV(r, v)
	idx := 6
	if sc.EstimateCr {
		sc.Cr = x[idx]
		idx++
	}
	if sc.EstimateFuel {
		sc.FuelMass = x[idx]
	}
}
