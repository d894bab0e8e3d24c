package station

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// expRandSource adapts a *math/rand.Rand to the golang.org/x/exp/rand.Source
// interface distmv.NewNormal requires, so callers keep passing the stdlib
// *rand.Rand the rest of this package (and NewGaussMarkov) already uses.
type expRandSource struct{ r *rand.Rand }

func (s expRandSource) Uint64() uint64   { return s.r.Uint64() }
func (s expRandSource) Seed(seed uint64) { s.r.Seed(int64(seed)) }

// GaussMarkov is a first-order Gauss-Markov colored-noise process,
// b(t+dt) = b(t)*exp(-dt/Tau) + w, w ~ N(0, sigma^2*(1-exp(-2dt/Tau))),
// the standard way station biases (clock drift, unmodeled tropospheric
// delay) are represented in OD literature beyond the teacher's pure-white
// noise model (station.go only ever draws one white sample per
// measurement via distmv.Normal; this generalizes that into the
// time-correlated bias spec §4.4 calls for).
type GaussMarkov struct {
	TauSeconds float64
	SigmaSS    float64 // steady-state standard deviation
	value      float64
	rng        *rand.Rand
}

// NewGaussMarkov seeds a bias process; rng may be nil to use a fresh
// source seeded with 1 (so nil always yields the same stream — pass a
// seeded *rand.Rand to pick another, per spec §5's PRNG portability note).
func NewGaussMarkov(tauSeconds, sigmaSS float64, rng *rand.Rand) *GaussMarkov {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &GaussMarkov{TauSeconds: tauSeconds, SigmaSS: sigmaSS, rng: rng}
}

// Step advances the process by dtSeconds and returns the new bias value.
func (g *GaussMarkov) Step(dtSeconds float64) float64 {
	if g.TauSeconds <= 0 {
		return 0
	}
	phi := math.Exp(-dtSeconds / g.TauSeconds)
	qVar := g.SigmaSS * g.SigmaSS * (1 - phi*phi)
	w := 0.0
	if qVar > 0 {
		w = g.rng.NormFloat64() * math.Sqrt(qVar)
	}
	g.value = g.value*phi + w
	return g.value
}

func (g *GaussMarkov) Value() float64 { return g.value }

// Noise bundles the per-measurement white noise (range, range-rate) plus
// optional Gauss-Markov colored biases for each channel.
type Noise struct {
	Range     *distmv.Normal
	RangeRate *distmv.Normal
	RangeBias *GaussMarkov
	RateBias  *GaussMarkov
}

// NewWhiteNoise builds the white-noise-only model the teacher's
// NewSpecialStation used: independent zero-mean Gaussians on range
// (km) and range-rate (km/s), variances sigmaRange2/sigmaRangeRate2. A
// nil seed uses a fresh source seeded with 1.
func NewWhiteNoise(sigmaRange2, sigmaRangeRate2 float64, seed *rand.Rand) Noise {
	if seed == nil {
		seed = rand.New(rand.NewSource(1))
	}
	rangeNoise, ok := distmv.NewNormal([]float64{0}, mat.NewSymDense(1, []float64{sigmaRange2}), expRandSource{seed})
	if !ok {
		panic("station: degenerate range noise covariance")
	}
	rateNoise, ok := distmv.NewNormal([]float64{0}, mat.NewSymDense(1, []float64{sigmaRangeRate2}), expRandSource{seed})
	if !ok {
		panic("station: degenerate range-rate noise covariance")
	}
	return Noise{Range: rangeNoise, RangeRate: rateNoise}
}

// Sample draws (range noise, range-rate noise) including any configured
// Gauss-Markov bias contribution, advancing the bias processes by
// dtSeconds since the last sample.
func (n Noise) Sample(dtSeconds float64) (rangeNoise, rateNoise float64) {
	rangeNoise = n.Range.Rand(nil)[0]
	rateNoise = n.RangeRate.Rand(nil)[0]
	if n.RangeBias != nil {
		rangeNoise += n.RangeBias.Step(dtSeconds)
	}
	if n.RateBias != nil {
		rateNoise += n.RateBias.Step(dtSeconds)
	}
	return
}
