package arcsim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/nyxerr"
	"github.com/hartmut/nyx/station"
	"github.com/hartmut/nyx/trajectory"
)

// schedData tracks, per device, the bookkeeping arc.rs calls `SchedData`:
// when the current on-pass started, the last epoch a measurement was
// taken, and when the device last went quiet.
type schedData struct {
	start, prev, end *nyx.Epoch
}

// TrackingArcSim drives a reference trajectory through a set of devices,
// each gated by its own TrkConfig, to produce a deterministic measurement
// sequence.
type TrackingArcSim struct {
	Devices    map[string]Device
	Trajectory *trajectory.Trajectory
	Configs    map[string]TrkConfig
	// order is the device iteration order, frozen at construction: map
	// iteration order is randomized per run in Go, which would break both
	// the byte-identical-arc determinism contract and the
	// first-configured-wins simultaneous-visibility policy.
	order    []string
	rng      *rand.Rand
	stepSize nyx.Duration

	// Policy resolves simultaneous visibility; defaults to
	// FirstConfiguredWins, the reference behavior.
	Policy Policy
}

// NewWithRand builds a simulator with an explicit PRNG (for composing with
// an outer, already-seeded generator).
func NewWithRand(devices []Device, traj *trajectory.Trajectory, configs map[string]TrkConfig, rng *rand.Rand) (*TrackingArcSim, error) {
	devMap := make(map[string]Device, len(devices))
	order := make([]string, 0, len(devices))
	stepNanos := int64(0)
	for _, d := range devices {
		cfg, ok := configs[d.Name()]
		if !ok {
			return nil, nyxerr.Config("arcsim.NewWithRand", fmt.Errorf("device %s has no associated configuration", d.Name()))
		}
		devMap[d.Name()] = d
		order = append(order, d.Name())
		n := cfg.Sampling.TimeDuration().Nanoseconds()
		if stepNanos == 0 {
			stepNanos = n
		} else {
			stepNanos = gcdInt64(stepNanos, n)
		}
	}
	if stepNanos == 0 {
		return nil, nyxerr.Config("arcsim.NewWithRand", fmt.Errorf("no devices configured"))
	}
	return &TrackingArcSim{
		Devices:    devMap,
		Trajectory: traj,
		Configs:    configs,
		order:      order,
		rng:        rng,
		stepSize:   nyx.FromTimeDuration(time.Duration(stepNanos)),
	}, nil
}

// NewWithSeed builds a simulator with a deterministic seed (spec §5: "the
// PRNG is seeded and its sequence is reproducible across platforms").
func NewWithSeed(devices []Device, traj *trajectory.Trajectory, configs map[string]TrkConfig, seed int64) (*TrackingArcSim, error) {
	return NewWithRand(devices, traj, configs, seededRand(seed))
}

// New builds a simulator seeded from a fixed default (never from wall-clock
// entropy), since this engine never draws randomness from an
// unreproducible source (spec §5).
func New(devices []Device, traj *trajectory.Trajectory, configs map[string]TrkConfig) (*TrackingArcSim, error) {
	return NewWithSeed(devices, traj, configs, 1)
}

// TrackingArc is the simulator's output: a flat, time-ordered list of
// (device name, measurement) pairs plus the device configuration that
// produced them (spec §6's Parquet arc schema draws from this).
type TrackingArc struct {
	DeviceNames  []string
	Measurements []DeviceMeasurement
	// DeviceConfig is a YAML snapshot of the contributing devices'
	// configurations, so an exported arc is self-describing (set by the
	// caller via ioconfig.MarshalStationSnapshot; empty if not captured).
	DeviceConfig string
}

type DeviceMeasurement struct {
	Device string
	Msr    station.Measurement
}

// GenerateMeasurements replays the trajectory across the GCD time series,
// applying each device's availability window, sampling rate and duty cycle
// before asking it to measure — ported control-flow-for-control-flow from
// TrackingArcSim::generate_measurements.
func (s *TrackingArcSim) GenerateMeasurements() (*TrackingArc, error) {
	sched := make(map[string]*schedData)
	start, end, err := s.Trajectory.Span()
	if err != nil {
		return nil, err
	}

	var out []DeviceMeasurement
	for epoch := start; !epoch.After(end); epoch = epoch.Add(s.stepSize) {
		sample, err := s.Trajectory.At(epoch)
		if err != nil {
			return nil, err
		}
		for _, name := range s.order {
			device := s.Devices[name]
			cfg := s.Configs[name]

			if !cfg.Start.Always && cfg.Start.At.After(epoch) {
				continue
			}
			if !cfg.End.Always && cfg.End.At.Before(epoch) {
				continue
			}

			ds := sched[name]
			if ds != nil {
				if ds.prev != nil && epoch.Sub(*ds.prev).Seconds() < cfg.Sampling.Seconds() {
					continue
				}
				if cfg.Schedule.Kind == Intermittent {
					if ds.start != nil && epoch.Sub(*ds.start).Seconds() > cfg.Schedule.On.Seconds() {
						// On-window exhausted: close the pass so the
						// off-cooldown below starts counting from here.
						e := epoch
						ds.start = nil
						ds.end = &e
						continue
					}
					if ds.end != nil && epoch.Sub(*ds.end).Seconds() <= cfg.Schedule.Off.Seconds() {
						continue
					}
				}
			}

			lastSeconds := cfg.Sampling.Seconds()
			if ds != nil && ds.prev != nil {
				lastSeconds = epoch.Sub(*ds.prev).Seconds()
			}
			estimateSize := 6

			msr, ok := device.Measure(epoch, sample, lastSeconds, estimateSize)
			e := epoch
			if ok {
				out = append(out, DeviceMeasurement{Device: name, Msr: msr})
				if ds == nil {
					sched[name] = &schedData{start: &e, prev: &e}
				} else {
					if ds.start == nil {
						ds.start = &e
					}
					ds.prev = &e
					ds.end = nil
				}
				if s.Policy == FirstConfiguredWins {
					break
				}
			} else if ds != nil {
				if ds.end == nil {
					ds.start = nil
					ds.end = &e
				}
			}
		}
	}

	names := append([]string{}, s.order...)
	return &TrackingArc{DeviceNames: names, Measurements: out}, nil
}

func gcdInt64(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
