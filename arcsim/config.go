// Package arcsim implements spec §4.5's (C6) tracking arc simulator: given
// a reference trajectory and a set of tracking devices each with its own
// availability window and on/off duty cycle, produce the deterministic,
// seeded sequence of measurements those devices would have taken.
//
// Grounded directly on original_source/src/od/simulator/arc.rs's
// TrackingArcSim: the GCD-derived common sampling time series and the
// per-device start/prev/end schedule bookkeeping are ported from that
// file's control flow (its per-device trace messages are not: the
// scheduler here does not log), since neither the teacher repo
// (ChristopherRabotin/smd) nor the rest of the example pack has an
// equivalent scheduler — only CSV dumps of pre-simulated fixed-cadence
// stations (examples/statOD/*).
package arcsim

import "github.com/hartmut/nyx"

// Policy selects what happens when several devices are simultaneously
// visible at the same tick. The reference behavior is first-configured-wins
// (one measurement per tick, from the earliest-configured visible device);
// the type exists so alternatives can be added without an API break.
type Policy uint8

const (
	// FirstConfiguredWins emits at most one measurement per tick, from the
	// first device (in configuration order) that reports one.
	FirstConfiguredWins Policy = iota
	// AllVisible lets every visible device emit at each tick.
	AllVisible
)

// Availability gates when a device is allowed to track at all, independent
// of its duty-cycle Schedule.
type Availability struct {
	Always bool
	At     nyx.Epoch // only meaningful if !Always
}

// AlwaysAvailable is the zero-configuration default: no start/end bound.
func AlwaysAvailable() Availability { return Availability{Always: true} }

// AvailableAt bounds one end of a device's tracking window at an epoch.
func AvailableAt(e nyx.Epoch) Availability { return Availability{At: e} }

// ScheduleKind distinguishes a device that tracks continuously (subject
// only to visibility/sampling) from one with an intermittent on/off duty
// cycle.
type ScheduleKind uint8

const (
	Continuous ScheduleKind = iota
	Intermittent
)

// Schedule is a device's duty cycle: Continuous devices pass every
// sampling-rate tick through to a visibility check; Intermittent devices
// additionally enforce an On-duration/Off-duration cycle.
type Schedule struct {
	Kind    ScheduleKind
	On, Off nyx.Duration
}

// TrkConfig is one device's tracking configuration, the Go equivalent of
// the original's TrkConfig (spec §6's tracking-config YAML schema).
type TrkConfig struct {
	Start, End Availability
	Schedule   Schedule
	Sampling   nyx.Duration
}
