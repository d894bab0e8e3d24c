package nyx

import (
	"fmt"
	"time"
)

// Duration represents an exact span of time at picosecond resolution,
// stored as whole nanoseconds plus a picosecond remainder so that
// accumulating many small integration steps does not lose precision the
// way repeated float64 seconds addition would.
type Duration struct {
	nanos int64
	picos int32 // always in [0, 1000), sign carried by nanos when picos == 0
}

const picosPerNano = 1000

// Seconds builds a Duration from a (possibly fractional) number of seconds.
func Seconds(s float64) Duration {
	totalPicos := s * 1e12
	nanos := int64(totalPicos / picosPerNano)
	picos := int32(totalPicos - float64(nanos)*picosPerNano)
	if picos < 0 {
		picos += picosPerNano
		nanos--
	}
	return Duration{nanos: nanos, picos: picos}
}

// FromTimeDuration converts a stdlib time.Duration (nanosecond resolution).
func FromTimeDuration(d time.Duration) Duration {
	return Duration{nanos: int64(d)}
}

// Zero is the zero-length duration.
var Zero = Duration{}

// Seconds returns the duration as a float64 number of seconds. This loses
// picosecond precision for very large durations, by design: it is meant for
// feeding the integrator and dynamics model, which operate in float64.
func (d Duration) Seconds() float64 {
	return float64(d.nanos)/1e9 + float64(d.picos)/1e12
}

// TimeDuration returns the nearest stdlib time.Duration, truncating
// picoseconds.
func (d Duration) TimeDuration() time.Duration {
	return time.Duration(d.nanos)
}

// Add returns d + o, exact to the picosecond.
func (d Duration) Add(o Duration) Duration {
	picos := d.picos + o.picos
	nanos := d.nanos + o.nanos
	if picos >= picosPerNano {
		picos -= picosPerNano
		nanos++
	}
	return Duration{nanos: nanos, picos: picos}
}

// Neg returns -d.
func (d Duration) Neg() Duration {
	if d.picos == 0 {
		return Duration{nanos: -d.nanos}
	}
	return Duration{nanos: -d.nanos - 1, picos: picosPerNano - d.picos}
}

// Sub returns d - o.
func (d Duration) Sub(o Duration) Duration {
	return d.Add(o.Neg())
}

// Scale multiplies a duration by a scalar. Used by the integrator's
// step-size controller.
func (d Duration) Scale(f float64) Duration {
	return Seconds(d.Seconds() * f)
}

// Cmp compares two durations: -1, 0, 1.
func (d Duration) Cmp(o Duration) int {
	diff := d.Sub(o)
	switch {
	case diff.nanos < 0 || (diff.nanos == 0 && diff.picos < 0):
		return -1
	case diff.nanos == 0 && diff.picos == 0:
		return 0
	default:
		return 1
	}
}

// IsZero reports whether the duration is exactly zero.
func (d Duration) IsZero() bool { return d.nanos == 0 && d.picos == 0 }

// IsNegative reports whether the duration is strictly negative.
func (d Duration) IsNegative() bool { return d.nanos < 0 }

// String implements fmt.Stringer.
func (d Duration) String() string {
	return fmt.Sprintf("%.9fs", d.Seconds())
}
