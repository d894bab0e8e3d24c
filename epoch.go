package nyx

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// j2000JD is the Julian Date of the J2000.0 epoch (2000-01-01T12:00:00 TT),
// matching the constant meeus' julian package is built around.
const j2000JD = 2451545.0

// taiUtcLeapSeconds is the (start-of-validity, offset) table of TAI-UTC leap
// seconds. The engine is not a source of ephemeris truth; this table is
// frozen at the set of leap seconds known at the time this module was
// written and is sufficient for the tolerances in the testable properties.
var taiUtcLeapSeconds = []struct {
	start  time.Time
	offset float64
}{
	{time.Date(1972, 1, 1, 0, 0, 0, 0, time.UTC), 10},
	{time.Date(1972, 7, 1, 0, 0, 0, 0, time.UTC), 11},
	{time.Date(1973, 1, 1, 0, 0, 0, 0, time.UTC), 12},
	{time.Date(1974, 1, 1, 0, 0, 0, 0, time.UTC), 13},
	{time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC), 14},
	{time.Date(1976, 1, 1, 0, 0, 0, 0, time.UTC), 15},
	{time.Date(1977, 1, 1, 0, 0, 0, 0, time.UTC), 16},
	{time.Date(1978, 1, 1, 0, 0, 0, 0, time.UTC), 17},
	{time.Date(1979, 1, 1, 0, 0, 0, 0, time.UTC), 18},
	{time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), 19},
	{time.Date(1981, 7, 1, 0, 0, 0, 0, time.UTC), 20},
	{time.Date(1982, 7, 1, 0, 0, 0, 0, time.UTC), 21},
	{time.Date(1983, 7, 1, 0, 0, 0, 0, time.UTC), 22},
	{time.Date(1985, 7, 1, 0, 0, 0, 0, time.UTC), 23},
	{time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC), 24},
	{time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), 25},
	{time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC), 26},
	{time.Date(1992, 7, 1, 0, 0, 0, 0, time.UTC), 27},
	{time.Date(1993, 7, 1, 0, 0, 0, 0, time.UTC), 28},
	{time.Date(1994, 7, 1, 0, 0, 0, 0, time.UTC), 29},
	{time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC), 30},
	{time.Date(1997, 7, 1, 0, 0, 0, 0, time.UTC), 31},
	{time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), 32},
	{time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC), 33},
	{time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC), 34},
	{time.Date(2012, 7, 1, 0, 0, 0, 0, time.UTC), 35},
	{time.Date(2015, 7, 1, 0, 0, 0, 0, time.UTC), 36},
	{time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), 37},
}

func leapSecondsAt(utc time.Time) float64 {
	offset := 0.0
	for _, ls := range taiUtcLeapSeconds {
		if utc.Before(ls.start) {
			break
		}
		offset = ls.offset
	}
	return offset
}

// Epoch is a time instant carried at picosecond resolution. Internally it is
// TAI seconds since J2000.0 (2000-01-01T12:00:00 TAI), split into an integer
// second count and a Duration-valued fractional remainder so that repeated
// Duration arithmetic (accumulating integrator steps) never loses precision.
type Epoch struct {
	taiSec  int64
	taiFrac Duration // always in [0, 1) seconds
}

// J2000TAI is the J2000.0 epoch expressed in TAI.
var J2000TAI = Epoch{}

// FromUTC builds an Epoch from a UTC time.Time, applying the TAI-UTC leap
// second offset in effect at that instant.
func FromUTC(t time.Time) Epoch {
	jd := julian.TimeToJD(t.UTC())
	taiSeconds := (jd - j2000JD) * 86400.0
	taiSeconds += leapSecondsAt(t.UTC())
	return fromTAISeconds(taiSeconds)
}

// fromTAISeconds builds an Epoch directly from TAI seconds past J2000.
func fromTAISeconds(s float64) Epoch {
	whole := math.Floor(s)
	return Epoch{taiSec: int64(whole), taiFrac: Seconds(s - whole)}
}

// FromTAISecondsSinceJ2000 is the exported constructor mirroring fromTAISeconds,
// used by tests and by components that already carry a TAI offset (e.g. a
// propagator's elapsed-time accumulator).
func FromTAISecondsSinceJ2000(s float64) Epoch { return fromTAISeconds(s) }

// UTC returns the UTC time.Time equivalent, to within the leap-second table's
// resolution.
func (e Epoch) UTC() time.Time {
	taiSeconds := float64(e.taiSec) + e.taiFrac.Seconds()
	jd := j2000JD + taiSeconds/86400.0
	approxUTC := julian.JDToTime(jd)
	offset := leapSecondsAt(approxUTC)
	return julian.JDToTime(jd - offset/86400.0).UTC()
}

// TAISeconds returns the number of TAI seconds elapsed since J2000.0.
func (e Epoch) TAISeconds() float64 {
	return float64(e.taiSec) + e.taiFrac.Seconds()
}

// JulianDate returns the TT-scale Julian Date, i.e. the value meeus and
// other VSOP87-consuming libraries expect.
func (e Epoch) JulianDate() float64 {
	return j2000JD + (e.TAISeconds()+32.184)/86400.0
}

// TDBSeconds returns the epoch in Barycentric Dynamical Time seconds past J2000,
// applying the standard periodic TDB-TT correction (Vallado eq. 3-49); the
// TAI-TT offset is the fixed 32.184 s.
func (e Epoch) TDBSeconds() float64 {
	ttSec := e.TAISeconds() + 32.184
	jdTT := j2000JD + ttSec/86400.0
	g := Deg2rad(357.53 + 0.9856003*(jdTT-j2000JD))
	correction := 0.001658*math.Sin(g) + 0.000014*math.Sin(2*g)
	return ttSec + correction
}

// Add returns e shifted by the given Duration.
func (e Epoch) Add(d Duration) Epoch {
	frac := e.taiFrac.Add(d)
	sec := e.taiSec
	for frac.Cmp(Seconds(1)) >= 0 {
		frac = frac.Sub(Seconds(1))
		sec++
	}
	for frac.IsNegative() {
		frac = frac.Add(Seconds(1))
		sec--
	}
	return Epoch{taiSec: sec, taiFrac: frac}
}

// Sub returns the Duration e - o.
func (e Epoch) Sub(o Epoch) Duration {
	dSec := e.taiSec - o.taiSec
	return Seconds(float64(dSec)).Add(e.taiFrac).Sub(o.taiFrac)
}

// Before reports whether e is strictly earlier than o.
func (e Epoch) Before(o Epoch) bool { return e.Sub(o).IsNegative() }

// After reports whether e is strictly later than o.
func (e Epoch) After(o Epoch) bool { return o.Before(e) }

// Equal reports whether e and o denote the same instant.
func (e Epoch) Equal(o Epoch) bool { return e.Sub(o).IsZero() }

// String renders the epoch as an RFC3339-ish UTC timestamp, matching the
// teacher's habit of formatting epochs for log lines.
func (e Epoch) String() string {
	return e.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
