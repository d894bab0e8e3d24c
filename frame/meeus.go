package frame

import (
	"fmt"
	"math"
	"sync"

	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/planetposition"
	"github.com/soniakeys/meeus/v3/pluto"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
)

// au is one astronomical unit in kilometers, as defined by celestial.go.
const au = 1.49597870700e8

// vsop87Index maps a planet name to its VSOP87 file index (Mercury=0).
var vsop87Index = map[string]int{
	"Mercury": 0, "Venus": 1, "Earth": 2, "Mars": 3,
	"Jupiter": 4, "Saturn": 5, "Uranus": 6, "Neptune": 7,
}

// MeeusService is a Service backed by soniakeys/meeus's VSOP87 planetary
// theory, ported from the teacher's celestial.go HelioOrbit method: planets
// are loaded lazily and cached, Pluto uses meeus' dedicated series, and the
// Sun is the fixed origin of the heliocentric frame.
type MeeusService struct {
	dir string // VSOP87 data directory, as smdConfig().VSOP87Dir was

	mu      sync.Mutex
	planets map[string]*planetposition.V87Planet
}

// NewMeeusService constructs a Service that loads VSOP87 series from dir on
// demand.
func NewMeeusService(dir string) *MeeusService {
	return &MeeusService{dir: dir, planets: make(map[string]*planetposition.V87Planet)}
}

func (m *MeeusService) planet(name string) (*planetposition.V87Planet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.planets[name]; ok {
		return p, nil
	}
	idx, ok := vsop87Index[name]
	if !ok {
		return nil, fmt.Errorf("no VSOP87 series for %q", name)
	}
	p, err := planetposition.LoadPlanetPath(idx, m.dir)
	if err != nil {
		return nil, fmt.Errorf("loading VSOP87 series for %s: %w", name, err)
	}
	m.planets[name] = p
	return p, nil
}

// helioState returns the heliocentric (r, v) of the named body's origin at
// the given epoch, the same construction as celestial.go's HelioOrbit: L, B,
// R from VSOP87 (or meeus' dedicated Pluto series), converted to J2000
// ecliptic Cartesian (no rotation into the equatorial frame is applied),
// with a vis-viva speed directed along R x (-ẑ).
func (m *MeeusService) helioState(body string, gm, a float64, jd float64) (r, v []float64, err error) {
	if body == "Sun" {
		return []float64{0, 0, 0}, []float64{0, 0, 0}, nil
	}
	var l, b, rad float64
	if body == "Pluto" {
		lAngle, bAngle, rAU := pluto.Heliocentric(jd)
		l, b, rad = lAngle.Rad(), bAngle.Rad(), rAU*au
	} else {
		p, perr := m.planet(body)
		if perr != nil {
			return nil, nil, perr
		}
		lAngle, bAngle, rAU := p.Position2000(jd)
		l, b, rad = lAngle.Rad(), bAngle.Rad(), rAU*au
	}
	speed := math.Sqrt(2*Sun.GM/rad - Sun.GM/a)
	sB, cB := math.Sincos(b)
	sL, cL := math.Sincos(l)
	r = []float64{rad * cB * cL, rad * cB * sL, rad * sB}
	// Direction of travel: roughly perpendicular to R in the ecliptic plane.
	vDir := cross(r, []float64{0, 0, -1})
	n := norm(vDir)
	if n == 0 {
		n = 1
	}
	v = make([]float64, 3)
	for i := range v {
		v[i] = speed * vDir[i] / n
	}
	return r, v, nil
}

// semiMajorAxisKM carries the mean semi-major axis used only to derive
// heliocentric speed via vis-viva, matching the teacher's CelestialObject.a
// field (not a precise osculating element, adequate for third-body forces).
var semiMajorAxisKM = map[string]float64{
	"Venus": 108208601, "Earth": 149598023, "Mars": 227939282.5616,
	"Jupiter": 778298361, "Saturn": 1429394133, "Uranus": 2875038615,
	"Pluto": 5915799000,
}

func (m *MeeusService) Translate(from, to Frame, epoch EpochLike) ([]float64, []float64, error) {
	if from.Equals(to) {
		return []float64{0, 0, 0}, []float64{0, 0, 0}, nil
	}
	jd := 2451545.0 + epoch.TAISeconds()/86400.0
	fromR, fromV, err := m.heliocentricOrigin(from, jd)
	if err != nil {
		return nil, nil, err
	}
	toR, toV, err := m.heliocentricOrigin(to, jd)
	if err != nil {
		return nil, nil, err
	}
	r := make([]float64, 3)
	v := make([]float64, 3)
	for i := 0; i < 3; i++ {
		r[i] = toR[i] - fromR[i]
		v[i] = toV[i] - fromV[i]
	}
	return r, v, nil
}

func (m *MeeusService) heliocentricOrigin(f Frame, jd float64) ([]float64, []float64, error) {
	if f.Body == "" || f.Body == "Sun" {
		return []float64{0, 0, 0}, []float64{0, 0, 0}, nil
	}
	if f.Body == "Moon" {
		return m.moonHelioState(jd)
	}
	a, ok := semiMajorAxisKM[f.Body]
	if !ok {
		return nil, nil, fmt.Errorf("no mean semi-major axis known for %q", f.Body)
	}
	return m.helioState(f.Body, f.GM, a, jd)
}

// moonHelioState composes meeus' geocentric lunar theory with Earth's
// heliocentric position. The Moon's velocity uses its mean orbital speed
// along the instantaneous direction of travel, the same approximation
// helioState applies to the planets.
func (m *MeeusService) moonHelioState(jd float64) ([]float64, []float64, error) {
	earthR, earthV, err := m.helioState("Earth", Earth.GM, semiMajorAxisKM["Earth"], jd)
	if err != nil {
		return nil, nil, err
	}
	var lon, lat unit.Angle
	var distKM float64
	lon, lat, distKM = moonposition.Position(jd)
	sB, cB := math.Sincos(lat.Rad())
	sL, cL := math.Sincos(lon.Rad())
	geo := []float64{distKM * cB * cL, distKM * cB * sL, distKM * sB}
	const moonMeanAKM = 384400.0
	speed := math.Sqrt(Earth.GM / moonMeanAKM)
	vDir := cross(geo, []float64{0, 0, -1})
	n := norm(vDir)
	if n == 0 {
		n = 1
	}
	r := make([]float64, 3)
	v := make([]float64, 3)
	for i := 0; i < 3; i++ {
		r[i] = earthR[i] + geo[i]
		v[i] = earthV[i] + speed*vDir[i]/n
	}
	return r, v, nil
}

// Rotation returns identity for all currently registered frames: every
// frame this service resolves is a non-rotating (inertial) frame centered
// on a different body, so Translate alone handles the transform and no
// orientation change is modelled. A body-fixed rotating frame service
// (needed by station-fixed geometry) is layered on top in the station
// package via Earth's sidereal rotation, not here.
func (m *MeeusService) Rotation(from, to Frame, epoch EpochLike) (*mat.Dense, error) {
	id := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		id.Set(i, i, 1)
	}
	return id, nil
}

func (m *MeeusService) BodyGM(f Frame) (float64, error) {
	if f.GM == 0 {
		return 0, fmt.Errorf("frame %q has no gravitational parameter", f.Name)
	}
	return f.GM, nil
}

func (m *MeeusService) BodyPosition(body string, at Frame, epoch EpochLike) ([]float64, error) {
	bf, err := ByName(bodyFrameName(body))
	if err != nil {
		return nil, err
	}
	r, _, err := m.Translate(at, bf, epoch)
	return r, err
}

func bodyFrameName(body string) string {
	if body == "Jupiter" {
		return "Jupiter-barycenter"
	}
	return body
}

func norm(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func cross(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
