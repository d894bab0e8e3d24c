// Package ioconfig loads the engine's YAML configuration files — the
// ground-station catalog and the per-device tracking configuration — into
// validated, typed structs (spec §6's two YAML schemas). Loading goes
// through viper the way the teacher's config.go (smdConfig) does, one
// viper.New() instance per file, with the config type pinned to YAML
// instead of the teacher's TOML.
package ioconfig

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/arcsim"
	"github.com/hartmut/nyx/nyxerr"
	"github.com/hartmut/nyx/station"
)

// GroundStationConfig is one entry of the ground-station YAML catalog.
type GroundStationConfig struct {
	Name             string   `mapstructure:"name" yaml:"name"`
	LatitudeDeg      float64  `mapstructure:"latitude_deg" yaml:"latitude_deg"`
	LongitudeDeg     float64  `mapstructure:"longitude_deg" yaml:"longitude_deg"`
	HeightKM         float64  `mapstructure:"height_km" yaml:"height_km"`
	ElevationMaskDeg float64  `mapstructure:"elevation_mask_deg" yaml:"elevation_mask_deg"`
	Frame            string   `mapstructure:"frame" yaml:"frame"`
	MeasurementTypes []string `mapstructure:"measurement_types" yaml:"measurement_types"`
	RangeNoiseKM     float64  `mapstructure:"range_noise_km" yaml:"range_noise_km"`
	DopplerNoiseKMS  float64  `mapstructure:"doppler_noise_km_s" yaml:"doppler_noise_km_s"`
	IntegrationTimeS float64  `mapstructure:"integration_time_s" yaml:"integration_time_s,omitempty"`
}

var knownMeasurementTypes = map[string]bool{
	"Range": true, "Doppler": true, "Azimuth": true, "Elevation": true,
}

func (c GroundStationConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("ground station with empty name")
	}
	if c.LatitudeDeg < -90 || c.LatitudeDeg > 90 {
		return fmt.Errorf("station %s: latitude %f out of [-90, 90]", c.Name, c.LatitudeDeg)
	}
	if c.LongitudeDeg < -360 || c.LongitudeDeg > 360 {
		return fmt.Errorf("station %s: longitude %f out of [-360, 360]", c.Name, c.LongitudeDeg)
	}
	for _, mt := range c.MeasurementTypes {
		if !knownMeasurementTypes[mt] {
			return fmt.Errorf("station %s: unknown measurement type %q", c.Name, mt)
		}
	}
	if c.RangeNoiseKM < 0 || c.DopplerNoiseKMS < 0 {
		return fmt.Errorf("station %s: negative noise sigma", c.Name)
	}
	return nil
}

// Station builds the station.Station this catalog entry describes. The
// noise model is white with the configured sigmas; callers wanting a
// seeded, reproducible noise stream pass their own *rand.Rand via
// station.NewWhiteNoise and overwrite Noise on the result.
func (c GroundStationConfig) Station() station.Station {
	noise := station.NewWhiteNoise(c.RangeNoiseKM*c.RangeNoiseKM, c.DopplerNoiseKMS*c.DopplerNoiseKMS, nil)
	st := station.NewStation(c.Name, c.HeightKM, c.ElevationMaskDeg, c.LatitudeDeg, c.LongitudeDeg, noise)
	st.IntegrationTimeS = c.IntegrationTimeS
	return st
}

// LoadGroundStations reads the ground-station catalog at path. Both schema
// layouts of spec §6 are accepted: a top-level `stations:` array, or a map
// keyed by station name (in which case the key overrides an absent `name`
// field).
func LoadGroundStations(path string) ([]GroundStationConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, nyxerr.Config("load_ground_stations", err)
	}
	var out []GroundStationConfig
	if v.IsSet("stations") {
		if err := v.UnmarshalKey("stations", &out); err != nil {
			return nil, nyxerr.Config("load_ground_stations", err)
		}
	} else {
		// Map keyed by name.
		for _, key := range v.AllKeys() {
			name := strings.Split(key, ".")[0]
			var cfg GroundStationConfig
			if err := v.UnmarshalKey(name, &cfg); err != nil {
				return nil, nyxerr.Config("load_ground_stations", err).WithDevice(name)
			}
			if cfg.Name == "" {
				cfg.Name = name
			}
			found := false
			for _, existing := range out {
				if existing.Name == cfg.Name {
					found = true
					break
				}
			}
			if !found {
				out = append(out, cfg)
			}
		}
	}
	if len(out) == 0 {
		return nil, nyxerr.Config("load_ground_stations", fmt.Errorf("no stations in %s", path))
	}
	for _, cfg := range out {
		if err := cfg.validate(); err != nil {
			return nil, nyxerr.Config("load_ground_stations", err).WithDevice(cfg.Name)
		}
	}
	return out, nil
}

// TrkConfigEntry is one device's entry in the tracking-config YAML map.
type TrkConfigEntry struct {
	Sampling string           `mapstructure:"sampling" yaml:"sampling"`
	Start    string           `mapstructure:"start" yaml:"start"`
	End      string           `mapstructure:"end" yaml:"end"`
	Schedule TrkScheduleEntry `mapstructure:"schedule" yaml:"schedule"`
}

// TrkScheduleEntry is the schedule sub-document: either `continuous: true`
// or an `intermittent: {on, off}` pair.
type TrkScheduleEntry struct {
	Continuous   bool                  `mapstructure:"continuous" yaml:"continuous,omitempty"`
	Intermittent *TrkIntermittentEntry `mapstructure:"intermittent" yaml:"intermittent,omitempty"`
}

type TrkIntermittentEntry struct {
	On  string `mapstructure:"on" yaml:"on"`
	Off string `mapstructure:"off" yaml:"off"`
}

// epochFormats are the timestamp layouts accepted anywhere an Epoch-string
// is allowed, in the order they are attempted.
var epochFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseEpoch(s string) (nyx.Epoch, error) {
	for _, layout := range epochFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return nyx.FromUTC(t), nil
		}
	}
	return nyx.Epoch{}, fmt.Errorf("unparseable epoch %q", s)
}

func parseAvailability(s string) (arcsim.Availability, error) {
	if s == "" || strings.EqualFold(s, "visible") {
		return arcsim.AlwaysAvailable(), nil
	}
	e, err := parseEpoch(s)
	if err != nil {
		return arcsim.Availability{}, err
	}
	return arcsim.AvailableAt(e), nil
}

// parseDuration accepts Go duration strings ("60s", "1m30s") plus the
// spaced forms the original's config files use ("1 min", "60 s").
func parseDuration(s string) (nyx.Duration, error) {
	compact := strings.ReplaceAll(s, " ", "")
	compact = strings.Replace(compact, "min", "m", 1)
	d, err := time.ParseDuration(compact)
	if err != nil {
		return nyx.Duration{}, fmt.Errorf("unparseable duration %q: %w", s, err)
	}
	if d <= 0 {
		return nyx.Duration{}, fmt.Errorf("non-positive duration %q", s)
	}
	return nyx.FromTimeDuration(d), nil
}

// TrkConfig converts this YAML entry into the arcsim package's runtime
// TrkConfig, validating as it goes (a zero `on` duration on an
// intermittent schedule is the contradictory-config case spec §7 calls
// out).
func (e TrkConfigEntry) TrkConfig() (arcsim.TrkConfig, error) {
	var out arcsim.TrkConfig
	sampling, err := parseDuration(e.Sampling)
	if err != nil {
		return out, err
	}
	out.Sampling = sampling
	if out.Start, err = parseAvailability(e.Start); err != nil {
		return out, err
	}
	if out.End, err = parseAvailability(e.End); err != nil {
		return out, err
	}
	switch {
	case e.Schedule.Intermittent != nil:
		on, err := parseDuration(e.Schedule.Intermittent.On)
		if err != nil {
			return out, fmt.Errorf("intermittent on: %w", err)
		}
		off, err := parseDuration(e.Schedule.Intermittent.Off)
		if err != nil {
			return out, fmt.Errorf("intermittent off: %w", err)
		}
		out.Schedule = arcsim.Schedule{Kind: arcsim.Intermittent, On: on, Off: off}
	default:
		out.Schedule = arcsim.Schedule{Kind: arcsim.Continuous}
	}
	return out, nil
}

// LoadTrkConfigs reads the tracking-config YAML map at path, returning the
// runtime configs keyed by device name.
func LoadTrkConfigs(path string) (map[string]arcsim.TrkConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, nyxerr.Config("load_trk_configs", err)
	}
	raw := map[string]TrkConfigEntry{}
	// Unquoted Epoch-strings are resolved to time.Time by the YAML parser;
	// fold them back to strings so a single parse path handles both.
	timeHook := viper.DecodeHook(mapstructure.DecodeHookFuncType(
		func(from, to reflect.Type, data interface{}) (interface{}, error) {
			if from == reflect.TypeOf(time.Time{}) && to.Kind() == reflect.String {
				return data.(time.Time).UTC().Format(time.RFC3339Nano), nil
			}
			return data, nil
		}))
	if err := v.Unmarshal(&raw, timeHook); err != nil {
		return nil, nyxerr.Config("load_trk_configs", err)
	}
	if len(raw) == 0 {
		return nil, nyxerr.Config("load_trk_configs", fmt.Errorf("no tracking configs in %s", path))
	}
	out := make(map[string]arcsim.TrkConfig, len(raw))
	for name, entry := range raw {
		cfg, err := entry.TrkConfig()
		if err != nil {
			return nil, nyxerr.Config("load_trk_configs", err).WithDevice(name)
		}
		out[name] = cfg
	}
	return out, nil
}

// MarshalStationSnapshot serializes the contributing stations' configs to
// YAML, the snapshot a TrackingArc carries so an arc file is
// self-describing about the devices that produced it (ported from the
// original's serde_yaml device_cfg snapshot).
func MarshalStationSnapshot(cfgs []GroundStationConfig) (string, error) {
	b, err := yaml.Marshal(cfgs)
	if err != nil {
		return "", nyxerr.Config("marshal_station_snapshot", err)
	}
	return string(b), nil
}

// UnmarshalStationSnapshot inverts MarshalStationSnapshot.
func UnmarshalStationSnapshot(s string) ([]GroundStationConfig, error) {
	var out []GroundStationConfig
	if err := yaml.Unmarshal([]byte(s), &out); err != nil {
		return nil, nyxerr.Config("unmarshal_station_snapshot", err)
	}
	return out, nil
}
