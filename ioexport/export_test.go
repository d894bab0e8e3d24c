package ioexport

import (
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/arcsim"
	"github.com/hartmut/nyx/frame"
	"github.com/hartmut/nyx/od"
	"github.com/hartmut/nyx/station"
	"github.com/hartmut/nyx/trajectory"
)

func demoTrajectory() *trajectory.Trajectory {
	traj := trajectory.New(frame.Earth)
	for i := 0; i < 20; i++ {
		ti := float64(i) * 10
		traj.Add(trajectory.Sample{
			Epoch:    nyx.J2000TAI.Add(nyx.Seconds(ti)),
			R:        [3]float64{7000 + ti, ti, -ti},
			V:        [3]float64{1, 0.5, -0.5},
			FuelMass: 100 - ti*0.1,
		})
	}
	return traj
}

func demoArc() *arcsim.TrackingArc {
	arc := &arcsim.TrackingArc{
		DeviceNames:  []string{"DSS-13", "DSS-34"},
		DeviceConfig: "- name: DSS-13\n- name: DSS-34\n",
	}
	for i := 0; i < 25; i++ {
		dev := "DSS-13"
		if i%2 == 1 {
			dev = "DSS-34"
		}
		arc.Measurements = append(arc.Measurements, arcsim.DeviceMeasurement{
			Device: dev,
			Msr: station.Measurement{
				Visible:   true,
				Range:     100000 + float64(i)*1.25,
				RangeRate: -0.5 + float64(i)*0.001,
				Epoch:     nyx.J2000TAI.Add(nyx.Seconds(float64(i) * 60)),
			},
		})
	}
	return arc
}

func TestTrajectoryExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traj.parquet")
	if err := WriteTrajectory(demoTrajectory(), path); err != nil {
		t.Fatal(err)
	}
}

func TestTrajectoryExportEmptyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	if err := WriteTrajectory(trajectory.New(frame.Earth), path); err == nil {
		t.Fatal("empty trajectory exported")
	}
}

func TestArcRoundTrip(t *testing.T) {
	arc := demoArc()
	path := filepath.Join(t.TempDir(), "arc.parquet")
	if err := WriteArc(arc, 0.001, 1e-6, path); err != nil {
		t.Fatal(err)
	}
	rows, deviceCfg, err := ReadArc(path)
	if err != nil {
		t.Fatal(err)
	}
	// Two components per measurement, order preserved.
	if len(rows) != 2*len(arc.Measurements) {
		t.Fatalf("row count %d, want %d", len(rows), 2*len(arc.Measurements))
	}
	if deviceCfg != arc.DeviceConfig {
		t.Fatalf("device config snapshot lost: %q", deviceCfg)
	}
	for i, dm := range arc.Measurements {
		rng, dop := rows[2*i], rows[2*i+1]
		if rng.MeasurementType != "Range" || dop.MeasurementType != "Doppler" {
			t.Fatalf("component order broken at %d", i)
		}
		if rng.Device != dm.Device || dop.Device != dm.Device {
			t.Fatalf("device mismatch at %d", i)
		}
		if rng.Value != dm.Msr.Range || dop.Value != dm.Msr.RangeRate {
			t.Fatalf("values mismatch at %d", i)
		}
		if rng.Sigma != 0.001 || dop.Sigma != 1e-6 {
			t.Fatalf("sigmas mismatch at %d", i)
		}
		if rng.EpochTAINs != dop.EpochTAINs {
			t.Fatalf("component epochs diverged at %d", i)
		}
	}
	// Per-device epochs never decrease (a measurement's component rows
	// share one epoch).
	last := map[string]int64{}
	for _, row := range rows {
		if prev, ok := last[row.Device]; ok && row.EpochTAINs < prev {
			t.Fatalf("device %s epochs not monotone", row.Device)
		}
		last[row.Device] = row.EpochTAINs
	}
}

func TestArcAzElRows(t *testing.T) {
	arc := &arcsim.TrackingArc{DeviceNames: []string{"DSS-13"}}
	arc.Measurements = append(arc.Measurements, arcsim.DeviceMeasurement{
		Device: "DSS-13",
		Msr: station.Measurement{
			Visible: true, Range: 99000, RangeRate: 0.4,
			Azimuth: 135.5, Elevation: 42.1, HasAzEl: true,
			Epoch: nyx.J2000TAI,
		},
	})
	path := filepath.Join(t.TempDir(), "azel.parquet")
	if err := WriteArc(arc, 0.001, 1e-6, path); err != nil {
		t.Fatal(err)
	}
	rows, _, err := ReadArc(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("row count %d, want 4 (range, doppler, az, el)", len(rows))
	}
	if rows[2].MeasurementType != "Azimuth" || rows[2].Value != 135.5 {
		t.Fatalf("azimuth row %+v", rows[2])
	}
	if rows[3].MeasurementType != "Elevation" || rows[3].Value != 42.1 {
		t.Fatalf("elevation row %+v", rows[3])
	}
}

func TestResultsRoundTrip(t *testing.T) {
	history := []*od.Estimate{
		{
			XFilt: mat.NewVecDense(6, nil), PFilt: mat.NewDense(6, 6, nil),
			HasMeasurement: true,
			Prefit:         mat.NewVecDense(2, []float64{0.01, -1e-6}),
			Postfit:        mat.NewVecDense(2, []float64{0.002, -2e-7}),
		},
		{
			XFilt: mat.NewVecDense(6, nil), PFilt: mat.NewDense(6, 6, nil),
			HasMeasurement: true,
			Prefit:         mat.NewVecDense(2, []float64{10, 1}),
			Rejected:       true,
		},
	}
	history[0].PFilt.Set(0, 0, 4)
	history[0].PFilt.Set(0, 5, -2)
	epochs := []nyx.Epoch{nyx.J2000TAI, nyx.J2000TAI.Add(nyx.Seconds(60))}
	nominal := [][]float64{
		{7000, 0, 0, 0, 7.5, 0},
		{6999, 90, 3, -0.1, 7.49, 0.05},
	}
	path := filepath.Join(t.TempDir(), "results.parquet")
	if err := WriteResults(history, epochs, nominal, path); err != nil {
		t.Fatal(err)
	}
	rows, err := ReadResults(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count %d", len(rows))
	}
	if rows[0].Rejected || !rows[1].Rejected {
		t.Fatal("rejected flags lost")
	}
	if rows[0].PrefitRange != 0.01 || rows[0].PostfitDoppler != -2e-7 {
		t.Fatalf("residuals lost: %+v", rows[0])
	}
	if rows[1].XKM != 6999 {
		t.Fatalf("nominal state lost: %f", rows[1].XKM)
	}
	if rows[0].CovUpper == "" {
		t.Fatal("covariance column empty")
	}
	if rows[1].EpochTAINs <= rows[0].EpochTAINs {
		t.Fatal("epoch ordering lost")
	}
}

func TestWriteResultsLengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.parquet")
	err := WriteResults([]*od.Estimate{{}}, nil, nil, path)
	if err == nil {
		t.Fatal("length mismatch accepted")
	}
}
