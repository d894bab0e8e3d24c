// Package ioexport writes the engine's three columnar outputs — reference
// trajectories, tracking arcs, and OD results — as Parquet files, and reads
// tracking arcs back (spec §6's Parquet schemas). The streaming
// write-rows-as-they-come structure is adapted from the teacher's
// export.go (StreamStates and its channel-driven CSV/JSON writers), with
// the hand-rolled CSV plumbing replaced by xitongsys/parquet-go.
package ioexport

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/arcsim"
	"github.com/hartmut/nyx/nyxerr"
	"github.com/hartmut/nyx/od"
	"github.com/hartmut/nyx/trajectory"
)

// parallelism is the parquet writer/reader goroutine count. Export files
// are small (thousands of rows); one marshalling goroutine is plenty.
const parallelism = 1

// TrajectoryRow is one sample of the trajectory schema.
type TrajectoryRow struct {
	EpochTAINs int64   `parquet:"name=epoch_tai_ns, type=INT64"`
	XKM        float64 `parquet:"name=x_km, type=DOUBLE"`
	YKM        float64 `parquet:"name=y_km, type=DOUBLE"`
	ZKM        float64 `parquet:"name=z_km, type=DOUBLE"`
	VxKMS      float64 `parquet:"name=vx_km_s, type=DOUBLE"`
	VyKMS      float64 `parquet:"name=vy_km_s, type=DOUBLE"`
	VzKMS      float64 `parquet:"name=vz_km_s, type=DOUBLE"`
	FuelMassKG float64 `parquet:"name=fuel_mass_kg, type=DOUBLE"`
	Frame      string  `parquet:"name=frame, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func epochToTAINs(e nyx.Epoch) int64 {
	return int64(e.TAISeconds() * 1e9)
}

func epochFromTAINs(ns int64) nyx.Epoch {
	return nyx.FromTAISecondsSinceJ2000(float64(ns) / 1e9)
}

// WriteTrajectory samples the trajectory at every stored sample epoch and
// writes the trajectory Parquet schema to path.
func WriteTrajectory(traj *trajectory.Trajectory, path string) error {
	epochs := traj.SampleEpochs()
	if len(epochs) == 0 {
		return nyxerr.Trajectory("write_trajectory", fmt.Errorf("trajectory has no samples"))
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nyxerr.Config("write_trajectory", err)
	}
	defer fw.Close()
	pw, err := writer.NewParquetWriter(fw, new(TrajectoryRow), parallelism)
	if err != nil {
		return nyxerr.Config("write_trajectory", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, e := range epochs {
		s, err := traj.At(e)
		if err != nil {
			return nyxerr.Trajectory("write_trajectory", err).WithEpoch(e.UTC())
		}
		row := TrajectoryRow{
			EpochTAINs: epochToTAINs(s.Epoch),
			XKM:        s.R[0], YKM: s.R[1], ZKM: s.R[2],
			VxKMS: s.V[0], VyKMS: s.V[1], VzKMS: s.V[2],
			FuelMassKG: s.FuelMass,
			Frame:      traj.Frame.Name,
		}
		if err := pw.Write(row); err != nil {
			return nyxerr.Config("write_trajectory", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nyxerr.Config("write_trajectory", err)
	}
	return nil
}

// ArcRow is one measurement component of the tracking-arc schema; a
// range+Doppler measurement produces two rows sharing an epoch and device.
type ArcRow struct {
	EpochTAINs      int64   `parquet:"name=epoch_tai_ns, type=INT64"`
	Device          string  `parquet:"name=device, type=BYTE_ARRAY, convertedtype=UTF8"`
	MeasurementType string  `parquet:"name=measurement_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value           float64 `parquet:"name=value, type=DOUBLE"`
	Sigma           float64 `parquet:"name=sigma, type=DOUBLE"`
}

// WriteArc writes the tracking-arc Parquet schema: one row per measurement
// component, in emission order, plus the device-config snapshot in the
// file's key/value metadata so the arc is self-describing.
func WriteArc(arc *arcsim.TrackingArc, rangeSigmaKM, dopplerSigmaKMS float64, path string) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nyxerr.Config("write_arc", err)
	}
	defer fw.Close()
	pw, err := writer.NewParquetWriter(fw, new(ArcRow), parallelism)
	if err != nil {
		return nyxerr.Config("write_arc", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	if arc.DeviceConfig != "" {
		kv := parquet.NewKeyValue()
		kv.Key = "device_cfg"
		cfg := arc.DeviceConfig
		kv.Value = &cfg
		pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, kv)
	}
	for _, dm := range arc.Measurements {
		ns := epochToTAINs(dm.Msr.Epoch)
		rows := []ArcRow{
			{EpochTAINs: ns, Device: dm.Device, MeasurementType: "Range", Value: dm.Msr.Range, Sigma: rangeSigmaKM},
			{EpochTAINs: ns, Device: dm.Device, MeasurementType: "Doppler", Value: dm.Msr.RangeRate, Sigma: dopplerSigmaKMS},
		}
		if dm.Msr.HasAzEl {
			rows = append(rows,
				ArcRow{EpochTAINs: ns, Device: dm.Device, MeasurementType: "Azimuth", Value: dm.Msr.Azimuth},
				ArcRow{EpochTAINs: ns, Device: dm.Device, MeasurementType: "Elevation", Value: dm.Msr.Elevation})
		}
		for _, row := range rows {
			if err := pw.Write(row); err != nil {
				return nyxerr.Config("write_arc", err).WithDevice(dm.Device)
			}
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nyxerr.Config("write_arc", err)
	}
	return nil
}

// ReadArc reads back the rows of a tracking-arc Parquet file in stored
// order, plus the device-config snapshot if one was written.
func ReadArc(path string) ([]ArcRow, string, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, "", nyxerr.Config("read_arc", err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(ArcRow), parallelism)
	if err != nil {
		return nil, "", nyxerr.Config("read_arc", err)
	}
	defer pr.ReadStop()
	num := int(pr.GetNumRows())
	rows := make([]ArcRow, num)
	if err := pr.Read(&rows); err != nil {
		return nil, "", nyxerr.Config("read_arc", err)
	}
	deviceCfg := ""
	for _, kv := range pr.Footer.KeyValueMetadata {
		if kv.Key == "device_cfg" && kv.Value != nil {
			deviceCfg = *kv.Value
		}
	}
	return rows, deviceCfg, nil
}

// ResultRow is one filter step of the OD-results schema: the nominal state,
// prefit/postfit residuals per component, the rejection flag, and the
// covariance's upper triangle flattened row-major.
type ResultRow struct {
	EpochTAINs     int64   `parquet:"name=epoch_tai_ns, type=INT64"`
	XKM            float64 `parquet:"name=x_km, type=DOUBLE"`
	YKM            float64 `parquet:"name=y_km, type=DOUBLE"`
	ZKM            float64 `parquet:"name=z_km, type=DOUBLE"`
	VxKMS          float64 `parquet:"name=vx_km_s, type=DOUBLE"`
	VyKMS          float64 `parquet:"name=vy_km_s, type=DOUBLE"`
	VzKMS          float64 `parquet:"name=vz_km_s, type=DOUBLE"`
	PrefitRange    float64 `parquet:"name=prefit_range_km, type=DOUBLE"`
	PrefitDoppler  float64 `parquet:"name=prefit_doppler_km_s, type=DOUBLE"`
	PostfitRange   float64 `parquet:"name=postfit_range_km, type=DOUBLE"`
	PostfitDoppler float64 `parquet:"name=postfit_doppler_km_s, type=DOUBLE"`
	Rejected       bool    `parquet:"name=rejected, type=BOOLEAN"`
	CovUpper       string  `parquet:"name=cov_upper_row_major, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// covUpperString flattens the upper triangle of P row-major into a
// comma-separated string column (parquet-go has no native list-of-double
// support worth the schema complexity for a diagnostics column).
func covUpperString(est *od.Estimate) string {
	if est.PFilt == nil {
		return ""
	}
	n, _ := est.PFilt.Dims()
	out := ""
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if out != "" {
				out += ","
			}
			out += fmt.Sprintf("%.15e", est.PFilt.At(i, j))
		}
	}
	return out
}

// WriteResults writes one ResultRow per history entry. epochs and nominal
// states are supplied by the caller (the ODProcess records deviations, not
// absolute states; the caller owns the reference trajectory and therefore
// the nominal state at each step — spec §9's "reference trajectory is
// owned by the filter" boundary, crossed here via explicit arguments
// rather than a shared mutable object).
func WriteResults(history []*od.Estimate, epochs []nyx.Epoch, nominal [][]float64, path string) error {
	if len(history) != len(epochs) || len(history) != len(nominal) {
		return nyxerr.Config("write_results", fmt.Errorf("history/epochs/nominal length mismatch: %d/%d/%d", len(history), len(epochs), len(nominal)))
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nyxerr.Config("write_results", err)
	}
	defer fw.Close()
	pw, err := writer.NewParquetWriter(fw, new(ResultRow), parallelism)
	if err != nil {
		return nyxerr.Config("write_results", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i, est := range history {
		row := ResultRow{
			EpochTAINs: epochToTAINs(epochs[i]),
			XKM:        nominal[i][0], YKM: nominal[i][1], ZKM: nominal[i][2],
			VxKMS: nominal[i][3], VyKMS: nominal[i][4], VzKMS: nominal[i][5],
			Rejected: est.Rejected,
			CovUpper: covUpperString(est),
		}
		if est.Prefit != nil {
			row.PrefitRange = est.Prefit.AtVec(0)
			if est.Prefit.Len() > 1 {
				row.PrefitDoppler = est.Prefit.AtVec(1)
			}
		}
		if est.Postfit != nil {
			row.PostfitRange = est.Postfit.AtVec(0)
			if est.Postfit.Len() > 1 {
				row.PostfitDoppler = est.Postfit.AtVec(1)
			}
		}
		if err := pw.Write(row); err != nil {
			return nyxerr.Config("write_results", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nyxerr.Config("write_results", err)
	}
	return nil
}

// ReadResults reads back an OD-results Parquet file.
func ReadResults(path string) ([]ResultRow, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, nyxerr.Config("read_results", err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(ResultRow), parallelism)
	if err != nil {
		return nil, nyxerr.Config("read_results", err)
	}
	defer pr.ReadStop()
	rows := make([]ResultRow, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, nyxerr.Config("read_results", err)
	}
	return rows, nil
}
