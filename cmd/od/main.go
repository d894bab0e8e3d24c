// Command od runs a full simulate-then-estimate round trip: propagate a
// reference orbit, generate a tracking arc from the YAML-configured ground
// stations, run the CKF/EKF processor over it, and export the trajectory,
// arc and OD results as Parquet. Thin wiring only — every piece of logic
// lives in the library packages.
package main

import (
	"flag"
	"fmt"
	"os"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/mat"

	"github.com/hartmut/nyx"
	"github.com/hartmut/nyx/arcsim"
	"github.com/hartmut/nyx/dynamics"
	"github.com/hartmut/nyx/frame"
	"github.com/hartmut/nyx/integrator"
	"github.com/hartmut/nyx/ioconfig"
	"github.com/hartmut/nyx/ioexport"
	"github.com/hartmut/nyx/od"
	"github.com/hartmut/nyx/trajectory"
)

var (
	stationsPath = flag.String("stations", "stations.yaml", "ground station catalog (YAML)")
	trkPath      = flag.String("trkconfig", "trkconfig.yaml", "tracking configuration (YAML)")
	vsop87Dir    = flag.String("vsop87", os.Getenv("VSOP87"), "VSOP87 data directory")
	outDir       = flag.String("out", ".", "output directory for Parquet files")
	seed         = flag.Int64("seed", 12345, "arc simulation seed")
	durationHrs  = flag.Float64("duration", 24, "propagation span, hours")
	smaKM        = flag.Float64("sma", 7078.14, "reference orbit semi-major axis, km")
	eccentricity = flag.Float64("ecc", 0.001, "reference orbit eccentricity")
	incDeg       = flag.Float64("inc", 45, "reference orbit inclination, deg")
)

func main() {
	flag.Parse()
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "subsys", "cmd/od")

	if err := run(logger); err != nil {
		logger.Log("level", "critical", "err", err)
		os.Exit(1)
	}
}

func run(logger kitlog.Logger) error {
	stationCfgs, err := ioconfig.LoadGroundStations(*stationsPath)
	if err != nil {
		return err
	}
	trkCfgs, err := ioconfig.LoadTrkConfigs(*trkPath)
	if err != nil {
		return err
	}
	logger.Log("level", "info", "stations", len(stationCfgs), "trk_configs", len(trkCfgs))

	svc := frame.NewMeeusService(*vsop87Dir)
	model := dynamics.NewModel(frame.Earth, svc,
		dynamics.Zonal{Body: frame.Earth, Radius: 6378.1363, J2: 1.08262668e-3})

	start := nyx.FromTAISecondsSinceJ2000(0)
	end := start.Add(nyx.Seconds(*durationHrs * 3600))
	orbit := nyx.NewOrbitFromOE(*smaKM, *eccentricity, *incDeg, 30, 0, 0, frame.Earth)

	traj, finalState, err := propagate(model, orbit, start, end)
	if err != nil {
		return err
	}
	logger.Log("level", "info", "event", "propagated", "final_r_km", nyx.Norm(finalState[0:3]))

	devices := make([]arcsim.Device, 0, len(stationCfgs))
	for _, cfg := range stationCfgs {
		devices = append(devices, arcsim.StationDevice{Station: cfg.Station()})
	}
	sim, err := arcsim.NewWithSeed(devices, traj, trkCfgs, *seed)
	if err != nil {
		return err
	}
	arc, err := sim.GenerateMeasurements()
	if err != nil {
		return err
	}
	if arc.DeviceConfig, err = ioconfig.MarshalStationSnapshot(stationCfgs); err != nil {
		return err
	}
	logger.Log("level", "info", "event", "arc_generated", "measurements", len(arc.Measurements))

	history, epochs, nominal, err := estimate(model, orbit, start, arc)
	if err != nil {
		return err
	}

	if err := ioexport.WriteTrajectory(traj, *outDir+"/trajectory.parquet"); err != nil {
		return err
	}
	if err := ioexport.WriteArc(arc, stationCfgs[0].RangeNoiseKM, stationCfgs[0].DopplerNoiseKMS, *outDir+"/arc.parquet"); err != nil {
		return err
	}
	if err := ioexport.WriteResults(history, epochs, nominal, *outDir+"/results.parquet"); err != nil {
		return err
	}
	logger.Log("level", "notice", "event", "done", "out", *outDir)
	return nil
}

// propagate integrates the orbit across the span, recording every accepted
// step as a trajectory sample.
func propagate(model *dynamics.Model, orbit *nyx.Orbit, start, end nyx.Epoch) (*trajectory.Trajectory, []float64, error) {
	deriv := func(t nyx.Epoch, y integrator.Vector) (integrator.Vector, error) {
		xdot, err := model.EOM(t, dynamics.State{R: y[0:3], V: y[3:6], Mass: 1000})
		return integrator.Vector(xdot), err
	}
	integ := integrator.New[integrator.Vector](integrator.DormandPrince87(), deriv, integrator.VectorNorm, integrator.DefaultConfig())
	r, v := orbit.RV()
	y := append(append(integrator.Vector{}, r...), v...)
	traj := trajectory.New(orbit.Origin)
	traj.Add(trajectory.Sample{
		Epoch: start,
		R:     [3]float64{y[0], y[1], y[2]},
		V:     [3]float64{y[3], y[4], y[5]},
	})

	t := start
	h := nyx.Seconds(10)
	for t.Before(end) {
		remaining := end.Sub(t)
		step := h
		if step.Cmp(remaining) > 0 {
			step = remaining
		}
		next, reached, hNext, err := integ.Step(t, y, step)
		if err != nil {
			return nil, nil, err
		}
		t, y, h = reached, next, hNext
		traj.Add(trajectory.Sample{
			Epoch: t,
			R:     [3]float64{y[0], y[1], y[2]},
			V:     [3]float64{y[3], y[4], y[5]},
		})
	}
	return traj, y, nil
}

// estimate runs the CKF/EKF processor across the arc with an STM-carrying
// propagation between measurement epochs.
func estimate(model *dynamics.Model, orbit *nyx.Orbit, start nyx.Epoch, arc *arcsim.TrackingArc) ([]*od.Estimate, []nyx.Epoch, [][]float64, error) {
	sc := nyx.NewSpacecraft("estimator", *orbit, 1000, 0, 1.8, 2.2, 10, false, false)

	deriv := func(t nyx.Epoch, y integrator.StateTM) (integrator.StateTM, error) {
		xdot, phiDot, err := model.EOMWithSTM(t, dynamics.State{R: y.X[0:3], V: y.X[3:6], Mass: sc.Mass()}, y.Phi)
		if err != nil {
			return integrator.StateTM{}, err
		}
		return integrator.StateTM{X: integrator.Vector(xdot), Phi: phiDot}, nil
	}
	integ := integrator.New[integrator.StateTM](integrator.DormandPrince87(), deriv, integrator.StateTMNorm, integrator.DefaultConfig())

	n := sc.EstimateSize()
	p0 := nyx.ScaledDenseIdentity(n, 1)
	rNoise := mat.NewDense(2, 2, []float64{1e-6, 0, 0, 1e-12})
	q := nyx.ScaledDenseIdentity(3, 1e-16)
	filter := od.NewFilter(mat.NewVecDense(n, nil), p0, q, rNoise)
	proc := od.NewODProcess(filter,
		od.EKFConfig{Trigger: 10, DisableDtSecs: 180},
		od.SNCConfig{Enabled: true, DisableDtSecs: 120, RIC: true, QRIC: q})

	r0, v0 := orbit.RV()
	y := integrator.StateTM{
		X:   append(append(integrator.Vector{}, r0...), v0...),
		Phi: nyx.DenseIdentity(n),
	}
	t := start

	var epochs []nyx.Epoch
	var nominal [][]float64
	step := func(dtSeconds float64) ([]float64, []float64, *mat.Dense, error) {
		target := t.Add(nyx.Seconds(dtSeconds))
		y.Phi = nyx.DenseIdentity(n)
		next, err := integ.Integrate(t, y, target, nyx.Seconds(10))
		if err != nil {
			return nil, nil, nil, err
		}
		t, y = target, next
		epochs = append(epochs, t)
		nominal = append(nominal, append([]float64{}, y.X...))
		return y.X[0:3], y.X[3:6], y.Phi, nil
	}
	if err := proc.RunArc(arc, step, true); err != nil {
		return nil, nil, nil, err
	}
	if len(proc.History) != len(epochs) {
		return nil, nil, nil, fmt.Errorf("history/epoch bookkeeping diverged: %d vs %d", len(proc.History), len(epochs))
	}
	return proc.History, epochs, nominal, nil
}
