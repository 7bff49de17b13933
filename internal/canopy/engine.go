package canopy

import (
	"fmt"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rxp"
)

// ProfileResult is the per-position payload of the profile batch.
type ProfileResult struct {
	Position string
	ScanName string

	SensorX, SensorY, SensorZ float64
	GroundPlane               [3]float64 // intercept, slope_x, slope_y

	HeightBin  []float64
	PgapThetaZ [][]float64

	HingePAI    []float64
	LinearPAI   []float64
	WeightedPAI []float64

	HingePAVD    []float64
	LinearPAVD   []float64
	WeightedPAVD []float64

	LinearMLA []float64

	TotalHinge    float64
	TotalLinear   float64
	TotalWeighted float64
}

// Engine runs the full per-position profile computation: transform read,
// ground-plane fit, Pgap accumulation and the three PAI estimators.
type Engine struct {
	Driver rxp.Driver        // nil means the registered package driver
	FS     fsutil.FileSystem // nil means the OS filesystem
}

func (e *Engine) driver() rxp.Driver {
	if e.Driver != nil {
		return e.Driver
	}
	return rxp.Active()
}

// ProcessPosition computes the profile result for one resolved position.
// Any error is per-position: callers run this under the batch executor so
// a failing position never stops the batch.
func (e *Engine) ProcessPosition(fset riscan.FileSet, params Params) (*ProfileResult, error) {
	t, err := riscan.ReadTransform(e.FS, fset.Transform)
	if err != nil {
		return nil, err
	}
	x0, y0, z0 := t.Origin()

	src, err := e.driver().Open(fset.RawScan, fset.Decimated)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	pulses, err := src.Pulses()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fset.RawScan, err)
	}

	ground := MinZGrid(pulses, t, groundGridExtent, groundGridResolution, x0, y0)
	plane, err := PlaneFitHuber(ground)
	if err != nil {
		return nil, err
	}

	profile := NewPlantProfile(params, plane)
	profile.AddScan(pulses, t)
	profile.ComputePgap()

	hinge := profile.HingeProfile()
	weighted := profile.SolidAngleProfile()
	linear, mla := profile.LinearProfile(true)

	return &ProfileResult{
		Position:      fset.Position,
		ScanName:      fset.ScanName,
		SensorX:       x0,
		SensorY:       y0,
		SensorZ:       z0,
		GroundPlane:   plane,
		HeightBin:     profile.HeightBin(),
		PgapThetaZ:    profile.Pgap(),
		HingePAI:      hinge,
		LinearPAI:     linear,
		WeightedPAI:   weighted,
		HingePAVD:     profile.PAVD(hinge),
		LinearPAVD:    profile.PAVD(linear),
		WeightedPAVD:  profile.PAVD(weighted),
		LinearMLA:     mla,
		TotalHinge:    profile.Total(hinge),
		TotalLinear:   profile.Total(linear),
		TotalWeighted: profile.Total(weighted),
	}, nil
}
