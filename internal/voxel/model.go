package voxel

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"

	"github.com/banshee-data/canopy.report/internal/fsutil"
)

// minPgap floors observed gap probabilities before taking logs so a fully
// intercepted voxel contributes a large, finite attenuation.
const minPgap = 1e-5

// Model combines the per-position voxel grids of a project into plant area
// estimates. Per voxel, each position that observed it contributes one
// attenuation measurement at that position's mean beam zenith; the
// two-parameter linear model
//
//	-ln Pgap_s = PAIv * |cos(zenith_s)| + PAIh * |sin(zenith_s)|
//
// is solved by (optionally beam-count weighted) least squares wherever at
// least minN positions contributed.
type Model struct {
	cfg  *Config
	fsys fsutil.FileSystem
	dir  string // directory holding the grids, from the config path
}

// NewModel loads a voxelization config and prepares the model.
func NewModel(fsys fsutil.FileSystem, configPath string) (*Model, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	cfg, err := LoadConfig(fsys, configPath)
	if err != nil {
		return nil, err
	}
	if len(cfg.Positions) == 0 {
		return nil, fmt.Errorf("voxel config %s lists no positions", configPath)
	}
	return &Model{cfg: cfg, fsys: fsys, dir: filepath.Dir(configPath)}, nil
}

// Config exposes the loaded configuration.
func (m *Model) Config() *Config { return m.cfg }

// Result holds the flattened model output grids plus the derived cover
// profile. PAIv and PAIh are NoData where fewer than minN positions
// observed a voxel; NScans always holds the observation count.
type Result struct {
	PAIv   []float64
	PAIh   []float64
	NScans []float64
	CoverZ []float64
}

// Run executes the linear model over every voxel.
func (m *Model) Run(minN int, weighted bool) (*Result, error) {
	if minN < 1 {
		minN = 1
	}

	type scanGrids struct {
		pgap   []float64
		zenith []float64
		nshots []float64
	}

	n := m.cfg.NX * m.cfg.NY * m.cfg.NZ
	var scans []scanGrids
	for scanName, files := range m.cfg.Positions {
		g := scanGrids{}
		for _, f := range files {
			data, err := m.readGrid(f)
			if err != nil {
				return nil, err
			}
			if len(data) != n {
				return nil, fmt.Errorf("grid %s: got %d voxels, config says %d", f, len(data), n)
			}
			switch {
			case strings.HasSuffix(f, "_pgap.npy"):
				g.pgap = data
			case strings.HasSuffix(f, "_zenith.npy"):
				g.zenith = data
			case strings.HasSuffix(f, "_nshots.npy"):
				g.nshots = data
			}
		}
		if g.pgap == nil || g.zenith == nil || g.nshots == nil {
			return nil, fmt.Errorf("position %s: config does not list pgap, zenith and nshots grids", scanName)
		}
		scans = append(scans, g)
	}

	res := &Result{
		PAIv:   make([]float64, n),
		PAIh:   make([]float64, n),
		NScans: make([]float64, n),
	}

	for i := 0; i < n; i++ {
		// Accumulate the 2x2 weighted normal equations for this voxel.
		var sxx, sxy, syy, sxb, syb float64
		var count int
		for _, s := range scans {
			if s.pgap[i] == NoData || s.nshots[i] <= 0 {
				continue
			}
			k := -math.Log(math.Max(s.pgap[i], minPgap))
			xv := math.Abs(math.Cos(s.zenith[i]))
			xh := math.Abs(math.Sin(s.zenith[i]))
			w := 1.0
			if weighted {
				w = s.nshots[i]
			}
			sxx += w * xv * xv
			sxy += w * xv * xh
			syy += w * xh * xh
			sxb += w * xv * k
			syb += w * xh * k
			count++
		}
		res.NScans[i] = float64(count)

		det := sxx*syy - sxy*sxy
		if count < minN || math.Abs(det) < 1e-12 {
			res.PAIv[i] = NoData
			res.PAIh[i] = NoData
			continue
		}
		res.PAIv[i] = math.Max((syy*sxb-sxy*syb)/det, 0)
		res.PAIh[i] = math.Max((sxx*syb-sxy*sxb)/det, 0)
	}

	res.CoverZ = m.coverProfile(res.PAIv)
	return res, nil
}

// coverProfile reduces the vertical PAI grid to a per-level canopy cover
// fraction: the mean, over voxels the model resolved at that level, of the
// Beer-Lambert cover of one voxel's worth of plant area.
func (m *Model) coverProfile(paiv []float64) []float64 {
	perLevel := m.cfg.NX * m.cfg.NY
	cover := make([]float64, m.cfg.NZ)
	for iz := 0; iz < m.cfg.NZ; iz++ {
		sum, count := 0.0, 0
		for c := 0; c < perLevel; c++ {
			v := paiv[iz*perLevel+c]
			if v == NoData {
				continue
			}
			sum += 1 - math.Exp(-v*m.cfg.Resolution)
			count++
		}
		if count > 0 {
			cover[iz] = sum / float64(count)
		}
	}
	return cover
}

// SaveOutputs writes the model arrays under dir as .npy files named the way
// downstream analysis expects: paiv, paih, nscans, cover_z.
func (m *Model) SaveOutputs(dir string, res *Result) error {
	if err := m.fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating model output dir: %w", err)
	}
	outputs := map[string][]float64{
		"paiv.npy":    res.PAIv,
		"paih.npy":    res.PAIh,
		"nscans.npy":  res.NScans,
		"cover_z.npy": res.CoverZ,
	}
	for name, data := range outputs {
		if err := writeNpy(m.fsys, filepath.Join(dir, name), data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

func (m *Model) readGrid(base string) ([]float64, error) {
	f, err := m.fsys.Open(filepath.Join(m.dir, base))
	if err != nil {
		return nil, fmt.Errorf("opening grid: %w", err)
	}
	defer f.Close()

	var data []float64
	if err := npyio.Read(f, &data); err != nil {
		return nil, fmt.Errorf("reading grid %s: %w", base, err)
	}
	return data, nil
}
