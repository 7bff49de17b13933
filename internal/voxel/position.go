package voxel

import (
	"fmt"
	"path/filepath"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rxp"
)

// VoxelizePosition runs the whole per-position voxelization step: read the
// scan, accumulate it into a fresh grid over the shared domain and write
// the grid files under outDir prefixed with the scan name. It returns the
// written base names for the project config. Errors are per-position;
// callers run this under the batch executor.
func VoxelizePosition(driver rxp.Driver, fsys fsutil.FileSystem, fset riscan.FileSet, cfg *Config, outDir string, saveCounts bool) ([]string, error) {
	if driver == nil {
		driver = rxp.Active()
	}
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}

	t, err := riscan.ReadTransform(fsys, fset.Transform)
	if err != nil {
		return nil, err
	}

	src, err := driver.Open(fset.RawScan, fset.Decimated)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	pulses, err := src.Pulses()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fset.RawScan, err)
	}

	g := NewGrid(cfg)
	if cfg.DTM != "" {
		if err := g.LoadDTM(fsys, cfg.DTM); err != nil {
			return nil, err
		}
	}
	g.AddScan(pulses, t)

	if err := g.WriteGrids(fsys, filepath.Join(outDir, fset.ScanName), saveCounts); err != nil {
		return nil, err
	}
	return g.Filenames(), nil
}
