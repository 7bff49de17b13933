// Package voxel builds per-position voxel grids of gap probability from
// terrestrial scans and combines them across positions with a linear model
// into plant area and cover profiles.
package voxel

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/riscan"
)

// NoData is the sentinel for voxels with no usable observations.
const NoData = -9999

// Config ties a voxelization run together: the shared domain, the grid
// geometry and the per-scan output files. It is written next to the grids
// and is the sole input of the multi-position model.
type Config struct {
	Bounds     riscan.Bounds       `json:"bounds"`
	Resolution float64             `json:"resolution"`
	NX         int                 `json:"nx"`
	NY         int                 `json:"ny"`
	NZ         int                 `json:"nz"`
	NoData     float64             `json:"nodata"`
	DTM        string              `json:"dtm"`
	Positions  map[string][]string `json:"positions"`
}

// NewConfig derives the grid geometry from bounds and resolution.
func NewConfig(bounds riscan.Bounds, resolution float64, dtm string) *Config {
	nx, ny, nz := bounds.Dims(resolution)
	return &Config{
		Bounds:     bounds,
		Resolution: resolution,
		NX:         nx,
		NY:         ny,
		NZ:         nz,
		NoData:     NoData,
		DTM:        dtm,
		Positions:  make(map[string][]string),
	}
}

// Write persists the config as indented JSON.
func (c *Config) Write(fsys fsutil.FileSystem, path string) error {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return err
	}
	return fsys.WriteFile(path, append(data, '\n'), 0644)
}

// LoadConfig reads a voxelization config written by Write.
func LoadConfig(fsys fsutil.FileSystem, path string) (*Config, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading voxel config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing voxel config %s: %w", path, err)
	}
	if c.NX <= 0 || c.NY <= 0 || c.NZ <= 0 {
		return nil, fmt.Errorf("voxel config %s: invalid grid dimensions %dx%dx%d", path, c.NX, c.NY, c.NZ)
	}
	return &c, nil
}
