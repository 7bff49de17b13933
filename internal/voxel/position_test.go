package voxel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rxp"
)

const positionDAT = `1 0 0 0
0 1 0 0
0 0 1 0
100 200 50 1
`

func TestVoxelizePosition(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/p/DAT/ScanPos001.DAT", []byte(positionDAT), 0644))
	require.NoError(t, mfs.MkdirAll("/out", 0755))

	cfg := NewConfig(riscan.Bounds{70, 170, 20, 130, 230, 100}, 1, "")
	fset := riscan.FileSet{
		Position:  "ScanPos001",
		ScanName:  "240101_120000",
		RawScan:   "/p/SCANS/ScanPos001/SINGLESCANS/240101_120000.rxp",
		Transform: "/p/DAT/ScanPos001.DAT",
	}

	files, err := VoxelizePosition(rxp.DefaultSynthetic(), mfs, fset, cfg, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"240101_120000_pgap.npy",
		"240101_120000_zenith.npy",
		"240101_120000_nshots.npy",
	}, files)
	for _, f := range files {
		assert.True(t, mfs.Exists("/out/"+f), "missing %s", f)
	}
}

func TestVoxelizePosition_MissingTransform(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cfg := NewConfig(riscan.Bounds{0, 0, 0, 10, 10, 10}, 1, "")

	_, err := VoxelizePosition(rxp.DefaultSynthetic(), mfs, riscan.FileSet{
		Position:  "ScanPos001",
		ScanName:  "240101_120000",
		Transform: "/p/DAT/nope.DAT",
	}, cfg, "/out", false)
	require.Error(t, err)
}
