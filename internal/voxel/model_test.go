package voxel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/riscan"
)

// writeScanGrids persists a position's pgap/zenith/nshots arrays and returns
// the base names the way VoxelizePosition records them.
func writeScanGrids(t *testing.T, mfs fsutil.FileSystem, scan string, pgap, zenith, nshots []float64) []string {
	t.Helper()
	files := map[string][]float64{
		scan + "_pgap.npy":   pgap,
		scan + "_zenith.npy": zenith,
		scan + "_nshots.npy": nshots,
	}
	names := []string{scan + "_pgap.npy", scan + "_zenith.npy", scan + "_nshots.npy"}
	for name, data := range files {
		require.NoError(t, writeNpy(mfs, "/vox/"+name, data))
	}
	return names
}

// modelFixture builds a 1x1x2 project observed by a vertical and a
// horizontal position with attenuation generated from known PAIv and PAIh.
// The horizontal scan never sees the upper voxel.
func modelFixture(t *testing.T) (*Model, float64, float64) {
	t.Helper()
	const paiv, paih = 1.0, 0.5

	mfs := fsutil.NewMemoryFileSystem()
	cfg := NewConfig(riscan.Bounds{0, 0, 0, 1, 1, 2}, 1, "")
	require.Equal(t, 2, cfg.NX*cfg.NY*cfg.NZ)

	cfg.Positions["scan_a"] = writeScanGrids(t, mfs, "scan_a",
		[]float64{math.Exp(-paiv), math.Exp(-paiv)}, // vertical: -ln pgap = PAIv
		[]float64{0, 0},
		[]float64{10, 10},
	)
	cfg.Positions["scan_b"] = writeScanGrids(t, mfs, "scan_b",
		[]float64{math.Exp(-paih), NoData}, // horizontal: -ln pgap = PAIh
		[]float64{math.Pi / 2, math.Pi / 2},
		[]float64{5, 0},
	)
	require.NoError(t, cfg.Write(mfs, "/vox/proj_config.json"))

	m, err := NewModel(mfs, "/vox/proj_config.json")
	require.NoError(t, err)
	return m, paiv, paih
}

func TestModelRun_RecoversComponents(t *testing.T) {
	m, paiv, paih := modelFixture(t)

	res, err := m.Run(1, false)
	require.NoError(t, err)

	// Both positions observed the lower voxel: the 2x2 system is exact.
	assert.InDelta(t, paiv, res.PAIv[0], 1e-9)
	assert.InDelta(t, paih, res.PAIh[0], 1e-9)
	assert.Equal(t, 2.0, res.NScans[0])

	// Only the vertical position saw the upper voxel: the system is
	// singular there regardless of minN.
	assert.Equal(t, float64(NoData), res.PAIv[1])
	assert.Equal(t, 1.0, res.NScans[1])
}

func TestModelRun_MinN(t *testing.T) {
	m, _, _ := modelFixture(t)

	res, err := m.Run(3, false)
	require.NoError(t, err)

	assert.Equal(t, float64(NoData), res.PAIv[0], "two observations are under the threshold")
	assert.Equal(t, 2.0, res.NScans[0], "observation count is reported regardless")
}

func TestModelRun_Weighted(t *testing.T) {
	m, paiv, paih := modelFixture(t)

	// The exact two-observation system is insensitive to weighting.
	res, err := m.Run(1, true)
	require.NoError(t, err)
	assert.InDelta(t, paiv, res.PAIv[0], 1e-9)
	assert.InDelta(t, paih, res.PAIh[0], 1e-9)
}

func TestModelRun_CoverProfile(t *testing.T) {
	m, paiv, _ := modelFixture(t)

	res, err := m.Run(1, false)
	require.NoError(t, err)

	require.Len(t, res.CoverZ, 2)
	assert.InDelta(t, 1-math.Exp(-paiv*1), res.CoverZ[0], 1e-9)
	assert.Equal(t, 0.0, res.CoverZ[1], "unresolved level carries no cover")
}

func TestModelSaveOutputs(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cfg := NewConfig(riscan.Bounds{0, 0, 0, 1, 1, 2}, 1, "")
	cfg.Positions["scan_a"] = writeScanGrids(t, mfs, "scan_a",
		[]float64{0.5, 0.5}, []float64{0, 0}, []float64{1, 1})
	require.NoError(t, cfg.Write(mfs, "/vox/proj_config.json"))

	m, err := NewModel(mfs, "/vox/proj_config.json")
	require.NoError(t, err)
	res, err := m.Run(1, false)
	require.NoError(t, err)

	require.NoError(t, m.SaveOutputs("/vox/model_output", res))
	for _, name := range []string{"paiv.npy", "paih.npy", "nscans.npy", "cover_z.npy"} {
		assert.True(t, mfs.Exists("/vox/model_output/"+name), "missing %s", name)
	}
}

func TestNewModel_NoPositions(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cfg := NewConfig(riscan.Bounds{0, 0, 0, 1, 1, 2}, 1, "")
	require.NoError(t, cfg.Write(mfs, "/vox/proj_config.json"))

	_, err := NewModel(mfs, "/vox/proj_config.json")
	require.Error(t, err)
}

func TestModelRun_MissingGridKind(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cfg := NewConfig(riscan.Bounds{0, 0, 0, 1, 1, 2}, 1, "")
	require.NoError(t, writeNpy(mfs, "/vox/scan_a_pgap.npy", []float64{0.5, 0.5}))
	cfg.Positions["scan_a"] = []string{"scan_a_pgap.npy"}
	require.NoError(t, cfg.Write(mfs, "/vox/proj_config.json"))

	m, err := NewModel(mfs, "/vox/proj_config.json")
	require.NoError(t, err)
	_, err = m.Run(1, false)
	require.Error(t, err)
}
