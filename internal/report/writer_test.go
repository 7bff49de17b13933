package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/batch"
	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/fsutil"
)

func sampleResult() *canopy.ProfileResult {
	return &canopy.ProfileResult{
		Position:      "ScanPos001",
		ScanName:      "240101_120000",
		SensorX:       100,
		SensorY:       200,
		SensorZ:       50,
		GroundPlane:   [3]float64{48.5, 0.01, -0.02},
		HeightBin:     []float64{0, 0.5},
		HingePAI:      []float64{0.5, 1},
		LinearPAI:     []float64{0.4, 0.9},
		WeightedPAI:   []float64{0.45, 0.95},
		HingePAVD:     []float64{1, 1},
		LinearPAVD:    []float64{1, 1},
		WeightedPAVD:  []float64{1, 1},
		LinearMLA:     []float64{30, 45},
		TotalHinge:    2.5,
		TotalLinear:   2.25,
		TotalWeighted: 2.75,
	}
}

func TestWriteProfileSummary(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w, err := NewWriter(mfs, "/out")
	require.NoError(t, err)

	path, err := w.WriteProfileSummary([]*canopy.ProfileResult{sampleResult()})
	require.NoError(t, err)
	assert.Equal(t, "/out/pavd_summary.csv", path)

	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	want := "scan_pos,scan_name,sensor_x,sensor_y,sensor_z," +
		"ground_intercept,ground_slope_x,ground_slope_y," +
		"total_pai_hinge,total_pai_linear,total_pai_weighted\n" +
		"ScanPos001,240101_120000,100,200,50,48.5,0.01,-0.02,2.5,2.25,2.75\n"
	assert.Equal(t, want, string(data))
}

func TestWriteProfileSummary_Idempotent(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w, err := NewWriter(mfs, "/out")
	require.NoError(t, err)

	results := []*canopy.ProfileResult{sampleResult()}
	path, err := w.WriteProfileSummary(results)
	require.NoError(t, err)
	first, err := mfs.ReadFile(path)
	require.NoError(t, err)

	_, err = w.WriteProfileSummary(results)
	require.NoError(t, err)
	second, err := mfs.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestWriteProfileSummary_NoWork(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w, err := NewWriter(mfs, "/out")
	require.NoError(t, err)

	_, err = w.WriteProfileSummary(nil)
	require.True(t, errors.Is(err, batch.ErrNoWork))
	assert.False(t, mfs.Exists("/out/pavd_summary.csv"), "no file on an empty batch")
}

func TestWriteProfileDetail(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w, err := NewWriter(mfs, "/out")
	require.NoError(t, err)

	path, err := w.WriteProfileDetail(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "/out/ScanPos001_240101_120000_profiles.csv", path)

	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	want := "height,hinge_pai,linear_pai,weighted_pai," +
		"hinge_pavd,linear_pavd,weighted_pavd,linear_mla\n" +
		"0,0.5,0.4,0.45,1,1,1,30\n" +
		"0.5,1,0.9,0.95,1,1,1,45\n"
	assert.Equal(t, want, string(data))
}
