// Package report persists batch results: the project summary table,
// per-position profile tables and optional profile plots.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/canopy.report/internal/batch"
	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/fsutil"
)

// SummaryFile is the project-level profile summary name.
const SummaryFile = "pavd_summary.csv"

// Writer persists artifacts into one output directory. Writes are
// idempotent per run: rewriting the same results produces byte-identical
// files. There is no partial-write recovery; a failed artifact does not
// roll back ones already written.
type Writer struct {
	fsys fsutil.FileSystem
	dir  string
}

// NewWriter creates the output directory and returns a writer rooted there.
func NewWriter(fsys fsutil.FileSystem, dir string) (*Writer, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{fsys: fsys, dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// WriteProfileSummary writes one summary row per successful outcome, in
// batch order. With zero successes it writes nothing and returns
// batch.ErrNoWork.
func (w *Writer) WriteProfileSummary(results []*canopy.ProfileResult) (string, error) {
	if len(results) == 0 {
		return "", batch.ErrNoWork
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	header := []string{
		"scan_pos", "scan_name",
		"sensor_x", "sensor_y", "sensor_z",
		"ground_intercept", "ground_slope_x", "ground_slope_y",
		"total_pai_hinge", "total_pai_linear", "total_pai_weighted",
	}
	if err := cw.Write(header); err != nil {
		return "", err
	}
	for _, r := range results {
		row := []string{
			r.Position, r.ScanName,
			ftoa(r.SensorX), ftoa(r.SensorY), ftoa(r.SensorZ),
			ftoa(r.GroundPlane[0]), ftoa(r.GroundPlane[1]), ftoa(r.GroundPlane[2]),
			ftoa(r.TotalHinge), ftoa(r.TotalLinear), ftoa(r.TotalWeighted),
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, SummaryFile)
	if err := w.fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}
	return path, nil
}

// WriteProfileDetail writes the per-position profile table: one row per
// vertical bin with every profile variant and its density.
func (w *Writer) WriteProfileDetail(r *canopy.ProfileResult) (string, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	header := []string{
		"height",
		"hinge_pai", "linear_pai", "weighted_pai",
		"hinge_pavd", "linear_pavd", "weighted_pavd",
		"linear_mla",
	}
	if err := cw.Write(header); err != nil {
		return "", err
	}
	for i, h := range r.HeightBin {
		row := []string{
			ftoa(h),
			ftoa(r.HingePAI[i]), ftoa(r.LinearPAI[i]), ftoa(r.WeightedPAI[i]),
			ftoa(r.HingePAVD[i]), ftoa(r.LinearPAVD[i]), ftoa(r.WeightedPAVD[i]),
			ftoa(r.LinearMLA[i]),
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s_profiles.csv", r.Position, r.ScanName))
	if err := w.fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing profile detail for %s: %w", r.Position, err)
	}
	return path, nil
}

// ftoa formats floats the shortest way that round-trips, keeping output
// stable across runs.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
