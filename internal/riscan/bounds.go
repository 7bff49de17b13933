package riscan

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/canopy.report/internal/fsutil"
)

// ErrNoPositions reports a bounds computation over zero transforms. The
// fold would otherwise produce infinite sentinels that silently poison
// every downstream grid dimension, so it is rejected up front.
var ErrNoPositions = errors.New("no positions to bound")

// Bounds is an axis-aligned bounding volume ordered
// xmin, ymin, zmin, xmax, ymax, zmax.
type Bounds [6]float64

func (b Bounds) XMin() float64 { return b[0] }
func (b Bounds) YMin() float64 { return b[1] }
func (b Bounds) ZMin() float64 { return b[2] }
func (b Bounds) XMax() float64 { return b[3] }
func (b Bounds) YMax() float64 { return b[4] }
func (b Bounds) ZMax() float64 { return b[5] }

func (b Bounds) String() string {
	return fmt.Sprintf("xmin=%.1f, ymin=%.1f, zmin=%.1f, xmax=%.1f, ymax=%.1f, zmax=%.1f",
		b[0], b[1], b[2], b[3], b[4], b[5])
}

// Dims returns the voxel grid dimensions for the given resolution, using
// floor division so partial voxels at the far edge are dropped.
func (b Bounds) Dims(resolution float64) (nx, ny, nz int) {
	nx = int(math.Floor((b[3] - b[0]) / resolution))
	ny = int(math.Floor((b[4] - b[1]) / resolution))
	nz = int(math.Floor((b[5] - b[2]) / resolution))
	return
}

// ComputeBounds folds the sensor origins of all transforms into a single
// bounding volume, then widens it for analysis:
//
//   - minimums drop by the planar buffer (z by one extra buffer) and are
//     floored to the buffer unit;
//   - maximums gain 1.5x the buffer before flooring, which rounds them up
//     to the buffer unit;
//   - zmax then gains the maximum-height allowance.
//
// Floor division on the buffer unit keeps the volume buffer-aligned for
// grid construction. The result is deterministic and independent of the
// transform order.
func ComputeBounds(transforms []Transform, buffer, hmax float64) (Bounds, error) {
	if len(transforms) == 0 {
		return Bounds{}, ErrNoPositions
	}

	xs := make([]float64, len(transforms))
	ys := make([]float64, len(transforms))
	zs := make([]float64, len(transforms))
	for i, t := range transforms {
		xs[i], ys[i], zs[i] = t.Origin()
	}

	b := Bounds{
		floats.Min(xs), floats.Min(ys), floats.Min(zs),
		floats.Max(xs), floats.Max(ys), floats.Max(zs),
	}

	for i := 0; i < 3; i++ {
		b[i] = math.Floor((b[i]-buffer)/buffer) * buffer
		b[i+3] = math.Floor((b[i+3]+1.5*buffer)/buffer) * buffer
	}
	b[2] -= buffer
	b[5] += hmax

	return b, nil
}

// ReadProjectBounds reads every transform in the file sets and computes the
// shared bounds.
func ReadProjectBounds(fsys fsutil.FileSystem, sets []FileSet, buffer, hmax float64) (Bounds, []Transform, error) {
	transforms := make([]Transform, 0, len(sets))
	for _, fset := range sets {
		t, err := ReadTransform(fsys, fset.Transform)
		if err != nil {
			return Bounds{}, nil, err
		}
		transforms = append(transforms, t)
	}
	b, err := ComputeBounds(transforms, buffer, hmax)
	if err != nil {
		return Bounds{}, nil, err
	}
	return b, transforms, nil
}
