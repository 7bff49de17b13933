package canopy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rxp"
)

// Ground-plane fitting constants. The grid is centred on the sensor; 60 m
// at 10 m cells has proven a stable trade-off between coverage and the
// assumption of local planarity.
const (
	groundGridExtent     = 60.0
	groundGridResolution = 10.0
	huberK               = 1.345
	huberIterations      = 20
	madScale             = 1.4826
)

// ErrTooFewGroundPoints reports that the min-z grid produced fewer cells
// than the three plane parameters need.
var ErrTooFewGroundPoints = errors.New("too few ground points for plane fit")

// GroundPoint is one candidate ground sample: the lowest return in a grid
// cell, with its range from the sensor for inverse-distance weighting.
type GroundPoint struct {
	X, Y, Z float64
	Range   float64
}

// MinZGrid reduces a scan to candidate ground samples: the world-frame
// point of lowest elevation within each cell of a horizontal grid centred
// on (ox, oy).
func MinZGrid(pulses []rxp.Pulse, t riscan.Transform, extent, resolution, ox, oy float64) []GroundPoint {
	n := int(math.Ceil(extent / resolution))
	cells := make(map[int]GroundPoint, n*n)

	half := extent / 2
	for _, p := range pulses {
		dx, dy, dz := p.Dir()
		for _, r := range p.Returns {
			wx, wy, wz := t.Apply(dx*r.Range, dy*r.Range, dz*r.Range)
			ix := int(math.Floor((wx - (ox - half)) / resolution))
			iy := int(math.Floor((wy - (oy - half)) / resolution))
			if ix < 0 || ix >= n || iy < 0 || iy >= n {
				continue
			}
			key := iy*n + ix
			if cur, ok := cells[key]; !ok || wz < cur.Z {
				cells[key] = GroundPoint{X: wx, Y: wy, Z: wz, Range: r.Range}
			}
		}
	}

	keys := make([]int, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	points := make([]GroundPoint, 0, len(cells))
	for _, k := range keys {
		points = append(points, cells[k])
	}
	return points
}

// PlaneFitHuber fits z = b0 + b1*x + b2*y to the samples by iteratively
// reweighted least squares with Huber weights, starting from the provided
// base weights (typically 1/range). Outlying low returns (pits, multipath)
// are progressively discounted rather than excluded outright.
func PlaneFitHuber(points []GroundPoint) ([3]float64, error) {
	n := len(points)
	if n < 3 {
		return [3]float64{}, fmt.Errorf("%w: %d samples", ErrTooFewGroundPoints, n)
	}

	base := make([]float64, n)
	for i, p := range points {
		if p.Range > 0 {
			base[i] = 1 / p.Range
		} else {
			base[i] = 1
		}
	}

	weights := append([]float64(nil), base...)
	var params [3]float64
	residuals := make([]float64, n)

	for iter := 0; iter < huberIterations; iter++ {
		p, err := solveWeightedPlane(points, weights)
		if err != nil {
			return [3]float64{}, err
		}
		params = p

		for i, pt := range points {
			residuals[i] = pt.Z - (params[0] + params[1]*pt.X + params[2]*pt.Y)
		}
		scale := madScale * medianAbs(residuals)
		if scale < 1e-9 {
			break
		}

		changed := false
		for i := range weights {
			w := base[i]
			if a := math.Abs(residuals[i]); a > huberK*scale {
				w *= huberK * scale / a
			}
			if math.Abs(w-weights[i]) > 1e-12 {
				changed = true
			}
			weights[i] = w
		}
		if !changed {
			break
		}
	}
	return params, nil
}

// solveWeightedPlane solves one weighted least-squares pass via QR on the
// sqrt-weight scaled system.
func solveWeightedPlane(points []GroundPoint, weights []float64) ([3]float64, error) {
	n := len(points)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range points {
		s := math.Sqrt(weights[i])
		a.Set(i, 0, s)
		a.Set(i, 1, s*p.X)
		a.Set(i, 2, s*p.Y)
		b.SetVec(i, s*p.Z)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return [3]float64{}, fmt.Errorf("plane fit: %w", err)
	}
	return [3]float64{x.AtVec(0), x.AtVec(1), x.AtVec(2)}, nil
}

func medianAbs(v []float64) float64 {
	abs := make([]float64, len(v))
	for i, x := range v {
		abs[i] = math.Abs(x)
	}
	sort.Float64s(abs)
	m := len(abs) / 2
	if len(abs)%2 == 0 {
		return (abs[m-1] + abs[m]) / 2
	}
	return abs[m]
}
