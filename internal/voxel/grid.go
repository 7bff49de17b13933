package voxel

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/sbinet/npyio"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rxp"
)

// Grid accumulates hit/miss/occluded beam counts per voxel for one scan
// position. Grids are stored flattened with index (iz*ny + iy)*nx + ix;
// the companion Config records the dimensions.
type Grid struct {
	cfg *Config

	hits      []float64
	miss      []float64
	occluded  []float64
	zenithSum []float64 // summed over contributing (hit+miss) beams

	dtm []float64 // optional ground elevation per column, nx*ny

	filenames []string
}

// NewGrid allocates an empty grid over the config's domain.
func NewGrid(cfg *Config) *Grid {
	n := cfg.NX * cfg.NY * cfg.NZ
	return &Grid{
		cfg:       cfg,
		hits:      make([]float64, n),
		miss:      make([]float64, n),
		occluded:  make([]float64, n),
		zenithSum: make([]float64, n),
	}
}

// LoadDTM reads a terrain model: a .npy array of nx*ny ground elevations in
// the project coordinate system. Voxels below the terrain are masked out of
// the derived grids.
func (g *Grid) LoadDTM(fsys fsutil.FileSystem, path string) error {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("opening DTM: %w", err)
	}
	defer f.Close()

	var dtm []float64
	if err := npyio.Read(f, &dtm); err != nil {
		return fmt.Errorf("reading DTM %s: %w", path, err)
	}
	if len(dtm) != g.cfg.NX*g.cfg.NY {
		return fmt.Errorf("DTM %s: got %d cells, grid needs %d", path, len(dtm), g.cfg.NX*g.cfg.NY)
	}
	g.dtm = dtm
	return nil
}

// AddScan walks every pulse of a scan through the grid. Voxels crossed
// before the first return count as misses, voxels containing a return as
// hits, voxels beyond the last return as occluded. Pulses with no return
// count as misses along their whole path through the domain.
func (g *Grid) AddScan(pulses []rxp.Pulse, t riscan.Transform) {
	ox, oy, oz := t.Origin()
	for _, p := range pulses {
		dx, dy, dz := p.Dir()
		wdx, wdy, wdz := t.ApplyVector(dx, dy, dz)

		firstReturn, lastReturn := math.Inf(1), math.Inf(-1)
		for _, r := range p.Returns {
			firstReturn = math.Min(firstReturn, r.Range)
			lastReturn = math.Max(lastReturn, r.Range)
		}

		zenith := math.Acos(clamp(wdz, -1, 1))
		g.walk(ox, oy, oz, wdx, wdy, wdz, func(idx int, tEnter, tExit float64) {
			switch {
			case tEnter <= lastReturn && tExit > firstReturn:
				// At least one return may fall in this voxel; count a
				// hit if any actually does, otherwise classify by the
				// segment midpoint.
				hit := false
				for _, r := range p.Returns {
					if r.Range >= tEnter && r.Range < tExit {
						hit = true
						break
					}
				}
				if hit {
					g.hits[idx]++
					g.zenithSum[idx] += zenith
				} else if (tEnter+tExit)/2 < firstReturn {
					g.miss[idx]++
					g.zenithSum[idx] += zenith
				} else {
					g.occluded[idx]++
				}
			case tExit <= firstReturn:
				g.miss[idx]++
				g.zenithSum[idx] += zenith
			default:
				g.occluded[idx]++
			}
		})
	}
}

// walk performs an Amanatides-Woo traversal of the ray (o + t*d, t >= 0)
// through the grid, invoking visit with each voxel index and the ray
// parameter interval spent inside it.
func (g *Grid) walk(ox, oy, oz, dx, dy, dz float64, visit func(idx int, tEnter, tExit float64)) {
	b, res := g.cfg.Bounds, g.cfg.Resolution

	// Clip the ray to the domain with the slab method.
	t0, t1 := 0.0, math.Inf(1)
	origin := [3]float64{ox, oy, oz}
	dir := [3]float64{dx, dy, dz}
	lo := [3]float64{b.XMin(), b.YMin(), b.ZMin()}
	hi := [3]float64{
		b.XMin() + float64(g.cfg.NX)*res,
		b.YMin() + float64(g.cfg.NY)*res,
		b.ZMin() + float64(g.cfg.NZ)*res,
	}
	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < 1e-12 {
			if origin[i] < lo[i] || origin[i] >= hi[i] {
				return
			}
			continue
		}
		ta := (lo[i] - origin[i]) / dir[i]
		tb := (hi[i] - origin[i]) / dir[i]
		if ta > tb {
			ta, tb = tb, ta
		}
		t0 = math.Max(t0, ta)
		t1 = math.Min(t1, tb)
	}
	if t0 >= t1 {
		return
	}

	// Entry voxel.
	const nudge = 1e-9
	ix := cellIndex(origin[0]+dir[0]*(t0+nudge), lo[0], res, g.cfg.NX)
	iy := cellIndex(origin[1]+dir[1]*(t0+nudge), lo[1], res, g.cfg.NY)
	iz := cellIndex(origin[2]+dir[2]*(t0+nudge), lo[2], res, g.cfg.NZ)
	if ix < 0 || iy < 0 || iz < 0 {
		return
	}

	cell := [3]int{ix, iy, iz}
	dims := [3]int{g.cfg.NX, g.cfg.NY, g.cfg.NZ}
	var step [3]int
	var tMax, tDelta [3]float64
	for i := 0; i < 3; i++ {
		if dir[i] > 0 {
			step[i] = 1
			tMax[i] = (lo[i]+float64(cell[i]+1)*res - origin[i]) / dir[i]
			tDelta[i] = res / dir[i]
		} else if dir[i] < 0 {
			step[i] = -1
			tMax[i] = (lo[i]+float64(cell[i])*res - origin[i]) / dir[i]
			tDelta[i] = -res / dir[i]
		} else {
			step[i] = 0
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	tEnter := t0
	for {
		// Next crossing: the smallest tMax axis.
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		tExit := math.Min(tMax[axis], t1)

		idx := (cell[2]*dims[1]+cell[1])*dims[0] + cell[0]
		visit(idx, tEnter, tExit)

		if tMax[axis] >= t1 {
			return
		}
		tEnter = tMax[axis]
		tMax[axis] += tDelta[axis]
		cell[axis] += step[axis]
		if cell[axis] < 0 || cell[axis] >= dims[axis] {
			return
		}
	}
}

func cellIndex(v, lo, res float64, n int) int {
	i := int(math.Floor((v - lo) / res))
	if i < 0 || i >= n {
		return -1
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// belowTerrain reports whether a voxel's centre lies under the DTM.
func (g *Grid) belowTerrain(idx int) bool {
	if g.dtm == nil {
		return false
	}
	col := idx % (g.cfg.NX * g.cfg.NY)
	iz := idx / (g.cfg.NX * g.cfg.NY)
	centre := g.cfg.Bounds.ZMin() + (float64(iz)+0.5)*g.cfg.Resolution
	return centre < g.dtm[col]
}

// Pgap derives the per-voxel gap probability: misses over beams that
// carried information (hits + misses). Voxels with no such beams, or below
// the terrain model, hold NoData.
func (g *Grid) Pgap() []float64 {
	out := make([]float64, len(g.hits))
	for i := range out {
		n := g.hits[i] + g.miss[i]
		if n == 0 || g.belowTerrain(i) {
			out[i] = NoData
			continue
		}
		out[i] = g.miss[i] / n
	}
	return out
}

// Zenith derives the mean beam zenith angle (radians) per voxel, NoData
// where no informative beam crossed.
func (g *Grid) Zenith() []float64 {
	out := make([]float64, len(g.hits))
	for i := range out {
		n := g.hits[i] + g.miss[i]
		if n == 0 || g.belowTerrain(i) {
			out[i] = NoData
			continue
		}
		out[i] = g.zenithSum[i] / n
	}
	return out
}

// NShots returns the informative beam count per voxel.
func (g *Grid) NShots() []float64 {
	out := make([]float64, len(g.hits))
	for i := range out {
		if g.belowTerrain(i) {
			out[i] = 0
			continue
		}
		out[i] = g.hits[i] + g.miss[i]
	}
	return out
}

// WriteGrids persists the derived grids (and raw counts unless disabled) as
// .npy arrays named <prefix>_<grid>.npy, and records the written base
// names for the project config.
func (g *Grid) WriteGrids(fsys fsutil.FileSystem, prefix string, saveCounts bool) error {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}

	type namedGrid struct {
		name string
		data []float64
	}
	grids := []namedGrid{
		{"pgap", g.Pgap()},
		{"zenith", g.Zenith()},
		{"nshots", g.NShots()},
	}
	if saveCounts {
		grids = append(grids,
			namedGrid{"hits", g.hits},
			namedGrid{"miss", g.miss},
			namedGrid{"occluded", g.occluded},
		)
	}

	g.filenames = g.filenames[:0]
	for _, grid := range grids {
		path := fmt.Sprintf("%s_%s.npy", prefix, grid.name)
		if err := writeNpy(fsys, path, grid.data); err != nil {
			return fmt.Errorf("writing %s grid: %w", grid.name, err)
		}
		g.filenames = append(g.filenames, filepath.Base(path))
	}
	return nil
}

// Filenames lists the base names written by the last WriteGrids call.
func (g *Grid) Filenames() []string { return g.filenames }

func writeNpy(fsys fsutil.FileSystem, path string, data []float64) error {
	w, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if err := npyio.Write(w, data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
