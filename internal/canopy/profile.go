package canopy

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/canopy.report/internal/riscan"
	"github.com/banshee-data/canopy.report/internal/rxp"
)

// hingeAngleDeg is the zenith angle at which the projection function is
// insensitive to leaf inclination (Jupp et al. 2009).
const hingeAngleDeg = 57.5

// PlantProfile accumulates directional gap probability for one or more
// scans and derives plant area profiles from it. Accumulation happens in
// (zenith bin, height bin) space: interception weights are summed per bin
// and normalised by the shot count of the zenith ring.
type PlantProfile struct {
	params      Params
	groundPlane [3]float64

	heightBin []float64 // bin lower edges: minH + i*hres
	zenithBin []float64 // bin centres, radians

	shots  []float64   // pulses per zenith bin
	counts [][]float64 // [zenith][height] weighted interceptions
	pgap   [][]float64 // [zenith][height], cumulative with height
}

// NewPlantProfile prepares an empty profile over the configured zenith and
// height ranges, referenced to the fitted ground plane.
func NewPlantProfile(params Params, groundPlane [3]float64) *PlantProfile {
	nh := int(math.Ceil((params.MaxHeight - params.MinHeight) / params.HeightRes))
	if nh < 1 {
		nh = 1
	}
	nz := int(math.Ceil((params.MaxZenith - params.MinZenith) / params.ZenithRes))
	if nz < 1 {
		nz = 1
	}

	p := &PlantProfile{
		params:      params,
		groundPlane: groundPlane,
		heightBin:   make([]float64, nh),
		zenithBin:   make([]float64, nz),
		shots:       make([]float64, nz),
		counts:      make([][]float64, nz),
		pgap:        make([][]float64, nz),
	}
	for i := range p.heightBin {
		p.heightBin[i] = params.MinHeight + float64(i)*params.HeightRes
	}
	for i := range p.zenithBin {
		deg := params.MinZenith + (float64(i)+0.5)*params.ZenithRes
		p.zenithBin[i] = deg * math.Pi / 180
	}
	for i := range p.counts {
		p.counts[i] = make([]float64, nh)
		p.pgap[i] = make([]float64, nh)
	}
	return p
}

// HeightBin returns the vertical bin edges (ascending).
func (p *PlantProfile) HeightBin() []float64 { return p.heightBin }

// AddScan accumulates one scan's pulses. Pulses outside the zenith window
// are ignored; returns below the reflectance threshold are ignored. Return
// heights are measured above the fitted ground plane at the return's
// horizontal location.
func (p *PlantProfile) AddScan(pulses []rxp.Pulse, t riscan.Transform) {
	minZ := p.params.MinZenith * math.Pi / 180
	maxZ := p.params.MaxZenith * math.Pi / 180
	zres := p.params.ZenithRes * math.Pi / 180

	for _, pulse := range pulses {
		if pulse.Zenith < minZ || pulse.Zenith >= maxZ {
			continue
		}
		zi := int((pulse.Zenith - minZ) / zres)
		if zi < 0 || zi >= len(p.zenithBin) {
			continue
		}
		p.shots[zi]++

		dx, dy, dz := pulse.Dir()
		for ri, ret := range pulse.Returns {
			if ret.Reflectance <= p.params.ReflectanceThreshold {
				continue
			}
			if p.params.Method == First && ri > 0 {
				break
			}

			wx, wy, wz := t.Apply(dx*ret.Range, dy*ret.Range, dz*ret.Range)
			ground := p.groundPlane[0] + p.groundPlane[1]*wx + p.groundPlane[2]*wy
			h := wz - ground
			hi := int(math.Floor((h - p.params.MinHeight) / p.params.HeightRes))
			if hi < 0 || hi >= len(p.heightBin) {
				continue
			}

			w := 1.0
			if p.params.Method == Weighted {
				w = 1 / float64(len(pulse.Returns))
			}
			p.counts[zi][hi] += w
		}
	}
}

// ComputePgap converts accumulated counts into the cumulative gap
// probability Pgap(theta, z): the fraction of shots in a zenith ring not
// intercepted at or below each height. Rings with no shots keep NaN.
func (p *PlantProfile) ComputePgap() {
	for zi := range p.pgap {
		if p.shots[zi] == 0 {
			for hi := range p.pgap[zi] {
				p.pgap[zi][hi] = math.NaN()
			}
			continue
		}
		cum := 0.0
		for hi := range p.pgap[zi] {
			cum += p.counts[zi][hi]
			g := 1 - cum/p.shots[zi]
			if g < 0 {
				g = 0
			}
			p.pgap[zi][hi] = g
		}
	}
}

// Pgap returns the Pgap(theta, z) matrix, zenith-major.
func (p *PlantProfile) Pgap() [][]float64 { return p.pgap }

// HingeProfile estimates cumulative PAI from the zenith ring nearest the
// hinge angle: PAI(z) = -1.1 ln Pgap(hinge, z).
func (p *PlantProfile) HingeProfile() []float64 {
	hinge := hingeAngleDeg * math.Pi / 180
	best, bestDiff := -1, math.Inf(1)
	for zi, z := range p.zenithBin {
		if d := math.Abs(z - hinge); d < bestDiff && p.shots[zi] > 0 {
			best, bestDiff = zi, d
		}
	}

	pai := make([]float64, len(p.heightBin))
	if best < 0 {
		return pai
	}
	for hi := range pai {
		pai[hi] = -1.1 * safeLog(p.pgap[best][hi])
	}
	return pai
}

// SolidAngleProfile estimates cumulative PAI as the solid-angle weighted
// mean of -2 cos(theta) ln Pgap across zenith rings (spherical leaf angle
// distribution, G = 0.5).
func (p *PlantProfile) SolidAngleProfile() []float64 {
	weights := make([]float64, len(p.zenithBin))
	total := 0.0
	for zi, z := range p.zenithBin {
		if p.shots[zi] > 0 {
			weights[zi] = math.Sin(z)
			total += weights[zi]
		}
	}

	pai := make([]float64, len(p.heightBin))
	if total == 0 {
		return pai
	}
	for hi := range pai {
		sum := 0.0
		for zi, w := range weights {
			if w == 0 {
				continue
			}
			sum += w * 2 * math.Cos(p.zenithBin[zi]) * -safeLog(p.pgap[zi][hi])
		}
		pai[hi] = sum / total
	}
	return pai
}

// LinearProfile solves, per height bin, the linear Pgap model
//
//	-ln Pgap(theta, z) = PAIv(z) * (2 tan(theta) / pi) + PAIh(z)
//
// across zenith rings, returning the combined cumulative PAI profile and,
// when calcMLA is set, the mean leaf angle implied by the vertical and
// horizontal components.
func (p *PlantProfile) LinearProfile(calcMLA bool) (pai, mla []float64) {
	var rows []int
	for zi := range p.zenithBin {
		if p.shots[zi] > 0 {
			rows = append(rows, zi)
		}
	}

	pai = make([]float64, len(p.heightBin))
	if calcMLA {
		mla = make([]float64, len(p.heightBin))
	}
	if len(rows) < 2 {
		return pai, mla
	}

	a := mat.NewDense(len(rows), 2, nil)
	for i, zi := range rows {
		a.Set(i, 0, math.Abs(2*math.Tan(p.zenithBin[zi])/math.Pi))
		a.Set(i, 1, 1)
	}

	b := mat.NewVecDense(len(rows), nil)
	for hi := range p.heightBin {
		for i, zi := range rows {
			b.SetVec(i, -safeLog(p.pgap[zi][hi]))
		}
		var x mat.VecDense
		if err := x.SolveVec(a, b); err != nil {
			continue
		}
		paiv, paih := math.Max(x.AtVec(0), 0), math.Max(x.AtVec(1), 0)
		pai[hi] = paiv + paih
		if calcMLA {
			mla[hi] = math.Atan2(paiv, paih) * 180 / math.Pi
		}
	}
	return pai, mla
}

// PAVD differentiates a cumulative PAI profile with respect to height using
// central differences (one-sided at the ends), yielding plant area volume
// density per vertical bin.
func (p *PlantProfile) PAVD(pai []float64) []float64 {
	n := len(pai)
	pavd := make([]float64, n)
	if n == 0 {
		return pavd
	}
	h := p.params.HeightRes
	if n == 1 {
		pavd[0] = pai[0] / h
		return pavd
	}
	pavd[0] = (pai[1] - pai[0]) / h
	for i := 1; i < n-1; i++ {
		pavd[i] = (pai[i+1] - pai[i-1]) / (2 * h)
	}
	pavd[n-1] = (pai[n-1] - pai[n-2]) / h
	return pavd
}

// Total integrates a profile over height: sum(pai) * hres.
func (p *PlantProfile) Total(pai []float64) float64 {
	sum := 0.0
	for _, v := range pai {
		sum += v
	}
	return sum * p.params.HeightRes
}

// safeLog is ln clamped against zero and NaN Pgap values so empty or fully
// occluded bins contribute nothing instead of infinities.
func safeLog(g float64) float64 {
	if math.IsNaN(g) || g <= 0 {
		return 0
	}
	return math.Log(g)
}
