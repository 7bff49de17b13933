package canopy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/rxp"
)

func testParams() Params {
	p := DefaultParams()
	p.HeightRes = 1
	p.MinHeight = 0
	p.MaxHeight = 3
	p.ZenithRes = 10
	p.MinZenith = 50
	p.MaxZenith = 60
	return p
}

// pulseAt builds a pulse at the given zenith with one return per height,
// ranges chosen so the return lands exactly at that height above a flat
// ground plane through the origin.
func pulseAt(zenithDeg float64, heights ...float64) rxp.Pulse {
	zen := zenithDeg * math.Pi / 180
	p := rxp.Pulse{Zenith: zen}
	for _, h := range heights {
		p.Returns = append(p.Returns, rxp.Return{Range: h / math.Cos(zen), Reflectance: -10})
	}
	return p
}

func TestComputePgap(t *testing.T) {
	prof := NewPlantProfile(testParams(), [3]float64{})

	// 4 shots in the single 50-60 degree ring: two pass through, one
	// intercepted at 0.5 m, one at 1.5 m.
	prof.AddScan([]rxp.Pulse{
		pulseAt(55),
		pulseAt(55),
		pulseAt(55, 0.5),
		pulseAt(55, 1.5),
	}, identityTransform())
	prof.ComputePgap()

	pgap := prof.Pgap()
	require.Len(t, pgap, 1)
	assert.InDelta(t, 0.75, pgap[0][0], 1e-12)
	assert.InDelta(t, 0.5, pgap[0][1], 1e-12)
	assert.InDelta(t, 0.5, pgap[0][2], 1e-12, "cumulative above the last interception")
}

func TestAddScan_ZenithWindow(t *testing.T) {
	prof := NewPlantProfile(testParams(), [3]float64{})

	// 45 degrees is below the window, 60 is its exclusive upper edge.
	prof.AddScan([]rxp.Pulse{
		pulseAt(45, 0.5),
		pulseAt(60, 0.5),
	}, identityTransform())
	prof.ComputePgap()

	assert.True(t, math.IsNaN(prof.Pgap()[0][0]), "no shots landed in the ring")
}

func TestAddScan_ReflectanceThreshold(t *testing.T) {
	prof := NewPlantProfile(testParams(), [3]float64{})

	dim := pulseAt(55, 0.5)
	dim.Returns[0].Reflectance = -30
	prof.AddScan([]rxp.Pulse{dim}, identityTransform())
	prof.ComputePgap()

	// The pulse counts as a shot but its return is discarded.
	assert.InDelta(t, 1.0, prof.Pgap()[0][0], 1e-12)
}

func TestAddScan_Methods(t *testing.T) {
	// One pulse with two returns (0.5 m and 1.5 m), one clear pulse.
	pulses := []rxp.Pulse{pulseAt(55, 0.5, 1.5), pulseAt(55)}

	cases := []struct {
		method Method
		want   []float64
	}{
		{Weighted, []float64{0.75, 0.5, 0.5}}, // half a hit per bin
		{First, []float64{0.5, 0.5, 0.5}},     // second return ignored
		{All, []float64{0.5, 0, 0}},           // both returns at full weight
	}
	for _, tc := range cases {
		t.Run(tc.method.String(), func(t *testing.T) {
			params := testParams()
			params.Method = tc.method
			prof := NewPlantProfile(params, [3]float64{})
			prof.AddScan(pulses, identityTransform())
			prof.ComputePgap()

			for hi, want := range tc.want {
				assert.InDelta(t, want, prof.Pgap()[0][hi], 1e-12, "bin %d", hi)
			}
		})
	}
}

func TestAddScan_GroundPlaneOffset(t *testing.T) {
	// With the ground plane 10 m up, a return at world z = 10.5 sits in the
	// first height bin rather than far above the profile.
	prof := NewPlantProfile(testParams(), [3]float64{10, 0, 0})
	prof.AddScan([]rxp.Pulse{pulseAt(55, 10.5)}, identityTransform())
	prof.ComputePgap()

	assert.InDelta(t, 0.0, prof.Pgap()[0][0], 1e-12)
}

func TestHingeProfile(t *testing.T) {
	prof := NewPlantProfile(testParams(), [3]float64{})
	prof.AddScan([]rxp.Pulse{
		pulseAt(55),
		pulseAt(55),
		pulseAt(55, 0.5),
		pulseAt(55, 1.5),
	}, identityTransform())
	prof.ComputePgap()

	pai := prof.HingeProfile()
	require.Len(t, pai, 3)
	assert.InDelta(t, -1.1*math.Log(0.75), pai[0], 1e-12)
	assert.InDelta(t, -1.1*math.Log(0.5), pai[1], 1e-12)
	assert.InDelta(t, -1.1*math.Log(0.5), pai[2], 1e-12)
}

func TestLinearProfile_RecoversComponents(t *testing.T) {
	// Two zenith rings with Pgap generated from known PAIv and PAIh through
	// -ln Pgap = PAIv * (2 tan(theta) / pi) + PAIh.
	params := testParams()
	params.MinZenith = 40
	params.MaxZenith = 60
	params.MaxHeight = 1

	const paiv, paih = 0.5, 0.2

	prof := NewPlantProfile(params, [3]float64{})
	require.Len(t, prof.zenithBin, 2)
	for zi, z := range prof.zenithBin {
		k := paiv*math.Abs(2*math.Tan(z)/math.Pi) + paih
		prof.shots[zi] = 1
		prof.counts[zi][0] = 1 - math.Exp(-k)
	}
	prof.ComputePgap()

	pai, mla := prof.LinearProfile(true)
	require.Len(t, pai, 1)
	assert.InDelta(t, paiv+paih, pai[0], 1e-9)
	assert.InDelta(t, math.Atan2(paiv, paih)*180/math.Pi, mla[0], 1e-9)
}

func TestLinearProfile_NeedsTwoRings(t *testing.T) {
	prof := NewPlantProfile(testParams(), [3]float64{})
	prof.AddScan([]rxp.Pulse{pulseAt(55, 0.5)}, identityTransform())
	prof.ComputePgap()

	pai, mla := prof.LinearProfile(true)
	assert.Equal(t, []float64{0, 0, 0}, pai)
	assert.Equal(t, []float64{0, 0, 0}, mla)
}

func TestSolidAngleProfile_SingleRing(t *testing.T) {
	prof := NewPlantProfile(testParams(), [3]float64{})
	prof.AddScan([]rxp.Pulse{
		pulseAt(55),
		pulseAt(55, 0.5),
	}, identityTransform())
	prof.ComputePgap()

	// With one populated ring the sin weights cancel and the estimate is
	// -2 cos(theta) ln Pgap at the ring centre.
	z := prof.zenithBin[0]
	want := 2 * math.Cos(z) * -math.Log(0.5)
	assert.InDelta(t, want, prof.SolidAngleProfile()[0], 1e-12)
}

func TestPAVDAndTotal(t *testing.T) {
	prof := NewPlantProfile(testParams(), [3]float64{})

	pavd := prof.PAVD([]float64{0, 1, 2})
	assert.Equal(t, []float64{1, 1, 1}, pavd)

	assert.InDelta(t, 3.0, prof.Total([]float64{0, 1, 2}), 1e-12)
}
