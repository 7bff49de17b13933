package rxp

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// Synthetic generates a deterministic artificial scan: a flat ground
// surface below the sensor and a partially transparent canopy slab above
// it. The pulse set depends only on the configuration and the opened path,
// so tests are repeatable. It stands in for the vendor decoder the same way
// a mock serial port stands in for absent hardware.
type Synthetic struct {
	ZenithStepDeg  float64 // angular sampling, degrees
	AzimuthStepDeg float64
	MaxZenithDeg   float64 // sky pulses beyond this are not emitted

	SensorHeight float64 // metres above the ground surface
	CanopyBase   float64 // canopy slab, metres above the sensor
	CanopyTop    float64
	GapFraction  float64 // probability an upward pulse escapes the canopy

	CanopyReflectance float64
	GroundReflectance float64
}

// DefaultSynthetic returns a scene dense enough for profile and voxel
// tests without being slow.
func DefaultSynthetic() *Synthetic {
	return &Synthetic{
		ZenithStepDeg:     2.5,
		AzimuthStepDeg:    6,
		MaxZenithDeg:      130,
		SensorHeight:      1.5,
		CanopyBase:        3,
		CanopyTop:         18,
		GapFraction:       0.4,
		CanopyReflectance: -12,
		GroundReflectance: -4,
	}
}

func (s *Synthetic) Name() string { return "synthetic" }

// Open returns a source seeded from the path, so distinct scans differ but
// reopening the same scan reproduces it exactly. The file need not exist.
func (s *Synthetic) Open(rxpPath, rdbxPath string) (ScanSource, error) {
	h := fnv.New64a()
	h.Write([]byte(rxpPath))
	return &syntheticSource{cfg: *s, seed: int64(h.Sum64())}, nil
}

type syntheticSource struct {
	cfg  Synthetic
	seed int64
}

func (src *syntheticSource) Pulses() ([]Pulse, error) {
	cfg := src.cfg
	rng := rand.New(rand.NewSource(src.seed))

	var pulses []Pulse
	for zd := cfg.ZenithStepDeg / 2; zd <= cfg.MaxZenithDeg; zd += cfg.ZenithStepDeg {
		for ad := 0.0; ad < 360; ad += cfg.AzimuthStepDeg {
			zenith := zd * math.Pi / 180
			azimuth := ad * math.Pi / 180
			p := Pulse{Zenith: zenith, Azimuth: azimuth}

			cosZ := math.Cos(zenith)
			switch {
			case cosZ < 0:
				// Downward pulse: single ground return.
				p.Returns = []Return{{
					Range:       cfg.SensorHeight / -cosZ,
					Reflectance: cfg.GroundReflectance,
				}}
			case rng.Float64() >= cfg.GapFraction && cosZ > 1e-9:
				// Intercepted by foliage somewhere in the slab.
				h := cfg.CanopyBase + rng.Float64()*(cfg.CanopyTop-cfg.CanopyBase)
				p.Returns = []Return{{
					Range:       h / cosZ,
					Reflectance: cfg.CanopyReflectance,
				}}
			default:
				// Escapes to the sky: no return.
			}
			pulses = append(pulses, p)
		}
	}
	return pulses, nil
}

func (src *syntheticSource) Close() error { return nil }
