// Package canopy derives vertical plant-profile metrics from terrestrial
// laser scans: directional gap probability binned by zenith and height, and
// plant area index / density profiles estimated from it by the hinge-angle,
// linear and solid-angle-weighted methods.
package canopy

import "fmt"

// Method selects how pulse returns are weighted in the Pgap estimate.
type Method int

const (
	// Weighted spreads one unit of energy equally across a pulse's returns.
	Weighted Method = iota
	// First counts only the first return of each pulse.
	First
	// All counts every return with full weight.
	All
)

func (m Method) String() string {
	switch m {
	case Weighted:
		return "WEIGHTED"
	case First:
		return "FIRST"
	case All:
		return "ALL"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod parses the CLI spelling of a method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "WEIGHTED":
		return Weighted, nil
	case "FIRST":
		return First, nil
	case "ALL":
		return All, nil
	}
	return Weighted, fmt.Errorf("unknown Pgap method %q (want WEIGHTED, FIRST or ALL)", s)
}

// Params configures profile generation for one position.
type Params struct {
	HeightRes  float64 // vertical bin size, metres
	ZenithRes  float64 // zenith bin size, degrees
	AzimuthRes float64 // azimuth bin size, degrees
	MinZenith  float64 // degrees
	MaxZenith  float64 // degrees
	MinHeight  float64 // metres
	MaxHeight  float64 // metres

	ReflectanceThreshold float64 // returns below this are ignored
	Method               Method
}

// DefaultParams mirrors the operational defaults of the profile batch.
func DefaultParams() Params {
	return Params{
		HeightRes:            0.5,
		ZenithRes:            5,
		AzimuthRes:           90,
		MinZenith:            35,
		MaxZenith:            70,
		MinHeight:            0,
		MaxHeight:            50,
		ReflectanceThreshold: -20,
		Method:               Weighted,
	}
}
