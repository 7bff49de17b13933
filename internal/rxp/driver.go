// Package rxp is the boundary to proprietary raw-scan decoding. The RXP and
// RDBX formats need the vendor's driver library; everything above this
// package works against the ScanSource interface so the rest of the
// pipeline builds and tests without it. A Synthetic driver generates
// deterministic scans for tests, and the Disabled driver gives a clean
// error when no decoder has been registered.
package rxp

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrNoDriver reports that no raw-scan decoder is available in this build.
var ErrNoDriver = errors.New("no RXP driver registered in this build")

// Return is a single echo of a pulse.
type Return struct {
	Range       float64 // metres from the sensor
	Reflectance float64 // dB
}

// Pulse is one emitted laser shot in the sensor frame.
type Pulse struct {
	Zenith  float64 // radians from sensor +Z
	Azimuth float64 // radians clockwise from sensor +Y
	Returns []Return
}

// Dir returns the pulse's unit direction in the sensor frame.
// Convention matches the rest of the codebase: X=right, Y=forward, Z=up.
func (p Pulse) Dir() (x, y, z float64) {
	sinZ, cosZ := math.Sin(p.Zenith), math.Cos(p.Zenith)
	x = sinZ * math.Sin(p.Azimuth)
	y = sinZ * math.Cos(p.Azimuth)
	z = cosZ
	return
}

// ScanSource yields the pulses of one scan.
type ScanSource interface {
	// Pulses returns every pulse of the scan.
	Pulses() ([]Pulse, error)

	// Close releases decoder resources.
	Close() error
}

// Driver opens raw scans. rdbxPath may be empty, in which case the decoder
// must fall back to the raw scan alone.
type Driver interface {
	Name() string
	Open(rxpPath, rdbxPath string) (ScanSource, error)
}

var (
	driverMu sync.Mutex
	driver   Driver = Disabled{}
)

// Register installs the decoder used by Open. Typically called from an init
// in a vendor-specific build tag, or from tests installing a Synthetic.
func Register(d Driver) {
	driverMu.Lock()
	defer driverMu.Unlock()
	if d == nil {
		driver = Disabled{}
		return
	}
	driver = d
}

// Active returns the currently registered driver.
func Active() Driver {
	driverMu.Lock()
	defer driverMu.Unlock()
	return driver
}

// Open opens a scan with the registered driver.
func Open(rxpPath, rdbxPath string) (ScanSource, error) {
	return Active().Open(rxpPath, rdbxPath)
}

// Disabled is the default driver in builds without a vendor decoder.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Open(rxpPath, rdbxPath string) (ScanSource, error) {
	return nil, fmt.Errorf("opening %s: %w", rxpPath, ErrNoDriver)
}
