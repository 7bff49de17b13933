package riscan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/canopy.report/internal/fsutil"
)

// Transform is the rigid sensor-to-world registration read from a .DAT
// file: a 4x4 row-major matrix. Row 3 holds the sensor's world origin
// (x, y, z, 1); those three values are the position's absolute ground
// coordinates used for bounds aggregation and reporting.
type Transform [16]float64

// ParseTransform parses the whitespace-separated 4x4 matrix text of a
// RiSCAN .DAT file.
func ParseTransform(data []byte) (Transform, error) {
	var t Transform
	fields := strings.Fields(string(data))
	if len(fields) != 16 {
		return t, fmt.Errorf("expected 16 matrix values, got %d", len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return t, fmt.Errorf("matrix value %d: %w", i, err)
		}
		t[i] = v
	}
	return t, nil
}

// ReadTransform loads and parses a transform file.
func ReadTransform(fsys fsutil.FileSystem, path string) (Transform, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Transform{}, fmt.Errorf("reading transform: %w", err)
	}
	t, err := ParseTransform(data)
	if err != nil {
		return Transform{}, fmt.Errorf("parsing transform %s: %w", path, err)
	}
	return t, nil
}

// Origin returns the sensor's absolute world coordinates (matrix row 3).
func (t Transform) Origin() (x, y, z float64) {
	return t[12], t[13], t[14]
}

// Apply transforms a sensor-frame point into world coordinates.
// The matrix is stored row-major with translation in row 3, so a point is
// mapped as p' = p·M (row vector convention, matching the .DAT layout).
func (t Transform) Apply(x, y, z float64) (wx, wy, wz float64) {
	wx = x*t[0] + y*t[4] + z*t[8] + t[12]
	wy = x*t[1] + y*t[5] + z*t[9] + t[13]
	wz = x*t[2] + y*t[6] + z*t[10] + t[14]
	return
}

// ApplyVector rotates a sensor-frame direction into the world frame,
// ignoring translation.
func (t Transform) ApplyVector(x, y, z float64) (wx, wy, wz float64) {
	wx = x*t[0] + y*t[4] + z*t[8]
	wy = x*t[1] + y*t[5] + z*t[9]
	wz = x*t[2] + y*t[6] + z*t[10]
	return
}
