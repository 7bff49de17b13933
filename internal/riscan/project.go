// Package riscan locates scan positions and their data files inside a RISCAN
// project tree, and derives the shared spatial bounds of a survey.
//
// A RISCAN project is a directory (conventionally named *.RiSCAN) containing
// a SCANS/ directory with one ScanPosNNN subdirectory per sensor setup. The
// exact placement of raw scans, decimated scans and registration matrices
// varies between RiSCAN PRO versions and field workflows; the resolver in
// this package tries each known layout in a fixed priority order.
package riscan

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/canopy.report/internal/fsutil"
	"github.com/banshee-data/canopy.report/internal/monitoring"
)

const (
	scansDir       = "SCANS"
	positionPrefix = "ScanPos"
)

// ErrNoScansDir reports a directory that is not a RISCAN project at all.
// It is fatal: no position processing can start without a SCANS directory.
var ErrNoScansDir = errors.New("SCANS directory not found")

// SkipError marks a position whose required files could not be resolved
// under any known layout. It is a warning, not a failure: the position is
// excluded from the work list and the batch continues.
type SkipError struct {
	Position string
	Reason   string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipping %s: %s", e.Position, e.Reason)
}

// Mode selects which resolution conventions apply. The voxelization workflow
// tolerates two extra legacy layouts that the profile workflow never sees.
type Mode int

const (
	ProfileMode Mode = iota
	VoxelMode
)

// FileSet describes the resolved data files for one scan position. RawScan
// and Transform always exist at resolution time. Decimated is empty when no
// RDBX companion exists on disk; downstream processing then falls back to
// the raw scan alone.
type FileSet struct {
	Position  string // e.g. "ScanPos001"
	ScanName  string // raw scan base name without extension
	RawScan   string // .rxp path
	Decimated string // .rdbx path, or "" when absent
	Transform string // .DAT registration matrix path
}

// Project is a read-only view of a RISCAN project directory.
type Project struct {
	Root string
	FS   fsutil.FileSystem
}

// Open validates that root looks like a RISCAN project. A missing SCANS
// directory is the only fatal project-structure error.
func Open(root string, fsys fsutil.FileSystem) (*Project, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	p := &Project{Root: root, FS: fsys}
	if !fsys.Exists(filepath.Join(root, scansDir)) {
		return nil, fmt.Errorf("%w in %s", ErrNoScansDir, root)
	}
	return p, nil
}

// Name returns the project name: the root's base name with any .RiSCAN
// style extension removed. Used to name the voxelization config file.
func (p *Project) Name() string {
	base := filepath.Base(filepath.Clean(p.Root))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ListPositions returns every ScanPos directory name under SCANS/, sorted
// lexically ascending so processing order is deterministic.
func (p *Project) ListPositions() ([]string, error) {
	entries, err := p.FS.ReadDir(filepath.Join(p.Root, scansDir))
	if err != nil {
		return nil, fmt.Errorf("listing scan positions: %w", err)
	}

	var positions []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), positionPrefix) {
			positions = append(positions, e.Name())
		}
	}
	sort.Strings(positions)
	return positions, nil
}

// Discover lists all positions and resolves each one, returning the ordered
// file sets for resolvable positions plus the names of skipped ones. Skips
// are logged as they occur; only a missing SCANS directory aborts.
func (p *Project) Discover(mode Mode) (resolved []FileSet, skipped []string, err error) {
	positions, err := p.ListPositions()
	if err != nil {
		return nil, nil, err
	}

	for _, pos := range positions {
		fset, err := p.Resolve(pos, mode)
		if err != nil {
			var skip *SkipError
			if errors.As(err, &skip) {
				monitoring.Logf("warning: skipping %s: missing required files (%s)", pos, skip.Reason)
				skipped = append(skipped, pos)
				continue
			}
			return nil, nil, err
		}
		resolved = append(resolved, fset)
	}
	return resolved, skipped, nil
}
