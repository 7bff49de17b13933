package riscan

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const (
	singleScansDir = "SINGLESCANS"
	projectRDBDir  = "project.rdb"
	datDir         = "DAT"
	matrixDir      = "matrix"
	rawExt         = ".rxp"
	residualSuffix = ".residual.rxp"
	decimatedExt   = ".rdbx"
	transformExt   = ".DAT"

	// timestampPattern matches the instrument's YYMMDD_HHMMSS scan naming.
	timestampPattern = "??????_??????.rxp"
)

// rawResolver is one convention for locating the raw scan file of a
// position. Conventions are tried in priority order; the first that yields
// an existing file wins. Each returns ok=false when its layout is absent,
// never an error.
type rawResolver func(p *Project, pos string) (path string, ok bool)

// rawResolvers returns the convention list for the given mode. Order
// matters: the modern nested layout is always preferred.
func rawResolvers(mode Mode) []rawResolver {
	resolvers := []rawResolver{resolveRawNested, resolveRawFlat}
	if mode == VoxelMode {
		resolvers = append(resolvers, resolveRawTimestamped)
	}
	return resolvers
}

// transformCandidates returns the transform file locations to probe, in
// priority order, for the given mode.
func transformCandidates(p *Project, pos string, mode Mode) []string {
	candidates := []string{
		filepath.Join(p.Root, datDir, pos+transformExt),
		filepath.Join(p.Root, projectRDBDir, scansDir, pos+transformExt),
	}
	if mode == VoxelMode {
		candidates = append(candidates, filepath.Join(p.Root, scansDir, matrixDir, pos+transformExt))
	}
	return candidates
}

// Resolve builds the FileSet for one position. The raw scan and transform
// are resolved independently through their own convention lists; the
// decimated scan is a single deterministic template that is only
// existence-checked. A missing raw scan or transform yields a *SkipError.
func (p *Project) Resolve(pos string, mode Mode) (FileSet, error) {
	var rawPath string
	for _, resolve := range rawResolvers(mode) {
		if found, ok := resolve(p, pos); ok {
			rawPath = found
			break
		}
	}
	if rawPath == "" {
		return FileSet{}, &SkipError{Position: pos, Reason: "no raw scan file"}
	}

	scanName := strings.TrimSuffix(filepath.Base(rawPath), rawExt)

	var transformPath string
	for _, candidate := range transformCandidates(p, pos, mode) {
		if p.FS.Exists(candidate) {
			transformPath = candidate
			break
		}
	}
	if transformPath == "" {
		return FileSet{}, &SkipError{Position: pos, Reason: "no transform file"}
	}

	// Decimated scan: fixed template, absence is a capability reduction only.
	decimated := filepath.Join(p.Root, projectRDBDir, scansDir, pos,
		singleScansDir, scanName, scanName+decimatedExt)
	if !p.FS.Exists(decimated) {
		decimated = ""
	}

	return FileSet{
		Position:  pos,
		ScanName:  scanName,
		RawScan:   rawPath,
		Decimated: decimated,
		Transform: transformPath,
	}, nil
}

// resolveRawNested handles the standard RISCAN layout: the first
// subdirectory of SINGLESCANS/ containing a scan named after itself.
func resolveRawNested(p *Project, pos string) (string, bool) {
	dir := filepath.Join(p.Root, scansDir, pos, singleScansDir)
	entries, err := p.FS.ReadDir(dir)
	if err != nil {
		return "", false
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(dir, e.Name(), e.Name()+rawExt)
		if p.FS.Exists(candidate) {
			return candidate, true
		}
		// Only the first subdirectory is considered, matching the
		// established field workflow of one scan per position.
		return "", false
	}
	return "", false
}

// resolveRawFlat handles exports that drop the scan directly into
// SINGLESCANS/: first *.rxp by name, ignoring residual companions.
func resolveRawFlat(p *Project, pos string) (string, bool) {
	dir := filepath.Join(p.Root, scansDir, pos, singleScansDir)
	entries, err := p.FS.ReadDir(dir)
	if err != nil {
		return "", false
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, rawExt) || strings.HasSuffix(name, residualSuffix) {
			continue
		}
		return filepath.Join(dir, name), true
	}
	return "", false
}

// resolveRawTimestamped handles legacy voxelization projects where scans
// keep the instrument's YYMMDD_HHMMSS name. When several match, the newest
// by modification time wins (Go exposes no portable creation time); equal
// times fall back to the lexically last name, so a given tree always
// resolves the same file within a run.
func resolveRawTimestamped(p *Project, pos string) (string, bool) {
	dir := filepath.Join(p.Root, scansDir, pos, singleScansDir)
	entries, err := p.FS.ReadDir(dir)
	if err != nil {
		return "", false
	}

	type candidate struct {
		name string
		info fs.FileInfo
	}
	var matches []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := path.Match(timestampPattern, e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches = append(matches, candidate{name: e.Name(), info: info})
	}
	if len(matches) == 0 {
		return "", false
	}

	sort.Slice(matches, func(i, j int) bool {
		mi, mj := matches[i].info.ModTime(), matches[j].info.ModTime()
		if !mi.Equal(mj) {
			return mi.After(mj)
		}
		return matches[i].name > matches[j].name
	})
	return filepath.Join(dir, matches[0].name), true
}
