package naming

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CompressedSuffix is appended to every output basename. The marker is also
// how the scanner recognizes already-processed sources, so it must stay in
// lockstep with discovery.
const CompressedSuffix = "_compressed.mp4"

// MapOutputPath mirrors a source file's folder position under destRoot:
//
//	<srcRoot>/front/2025-08-21/ch01-0830.dav
//	  → <destRoot>/front/2025-08-21/ch01-0830_compressed.mp4
//
// The source extension is dropped; output is always MP4. Sources outside
// srcRoot are rejected rather than mapped somewhere surprising.
func MapOutputPath(srcPath, srcRoot, destRoot string) (string, error) {
	rel, err := filepath.Rel(srcRoot, srcPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source %s is outside the source root", srcPath)
	}
	return filepath.Join(destRoot, filepath.Dir(rel), CompressedName(filepath.Base(srcPath))), nil
}

// CompressedName converts a source basename to its output basename.
func CompressedName(base string) string {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + CompressedSuffix
}

// LocalScratchPath places the in-progress encode on local disk. Encoding
// straight onto the NAS risks a truncated file on any network hiccup, so the
// finished file is copied over and verified instead. One file encodes at a
// time, which keeps the flat scratch layout collision-free.
func LocalScratchPath(scratchDir, srcPath string) string {
	return filepath.Join(scratchDir, CompressedName(filepath.Base(srcPath)))
}
