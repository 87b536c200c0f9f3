package cliutil

import "path/filepath"

// ResolveOutputPath prefixes path with dir when path is relative and dir
// is non-empty, so KRAKEN_OUTPUT_DIR can relocate every tool's output
// without touching -o/--output itself.
func ResolveOutputPath(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
