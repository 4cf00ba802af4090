package zipvault

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolveExtractPath joins an entry's path onto destDir and rejects any
// result that would escape destDir, catching ".." traversal (Zip Slip)
// before any filesystem write happens (§4.8). An absolute entry path is
// joined under destDir like a relative one rather than rejected.
func resolveExtractPath(entryPath, destDir string) (string, error) {
	if entryPath == "" || strings.ContainsRune(entryPath, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, entryPath)
	}

	cleanDest := filepath.Clean(destDir)
	target := filepath.Join(cleanDest, filepath.FromSlash(entryPath))

	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes destination %q", ErrInvalidEntryPath, entryPath, destDir)
	}
	return target, nil
}

// resolveSymlinkTarget computes the absolute path a symlink at linkPath
// (already known to live under destDir) would resolve to, following the
// same relative-to-parent rule a filesystem symlink follows.
func resolveSymlinkTarget(linkPath, rawTarget string) string {
	if filepath.IsAbs(rawTarget) {
		return filepath.Clean(rawTarget)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(linkPath), rawTarget))
}

// checkSymlinkContainment rejects a symlink whose resolved target would
// land outside destDir, unless the caller explicitly allowed it (§4.8).
func checkSymlinkContainment(destDir, linkPath, rawTarget string, allow bool) error {
	if allow {
		return nil
	}
	cleanDest := filepath.Clean(destDir)
	resolved := resolveSymlinkTarget(linkPath, rawTarget)
	if resolved != cleanDest && !strings.HasPrefix(resolved, cleanDest+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q -> %q", ErrUncontainedSymlink, linkPath, rawTarget)
	}
	return nil
}

func validateBufferSize(n int) error {
	if n <= 0 {
		return ErrInvalidBufferSize
	}
	return nil
}
