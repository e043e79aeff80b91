package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// Build Directory Validation
// =============================================================================

const (
	// ManifestFile must exist at the root of a deployable build directory.
	ManifestFile = "manifest"

	// SourceDir must exist and contain an entry-point file.
	SourceDir = "source"

	// entryPointPrefix is the basename (before the extension) of the file
	// that marks a source directory as runnable.
	entryPointPrefix = "main."
)

// ValidateBuildDir checks that dir is a deployable build directory and
// returns every defect found, not just the first. An empty slice means the
// directory is valid.
func ValidateBuildDir(dir string) []string {
	var defects []string

	if info, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil || info.IsDir() {
		defects = append(defects, fmt.Sprintf("missing %s file in %s", ManifestFile, dir))
	}

	srcPath := filepath.Join(dir, SourceDir)
	info, err := os.Stat(srcPath)
	if err != nil || !info.IsDir() {
		defects = append(defects, fmt.Sprintf("missing %s directory in %s", SourceDir, dir))
		return defects
	}

	if !hasEntryPoint(srcPath) {
		defects = append(defects, fmt.Sprintf("no entry-point file (%s*) in %s", entryPointPrefix, srcPath))
	}

	return defects
}

// HasManifest reports whether dir looks like a prior build output: a
// directory whose root carries the manifest file.
func HasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil && !info.IsDir()
}

func hasEntryPoint(srcDir string) bool {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasPrefix(name, entryPointPrefix) && len(name) > len(entryPointPrefix) {
			return true
		}
	}
	return false
}
