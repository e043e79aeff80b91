package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// =============================================================================
// Artifact Relocation
// =============================================================================

// relocate moves an artifact to the configured output path. When the
// artifact is already at the target, nothing is touched. Otherwise the file
// is copied, and the original is removed only when it resided in a different
// directory.
func relocate(artifact, target string) error {
	artifact = filepath.Clean(artifact)
	target = filepath.Clean(target)
	if artifact == target {
		return nil
	}

	if err := copyFile(artifact, target); err != nil {
		return err
	}

	if filepath.Dir(artifact) != filepath.Dir(target) {
		if err := os.Remove(artifact); err != nil {
			return fmt.Errorf("remove staged artifact: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output artifact: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}
