// Package buildconfig resolves a project's effective build/staging directory
// from externally authored configuration documents.
package buildconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFile is the per-project build configuration document, looked up at
// the project root.
const ConfigFile = "castforge.yaml"

// conventionalDirs are tried, in order, when no directory is configured.
var conventionalDirs = []string{"dist", "build", "out"}

// projectDoc mirrors the on-disk build configuration.
type projectDoc struct {
	// Staging is an explicit staging directory; highest priority.
	Staging string `yaml:"staging,omitempty"`

	// OutDir is the build system's declared output directory.
	OutDir string `yaml:"out_dir,omitempty"`
}

// ResolveBuildDir determines the directory holding deployment-ready output
// for a project. Priority: explicit staging path, declared output directory,
// conventional directory names that exist, then the project root itself.
//
// Configured paths may be absolute or relative to the project root. A
// malformed configuration document is an error; a missing one is not.
func ResolveBuildDir(projectRoot string) (string, error) {
	doc, err := readConfig(projectRoot)
	if err != nil {
		return "", err
	}

	if doc.Staging != "" {
		return resolvePath(projectRoot, doc.Staging), nil
	}
	if doc.OutDir != "" {
		return resolvePath(projectRoot, doc.OutDir), nil
	}

	for _, name := range conventionalDirs {
		candidate := filepath.Join(projectRoot, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}

	return projectRoot, nil
}

func readConfig(projectRoot string) (projectDoc, error) {
	var doc projectDoc
	data, err := os.ReadFile(filepath.Join(projectRoot, ConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read build config: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse build config: %w", err)
	}
	return doc, nil
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
