// Package taskcatalog reads externally authored build-task definitions from a
// project's task document.
package taskcatalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/castforge/castforge/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// CatalogFile is the task document's filename, looked up at the project root.
const CatalogFile = "castforge-tasks.yaml"

var (
	// ErrNoCatalog is returned when the project has no task document.
	ErrNoCatalog = errors.New("no task catalog found")

	// ErrDuplicateLabel is returned when two tasks share a label.
	ErrDuplicateLabel = errors.New("duplicate task label")
)

// catalogDoc mirrors the on-disk document.
type catalogDoc struct {
	Version string             `yaml:"version,omitempty"`
	Tasks   []domain.BuildTask `yaml:"tasks"`
}

// ListTasks parses the task catalog at the project root. A missing catalog
// yields ErrNoCatalog; a present but malformed one is an error (the caller
// decided to use tasks, so silence would hide a real authoring mistake).
func ListTasks(projectRoot string) ([]domain.BuildTask, error) {
	path := filepath.Join(projectRoot, CatalogFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoCatalog, path)
		}
		return nil, fmt.Errorf("read task catalog: %w", err)
	}

	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse task catalog %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(doc.Tasks))
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		if t.Label == "" {
			return nil, fmt.Errorf("task catalog %s: task %d has no label", path, i)
		}
		if _, dup := seen[t.Label]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, t.Label)
		}
		seen[t.Label] = struct{}{}
		if t.Kind == "" {
			t.Kind = domain.TaskKindShell
		}
	}

	return doc.Tasks, nil
}
