package domain

import "strings"

// =============================================================================
// Build Tasks
// =============================================================================

// TaskKind identifies how a build task's command is executed.
type TaskKind string

const (
	// TaskKindCommand runs a native command with its args directly.
	TaskKindCommand TaskKind = "command"

	// TaskKindShell tokenizes a shell command line and appends args.
	TaskKindShell TaskKind = "shell"

	// TaskKindScript runs a named package script through the platform's
	// script runner (npm run <name>).
	TaskKindScript TaskKind = "script"
)

// BuildTask is an externally authored build step, sourced from the task
// catalog. Read-only.
type BuildTask struct {
	// Label is the task's unique name within its catalog.
	Label string `yaml:"label"`

	// Kind selects the execution strategy.
	Kind TaskKind `yaml:"kind"`

	// Command is the executable, shell line or script name, per Kind.
	Command string `yaml:"command"`

	// Args are appended to the resolved command.
	Args []string `yaml:"args,omitempty"`

	// Dir overrides the working directory. Absolute, or relative to the
	// project root. Empty means the project root.
	Dir string `yaml:"dir,omitempty"`

	// Env holds environment overrides layered on top of the ambient
	// environment.
	Env map[string]string `yaml:"env,omitempty"`

	// Group optionally tags the task (e.g. "build").
	Group string `yaml:"group,omitempty"`
}

// buildLabelHints are substrings that mark a task label as build-like.
var buildLabelHints = []string{"build", "compile", "package", "deploy"}

// IsBuildLike reports whether the task looks like a build step, either by
// explicit group tag or by label heuristics.
func (t BuildTask) IsBuildLike() bool {
	if t.Group == "build" {
		return true
	}
	label := strings.ToLower(t.Label)
	for _, hint := range buildLabelHints {
		if strings.Contains(label, hint) {
			return true
		}
	}
	return false
}

// FilterBuildLike returns the subset of tasks that look like build steps,
// preserving order.
func FilterBuildLike(tasks []BuildTask) []BuildTask {
	var out []BuildTask
	for _, t := range tasks {
		if t.IsBuildLike() {
			out = append(out, t)
		}
	}
	return out
}

// TaskLabels returns the labels of all tasks, preserving order.
func TaskLabels(tasks []BuildTask) []string {
	labels := make([]string, len(tasks))
	for i, t := range tasks {
		labels[i] = t.Label
	}
	return labels
}

// FindTask returns the task with the given label, if present.
func FindTask(tasks []BuildTask, label string) (BuildTask, bool) {
	for _, t := range tasks {
		if t.Label == label {
			return t, true
		}
	}
	return BuildTask{}, false
}
