package orchestrator

import (
	"errors"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Decider
// =============================================================================

// ErrNoTaskSelected is returned by a Decider that has no task answer.
var ErrNoTaskSelected = errors.New("no build task selected")

// Decider supplies the decisions a pipeline run cannot make on its own. The
// state machine stays pure and testable by depending on this interface
// instead of a prompt; an interactive implementation can live at the CLI
// layer.
type Decider interface {
	// ChooseTask picks a build task label. buildLike is the subset of
	// tasks that look like build steps; all is every catalog task.
	ChooseTask(buildLike, all []domain.BuildTask) (string, error)

	// ConfirmPackageFallback is asked at most once per run, after a full
	// deploy has timed out: may the pipeline retry as package-only?
	ConfirmPackageFallback() bool
}

// Answers is a programmatic Decider with pre-supplied answers.
type Answers struct {
	// TaskLabel answers ChooseTask. Empty means no answer.
	TaskLabel string

	// AcceptPackageFallback answers ConfirmPackageFallback.
	AcceptPackageFallback bool
}

func (a Answers) ChooseTask(buildLike, all []domain.BuildTask) (string, error) {
	if a.TaskLabel == "" {
		return "", ErrNoTaskSelected
	}
	return a.TaskLabel, nil
}

func (a Answers) ConfirmPackageFallback() bool {
	return a.AcceptPackageFallback
}
