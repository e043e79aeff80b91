// Package taskrunner executes externally defined build tasks with a hard
// timeout and escalating termination.
package taskrunner

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Outcomes
// =============================================================================

// OutcomeKind classifies how a task run ended.
type OutcomeKind string

const (
	// OutcomeSuccess means the task exited zero.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeFailedExitCode means the task exited non-zero on its own.
	OutcomeFailedExitCode OutcomeKind = "failed_exit_code"

	// OutcomeKilled means the process died to a signal that the runner did
	// not send.
	OutcomeKilled OutcomeKind = "killed"

	// OutcomeTimedOut means the runner's timeout monitor terminated the
	// process. Reported distinctly so callers can offer timeout-specific
	// remediation.
	OutcomeTimedOut OutcomeKind = "timed_out"
)

// Outcome is the result of one task execution.
type Outcome struct {
	Kind OutcomeKind

	// ExitCode is set when Kind is OutcomeFailedExitCode.
	ExitCode int
}

func (o Outcome) String() string {
	if o.Kind == OutcomeFailedExitCode {
		return fmt.Sprintf("%s(%d)", o.Kind, o.ExitCode)
	}
	return string(o.Kind)
}

// =============================================================================
// Runner
// =============================================================================

// RunnerConfig configures task execution.
type RunnerConfig struct {
	// KillGrace is how long to wait after a graceful termination signal
	// before sending a forceful kill. Default: 5 seconds.
	KillGrace time.Duration

	// ScriptRunner is the executable used for named package scripts.
	// Default: "npm" (invoked as `npm run <name>`).
	ScriptRunner string

	// Stdout and Stderr redirect the task's streams when set; nil means
	// the parent's streams are inherited.
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes build tasks.
type Runner struct {
	config RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a task runner.
func NewRunner(config RunnerConfig, logger *slog.Logger) *Runner {
	if config.KillGrace == 0 {
		config.KillGrace = 5 * time.Second
	}
	if config.ScriptRunner == "" {
		config.ScriptRunner = "npm"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		config: config,
		logger: logger.With("component", "taskrunner"),
	}
}

// Execute runs a task and reports how it ended. workingDirRoot is the project
// root; the task's dir override is resolved against it. A zero timeout means
// no monitor is armed. Only spawn-level problems (unresolvable command,
// unstartable process) are returned as errors; everything the process itself
// does is an Outcome.
func (r *Runner) Execute(task domain.BuildTask, workingDirRoot string, timeout time.Duration) (Outcome, error) {
	name, args, err := r.resolveCommand(task)
	if err != nil {
		return Outcome{}, err
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = resolveWorkingDir(task, workingDirRoot)
	cmd.Env = layerEnv(os.Environ(), task.Env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if r.config.Stdout != nil {
		cmd.Stdout = r.config.Stdout
	}
	if r.config.Stderr != nil {
		cmd.Stderr = r.config.Stderr
	}

	r.logger.Info("running task",
		"label", task.Label,
		"command", name,
		"args", strings.Join(args, " "),
		"dir", cmd.Dir,
		"timeout", timeout,
	)

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start task %s: %w", task.Label, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timer *time.Timer
	var expired <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		return classifyExit(err), nil
	case <-expired:
	}

	// Timeout fired: terminate gracefully, escalate to a forceful kill if
	// the process lingers past the grace window.
	r.logger.Warn("task timed out, terminating", "label", task.Label, "grace", r.config.KillGrace)
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(r.config.KillGrace):
		r.logger.Warn("task ignored termination, killing", "label", task.Label)
		_ = cmd.Process.Kill()
		<-done
	}

	return Outcome{Kind: OutcomeTimedOut}, nil
}

// =============================================================================
// Command Resolution
// =============================================================================

func (r *Runner) resolveCommand(task domain.BuildTask) (string, []string, error) {
	switch task.Kind {
	case domain.TaskKindCommand:
		if task.Command == "" {
			return "", nil, fmt.Errorf("task %s: empty command", task.Label)
		}
		return task.Command, task.Args, nil

	case domain.TaskKindShell:
		fields := strings.Fields(task.Command)
		if len(fields) == 0 {
			return "", nil, fmt.Errorf("task %s: empty shell command", task.Label)
		}
		return fields[0], append(fields[1:], task.Args...), nil

	case domain.TaskKindScript:
		if task.Command == "" {
			return "", nil, fmt.Errorf("task %s: empty script name", task.Label)
		}
		args := append([]string{"run", task.Command}, task.Args...)
		return r.config.ScriptRunner, args, nil

	default:
		return "", nil, fmt.Errorf("task %s: unknown kind %q", task.Label, task.Kind)
	}
}

func resolveWorkingDir(task domain.BuildTask, root string) string {
	if task.Dir == "" {
		return root
	}
	if filepath.IsAbs(task.Dir) {
		return task.Dir
	}
	return filepath.Join(root, task.Dir)
}

// layerEnv applies overrides on top of the ambient environment.
func layerEnv(ambient []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return ambient
	}
	env := make([]string, 0, len(ambient)+len(overrides))
	for _, kv := range ambient {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, overridden := overrides[key]; !overridden {
			env = append(env, kv)
		}
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// classifyExit maps a Wait error onto an outcome.
func classifyExit(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess}
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code >= 0 {
			return Outcome{Kind: OutcomeFailedExitCode, ExitCode: code}
		}
		// Terminated by a signal we did not send.
		return Outcome{Kind: OutcomeKilled}
	}
	return Outcome{Kind: OutcomeKilled}
}
