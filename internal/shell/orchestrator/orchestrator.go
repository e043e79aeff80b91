// Package orchestrator drives the deployment pipeline: home navigation,
// optional build execution, project validation, device re-authorization,
// deploy/sign with a timeout race, and artifact relocation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/castforge/castforge/internal/core/stage"
	"github.com/castforge/castforge/internal/shell/device"
	"github.com/castforge/castforge/internal/shell/taskrunner"
	"github.com/google/uuid"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Backend performs the device-side deployment and signing operations.
// Implemented by device.Client.
type Backend interface {
	// Rekey re-authorizes the device with the project's signing
	// credential and reference package.
	Rekey(ctx context.Context, dev domain.AuthorizedDevice, signKey, refPackagePath string) error

	// DeployAndSign pushes the build to the device and retrieves a signed
	// artifact. Returns the staged artifact path.
	DeployAndSign(ctx context.Context, dev domain.AuthorizedDevice, buildDir, appName, signKey string) (string, error)

	// PackageOnly retrieves a signed artifact without pushing a build
	// first, assuming a prior deployment. Returns the staged artifact
	// path.
	PackageOnly(ctx context.Context, dev domain.AuthorizedDevice, appName, signKey string) (string, error)
}

// Navigator sends a device to its idle/home state. Implemented by
// device.Client.
type Navigator interface {
	Home(ctx context.Context, address string) (int, error)
}

// TaskExecutor runs one build task. Implemented by taskrunner.Runner.
type TaskExecutor interface {
	Execute(task domain.BuildTask, workingDirRoot string, timeout time.Duration) (taskrunner.Outcome, error)
}

// TaskLister enumerates a project's build tasks (taskcatalog.ListTasks).
type TaskLister func(projectRoot string) ([]domain.BuildTask, error)

// BuildDirResolver resolves a project's effective build directory
// (buildconfig.ResolveBuildDir).
type BuildDirResolver func(projectRoot string) (string, error)

// =============================================================================
// Config
// =============================================================================

// Config holds the pipeline's timeouts and settle delays.
type Config struct {
	// SettleDelay follows a successful pre-flight home navigation and a
	// successful build. Default: 2 seconds.
	SettleDelay time.Duration

	// RekeySettleDelay follows a successful rekey, letting the device
	// finish processing. Default: 5 seconds.
	RekeySettleDelay time.Duration

	// TaskTimeout is the build task budget. Default: 5 minutes.
	TaskTimeout time.Duration

	// DeployTimeout bounds a full deploy after a fresh build.
	// Default: 5 minutes.
	DeployTimeout time.Duration

	// DeployTimeoutSkippedBuild bounds a full deploy when no build task
	// ran this run. Default: 3 minutes.
	DeployTimeoutSkippedBuild time.Duration

	// HeartbeatInterval paces progress logging during the deploy race.
	// Default: 10 seconds.
	HeartbeatInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.RekeySettleDelay == 0 {
		c.RekeySettleDelay = 5 * time.Second
	}
	if c.TaskTimeout == 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	if c.DeployTimeout == 0 {
		c.DeployTimeout = 5 * time.Minute
	}
	if c.DeployTimeoutSkippedBuild == 0 {
		c.DeployTimeoutSkippedBuild = 3 * time.Minute
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
}

// Options are the caller's per-run decisions.
type Options struct {
	// SkipBuild proceeds straight to deployment without any build step.
	SkipBuild bool

	// UseExisting reuses a prior build output; fatal when none exists.
	UseExisting bool

	// TaskLabel pre-selects a build task by label.
	TaskLabel string

	// SkipRekey skips device re-authorization.
	SkipRekey bool

	// PackageOnly signs without pushing the build to the device.
	PackageOnly bool
}

// Report is the outcome of a successful run.
type Report struct {
	RunID        string
	ArtifactPath string
	ArtifactSize int64
	Warnings     []string
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs the pipeline. Exactly one device and one project are
// bound per Run call; the orchestrator itself holds no per-run state.
type Orchestrator struct {
	config    Config
	backend   Backend
	navigator Navigator
	executor  TaskExecutor
	listTasks TaskLister
	resolve   BuildDirResolver
	decider   Decider
	logger    *slog.Logger
}

// New creates an orchestrator.
func New(config Config, backend Backend, navigator Navigator, executor TaskExecutor, listTasks TaskLister, resolve BuildDirResolver, decider Decider, logger *slog.Logger) *Orchestrator {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:    config,
		backend:   backend,
		navigator: navigator,
		executor:  executor,
		listTasks: listTasks,
		resolve:   resolve,
		decider:   decider,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Run drives the full pipeline for one project against one device. A nil
// error means the signed artifact is at the project's output location. A
// fatal stage failure is returned as a *stage.Failure.
func (o *Orchestrator) Run(ctx context.Context, project *domain.Project, dev domain.AuthorizedDevice, opts Options) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	log := o.logger.With("run_id", report.RunID, "project", project.Name, "device", dev.Address)

	// Pre-flight home navigation; can never abort the pipeline.
	if o.navigateHome(ctx, dev, log, report) {
		o.sleep(ctx, o.config.SettleDelay)
	}

	buildRan, err := o.buildStage(ctx, project, opts, log)
	if err != nil {
		return report, err
	}

	buildDir, err := o.configResolveStage(project, log)
	if err != nil {
		return report, err
	}

	if err := o.validateStage(buildDir); err != nil {
		return report, err
	}

	if err := o.packageCheckStage(project); err != nil {
		return report, err
	}

	if err := o.outputPrepStage(project); err != nil {
		return report, err
	}

	if err := o.rekeyStage(ctx, project, dev, opts, log); err != nil {
		return report, err
	}

	artifact, err := o.deployStage(ctx, project, dev, buildDir, buildRan, opts, log)
	if err != nil {
		return report, err
	}

	if err := o.relocateStage(artifact, project, log); err != nil {
		return report, err
	}

	o.finalizeStage(ctx, project, dev, report, log)
	return report, nil
}

// =============================================================================
// Home Navigation
// =============================================================================

// navigateHome is best-effort: 200/202 is success, everything else is a soft
// warning. Returns whether navigation succeeded.
func (o *Orchestrator) navigateHome(ctx context.Context, dev domain.AuthorizedDevice, log *slog.Logger, report *Report) bool {
	status, err := o.navigator.Home(ctx, dev.Address)
	switch {
	case err != nil:
		o.warn(report, log, fmt.Sprintf("home navigation failed: %v", err))
	case status == 200 || status == 202:
		log.Debug("device sent home")
		return true
	case status == 403:
		o.warn(report, log, "home navigation forbidden (403), continuing")
	default:
		o.warn(report, log, fmt.Sprintf("home navigation returned status %d, continuing", status))
	}
	return false
}

// =============================================================================
// Build Decision
// =============================================================================

// buildStage decides whether and how to build. Returns whether a build task
// actually ran this run.
func (o *Orchestrator) buildStage(ctx context.Context, project *domain.Project, opts Options, log *slog.Logger) (bool, error) {
	if opts.SkipBuild {
		log.Info("build skipped by request")
		return false, nil
	}

	// A prior output already at the resolved build location counts as an
	// existing build. Resolution errors here just mean "no existing
	// build"; ConfigResolve will surface them properly.
	existing := false
	if dir, err := o.resolve(project.RootDir); err == nil {
		existing = stage.HasManifest(dir)
	}

	if opts.UseExisting {
		if !existing {
			return false, stage.FailWith(stage.StageBuildDecision, stage.KindValidationFailed,
				"no existing build output to reuse",
				"run a build task first, or drop --use-existing")
		}
		log.Info("reusing existing build output")
		return false, nil
	}

	tasks, err := o.listTasks(project.RootDir)
	if err != nil {
		return false, stage.Fail(stage.StageBuildDecision, stage.KindValidationFailed,
			"cannot enumerate build tasks", err)
	}

	label := opts.TaskLabel
	if label == "" {
		label, err = o.decider.ChooseTask(domain.FilterBuildLike(tasks), tasks)
		if err != nil {
			return false, stage.FailWith(stage.StageBuildDecision, stage.KindValidationFailed,
				"no build task selected",
				"pass --task <label>, or --skip-build to deploy without building",
				"available: "+strings.Join(domain.TaskLabels(tasks), ", "))
		}
	}

	task, ok := domain.FindTask(tasks, label)
	if !ok {
		return false, stage.FailWith(stage.StageBuildDecision, stage.KindValidationFailed,
			fmt.Sprintf("task %q not found", label),
			"available: "+strings.Join(domain.TaskLabels(tasks), ", "))
	}

	outcome, err := o.executor.Execute(task, project.RootDir, o.config.TaskTimeout)
	if err != nil {
		return false, stage.Fail(stage.StageBuildDecision, stage.KindTaskExecutionFailed,
			fmt.Sprintf("task %q could not start", label), err)
	}

	switch outcome.Kind {
	case taskrunner.OutcomeSuccess:
		log.Info("build task succeeded", "task", label)
		o.sleep(ctx, o.config.SettleDelay)
		return true, nil
	case taskrunner.OutcomeTimedOut:
		return false, stage.FailWith(stage.StageBuildDecision, stage.KindTaskExecutionFailed,
			fmt.Sprintf("task %q exceeded its %s budget", label, o.config.TaskTimeout),
			"pass --skip-build next time if the output is already current")
	default:
		return false, stage.FailWith(stage.StageBuildDecision, stage.KindTaskExecutionFailed,
			fmt.Sprintf("task %q failed: %s", label, outcome))
	}
}

// =============================================================================
// Config Resolve / Validate / Package Check / Output Prep
// =============================================================================

func (o *Orchestrator) configResolveStage(project *domain.Project, log *slog.Logger) (string, error) {
	dir, err := o.resolve(project.RootDir)
	if err != nil {
		return "", stage.Fail(stage.StageConfigResolve, stage.KindValidationFailed,
			"cannot resolve build directory", err)
	}
	log.Info("build directory resolved", "dir", dir)
	return dir, nil
}

func (o *Orchestrator) validateStage(buildDir string) error {
	if defects := stage.ValidateBuildDir(buildDir); len(defects) > 0 {
		return stage.FailWith(stage.StageValidate, stage.KindValidationFailed,
			strings.Join(defects, "; "))
	}
	return nil
}

func (o *Orchestrator) packageCheckStage(project *domain.Project) error {
	if _, err := os.Stat(project.SignPackageLocation); err != nil {
		return stage.FailWith(stage.StagePackageCheck, stage.KindValidationFailed,
			fmt.Sprintf("reference signed package not found at %s", project.SignPackageLocation),
			fmt.Sprintf("update the project: castforge project edit %s", project.Name))
	}
	return nil
}

func (o *Orchestrator) outputPrepStage(project *domain.Project) error {
	parent := filepath.Dir(project.OutputLocation)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return stage.Fail(stage.StageOutputPrep, stage.KindValidationFailed,
			fmt.Sprintf("cannot create output directory %s", parent), err)
	}
	return nil
}

// =============================================================================
// Rekey
// =============================================================================

func (o *Orchestrator) rekeyStage(ctx context.Context, project *domain.Project, dev domain.AuthorizedDevice, opts Options, log *slog.Logger) error {
	if opts.SkipRekey {
		log.Info("rekey skipped by request")
		return nil
	}

	log.Info("rekeying device")
	if err := o.backend.Rekey(ctx, dev, project.SignKey, project.SignPackageLocation); err != nil {
		return stage.FailWith(stage.StageRekey, classifyBackendErr(err),
			fmt.Sprintf("rekey failed: %v", err),
			"the signing key and reference package may not match")
	}

	o.sleep(ctx, o.config.RekeySettleDelay)
	return nil
}

// =============================================================================
// Deploy
// =============================================================================

type deployResult struct {
	artifact string
	err      error
}

func (o *Orchestrator) deployStage(ctx context.Context, project *domain.Project, dev domain.AuthorizedDevice, buildDir string, buildRan bool, opts Options, log *slog.Logger) (string, error) {
	if opts.PackageOnly {
		log.Info("package-only mode, skipping device deployment")
		artifact, err := o.backend.PackageOnly(ctx, dev, project.Name, project.SignKey)
		if err != nil {
			return "", stage.Fail(stage.StageDeploy, classifyBackendErr(err), "package creation failed", err)
		}
		return artifact, nil
	}

	timeout := o.config.DeployTimeout
	if !buildRan {
		timeout = o.config.DeployTimeoutSkippedBuild
	}

	// Race the transfer against the timer. The result channel is buffered
	// so a transfer finishing after the race is decided does not leak its
	// goroutine; its side effects stay with the backend.
	results := make(chan deployResult, 1)
	go func() {
		artifact, err := o.backend.DeployAndSign(ctx, dev, buildDir, project.Name, project.SignKey)
		results <- deployResult{artifact: artifact, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	heartbeat := time.NewTicker(o.config.HeartbeatInterval)
	defer heartbeat.Stop()

	started := time.Now()
	for {
		select {
		case res := <-results:
			if res.err != nil {
				return "", stage.Fail(stage.StageDeploy, classifyBackendErr(res.err), "deploy failed", res.err)
			}
			log.Info("deploy complete", "elapsed", time.Since(started).Round(time.Second))
			return res.artifact, nil

		case <-heartbeat.C:
			log.Info("deploy in progress", "elapsed", time.Since(started).Round(time.Second))

		case <-timer.C:
			heartbeat.Stop()
			log.Warn("deploy timed out", "timeout", timeout)
			return o.packageFallback(ctx, project, dev, timeout, log)
		}
	}
}

// packageFallback offers the single package-only retry after a transfer
// timeout. It requires an affirmative decision; declining aborts the run.
func (o *Orchestrator) packageFallback(ctx context.Context, project *domain.Project, dev domain.AuthorizedDevice, timeout time.Duration, log *slog.Logger) (string, error) {
	if !o.decider.ConfirmPackageFallback() {
		return "", stage.FailWith(stage.StageDeploy, stage.KindTransferTimedOut,
			fmt.Sprintf("full deploy exceeded %s and the package-only fallback was declined", timeout))
	}

	// Give the abandoned transfer a moment before talking to the same
	// installer again; the device serializes requests, but interleaving
	// from our side would make the failure mode murkier.
	o.sleep(ctx, o.config.SettleDelay)

	log.Info("retrying as package-only after timeout")
	artifact, err := o.backend.PackageOnly(ctx, dev, project.Name, project.SignKey)
	if err != nil {
		return "", stage.FailWith(stage.StageDeploy, stage.KindTransferTimedOut,
			fmt.Sprintf("package-only fallback failed after deploy timeout: %v", err))
	}
	return artifact, nil
}

// =============================================================================
// Relocate / Finalize
// =============================================================================

func (o *Orchestrator) relocateStage(artifact string, project *domain.Project, log *slog.Logger) error {
	if err := relocate(artifact, project.OutputLocation); err != nil {
		return stage.Fail(stage.StageRelocate, stage.KindArtifactMissing,
			"cannot relocate artifact to output location", err)
	}
	log.Info("artifact relocated", "path", project.OutputLocation)
	return nil
}

// finalizeStage reports the artifact and sends the device home, best-effort.
func (o *Orchestrator) finalizeStage(ctx context.Context, project *domain.Project, dev domain.AuthorizedDevice, report *Report, log *slog.Logger) {
	report.ArtifactPath = project.OutputLocation
	if info, err := os.Stat(project.OutputLocation); err == nil {
		report.ArtifactSize = info.Size()
	}

	o.navigateHome(ctx, dev, log, report)
	log.Info("run complete", "artifact", report.ArtifactPath, "size", report.ArtifactSize)
}

// =============================================================================
// Helpers
// =============================================================================

func (o *Orchestrator) warn(report *Report, log *slog.Logger, msg string) {
	report.Warnings = append(report.Warnings, msg)
	log.Warn(msg)
}

// sleep waits out a settle delay, returning early on context cancellation.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// classifyBackendErr maps a backend error onto the failure taxonomy.
func classifyBackendErr(err error) stage.FailureKind {
	var statusErr *device.StatusError
	if errors.As(err, &statusErr) && statusErr.IsAuthStatus() {
		return stage.KindAuthenticationFailed
	}
	return stage.KindNetworkUnreachable
}
