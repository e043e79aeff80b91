package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/castforge/castforge/internal/core/stage"
	"github.com/castforge/castforge/internal/shell/device"
	"github.com/castforge/castforge/internal/shell/taskrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeBackend struct {
	stagingDir string

	rekeyErr    error
	deployErr   error
	deployDelay time.Duration
	packageErr  error

	rekeyCalls   int32
	deployCalls  int32
	packageCalls int32
}

// stage writes a fake artifact and returns its path.
func (b *fakeBackend) stageArtifact(appName string) string {
	path := filepath.Join(b.stagingDir, appName+".pkg")
	os.MkdirAll(b.stagingDir, 0o755)
	os.WriteFile(path, []byte("signed"), 0o644)
	return path
}

func (b *fakeBackend) Rekey(ctx context.Context, dev domain.AuthorizedDevice, signKey, refPackagePath string) error {
	atomic.AddInt32(&b.rekeyCalls, 1)
	return b.rekeyErr
}

func (b *fakeBackend) DeployAndSign(ctx context.Context, dev domain.AuthorizedDevice, buildDir, appName, signKey string) (string, error) {
	atomic.AddInt32(&b.deployCalls, 1)
	if b.deployDelay > 0 {
		time.Sleep(b.deployDelay)
	}
	if b.deployErr != nil {
		return "", b.deployErr
	}
	return b.stageArtifact(appName), nil
}

func (b *fakeBackend) PackageOnly(ctx context.Context, dev domain.AuthorizedDevice, appName, signKey string) (string, error) {
	atomic.AddInt32(&b.packageCalls, 1)
	if b.packageErr != nil {
		return "", b.packageErr
	}
	return b.stageArtifact(appName), nil
}

type fakeNavigator struct {
	status int
	err    error
	calls  int32
}

func (n *fakeNavigator) Home(ctx context.Context, address string) (int, error) {
	atomic.AddInt32(&n.calls, 1)
	if n.err != nil {
		return 0, n.err
	}
	return n.status, nil
}

type fakeExecutor struct {
	outcome taskrunner.Outcome
	err     error
	ran     []string
}

func (e *fakeExecutor) Execute(task domain.BuildTask, root string, timeout time.Duration) (taskrunner.Outcome, error) {
	e.ran = append(e.ran, task.Label)
	return e.outcome, e.err
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	orch     *Orchestrator
	backend  *fakeBackend
	nav      *fakeNavigator
	exec     *fakeExecutor
	project  *domain.Project
	dev      domain.AuthorizedDevice
	buildDir string
}

func newFixture(t *testing.T, decider Decider) *fixture {
	t.Helper()
	root := t.TempDir()

	buildDir := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(buildDir, "source"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "manifest"), []byte("title=Demo"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "source", "main.brs"), []byte("sub main() end sub"), 0o644))

	refPkg := filepath.Join(root, "ref.pkg")
	require.NoError(t, os.WriteFile(refPkg, []byte("ref"), 0o644))

	backend := &fakeBackend{stagingDir: filepath.Join(root, "staged")}
	nav := &fakeNavigator{status: 200}
	exec := &fakeExecutor{outcome: taskrunner.Outcome{Kind: taskrunner.OutcomeSuccess}}

	tasks := []domain.BuildTask{
		{Label: "lint", Kind: domain.TaskKindShell, Command: "lint"},
		{Label: "build", Kind: domain.TaskKindShell, Command: "make"},
	}

	project := &domain.Project{
		Name:                "demo",
		RootDir:             root,
		SignKey:             "abc",
		SignPackageLocation: refPkg,
		OutputLocation:      filepath.Join(root, "out", "demo.pkg"),
	}

	config := Config{
		SettleDelay:               time.Millisecond,
		RekeySettleDelay:          time.Millisecond,
		TaskTimeout:               time.Second,
		DeployTimeout:             time.Second,
		DeployTimeoutSkippedBuild: time.Second,
		HeartbeatInterval:         5 * time.Millisecond,
	}

	orch := New(config, backend, nav, exec,
		func(string) ([]domain.BuildTask, error) { return tasks, nil },
		func(string) (string, error) { return buildDir, nil },
		decider, nil)

	return &fixture{
		orch:     orch,
		backend:  backend,
		nav:      nav,
		exec:     exec,
		project:  project,
		dev:      domain.AuthorizedDevice{Device: domain.Device{Address: "10.0.0.5", Name: "TV"}, Credential: "pw"},
		buildDir: buildDir,
	}
}

func failure(t *testing.T, err error) *stage.Failure {
	t.Helper()
	var f *stage.Failure
	require.ErrorAs(t, err, &f)
	return f
}

// =============================================================================
// Happy Path Tests
// =============================================================================

func TestRun_FullDeploy(t *testing.T) {
	f := newFixture(t, Answers{TaskLabel: "build"})

	report, err := f.orch.Run(context.Background(), f.project, f.dev, Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, f.exec.ran)
	assert.EqualValues(t, 1, f.backend.rekeyCalls)
	assert.EqualValues(t, 1, f.backend.deployCalls)
	assert.Equal(t, f.project.OutputLocation, report.ArtifactPath)
	assert.FileExists(t, f.project.OutputLocation)
	// Home navigation runs pre-flight and at finalize.
	assert.EqualValues(t, 2, f.nav.calls)
}

func TestRun_PackageOnlySkipAll(t *testing.T) {
	f := newFixture(t, Answers{})

	report, err := f.orch.Run(context.Background(), f.project, f.dev, Options{
		SkipBuild:   true,
		SkipRekey:   true,
		PackageOnly: true,
	})

	require.NoError(t, err)
	assert.Empty(t, f.exec.ran)
	assert.EqualValues(t, 0, f.backend.rekeyCalls)
	assert.EqualValues(t, 0, f.backend.deployCalls)
	assert.EqualValues(t, 1, f.backend.packageCalls)
	assert.FileExists(t, report.ArtifactPath)

	// The staged copy was relocated away: it lived in a different
	// directory, so the original must be gone.
	assert.NoFileExists(t, filepath.Join(f.backend.stagingDir, "demo.pkg"))
}

func TestRun_HomeNavigationFailureIsSoft(t *testing.T) {
	f := newFixture(t, Answers{})
	f.nav.err = errors.New("connection refused")

	report, err := f.orch.Run(context.Background(), f.project, f.dev, Options{
		SkipBuild: true, SkipRekey: true, PackageOnly: true,
	})

	require.NoError(t, err, "home navigation can never abort the pipeline")
	assert.NotEmpty(t, report.Warnings)
}

// =============================================================================
// Build Decision Tests
// =============================================================================

func TestRun_PreselectedTaskNotFound(t *testing.T) {
	f := newFixture(t, Answers{})

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{TaskLabel: "missing"})

	fail := failure(t, err)
	assert.Equal(t, stage.StageBuildDecision, fail.Stage)
	assert.Contains(t, fail.Remediation[len(fail.Remediation)-1], "lint, build")
}

func TestRun_NoTaskSelectedAndNoAnswer(t *testing.T) {
	f := newFixture(t, Answers{})

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{})

	fail := failure(t, err)
	assert.Equal(t, stage.StageBuildDecision, fail.Stage)
}

func TestRun_UseExistingWithoutBuildOutput(t *testing.T) {
	f := newFixture(t, Answers{})
	require.NoError(t, os.Remove(filepath.Join(f.buildDir, "manifest")))

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{UseExisting: true})

	fail := failure(t, err)
	assert.Equal(t, stage.StageBuildDecision, fail.Stage)
}

func TestRun_UseExistingSkipsExecutor(t *testing.T) {
	f := newFixture(t, Answers{})

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{UseExisting: true, SkipRekey: true, PackageOnly: true})

	require.NoError(t, err)
	assert.Empty(t, f.exec.ran)
}

func TestRun_TaskTimeoutGetsTimeoutRemediation(t *testing.T) {
	f := newFixture(t, Answers{TaskLabel: "build"})
	f.exec.outcome = taskrunner.Outcome{Kind: taskrunner.OutcomeTimedOut}

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{})

	fail := failure(t, err)
	assert.Equal(t, stage.KindTaskExecutionFailed, fail.Kind)
	assert.Contains(t, fail.Remediation[len(fail.Remediation)-1], "--skip-build")
}

func TestRun_TaskFailedExitCode(t *testing.T) {
	f := newFixture(t, Answers{TaskLabel: "build"})
	f.exec.outcome = taskrunner.Outcome{Kind: taskrunner.OutcomeFailedExitCode, ExitCode: 2}

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{})

	fail := failure(t, err)
	assert.Equal(t, stage.KindTaskExecutionFailed, fail.Kind)
	assert.EqualValues(t, 0, f.backend.deployCalls, "fatal build failure must abort before deploy")
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestRun_ValidateEnumeratesAllDefects(t *testing.T) {
	f := newFixture(t, Answers{})
	require.NoError(t, os.Remove(filepath.Join(f.buildDir, "manifest")))
	require.NoError(t, os.RemoveAll(filepath.Join(f.buildDir, "source")))

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true})

	fail := failure(t, err)
	assert.Equal(t, stage.StageValidate, fail.Stage)
	assert.Contains(t, fail.Message, "manifest")
	assert.Contains(t, fail.Message, "source")
}

func TestRun_MissingReferencePackage(t *testing.T) {
	f := newFixture(t, Answers{})
	require.NoError(t, os.Remove(f.project.SignPackageLocation))

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true})

	fail := failure(t, err)
	assert.Equal(t, stage.StagePackageCheck, fail.Stage)
	assert.Contains(t, fail.Remediation[len(fail.Remediation)-1], "project edit")
}

// =============================================================================
// Rekey Tests
// =============================================================================

func TestRun_RekeyAuthFailureIsFatal(t *testing.T) {
	f := newFixture(t, Answers{})
	f.backend.rekeyErr = &device.StatusError{Op: "Rekey", Status: 401}

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true})

	fail := failure(t, err)
	assert.Equal(t, stage.StageRekey, fail.Stage)
	assert.Equal(t, stage.KindAuthenticationFailed, fail.Kind)
	assert.EqualValues(t, 0, f.backend.deployCalls)
}

func TestRun_RekeyNetworkFailure(t *testing.T) {
	f := newFixture(t, Answers{})
	f.backend.rekeyErr = errors.New("connection refused")

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true})

	fail := failure(t, err)
	assert.Equal(t, stage.KindNetworkUnreachable, fail.Kind)
}

// =============================================================================
// Deploy Race Tests
// =============================================================================

func TestRun_DeployTimeoutFallbackDeclined(t *testing.T) {
	f := newFixture(t, Answers{AcceptPackageFallback: false})
	f.backend.deployDelay = 500 * time.Millisecond
	f.orch.config.DeployTimeoutSkippedBuild = 30 * time.Millisecond

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true, SkipRekey: true})

	fail := failure(t, err)
	assert.Equal(t, stage.KindTransferTimedOut, fail.Kind)
	assert.EqualValues(t, 0, f.backend.packageCalls, "declined fallback must not run package-only")
	assert.NoFileExists(t, f.project.OutputLocation, "no artifact may appear at the output path")
}

func TestRun_DeployTimeoutFallbackAccepted(t *testing.T) {
	f := newFixture(t, Answers{AcceptPackageFallback: true})
	f.backend.deployDelay = 500 * time.Millisecond
	f.orch.config.DeployTimeoutSkippedBuild = 30 * time.Millisecond

	report, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true, SkipRekey: true})

	require.NoError(t, err)
	assert.EqualValues(t, 1, f.backend.packageCalls)
	assert.FileExists(t, report.ArtifactPath)
}

func TestRun_DeployTimeoutFallbackAlsoFails(t *testing.T) {
	f := newFixture(t, Answers{AcceptPackageFallback: true})
	f.backend.deployDelay = 500 * time.Millisecond
	f.backend.packageErr = errors.New("device busy")
	f.orch.config.DeployTimeoutSkippedBuild = 30 * time.Millisecond

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true, SkipRekey: true})

	fail := failure(t, err)
	assert.Equal(t, stage.KindTransferTimedOut, fail.Kind)
}

func TestRun_DeployErrorClassified(t *testing.T) {
	f := newFixture(t, Answers{})
	f.backend.deployErr = &device.StatusError{Op: "Install", Status: 403}

	_, err := f.orch.Run(context.Background(), f.project, f.dev, Options{SkipBuild: true, SkipRekey: true})

	fail := failure(t, err)
	assert.Equal(t, stage.KindAuthenticationFailed, fail.Kind)
}

// =============================================================================
// Relocate Tests
// =============================================================================

func TestRelocate_SamePathIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.pkg")
	require.NoError(t, os.WriteFile(path, []byte("artifact"), 0o644))
	before, err := os.Stat(path)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, relocate(path, path))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "no-op relocation must leave the file untouched")
}

func TestRelocate_MovesAcrossDirectories(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staged", "demo.pkg")
	dst := filepath.Join(dir, "out", "demo.pkg")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("artifact"), 0o644))

	require.NoError(t, relocate(src, dst))

	assert.FileExists(t, dst)
	assert.NoFileExists(t, src)
}

func TestRelocate_SameDirectoryKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pkg")
	dst := filepath.Join(dir, "b.pkg")
	require.NoError(t, os.WriteFile(src, []byte("artifact"), 0o644))

	require.NoError(t, relocate(src, dst))

	assert.FileExists(t, dst)
	assert.FileExists(t, src, "originals in the target's own directory are not removed")
}

// =============================================================================
// Scenario Test
// =============================================================================

// The reference scenario: build skipped, rekey skipped, package-only; the
// backend stages the artifact elsewhere and relocation moves it to the
// project's output location.
func TestScenario_PackageOnlyRelocation(t *testing.T) {
	f := newFixture(t, Answers{})

	report, err := f.orch.Run(context.Background(), f.project, f.dev, Options{
		SkipBuild: true, SkipRekey: true, PackageOnly: true,
	})

	require.NoError(t, err)
	require.FileExists(t, f.project.OutputLocation)
	assert.NoFileExists(t, filepath.Join(f.backend.stagingDir, "demo.pkg"))
	assert.Equal(t, report.ArtifactPath, f.project.OutputLocation)
	assert.Positive(t, report.ArtifactSize)

	data, err := os.ReadFile(f.project.OutputLocation)
	require.NoError(t, err)
	assert.Equal(t, "signed", string(data))
	assert.NotEmpty(t, report.RunID)
}
