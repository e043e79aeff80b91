// Package stage defines the deployment pipeline's stage identifiers, failure
// taxonomy and remediation guidance. Everything here is pure; the pipeline in
// internal/shell/orchestrator produces these values, it does not consume I/O
// through them.
package stage

import (
	"fmt"
	"strings"
)

// =============================================================================
// Stage Identifiers
// =============================================================================

// Stage identifies one step of the deployment pipeline.
type Stage string

const (
	StageDeviceSelect   Stage = "device_select"
	StageHomeNavigation Stage = "home_navigation"
	StageBuildDecision  Stage = "build_decision"
	StageConfigResolve  Stage = "config_resolve"
	StageValidate       Stage = "validate"
	StagePackageCheck   Stage = "package_check"
	StageOutputPrep     Stage = "output_prep"
	StageRekey          Stage = "rekey"
	StageDeploy         Stage = "deploy"
	StageRelocate       Stage = "relocate"
	StageFinalize       Stage = "finalize"
)

// =============================================================================
// Failure Taxonomy
// =============================================================================

// FailureKind classifies a fatal stage failure so the top level can print
// remediation guidance keyed by kind.
type FailureKind string

const (
	// KindNetworkUnreachable covers connection refusals and timeouts
	// against a device endpoint.
	KindNetworkUnreachable FailureKind = "network_unreachable"

	// KindAuthenticationFailed covers 401/403 from authenticated endpoints.
	KindAuthenticationFailed FailureKind = "authentication_failed"

	// KindValidationFailed covers structural project defects, fully
	// enumerated.
	KindValidationFailed FailureKind = "validation_failed"

	// KindTaskExecutionFailed covers non-zero exits, forced kills and
	// timeouts from a build task.
	KindTaskExecutionFailed FailureKind = "task_execution_failed"

	// KindTransferTimedOut means the deploy/sign race lost to the timer.
	KindTransferTimedOut FailureKind = "transfer_timed_out"

	// KindArtifactMissing means an expected output is absent after a
	// nominally successful operation.
	KindArtifactMissing FailureKind = "artifact_missing"
)

// Remediation returns the default guidance lines for a failure kind.
func Remediation(kind FailureKind) []string {
	switch kind {
	case KindNetworkUnreachable:
		return []string{
			"check that the device is powered on and on the same network",
			"re-run discovery to confirm the device address",
		}
	case KindAuthenticationFailed:
		return []string{
			"verify the device credential (developer password)",
			"re-enable developer mode on the device if it was reset",
		}
	case KindValidationFailed:
		return []string{
			"fix the listed project defects, then re-run",
		}
	case KindTaskExecutionFailed:
		return []string{
			"run the build task manually to inspect its output",
		}
	case KindTransferTimedOut:
		return []string{
			"the device may be slow or mid-update; retry later",
			"consider package-only mode if the app is already installed",
		}
	case KindArtifactMissing:
		return []string{
			"rebuild the project and verify the build output location",
		}
	}
	return nil
}

// =============================================================================
// Failure
// =============================================================================

// Failure is a fatal stage outcome. It aborts the remaining pipeline and is
// surfaced to the caller with its remediation lines.
type Failure struct {
	Stage       Stage
	Kind        FailureKind
	Message     string
	Remediation []string
	Err         error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("stage %s: %s: %v", f.Stage, f.Message, f.Err)
	}
	return fmt.Sprintf("stage %s: %s", f.Stage, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Fail builds a Failure with the default remediation for its kind.
func Fail(s Stage, kind FailureKind, message string, err error) *Failure {
	return &Failure{
		Stage:       s,
		Kind:        kind,
		Message:     message,
		Remediation: Remediation(kind),
		Err:         err,
	}
}

// FailWith builds a Failure with caller-supplied remediation lines appended
// to the kind's defaults.
func FailWith(s Stage, kind FailureKind, message string, extra ...string) *Failure {
	f := Fail(s, kind, message, nil)
	f.Remediation = append(f.Remediation, extra...)
	return f
}

// FormatRemediation renders remediation lines as an indented block for
// terminal output.
func FormatRemediation(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "  - " + strings.Join(lines, "\n  - ")
}
