package main

import (
	"context"
	"fmt"
	"os"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/castforge/castforge/internal/core/pick"
	"github.com/castforge/castforge/internal/core/stage"
	"github.com/castforge/castforge/internal/shell/buildconfig"
	"github.com/castforge/castforge/internal/shell/device"
	"github.com/castforge/castforge/internal/shell/orchestrator"
	"github.com/castforge/castforge/internal/shell/taskcatalog"
	"github.com/castforge/castforge/internal/shell/taskrunner"
	"github.com/spf13/cobra"
)

func newDeployCmd(a *app) *cobra.Command {
	var (
		deviceQuery    string
		credential     string
		taskLabel      string
		skipBuild      bool
		useExisting    bool
		skipRekey      bool
		packageOnly    bool
		acceptFallback bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <project>",
		Short: "Build, deploy and sign a project on a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			project, err := a.store.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			if err := project.Validate(); err != nil {
				return fmt.Errorf("project %s is incomplete: %w", project.Name, err)
			}

			dev, err := a.resolveDevice(ctx, deviceQuery, credential)
			if err != nil {
				return err
			}
			a.logger.Info("device selected", "name", dev.Name, "address", dev.Address)

			client := a.deviceClient()
			runner := taskrunner.NewRunner(taskrunner.RunnerConfig{
				Stdout: os.Stdout,
				Stderr: os.Stderr,
			}, a.logger)
			orch := orchestrator.New(orchestrator.Config{
				TaskTimeout:               a.config.Pipeline.TaskTimeout,
				DeployTimeout:             a.config.Pipeline.DeployTimeout,
				DeployTimeoutSkippedBuild: a.config.Pipeline.DeployTimeoutSkippedBuild,
			}, client, client, runner, taskcatalog.ListTasks, buildconfig.ResolveBuildDir,
				orchestrator.Answers{
					TaskLabel:             taskLabel,
					AcceptPackageFallback: acceptFallback,
				}, a.logger)

			report, err := orch.Run(ctx, project, dev, orchestrator.Options{
				SkipBuild:   skipBuild,
				UseExisting: useExisting,
				TaskLabel:   taskLabel,
				SkipRekey:   skipRekey,
				PackageOnly: packageOnly,
			})
			if report != nil {
				for _, w := range report.Warnings {
					fmt.Fprintf(os.Stderr, "warning: %s\n", w)
				}
			}
			if err != nil {
				return err
			}

			fmt.Printf("signed package: %s (%d bytes)\n", report.ArtifactPath, report.ArtifactSize)
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceQuery, "device", "d", "", "device address or name (substring)")
	cmd.Flags().StringVar(&credential, "credential", "", "device installer password")
	cmd.Flags().StringVarP(&taskLabel, "task", "t", "", "build task label to run")
	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, "deploy without running a build task")
	cmd.Flags().BoolVar(&useExisting, "use-existing", false, "reuse a prior build output")
	cmd.Flags().BoolVar(&skipRekey, "skip-rekey", false, "skip device re-authorization")
	cmd.Flags().BoolVar(&packageOnly, "package-only", false, "sign the already-installed app without deploying")
	cmd.Flags().BoolVar(&acceptFallback, "accept-fallback", false, "allow a package-only retry if the deploy times out")

	return cmd
}

// resolveDevice picks the target device and verifies its credential. With no
// query, a reachable previously-saved device wins over a fresh discovery. The
// verified device is saved back so the next run can skip straight to it.
func (a *app) resolveDevice(ctx context.Context, query, credential string) (domain.AuthorizedDevice, error) {
	auth := device.NewAuthenticator(a.deviceClient(), a.logger)

	saved, err := a.store.GetDevice(ctx)
	if err == nil && saved != nil {
		if query == "" && auth.TestReachable(ctx, saved.Device) {
			if credential == "" {
				credential = saved.Credential
			}
			return a.verifyAndSave(ctx, auth, saved.Device, credential)
		}
	}

	candidates, err := a.discoveryService().Discover(ctx)
	if err != nil {
		return domain.AuthorizedDevice{}, stage.Fail(stage.StageDeviceSelect, stage.KindNetworkUnreachable,
			"device discovery failed", err)
	}
	selected, err := pick.Device(candidates, query)
	if err != nil {
		return domain.AuthorizedDevice{}, stage.Fail(stage.StageDeviceSelect, stage.KindNetworkUnreachable,
			"cannot select a device", err)
	}

	if credential == "" && saved != nil && saved.Address == selected.Address {
		credential = saved.Credential
	}
	return a.verifyAndSave(ctx, auth, selected, credential)
}

// verifyAndSave checks the credential against the device and persists the
// pairing on success.
func (a *app) verifyAndSave(ctx context.Context, auth *device.Authenticator, dev domain.Device, credential string) (domain.AuthorizedDevice, error) {
	if credential == "" {
		return domain.AuthorizedDevice{}, stage.FailWith(stage.StageDeviceSelect, stage.KindAuthenticationFailed,
			fmt.Sprintf("no credential known for device %s", dev.Address),
			"pass --credential with the device's installer password")
	}
	if !auth.TestCredential(ctx, dev.Address, credential) {
		return domain.AuthorizedDevice{}, stage.FailWith(stage.StageDeviceSelect, stage.KindAuthenticationFailed,
			fmt.Sprintf("device %s rejected the credential", dev.Address),
			"check the installer password in the device's developer settings")
	}

	authorized := domain.AuthorizedDevice{Device: dev, Credential: credential}
	if err := a.store.SaveDevice(ctx, &authorized); err != nil {
		a.logger.Warn("could not save device pairing", "error", err)
	}
	return authorized, nil
}
