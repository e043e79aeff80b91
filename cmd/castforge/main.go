// Command castforge discovers controllable streaming devices on the local
// network and drives a build, deploy and sign pipeline against one of them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/castforge/castforge/internal/core/stage"
	"github.com/castforge/castforge/internal/shell/store"
	"github.com/spf13/cobra"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// app carries the wired dependencies shared by all subcommands.
type app struct {
	config *Config
	logger *slog.Logger
	store  store.Store
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		a          app
	)

	root := &cobra.Command{
		Use:           "castforge",
		Short:         "Deploy and sign packages on network streaming devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			a.config = cfg
			a.logger = SetupLogger(cfg)

			if err := os.MkdirAll(configDir(), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			s, err := store.NewSQLiteStore(cfg.Database.DSN)
			if err != nil {
				return err
			}
			a.store = s
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.store != nil {
				a.store.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newVersionCmd(),
		newDiscoverCmd(&a),
		newDeployCmd(&a),
		newProjectCmd(&a),
		newTasksCmd(&a),
		newSimulateCmd(&a),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		return reportError(err)
	}
	return ExitSuccess
}

// reportError prints the error, with remediation guidance for pipeline
// failures, and picks the exit code.
func reportError(err error) int {
	var fail *stage.Failure
	if errors.As(err, &fail) {
		fmt.Fprintf(os.Stderr, "error: %s\n", fail.Error())
		if len(fail.Remediation) > 0 {
			fmt.Fprintf(os.Stderr, "try:\n%s\n", stage.FormatRemediation(fail.Remediation))
		}
		return ExitFailure
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return ExitFailure
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("castforge %s (built %s)\n", Version, BuildTime)
		},
	}
}
