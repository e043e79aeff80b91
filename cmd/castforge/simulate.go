package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/castforge/castforge/internal/shell/devsim"
	"github.com/spf13/cobra"
)

func newSimulateCmd(a *app) *cobra.Command {
	var (
		port       int
		name       string
		credential string
		signKey    string
		delay      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated device for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := devsim.New(devsim.Config{
				Name:           name,
				Credential:     credential,
				SignKey:        signKey,
				OperationDelay: delay,
			}, a.logger)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           sim.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			a.logger.Info("simulated device listening", "addr", srv.Addr, "name", name)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8060, "port to listen on")
	cmd.Flags().StringVar(&name, "name", "Simulated Device", "device display name")
	cmd.Flags().StringVar(&credential, "credential", "castforge", "installer password the simulator accepts")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "signing key the simulator enforces (empty adopts the first seen)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "artificial delay for installer operations")

	return cmd
}
