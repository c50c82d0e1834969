// Package cmd defines and implements the CLI commands for the epic7-monitor
// executable. Every scheduled trigger dispatches one of these commands in a
// fresh ephemeral process; the shared store is the only coordination channel
// between them.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SpaceWJK/epic7-monitor/internal/app"
	"github.com/SpaceWJK/epic7-monitor/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epic7monitor",
		Short: "Lease-coordinated monitoring job runner.",
		Long: `epic7monitor runs ephemeral monitoring jobs on overlapping schedules,
coordinated through a shared durable store. A per-domain lease guarantees at
most one active run per coordination domain, and state updates merge through
optimistic-concurrency commits so racing writers never clobber each other.`,

		SilenceUsage: true,

		// Build the application after config is loaded and before any
		// subcommand runs, then inject it through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			application, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, application))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if application, ok := cmd.Context().Value(appKey).(*app.App); ok && application != nil {
				_ = application.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReleaseCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	application, ok := ctx.Value(appKey).(*app.App)
	if !ok || application == nil {
		return nil, errors.New("application services not initialized")
	}
	return application, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
