package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/batchwatch/internal/server"
)

// newServeCmd creates the 'serve' subcommand, which runs the monitor and the
// HTTP surface until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Subscribe to the job channel and serve the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run application: %w", err)
			}
			return nil
		},
	}
}
