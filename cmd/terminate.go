package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/batchwatch/internal/logging"
	"github.com/JakeFAU/batchwatch/internal/server"
	"github.com/JakeFAU/batchwatch/internal/terminate"
)

// newTerminateCmd creates the 'terminate' subcommand. Unlike the HTTP
// endpoint it waits for the request to be accepted and reports the result.
func newTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate",
		Short: "Ask the running batch process to terminate all jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			term, release, err := server.NewTerminator(cmd.Context(), cfg, logger.Named("terminate"))
			if err != nil {
				return err
			}
			defer release()

			timeout := cfg.TerminateTimeout()
			if timeout <= 0 {
				timeout = terminate.DefaultTimeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := term.Terminate(ctx); err != nil {
				return fmt.Errorf("terminate request failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "terminate request sent")
			return nil
		},
	}
}
