package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/batchwatch/internal/clock/system"
	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/logging"
	"github.com/JakeFAU/batchwatch/internal/monitor"
	"github.com/JakeFAU/batchwatch/internal/subscriber"
	"github.com/JakeFAU/batchwatch/internal/subscriber/memory"
)

const maxReplayLine = 1 << 20

// newReplayCmd creates the 'replay' subcommand. It feeds captured
// notifications, one JSON payload per line, through the monitor and prints
// the resulting dashboard.
func newReplayCmd() *cobra.Command {
	var (
		jobs    int
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Rebuild a dashboard offline from captured notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("jobs") {
				jobs = cfg.Dashboard.DefaultJobs
			}
			logger := zap.NewNop()
			if verbose {
				logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
				if err != nil {
					return fmt.Errorf("logger init failed: %w", err)
				}
				defer logger.Sync() //nolint:errcheck // best-effort flush
			}

			payloads, err := readPayloads(args[0])
			if err != nil {
				return err
			}
			view, err := replay(cmd.Context(), payloads, jobs, logger)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(view); err != nil {
					return fmt.Errorf("encode view: %w", err)
				}
				return nil
			}
			return printView(cmd.OutOrStdout(), view, len(payloads))
		},
	}
	cmd.Flags().IntVar(&jobs, "jobs", dashboard.DefaultJobs, "job slots shown before the first notification")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the dashboard view as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every notification")
	return cmd
}

func readPayloads(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var payloads [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		payloads = append(payloads, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return payloads, nil
}

// replay publishes payloads into a memory channel, then lets a monitor
// subscribe with full replay and drain it.
func replay(ctx context.Context, payloads [][]byte, jobs int, logger *zap.Logger) (dashboard.View, error) {
	source := memory.NewSource(max(len(payloads), 1))
	for _, p := range payloads {
		if _, err := source.Publish(ctx, subscriber.DefaultChannel, p); err != nil {
			return dashboard.View{}, fmt.Errorf("queue notification: %w", err)
		}
	}

	widget := dashboard.NewWidget(jobs)
	mon := monitor.New(source, widget, nil, system.New(), monitor.Config{
		Replay:  subscriber.ReplayAll,
		OnReady: func(dashboard.View) { source.Close() },
	}, logger.Named("monitor"))

	if err := mon.Run(ctx); err != nil && !errors.Is(err, subscriber.ErrClosed) {
		return dashboard.View{}, fmt.Errorf("replay notifications: %w", err)
	}
	return widget.Snapshot(), nil
}

func printView(w io.Writer, v dashboard.View, notifications int) error {
	statuses := make([]string, len(v.Jobs))
	for i, job := range v.Jobs {
		statuses[i] = fmt.Sprintf("%d:%s", job.Number, job.Status)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "notifications: %s\n", humanize.Comma(int64(notifications)))
	fmt.Fprintf(&b, "process:       %s\n", v.ProcessID)
	fmt.Fprintf(&b, "operation:     %s\n", v.OperationType)
	fmt.Fprintf(&b, "progress:      %.2f%%\n", v.Progress)
	fmt.Fprintf(&b, "footer:        %s\n", v.ProgressFooterMessage)
	fmt.Fprintf(&b, "jobs:          %s\n", strings.Join(statuses, " "))
	fmt.Fprintf(&b, "status:        %s\n", v.StatusMessage)
	fmt.Fprintf(&b, "log:\n%s", v.LogMessage)
	if v.LogMessage != "" && !strings.HasSuffix(v.LogMessage, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "user messages:\n%s", v.UserMessage)
	if v.UserMessage != "" && !strings.HasSuffix(v.UserMessage, "\n") {
		b.WriteString("\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write view: %w", err)
	}
	return nil
}
