package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/bootstrap"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/service"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	cancelGrace         = 10 * time.Second
)

func newRunCommand() *cobra.Command {
	var (
		eventPath    string
		pollInterval time.Duration
		storage      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scenario in-process and follow its progress",
		Example: `  caravan run --event event.json
  echo '{"lat": 42.87, "lon": 74.6, "mag": 6.8, "dep": 15, "ipe": 2}' | caravan run --event - --storage memory`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			event, err := readEvent(eventPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if storage != "" {
				cfg.Database.Driver = storage
				if err = cfg.Validate(); err != nil {
					return fmt.Errorf("validate config: %w", err)
				}
			}

			log, err := bootstrap.CreateLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			engine, err := bootstrap.NewEngine(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Runs.DrainTimeout)
				defer cancel()
				_ = engine.Close(closeCtx)
			}()

			return follow(ctx, engine.Service, event, pollInterval, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "", "input event file, JSON or YAML (- for stdin)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", defaultPollInterval, "progress poll interval")
	cmd.Flags().StringVar(&storage, "storage", "", "override database.driver (postgres or memory)")

	return cmd
}

// follow submits event and prints its messages until the run terminates.
// Cancelling ctx cancels the run. An aborted run is returned as an error.
func follow(ctx context.Context, svc *service.RunService, event map[string]any, interval time.Duration, out io.Writer) error {
	handle, err := svc.SubmitRun(ctx, event)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run %s submitted\n", handle.RunID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pollCtx := context.WithoutCancel(ctx)
	cancelled := false
	var deadline <-chan time.Time

	for {
		res, pollErr := svc.Poll(pollCtx, handle.RunID)
		if pollErr != nil {
			return pollErr
		}
		for _, msg := range res.Messages {
			fmt.Fprintln(out, msg)
		}

		if runstate.IsTerminal(res.Status) {
			fmt.Fprintf(out, "Run %s %s (%.1f%%)\n", res.RunID, res.Status, res.PercentComplete)
			if res.Status == runstate.StatusAborted {
				return fmt.Errorf("run aborted: %s", res.Error)
			}
			return nil
		}

		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("run %s did not stop within %s", handle.RunID, cancelGrace)
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				ctx = pollCtx
				deadline = time.After(cancelGrace)
				fmt.Fprintln(out, "Cancelling run")
				if cancelErr := svc.Cancel(pollCtx, handle.RunID); cancelErr != nil {
					return cancelErr
				}
			}
		}
	}
}
