package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/reducer"
)

func chatopsCmd(opts *rootOptions) *cobra.Command {
	var (
		lastMinutes int
		since       string
		until       string
	)

	cmd := &cobra.Command{
		Use:   "chatops <question>",
		Short: "Ask a question about logs",
		Example: `  opsctl chatops "why is checkout-service timing out?"
  opsctl chatops --last 15 "errors in payments-api"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &model.ChatOpsRequest{Question: strings.Join(args, " ")}
			tr, err := timeRange(lastMinutes, since, until)
			if err != nil {
				return err
			}
			req.TimeRange = tr
			return run(cmd, opts, reducer.ChatOps{}, req, printChatOps)
		},
	}

	cmd.Flags().IntVar(&lastMinutes, "last", 0, "look back this many minutes")
	cmd.Flags().StringVar(&since, "since", "", "window start (RFC 3339)")
	cmd.Flags().StringVar(&until, "until", "", "window end (RFC 3339, default now)")
	return cmd
}

func rcaCmd(opts *rootOptions) *cobra.Command {
	var (
		lastMinutes int
		since       string
		until       string
	)

	cmd := &cobra.Command{
		Use:   "rca <description>",
		Short: "Run a root-cause analysis of a fault",
		Example: `  opsctl rca --last 60 "orders-service returns 502"
  opsctl rca --since 2024-05-01T10:00:00Z --until 2024-05-01T11:00:00Z "checkout latency spike"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lastMinutes == 0 && since == "" {
				lastMinutes = model.DefaultLastMinutes
			}
			tr, err := timeRange(lastMinutes, since, until)
			if err != nil {
				return err
			}
			// The RCA agent only takes absolute windows.
			if tr.LastMinutes != nil {
				end := time.Now()
				tr = model.Between(end.Add(-time.Duration(*tr.LastMinutes)*time.Minute), end)
			}
			req := &model.RCARequest{
				Description: strings.Join(args, " "),
				TimeRange:   tr,
			}
			return run(cmd, opts, reducer.RCA{}, req, printRCA)
		},
	}

	cmd.Flags().IntVar(&lastMinutes, "last", 0, "analyze the last this many minutes")
	cmd.Flags().StringVar(&since, "since", "", "window start (RFC 3339)")
	cmd.Flags().StringVar(&until, "until", "", "window end (RFC 3339, default now)")
	return cmd
}

func predictCmd(opts *rootOptions) *cobra.Command {
	var lookback int

	cmd := &cobra.Command{
		Use:     "predict <service>",
		Short:   "Predict the failure risk of a service",
		Example: `  opsctl predict payments-api --lookback 48`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &model.PredictRequest{
				ServiceName:   args[0],
				LookbackHours: lookback,
			}
			return run(cmd, opts, reducer.Predict{}, req, printPredict)
		},
	}

	cmd.Flags().IntVar(&lookback, "lookback", model.DefaultLookbackHours, "hours of history to consider")
	return cmd
}

// timeRange builds a window from the flags. Nothing set yields nil, which
// lets the request apply its default.
func timeRange(lastMinutes int, since, until string) (*model.TimeRange, error) {
	if since == "" {
		if until != "" {
			return nil, fmt.Errorf("--until needs --since")
		}
		if lastMinutes == 0 {
			return nil, nil
		}
		return model.LastMinutes(lastMinutes), nil
	}
	if lastMinutes != 0 {
		return nil, fmt.Errorf("--last and --since are exclusive")
	}

	start, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return nil, fmt.Errorf("invalid --since: %w", err)
	}
	end := time.Now()
	if until != "" {
		if end, err = time.Parse(time.RFC3339, until); err != nil {
			return nil, fmt.Errorf("invalid --until: %w", err)
		}
	}
	return model.Between(start, end), nil
}
