// Package main is opsctl, a terminal client that talks to the ChatOps, RCA and
// Predict agents directly and renders their streams as they arrive.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aegis-ops/console/internal/config"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/pkg/logger"
)

// errCanceled reports an interrupted run.
var errCanceled = errors.New("canceled")

type rootOptions struct {
	agentURL string
	query    bool
	json     bool
	verbose  bool

	cfg *config.Config
}

// url returns the agent base URL for kind. The flag wins over configuration.
func (o *rootOptions) url(kind model.Kind) string {
	if o.agentURL != "" {
		return o.agentURL
	}
	return o.cfg.AgentURL(string(kind))
}

func (o *rootOptions) logger() *logger.Logger {
	if !o.verbose {
		return logger.NewNop()
	}
	log, err := logger.NewDevelopment()
	if err != nil {
		return logger.NewNop()
	}
	return log
}

func main() {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "opsctl - ask the operations agents from a terminal",
		Long:          "Sends ChatOps questions, root-cause analyses and failure predictions to the agents and renders their reasoning, tool calls and results as they stream.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.agentURL, "agent-url", "", "agent base URL (default from AGENT_BASE_URL or the per-kind URL)")
	root.PersistentFlags().BoolVar(&opts.query, "no-stream", false, "use the non-streaming endpoint")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print the final snapshot as JSON instead of rendering")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log stream diagnostics to stderr")

	root.AddCommand(
		chatopsCmd(opts),
		rcaCmd(opts),
		predictCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errCanceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
