package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aegis-ops/console/internal/agentstream"
	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/reducer"
)

// run sends req to the agent of adapter's kind and renders the view until the
// conversation stops. Ctrl-C cancels the stream and keeps what arrived.
func run[R any](
	cmd *cobra.Command,
	opts *rootOptions,
	adapter reducer.Adapter[R],
	req model.Request,
	result func(io.Writer, R),
) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := opts.logger()
	defer log.Sync()

	client := agentstream.NewClient(agentstream.Config{BaseURL: opts.url(adapter.Kind())}, log)
	v := conversation.New(adapter, conversation.FromClient(client), conversation.Options{Logger: log})
	defer v.Close()

	out := cmd.OutOrStdout()
	var r *renderer[R]
	if !opts.json {
		r = newRenderer(out, result)
	}

	if opts.query {
		snap, err := v.Query(ctx, req)
		if err != nil {
			return err
		}
		return finish(out, r, snap)
	}

	changes, unsubscribe := v.Subscribe()
	defer unsubscribe()

	if _, err := v.Submit(ctx, req); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			v.Cancel()
			return finish(out, r, v.Snapshot())
		case <-changes:
			snap := v.Snapshot()
			if r != nil {
				r.render(snap)
			}
			if snap.Done() {
				return finish(out, r, snap)
			}
		}
	}
}

// finish prints the outcome of a stopped conversation. A nil renderer prints
// the snapshot as JSON.
func finish[R any](out io.Writer, r *renderer[R], snap conversation.Snapshot[R]) error {
	if r == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
	} else {
		r.render(snap)
		r.summary(snap)
	}

	switch snap.State.Phase {
	case reducer.PhaseAborted:
		return errCanceled
	case reducer.PhaseErrored:
		if f := snap.State.Failure; f != nil {
			return f
		}
		return errors.New("conversation failed")
	}
	if f := snap.State.Failure; f != nil {
		fmt.Fprintf(out, "warning: %s\n", f.Error())
	}
	return nil
}
