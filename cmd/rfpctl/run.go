package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/internal/app"
	"github.com/rfpdesk/internal/config"
	"github.com/rfpdesk/internal/task"
	"github.com/rfpdesk/internal/workflow"
)

func runCmd() *cobra.Command {
	var skipDispatch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch the configured date range, generate every document and dispatch them",
		Long: `Run executes the three workflow steps in order using the settings file.
Interrupting the command cancels the running step at the next item.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(context.WithoutCancel(ctx), cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			ctl := application.Controller()
			events, unsubscribe := ctl.Subscribe()
			defer unsubscribe()
			go printEvents(cmd, events)

			steps := []func() (*task.Handle, error){ctl.Fetch, ctl.Generate}
			if !skipDispatch {
				steps = append(steps, ctl.Dispatch)
			}
			for _, step := range steps {
				out, err := runStep(ctx, cmd.OutOrStdout(), ctl, step)
				if err != nil {
					return err
				}
				if out.State != task.StateCompleted {
					return nil
				}
			}

			st := ctl.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "%d requests, %d generated, %d sent\n", st.Records, st.Generated, st.Sent)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipDispatch, "no-dispatch", false, "Stop after generation")
	return cmd
}

// runStep submits one step and waits for it. An interrupt cancels the step
// and still waits for its outcome.
func runStep(ctx context.Context, w io.Writer, ctl *workflow.Controller, submit func() (*task.Handle, error)) (task.Outcome, error) {
	h, err := submit()
	if err != nil {
		return task.Outcome{}, err
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		_ = ctl.Cancel()
		<-h.Done()
	}

	out := h.Outcome()
	switch out.State {
	case task.StateFailed:
		return out, fmt.Errorf("%s failed (%s): %w", h.Name, workflow.Classify(out.Err), out.Err)
	case task.StateCancelled:
		fmt.Fprintf(w, "%s cancelled after %d items\n", h.Name, out.Value)
	}
	return out, nil
}

func printEvents(cmd *cobra.Command, events <-chan workflow.Event) {
	for ev := range events {
		if ev.Type == workflow.EventProgress {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", ev.Task, ev.Value)
		}
	}
}
