package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/internal/config"
	"github.com/rfpdesk/internal/records"
	"github.com/rfpdesk/internal/settings"
	"github.com/rfpdesk/internal/task"
	"github.com/rfpdesk/internal/workflow"
)

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every generated file in the output folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := settings.Open(config.FromEnv().SettingsPath)
			if err != nil {
				return err
			}

			tasks := task.New(nil)
			defer tasks.Shutdown(cmd.Context())

			ctl := workflow.New(cmd.Context(), workflow.Deps{
				Tasks:    tasks,
				Records:  records.NewStore(),
				Settings: st,
			})
			h, err := ctl.PurgeOutput()
			if err != nil {
				return err
			}
			out, err := h.Wait(cmd.Context())
			if err != nil {
				return err
			}
			if out.Err != nil {
				return out.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from %s\n", out.Value, settings.Get(st, settings.KeyOutputFolder))
			return nil
		},
	}
}
