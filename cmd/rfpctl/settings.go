package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/internal/config"
	"github.com/rfpdesk/internal/settings"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "List the workflow settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := settings.Open(config.FromEnv().SettingsPath)
			if err != nil {
				return err
			}
			all := st.All()
			for _, k := range settings.Keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", k, all[k])
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one workflow setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := settings.Open(config.FromEnv().SettingsPath)
			if err != nil {
				return err
			}
			if err := st.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := st.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], settings.Get(st, args[0]))
			return nil
		},
	})
	return cmd
}
