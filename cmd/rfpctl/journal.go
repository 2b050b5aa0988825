package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rfpdesk/internal/config"
	"github.com/rfpdesk/internal/store"
)

func journalCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the outcome of recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := store.OpenJournal(cmd.Context(), config.FromEnv().JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tJOB\tROUTE\tCOUNT\tSTATE\tERROR")
			for _, e := range entries {
				route := "-"
				if e.Channel != "" {
					route = string(e.Channel) + "/" + string(e.Container)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					humanize.Time(e.FinishedAt), e.Kind, route, humanize.Comma(int64(e.Count)), e.State, e.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	return cmd
}
