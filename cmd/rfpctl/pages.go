package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rfpdesk/internal/records"
)

func pagesCmd() *cobra.Command {
	var (
		total, capacity int
		height          int
		header, row     int
	)

	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Show how a collection splits into pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if height > 0 {
				capacity = records.CapacityFor(height, header, row)
			}
			pager, err := records.NewPager(total, capacity)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d requests, %d per page, %d pages\n", total, capacity, pager.Pages())
			for i := 0; i < pager.Pages(); i++ {
				pager.Goto(i)
				from, to, n := pager.Window()
				fmt.Fprintf(out, "  page %d: requests %d to %d of %d\n", i+1, from, to, n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&total, "total", 0, "Number of requests")
	cmd.Flags().IntVar(&capacity, "capacity", 20, "Requests per page")
	cmd.Flags().IntVar(&height, "height", 0, "Viewport height in pixels; overrides --capacity")
	cmd.Flags().IntVar(&header, "header", 22, "Header height in pixels")
	cmd.Flags().IntVar(&row, "row", 20, "Row height in pixels")
	return cmd
}
