// Command rfpctl drives the request-for-payment workflow from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "rfpctl",
		Short:         "Fetch, generate and dispatch requests for payment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(pagesCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(journalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
