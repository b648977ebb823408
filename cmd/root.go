// Package cmd wires the tradeberg commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradeberg",
	Short: "Chat about the chart you are looking at",
	Long: `tradeberg is a local chat service built around a trading chart.

It serves a browser UI with an embedded chart widget, streams AI
replies about it, and can snapshot the rendered chart into the
conversation through a headless browser.

Run 'tradeberg onboard' once to create the config, then
'tradeberg serve' to start.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
