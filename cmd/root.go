// Package cmd defines the CLI commands for the crawlsup executable.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawlsup",
		Short: "Supervises long-running web-capture crawls with retry and resume.",
		Long: `crawlsup drives an external crawl engine for one collection: it stages
the crawl configuration, launches the engine, relays its live status output,
and when an attempt is interrupted, resumes from the engine's most recent
checkpoint, up to a fixed attempt ceiling.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "supervisor config file (YAML)")
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute runs the CLI. The returned error is non-nil for usage errors and
// for every terminal outcome other than a completed crawl.
func Execute() error {
	return newRootCmd().Execute()
}
