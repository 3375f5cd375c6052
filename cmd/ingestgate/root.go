package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ingestgate",
	Short: "Analytics ingest gateway with per-client rate limiting",
	Long: `Ingestgate sits in front of an analytics collector and an application
upstream. Traffic under the reserved /ingest and /db-ingest namespaces is
checked against a path allow-list and a per-client fixed-window rate limit
before being forwarded to the collector. Everything else passes through to
the application untouched.

Quick start:
  ingestgate serve     # Start the gateway

Management:
  ingestgate validate  # Validate configuration
  ingestgate version   # Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "ingestgate.yaml", "config file path")
}
