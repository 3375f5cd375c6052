package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ingestgate/ingestgate/bootstrap"
	"github.com/ingestgate/ingestgate/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingest gateway",
	Long: `Start the ingestgate server.

The server will:
  - Load configuration from ingestgate.yaml (or --config)
  - Or load configuration from INGESTGATE_* environment variables
  - Forward allow-listed ingest traffic to the analytics collector
  - Apply a per-client fixed-window rate limit to ingest traffic
  - Pass all other traffic through to the application upstream

Environment variables (for Docker deployments):
  INGESTGATE_COLLECTOR_URL   - Analytics collector URL (required)
  INGESTGATE_APP_URL         - Application upstream URL (required)
  INGESTGATE_SERVER_PORT     - Server port (default: 8080)
  INGESTGATE_INGEST_STORE    - Counter store: memory or redis
  INGESTGATE_INGEST_LIMIT    - Requests per window per client (default: 100)
  INGESTGATE_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  ingestgate serve
  ingestgate serve --config /etc/ingestgate/config.yaml
  ingestgate serve --hot-reload=false

  # Docker (env vars only):
  INGESTGATE_COLLECTOR_URL=http://collector:8000 \
  INGESTGATE_APP_URL=http://app:3000 ingestgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set INGESTGATE_COLLECTOR_URL and INGESTGATE_APP_URL")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  INGESTGATE_COLLECTOR_URL=http://collector:8000 \\")
		fmt.Println("  INGESTGATE_APP_URL=http://app:3000 ingestgate serve")
		return nil
	}

	var a *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		a, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		a, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return a.Run()
}
