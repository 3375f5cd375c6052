package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ingestgate/ingestgate/adapters/sqlite"
	"github.com/ingestgate/ingestgate/config"
	"github.com/ingestgate/ingestgate/domain/ingest"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the ingestgate configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Extra allow-list patterns compile
  - Upstreams are reachable (optional)
  - Audit database is writable (optional)

Examples:
  ingestgate validate
  ingestgate validate --config /etc/ingestgate/config.yaml`,
	RunE: runValidate,
}

var (
	validateCheckUpstreams bool
	validateCheckDatabase  bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckUpstreams, "check-upstreams", false, "check if upstreams are reachable")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if audit database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	if _, err := ingest.NewMatcher(cfg.Ingest.ExtraPatterns); err != nil {
		fmt.Printf("  %s Extra patterns compile\n", crossMark)
		return fmt.Errorf("pattern error: %w", err)
	}
	fmt.Printf("  %s Extra patterns compile\n", checkMark)

	fmt.Printf("  %s Collector: %s\n", checkMark, cfg.Collector.URL)
	fmt.Printf("  %s App: %s\n", checkMark, cfg.App.URL)
	fmt.Printf("  %s Counter store: %s\n", checkMark, cfg.Ingest.Store)
	fmt.Printf("  %s Rate limit: %d requests / %ds\n", checkMark, cfg.Ingest.Limit, cfg.Ingest.WindowSecs)

	if validateCheckUpstreams {
		for name, url := range map[string]string{"collector": cfg.Collector.URL, "app": cfg.App.URL} {
			if err := checkUpstreamReachable(url); err != nil {
				fmt.Printf("  %s %s reachable\n", crossMark, name)
				fmt.Printf("      Error: %v\n", err)
			} else {
				fmt.Printf("  %s %s reachable\n", checkMark, name)
			}
		}
	}

	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Database.DSN); err != nil {
			fmt.Printf("  %s Audit database writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Audit database writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkUpstreamReachable(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
