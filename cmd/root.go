package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// cfgFile holds the path to the configuration file; override with --config.
var cfgFile string

// version is injected from main at build time.
var version string

var rootCmd = &cobra.Command{
	Use:   "trends-etl",
	Short: "Load the shopping-trends snapshot into a star-schema warehouse",
	Long: `trends-etl reads a flat shopping-trends transaction snapshot,
derives deduplicated Customer and Item dimensions, rewrites each
transaction into a fact row referencing them, and loads the result into
PostgreSQL in dependency order. Runs are idempotent: re-running against
a store that already holds a prior run's data upserts instead of
duplicating.`,
}

// Execute runs the CLI. It is called once from main.
func Execute(buildVersion string) {
	version = buildVersion
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the configuration file")
}
