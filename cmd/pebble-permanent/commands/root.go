package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbURL      string
	modelsPath string
	configPath string
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pebble-permanent",
	Short: "Soft-delete tooling for pebble models",
	Long: `pebble-permanent inspects and maintains databases whose models are
soft-deleted: rows carry a removed-at stamp instead of being removed.

Models are read from Go source (--models), so the tool never compiles them.

Features:
  - Relation checks for CASCADE into models that are removed physically
  - CREATE TABLE generation in foreign key order, with live-row indexes
  - Live and deleted row counts per table
  - Purging rows deleted longer ago than a given age
  - Interactive trash browser to restore deleted rows`,
	Version:       "0.4.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&modelsPath, "models", "", "Go file or directory with model definitions (default from config, ./models)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}
