// Package cli provides the parq development command line: run a conversion
// against a local CSV and question a local Parquet without any AWS access.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parq/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger, loaded before any subcommand runs.
	cfg    config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "parq",
	Short: "CSV to Parquet conversion and natural-language querying",
	Long: `Parq converts CSV files into compressed columnar Parquet under a fixed
memory ceiling, and answers natural-language questions about the result by
synthesising and executing SQL against an embedded analytic engine.

The CLI runs both stages locally against files on disk, for development
and testing. The deployed system runs the same pipeline behind a job
queue; see the cmd/parq-* entry points.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, _ = config.SetupLogger(cfg)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(askCmd)
}
