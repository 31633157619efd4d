// Package cmd contains the CLI commands for noisegate.
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/noisegate/internal/config"
	"github.com/good-yellow-bee/noisegate/internal/storage"
)

var (
	// Used for flags
	configFile string
	output     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "noisegate",
	Short: "Noisegate - alert noise reduction for chat ops",
	Long: `Noisegate watches busy alert channels, classifies every message
and forwards only the ones worth waking somebody up for.

Messages are graded by channel keywords and patterns, deduplicated
against recent notifications, and held back until they recur often
enough to matter. Critical messages go out immediately. Everything is
recorded, so periodic digests and statistics cover the suppressed
alerts too.

Examples:
  # Run the monitor
  noisegate run --config noisegate.yaml

  # See how a message would be classified
  noisegate classify --channel C0123456789 "ERROR: payment queue is down"

  # Build the digest for the last two hours and print it
  noisegate digest --lookback 2h

  # Store statistics for the last day
  noisegate stats --hours 24`,
	// Run when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "noisegate.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format (text, json)")
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the root logger from the log section.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Log.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// openStore opens and migrates the alert database.
func openStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	store := storage.NewSQLiteStore(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}
