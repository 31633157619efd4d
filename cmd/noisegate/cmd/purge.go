package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var purgeDays int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old alert records",
	Long: `Delete alert records older than the retention period. The default
period comes from database.retention in the config; --days overrides
it.`,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "delete records older than this many days (default: database.retention)")
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	retention := cfg.Database.Retention
	if purgeDays > 0 {
		retention = time.Duration(purgeDays) * 24 * time.Hour
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cutoff := time.Now().Add(-retention)
	purged, err := store.PurgeOlderThan(context.Background(), cutoff)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}

	fmt.Printf("purged %d alert records observed before %s\n",
		purged, cutoff.UTC().Format("2006-01-02 15:04 MST"))
	return nil
}
