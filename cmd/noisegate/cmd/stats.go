package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/noisegate/internal/models"
	"github.com/good-yellow-bee/noisegate/internal/storage"
)

var statsHours int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show alert statistics",
	Long: `Show how many alerts were recorded and notified in the recent past,
broken down by severity, with the most frequent patterns and the
noisiest channels.

Examples:
  # Last 24 hours
  noisegate stats

  # Last week, as JSON
  noisegate stats --hours 168 -o json`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "statistics window in hours")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsHours <= 0 {
		return fmt.Errorf("--hours must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	since := time.Now().Add(-time.Duration(statsHours) * time.Hour)
	stats, err := store.Stats(context.Background(), since)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	if output == "json" {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	outputStatsTable(stats, statsHours)
	return nil
}

func outputStatsTable(stats *storage.Stats, hours int) {
	fmt.Println()
	fmt.Printf("Alert Statistics (last %dh)\n", hours)
	fmt.Println("===========================")
	fmt.Printf("Recorded: %d | Notified: %d\n", stats.Total, stats.Sent)
	fmt.Println()

	if len(stats.BySeverity) > 0 {
		fmt.Println("By Severity:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  SEVERITY\tCOUNT\n")
		fmt.Fprintf(w, "  --------\t-----\n")
		// Highest severity first
		order := []models.Severity{
			models.SeverityCritical,
			models.SeverityImportant,
			models.SeverityNormal,
			models.SeverityIgnore,
		}
		for _, sev := range order {
			if count, ok := stats.BySeverity[sev]; ok {
				fmt.Fprintf(w, "  %s\t%d\n", sev, count)
			}
		}
		w.Flush()
		fmt.Println()
	}

	if len(stats.TopPatterns) > 0 {
		fmt.Println("Top Patterns:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  SIGNATURE\tCOUNT\n")
		fmt.Fprintf(w, "  ---------\t-----\n")
		for _, p := range stats.TopPatterns {
			fmt.Fprintf(w, "  %s\t%d\n", p.Signature, p.Count)
		}
		w.Flush()
		fmt.Println()
	}

	if len(stats.TopChannels) > 0 {
		fmt.Println("Top Channels:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  CHANNEL\tID\tCOUNT\n")
		fmt.Fprintf(w, "  -------\t--\t-----\n")
		for _, c := range stats.TopChannels {
			fmt.Fprintf(w, "  %s\t%s\t%d\n", c.ChannelLabel, c.ChannelID, c.Count)
		}
		w.Flush()
		fmt.Println()
	}
}
