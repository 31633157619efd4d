package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/noisegate/internal/models"
	"github.com/good-yellow-bee/noisegate/internal/triage"
)

var classifyChannel string

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Classify a message and show the send decision",
	Long: `Classify a message against a channel's rules and show the decision
the monitor would make right now, using the live alert database for
duplicate and recurrence history. Nothing is recorded and nothing is
sent.

Examples:
  # Would this message notify?
  noisegate classify --channel C0123456789 "ERROR: payment queue is down"

  # Decision as JSON
  noisegate classify --channel C0123456789 -o json "disk 91% full"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&classifyChannel, "channel", "", "channel id the message belongs to")
	classifyCmd.MarkFlagRequired("channel")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rules, err := cfg.RuleSet()
	if err != nil {
		return fmt.Errorf("build channel rules: %w", err)
	}
	rule, ok := rules.Get(classifyChannel)
	if !ok {
		return fmt.Errorf("channel %q is not configured", classifyChannel)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// No refiner here: the command stays deterministic and offline.
	decider, err := triage.NewDecider(triage.DeciderConfig{
		Store:      store,
		MinUrgency: cfg.Monitor.MinUrgency,
		Windows: triage.Windows{
			Duplicate:     cfg.Monitor.DuplicateWindow,
			CriticalDedup: cfg.Monitor.CriticalDedupWindow,
			Recurrence:    cfg.Monitor.RecurrenceWindow,
		},
	})
	if err != nil {
		return fmt.Errorf("create decider: %w", err)
	}

	msg := models.Message{
		ChannelID: classifyChannel,
		Timestamp: time.Now(),
		Author:    "cli",
		Text:      strings.Join(args, " "),
	}

	decision, err := decider.Decide(context.Background(), msg, rule)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}

	if output == "json" {
		result := struct {
			Send        bool                `json:"send"`
			Occurrences int                 `json:"occurrences"`
			Record      *models.AlertRecord `json:"record"`
		}{decision.Send, decision.Occurrences, decision.Record}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal decision: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	rec := decision.Record
	fmt.Printf("Channel:     %s (%s)\n", rec.ChannelLabel, rec.ChannelID)
	fmt.Printf("Severity:    %s\n", rec.Severity)
	fmt.Printf("Send:        %t\n", decision.Send)
	fmt.Printf("Reason:      %s\n", rec.Reason)
	if rec.ReasonDetail != "" {
		fmt.Printf("Detail:      %s\n", rec.ReasonDetail)
	}
	fmt.Printf("Occurrences: %d\n", decision.Occurrences)
	fmt.Printf("Signature:   %s\n", rec.PatternSignature)
	return nil
}
