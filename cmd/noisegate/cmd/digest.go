package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/noisegate/internal/chat"
	"github.com/good-yellow-bee/noisegate/internal/digest"
	"github.com/good-yellow-bee/noisegate/internal/llm"
	"github.com/good-yellow-bee/noisegate/internal/notify"
)

var (
	digestLookback time.Duration
	digestPost     bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Build an activity digest",
	Long: `Build the periodic digest over the recent alert history and print
it, or post it to the summary channel with --post.

Examples:
  # Print the digest for the configured lookback
  noisegate digest

  # Digest over the last two hours, posted to the summary channel
  noisegate digest --lookback 2h --post`,
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)

	digestCmd.Flags().DurationVar(&digestLookback, "lookback", 0, "period to cover (default: digest.lookback from config)")
	digestCmd.Flags().BoolVar(&digestPost, "post", false, "post the digest to the summary channel")
}

func runDigest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var summarizer digest.Summarizer
	if cfg.LLM.Enabled {
		llmClient, err := llm.New(llm.Config{
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("create llm client: %w", err)
		}
		summarizer = llmClient
	}

	builder, err := digest.NewBuilder(digest.BuilderConfig{
		Store:           store,
		Summarizer:      summarizer,
		IncludeFiltered: *cfg.Digest.IncludeFiltered,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create digest builder: %w", err)
	}

	lookback := cfg.Digest.Lookback
	if digestLookback > 0 {
		lookback = digestLookback
	}

	ctx := context.Background()
	report, err := builder.Build(ctx, lookback)
	if err != nil {
		return fmt.Errorf("build digest: %w", err)
	}

	if !digestPost {
		fmt.Println(report)
		return nil
	}

	targets := notify.Targets{
		SummaryChannelID: cfg.Slack.SummaryChannelID,
		SummaryChannel:   cfg.Slack.SummaryChannel,
	}
	channel := targets.DigestTarget()
	if channel == "" {
		return fmt.Errorf("no summary channel configured")
	}

	chatClient, err := chat.NewSlackClient(chat.SlackConfig{Token: cfg.Slack.BotToken})
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}
	if err := chatClient.PostMessage(ctx, channel, report); err != nil {
		return fmt.Errorf("post digest: %w", err)
	}

	fmt.Printf("digest posted to %s\n", channel)
	return nil
}
