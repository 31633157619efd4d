package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/noisegate/internal/chat"
	"github.com/good-yellow-bee/noisegate/internal/config"
	"github.com/good-yellow-bee/noisegate/internal/digest"
	"github.com/good-yellow-bee/noisegate/internal/llm"
	"github.com/good-yellow-bee/noisegate/internal/metrics"
	"github.com/good-yellow-bee/noisegate/internal/notify"
	"github.com/good-yellow-bee/noisegate/internal/ops"
	"github.com/good-yellow-bee/noisegate/internal/storage"
	"github.com/good-yellow-bee/noisegate/internal/triage"
	"github.com/good-yellow-bee/noisegate/internal/worker"
	"github.com/good-yellow-bee/noisegate/pkg/version"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the realtime monitor",
	Long: `Run the full pipeline: the polling worker, the periodic digest
scheduler, the operational HTTP server and the config watcher, as
enabled by the configuration. Stops cleanly on SIGINT or SIGTERM.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single poll cycle and exit")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	metrics.SetBuildInfo(version.Version, version.Commit, version.BuildTime)
	logger.Info().Str("version", version.ShortVersionString()).Msg("starting noisegate")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("database ready")

	rules, err := cfg.RuleSet()
	if err != nil {
		return fmt.Errorf("build channel rules: %w", err)
	}

	chatClient, err := chat.NewSlackClient(chat.SlackConfig{Token: cfg.Slack.BotToken})
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}

	var (
		refiner    triage.Refiner
		summarizer digest.Summarizer
	)
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
		refiner = llmClient
		summarizer = llmClient
		logger.Info().Str("model", cfg.LLM.Model).Msg("llm refinement enabled")
	}

	decider, err := triage.NewDecider(triage.DeciderConfig{
		Store:      store,
		Refiner:    refiner,
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

	dispatcher := notify.NewDispatcherWithRateLimit(notify.RateLimitConfig{
		MaxPerWindow:   cfg.Notify.RateLimit,
		Window:         cfg.Notify.RateWindow,
		Enabled:        true,
		BypassCritical: true,
	})
	defer dispatcher.Close()

	targets := notify.Targets{
		AlertChannel:     cfg.Slack.AlertChannel,
		SummaryChannelID: cfg.Slack.SummaryChannelID,
		SummaryChannel:   cfg.Slack.SummaryChannel,
	}
	if targets.Resolve("") != "" {
		chatNotifier, err := notify.NewChatNotifier(chatClient, targets)
		if err != nil {
			return fmt.Errorf("create chat notifier: %w", err)
		}
		dispatcher.Register(chatNotifier)
	}
	if cfg.Notify.WebhookURL != "" {
		webhook, err := notify.NewSlackWebhook(notify.SlackWebhookConfig{WebhookURL: cfg.Notify.WebhookURL})
		if err != nil {
			return fmt.Errorf("create slack webhook: %w", err)
		}
		dispatcher.Register(webhook)
	}
	if targets.Resolve("") == "" && cfg.Notify.WebhookURL == "" {
		logger.Warn().Msg("no notification target configured, decisions are recorded only")
	}

	var (
		archiver worker.Archiver
		buffer   *storage.DecisionBuffer
		archive  *storage.ClickHouseArchive
	)
	if cfg.Archive.Enabled {
		archive = storage.NewClickHouseArchive(&storage.ArchiveConfig{
			Addresses:   cfg.Archive.Addresses,
			Database:    cfg.Archive.Database,
			Username:    cfg.Archive.Username,
			Password:    cfg.Archive.Password,
			Compression: cfg.Archive.Compression,
		})
		if err := archive.Open(); err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()
		if err := archive.Migrate(); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}

		buffer = storage.NewDecisionBuffer(archive, &storage.DecisionBufferConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			MaxSize:       cfg.Archive.MaxBuffer,
		}, logger)
		defer buffer.Close()
		archiver = buffer

		logger.Info().Strs("addresses", cfg.Archive.Addresses).Msg("decision archive enabled")
	}

	w, err := worker.New(worker.Config{
		Store:              store,
		Chat:               chatClient,
		Decider:            decider,
		Rules:              rules,
		Notifier:           dispatcher,
		Archive:            archiver,
		Logger:             logger,
		PollInterval:       cfg.Monitor.PollInterval,
		FetchLimit:         cfg.Monitor.FetchLimit,
		FetchTimeout:       cfg.Monitor.FetchTimeout,
		StorageTimeout:     cfg.Monitor.StorageTimeout,
		MaxStorageFailures: cfg.Monitor.MaxStorageFailures,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	if runOnce {
		return w.RunOnce(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)

	if *cfg.Monitor.Enabled {
		g.Go(func() error { return w.Run(ctx) })
	} else {
		logger.Info().Msg("realtime monitor disabled")
	}

	if cfg.Digest.Enabled {
		builder, err := digest.NewBuilder(digest.BuilderConfig{
			Store:           store,
			Summarizer:      summarizer,
			IncludeFiltered: *cfg.Digest.IncludeFiltered,
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("create digest builder: %w", err)
		}
		scheduler, err := digest.NewScheduler(digest.SchedulerConfig{
			Builder:     builder,
			Poster:      chatClient,
			Channel:     targets.DigestTarget(),
			Interval:    cfg.Digest.Interval,
			Lookback:    cfg.Digest.Lookback,
			SendInitial: cfg.Digest.SendInitial,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("create digest scheduler: %w", err)
		}
		g.Go(func() error { return scheduler.Run(ctx) })
	}

	if *cfg.Ops.Enabled {
		opsCfg := ops.Config{
			Address:   cfg.Ops.Address,
			Store:     store,
			Worker:    w,
			RateLimit: dispatcher,
			Logger:    logger,
		}
		if buffer != nil {
			opsCfg.Archive = buffer
		}
		opsServer, err := ops.New(opsCfg)
		if err != nil {
			return fmt.Errorf("create ops server: %w", err)
		}
		opsServer.RegisterChecker(ops.NewSQLiteChecker(store.DB()))
		if archive != nil {
			opsServer.RegisterChecker(ops.NewClickHouseChecker(archive))
		}
		g.Go(func() error { return opsServer.Run(ctx) })
	}

	watcher, err := config.NewWatcher(configFile, func(next *config.Config) {
		rules, err := next.RuleSet()
		if err != nil {
			logger.Warn().Err(err).Msg("reloaded config has invalid channels, keeping current rules")
			return
		}
		w.UpdateRules(rules)
	}, logger)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Stop()
	g.Go(func() error { return watcher.Run(ctx) })

	err = g.Wait()
	logger.Info().Msg("noisegate stopped")
	return err
}
