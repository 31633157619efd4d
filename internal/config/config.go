// Package config loads, validates and watches the runtime YAML
// configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// Config is the root runtime configuration.
type Config struct {
	Slack    SlackConfig           `yaml:"slack"`
	Channels []*models.ChannelRule `yaml:"channels"`
	Monitor  MonitorConfig         `yaml:"monitor"`
	Notify   NotifyConfig          `yaml:"notify"`
	Digest   DigestConfig          `yaml:"digest"`
	LLM      LLMConfig             `yaml:"llm"`
	Database DatabaseConfig        `yaml:"database"`
	Archive  ArchiveConfig         `yaml:"archive"`
	Ops      OpsConfig             `yaml:"ops"`
	Log      LogConfig             `yaml:"log"`
}

// SlackConfig identifies the workspace connection and the channels
// notifications land in. The bot token may be given inline, as a
// ${VAR} reference, or through bot_token_env naming the variable.
type SlackConfig struct {
	BotToken         string `yaml:"bot_token"`
	BotTokenEnv      string `yaml:"bot_token_env"`
	SummaryChannel   string `yaml:"summary_channel"`
	SummaryChannelID string `yaml:"summary_channel_id"`
	AlertChannel     string `yaml:"alert_channel"`
}

// MonitorConfig tunes the realtime polling worker.
type MonitorConfig struct {
	// Enabled turns the realtime worker on. nil defaults to true; Load
	// materializes the default.
	Enabled             *bool           `yaml:"enabled"`
	PollInterval        time.Duration   `yaml:"poll_interval"`         // default 30s
	MinUrgency          models.Severity `yaml:"min_urgency"`           // default IMPORTANT
	DuplicateWindow     time.Duration   `yaml:"duplicate_window"`      // default 60m
	CriticalDedupWindow time.Duration   `yaml:"critical_dedup_window"` // default 10m
	RecurrenceWindow    time.Duration   `yaml:"recurrence_window"`     // default 60m
	FetchLimit          int             `yaml:"fetch_limit"`           // default 200
	FetchTimeout        time.Duration   `yaml:"fetch_timeout"`         // default 60s
	StorageTimeout      time.Duration   `yaml:"storage_timeout"`       // default 10s
	MaxStorageFailures  int             `yaml:"max_storage_failures"`  // default 5
}

// NotifyConfig carries the optional incoming webhook and the outbound
// rate limit.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	RateLimit  int           `yaml:"rate_limit"`  // default 10
	RateWindow time.Duration `yaml:"rate_window"` // default 1m
}

// DigestConfig schedules the periodic summary.
type DigestConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"` // default 60m
	Lookback time.Duration `yaml:"lookback"` // default 60m
	// IncludeFiltered also lists suppressed alerts in the digest. nil
	// defaults to true; Load materializes the default.
	IncludeFiltered *bool `yaml:"include_filtered"`
	SendInitial     bool  `yaml:"send_initial"`
}

// LLMConfig enables severity refinement and digest summaries. The API
// key resolves like the bot token: inline, ${VAR}, or api_key_env,
// falling back to ANTHROPIC_API_KEY.
type LLMConfig struct {
	Enabled   bool          `yaml:"enabled"`
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	MaxTokens int64         `yaml:"max_tokens"` // default 256
	Timeout   time.Duration `yaml:"timeout"`    // default 8s
}

// DatabaseConfig locates the alert database.
type DatabaseConfig struct {
	Path      string        `yaml:"path"`      // default noisegate.db
	Retention time.Duration `yaml:"retention"` // purge horizon, default 30d
}

// ArchiveConfig connects the optional ClickHouse decision archive.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addresses     []string      `yaml:"addresses"`
	Database      string        `yaml:"database"` // default noisegate
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Compression   bool          `yaml:"compression"`
	BatchSize     int           `yaml:"batch_size"`     // default 200
	FlushInterval time.Duration `yaml:"flush_interval"` // default 5s
	MaxBuffer     int           `yaml:"max_buffer"`     // default 10000
}

// OpsConfig configures the operational HTTP server.
type OpsConfig struct {
	// Enabled turns the ops server on. nil defaults to true; Load
	// materializes the default.
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"` // default :8090
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error, default info
	Format string `yaml:"format"` // console|json, default console
}

// Load reads the configuration file, resolves secret references,
// applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.resolveSecrets()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with default values. The result does
// not validate until a bot token and at least one channel are set.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// resolveEnv expands values of the form ${ENV_VAR} to the variable's
// value. Other values pass through unchanged.
func resolveEnv(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// resolveSecrets fills secret fields from the environment.
func (c *Config) resolveSecrets() {
	c.Slack.BotToken = resolveEnv(c.Slack.BotToken)
	if c.Slack.BotToken == "" && c.Slack.BotTokenEnv != "" {
		c.Slack.BotToken = os.Getenv(c.Slack.BotTokenEnv)
	}
	if c.Slack.BotToken == "" {
		c.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}

	c.Notify.WebhookURL = resolveEnv(c.Notify.WebhookURL)

	c.LLM.APIKey = resolveEnv(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if c.LLM.APIKeyEnv != "" {
			c.LLM.APIKey = os.Getenv(c.LLM.APIKeyEnv)
		} else {
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	c.Archive.Password = resolveEnv(c.Archive.Password)
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Monitor.Enabled == nil {
		enabled := true
		c.Monitor.Enabled = &enabled
	}
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = 30 * time.Second
	}
	if c.Monitor.MinUrgency == "" {
		c.Monitor.MinUrgency = models.SeverityImportant
	}
	if c.Monitor.DuplicateWindow <= 0 {
		c.Monitor.DuplicateWindow = time.Hour
	}
	if c.Monitor.CriticalDedupWindow <= 0 {
		c.Monitor.CriticalDedupWindow = 10 * time.Minute
	}
	if c.Monitor.RecurrenceWindow <= 0 {
		c.Monitor.RecurrenceWindow = time.Hour
	}
	if c.Monitor.FetchLimit <= 0 {
		c.Monitor.FetchLimit = 200
	}
	if c.Monitor.FetchTimeout <= 0 {
		c.Monitor.FetchTimeout = time.Minute
	}
	if c.Monitor.StorageTimeout <= 0 {
		c.Monitor.StorageTimeout = 10 * time.Second
	}
	if c.Monitor.MaxStorageFailures <= 0 {
		c.Monitor.MaxStorageFailures = 5
	}

	if c.Notify.RateLimit <= 0 {
		c.Notify.RateLimit = 10
	}
	if c.Notify.RateWindow <= 0 {
		c.Notify.RateWindow = time.Minute
	}

	if c.Digest.Interval <= 0 {
		c.Digest.Interval = time.Hour
	}
	if c.Digest.Lookback <= 0 {
		c.Digest.Lookback = time.Hour
	}
	if c.Digest.IncludeFiltered == nil {
		include := true
		c.Digest.IncludeFiltered = &include
	}

	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 256
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 8 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "noisegate.db"
	}
	if c.Database.Retention <= 0 {
		c.Database.Retention = 30 * 24 * time.Hour
	}

	if c.Archive.Database == "" {
		c.Archive.Database = "noisegate"
	}
	if c.Archive.BatchSize <= 0 {
		c.Archive.BatchSize = 200
	}
	if c.Archive.FlushInterval <= 0 {
		c.Archive.FlushInterval = 5 * time.Second
	}
	if c.Archive.MaxBuffer <= 0 {
		c.Archive.MaxBuffer = 10000
	}

	if c.Ops.Enabled == nil {
		enabled := true
		c.Ops.Enabled = &enabled
	}
	if c.Ops.Address == "" {
		c.Ops.Address = ":8090"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token not found: define slack.bot_token or slack.bot_token_env")
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if _, err := models.NewRuleSet(c.Channels); err != nil {
		return fmt.Errorf("channels: %w", err)
	}

	if !c.Monitor.MinUrgency.Valid() {
		return fmt.Errorf("monitor.min_urgency: unknown severity %q", c.Monitor.MinUrgency)
	}

	if c.Digest.Enabled && c.Slack.SummaryChannelID == "" && c.Slack.SummaryChannel == "" {
		return fmt.Errorf("digest requires slack.summary_channel or slack.summary_channel_id")
	}

	if c.LLM.Enabled {
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when llm is enabled")
		}
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm api key not found: define llm.api_key or llm.api_key_env")
		}
	}

	if c.Archive.Enabled && len(c.Archive.Addresses) == 0 {
		return fmt.Errorf("archive.addresses is required when archive is enabled")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	return nil
}

// RuleSet builds the validated channel rule index.
func (c *Config) RuleSet() (*models.RuleSet, error) {
	return models.NewRuleSet(c.Channels)
}
