// Package llm calls the Anthropic Messages API for the two completions
// the monitor uses: a second opinion on borderline severities and the
// digest summary.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/metrics"
	"github.com/good-yellow-bee/noisegate/internal/models"
)

const (
	DefaultMaxTokens = 256
	DefaultTimeout   = 8 * time.Second
)

// Config holds the API settings. APIKey and Model are required.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// Client wraps the SDK with a fixed system prompt, temperature 0 and a
// per-call timeout. Completions are short and deterministic on purpose:
// the caller either wants one severity word or a few summary lines.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
	log       zerolog.Logger
}

// New validates cfg and returns a ready client. Extra request options
// are passed through to the SDK.
func New(cfg Config, logger zerolog.Logger, opts ...option.RequestOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	options := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Client{
		api:       anthropic.NewClient(options...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		log:       logger,
	}, nil
}

// Refine asks the model to re-grade a borderline alert. An unparseable
// reply is not an error: it returns an invalid severity and the caller
// keeps its own grading.
func (c *Client) Refine(ctx context.Context, messageText, channelLabel string, occurrences int) (models.Severity, error) {
	reply, err := c.complete(ctx, "refine", TriagePrompt(messageText, channelLabel, occurrences))
	if err != nil {
		return "", err
	}

	severity, perr := models.ParseSeverity(reply)
	if perr != nil {
		c.log.Debug().Str("reply", reply).Msg("severity reply not recognized, keeping heuristic grade")
		return "", nil
	}
	return severity, nil
}

// Summarize produces the short narrative appended to a digest.
func (c *Client) Summarize(ctx context.Context, report string) (string, error) {
	reply, err := c.complete(ctx, "digest", DigestPrompt(report))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (c *Client) complete(ctx context.Context, operation, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("llm %s request: %w", operation, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		metrics.LLMRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("llm %s request: empty completion", operation)
	}

	metrics.LLMRequestsTotal.WithLabelValues(operation, "ok").Inc()
	c.log.Debug().
		Str("operation", operation).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Msg("llm completion")
	return text, nil
}
