package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// SlackWebhookConfig holds Slack incoming webhook configuration.
type SlackWebhookConfig struct {
	WebhookURL string        // Slack incoming webhook URL
	Timeout    time.Duration // HTTP timeout (default: 6s)
}

// Validate validates the webhook configuration.
func (c *SlackWebhookConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// SlackWebhook sends alert notifications to a Slack incoming webhook.
type SlackWebhook struct {
	config     SlackWebhookConfig
	httpClient *http.Client
}

// NewSlackWebhook creates a new webhook notifier.
func NewSlackWebhook(config SlackWebhookConfig) (*SlackWebhook, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 6 * time.Second
	}

	return &SlackWebhook{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns "slack-webhook".
func (s *SlackWebhook) Name() string {
	return "slack-webhook"
}

// Send posts the notification to the webhook.
func (s *SlackWebhook) Send(ctx context.Context, decision *models.Decision) error {
	payload := buildWebhookPayload(decision)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for the webhook notifier.
func (s *SlackWebhook) Close() error {
	return nil
}

// webhookMessage is the webhook payload. Text carries the plain
// rendering so push previews stay readable; Blocks carry the rich one.
type webhookMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// buildWebhookPayload builds the Block Kit message for a decision.
func buildWebhookPayload(decision *models.Decision) webhookMessage {
	rec := decision.Record

	author := rec.Author
	if author == "" {
		author = "unknown"
	}
	label := rec.ChannelLabel
	if label == "" {
		label = rec.ChannelID
	}
	reason := rec.ReasonDetail
	if reason == "" {
		reason = string(rec.Reason)
	}

	header := fmt.Sprintf("%s %s alert in #%s", severityIcon(rec.Severity), rec.Severity, label)
	body := fmt.Sprintf("• User: `%s`\n• Text: %s\n• Reason: %s",
		author, truncate(strings.TrimSpace(rec.RawText), maxNotifyText), reason)
	meta := fmt.Sprintf("Occurrences: %d · observed %s",
		decision.Occurrences, rec.ObservedAt.UTC().Format("15:04:05 MST"))

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  truncate(header, 150),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: body,
			},
		},
		{
			Type: "context",
			Elements: []slackText{
				{
					Type: "mrkdwn",
					Text: meta,
				},
			},
		},
	}

	return webhookMessage{Text: FormatAlert(decision), Blocks: blocks}
}
