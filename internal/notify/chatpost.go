package notify

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// MessagePoster posts a text message to a channel. chat.Client
// satisfies it.
type MessagePoster interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

// Targets names the channels notifications can land in, in falling
// priority: the dedicated alert channel when configured, otherwise the
// summary channel (by ID when known, by name otherwise).
type Targets struct {
	AlertChannel     string
	SummaryChannelID string
	SummaryChannel   string
}

// Resolve returns the channel reference to post to, or "" when nothing
// is configured. A non-empty override wins over everything.
func (t Targets) Resolve(override string) string {
	switch {
	case override != "":
		return NormalizeChannelRef(override)
	case t.AlertChannel != "":
		return NormalizeChannelRef(t.AlertChannel)
	case t.SummaryChannelID != "":
		return t.SummaryChannelID
	default:
		return NormalizeChannelRef(t.SummaryChannel)
	}
}

// DigestTarget returns the channel periodic digests go to. Digests
// always land in the summary channel, never the alert channel.
func (t Targets) DigestTarget() string {
	if t.SummaryChannelID != "" {
		return t.SummaryChannelID
	}
	return NormalizeChannelRef(t.SummaryChannel)
}

// ChatNotifier posts alert notifications through the chat API. It is
// the fallback for deployments without an incoming webhook.
type ChatNotifier struct {
	poster  MessagePoster
	targets Targets
}

// NewChatNotifier creates a chat API notifier.
func NewChatNotifier(poster MessagePoster, targets Targets) (*ChatNotifier, error) {
	if poster == nil {
		return nil, fmt.Errorf("message poster is required")
	}
	if targets.Resolve("") == "" {
		return nil, fmt.Errorf("no notification channel configured")
	}
	return &ChatNotifier{poster: poster, targets: targets}, nil
}

// Name returns "chat".
func (c *ChatNotifier) Name() string {
	return "chat"
}

// Send posts the rendered notification to the resolved channel.
func (c *ChatNotifier) Send(ctx context.Context, decision *models.Decision) error {
	channel := c.targets.Resolve("")
	if err := c.poster.PostMessage(ctx, channel, FormatAlert(decision)); err != nil {
		return fmt.Errorf("post to %s: %w", channel, err)
	}
	return nil
}

// Close is a no-op for the chat notifier.
func (c *ChatNotifier) Close() error {
	return nil
}
