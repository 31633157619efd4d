package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// authErrors are Slack API error strings that mean the token is dead.
var authErrors = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
}

// SlackConfig holds Slack client settings.
type SlackConfig struct {
	// Token is the bot token (xoxb-...).
	Token string

	// RatePerSec caps Web API calls per second.
	RatePerSec int

	// APIURL overrides the Slack API endpoint. Tests point it at a
	// local server. Must end with a slash.
	APIURL string
}

// SlackClient implements Client on the Slack Web API.
type SlackClient struct {
	api     *slack.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	names map[string]string
}

// NewSlackClient creates a Slack-backed chat client.
func NewSlackClient(cfg SlackConfig) (*SlackClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}

	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}

	return &SlackClient{
		api:     slack.New(cfg.Token, opts...),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		names:   make(map[string]string),
	}, nil
}

// FetchMessages reads channel history strictly after the cursor and
// returns it oldest first.
func (c *SlackClient) FetchMessages(ctx context.Context, channelID string, after time.Time, limit int) ([]models.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    slackTimestamp(after),
		Limit:     limit,
		Inclusive: false,
	}
	resp, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, classifyErr("fetch history", err)
	}

	messages := make([]models.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		// Joins, uploads and similar events carry no usable text
		if m.Timestamp == "" || strings.TrimSpace(m.Text) == "" {
			continue
		}
		ts, err := parseSlackTimestamp(m.Timestamp)
		if err != nil {
			return nil, err
		}
		author := m.User
		if author == "" {
			author = m.Username
		}
		messages = append(messages, models.Message{
			ChannelID: channelID,
			Timestamp: ts,
			Author:    author,
			Text:      m.Text,
		})
	}

	// Slack returns history newest first
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// PostMessage sends text to the channel.
func (c *SlackClient) PostMessage(ctx context.Context, channelID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return classifyErr("post message", err)
	}
	return nil
}

// ResolveUserName looks up the user's display name, caching results.
func (c *SlackClient) ResolveUserName(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}

	c.mu.Lock()
	if name, ok := c.names[userID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return userID
	}
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return userID
	}

	name := user.Profile.DisplayName
	if name == "" {
		name = user.Profile.RealName
	}
	if name == "" {
		name = user.Name
	}
	if name == "" {
		return userID
	}

	c.mu.Lock()
	c.names[userID] = name
	c.mu.Unlock()
	return name
}

// CheckAuth verifies the token against auth.test.
func (c *SlackClient) CheckAuth(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.AuthTestContext(ctx); err != nil {
		return classifyErr("auth test", err)
	}
	return nil
}

// classifyErr sorts Slack failures into fatal auth errors and
// retry-next-cycle transient ones.
func classifyErr(op string, err error) error {
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return &TransientError{Err: fmt.Errorf("%s: rate limited, retry after %s: %w", op, rle.RetryAfter, err)}
	}
	if authErrors[err.Error()] {
		return fmt.Errorf("%s: %v: %w", op, err, ErrAuth)
	}
	return &TransientError{Err: fmt.Errorf("%s: %w", op, err)}
}

// slackTimestamp renders t in Slack's "seconds.microseconds" form.
func slackTimestamp(t time.Time) string {
	us := t.UnixMicro()
	return fmt.Sprintf("%d.%06d", us/1e6, us%1e6)
}

// parseSlackTimestamp converts "seconds.microseconds" back to a UTC
// time. Fractions shorter than six digits are zero-padded.
func parseSlackTimestamp(ts string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	secs, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}

	var micros int64
	if fracPart != "" {
		if len(fracPart) > 6 {
			fracPart = fracPart[:6]
		}
		for len(fracPart) < 6 {
			fracPart += "0"
		}
		micros, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
	}
	return time.UnixMicro(secs*1_000_000 + micros).UTC(), nil
}
