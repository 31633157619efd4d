// Package chat abstracts the workspace the monitor reads messages from
// and posts notifications to.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// ErrAuth marks credential failures. The worker treats them as fatal
// instead of retrying into a locked-out account.
var ErrAuth = errors.New("chat authentication failed")

// Client reads channel history and posts messages.
type Client interface {
	// FetchMessages returns channel messages observed strictly after the
	// cursor, oldest first. Messages without text (joins, uploads) are
	// dropped.
	FetchMessages(ctx context.Context, channelID string, after time.Time, limit int) ([]models.Message, error)

	// PostMessage sends text to the channel.
	PostMessage(ctx context.Context, channelID, text string) error

	// ResolveUserName returns a display name for the user id, falling
	// back to the id itself when the lookup fails.
	ResolveUserName(ctx context.Context, userID string) string

	// CheckAuth verifies the credentials.
	CheckAuth(ctx context.Context) error
}

// TransientError wraps failures worth retrying on a later poll cycle:
// rate limits, timeouts, server errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable chat failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
