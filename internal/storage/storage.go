// Package storage persists alert decisions and the per-channel poll
// cursors the realtime worker resumes from.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// ErrCursorRegression is returned by SetCursor when the proposed
// position is behind the stored one.
var ErrCursorRegression = errors.New("cursor regression")

// ErrDuplicateMessage is returned by RecordAlert when a record for the
// same message key already exists. Callers resuming after a crash treat
// it as "already processed".
var ErrDuplicateMessage = errors.New("message already recorded")

// AlertStore is the persistence interface for alert records and poll
// cursors. Implementations must be safe for concurrent use.
type AlertStore interface {
	// RecordAlert inserts the record, assigning a fresh ID when the
	// record carries none. Records are unique by message key; inserting
	// a key that already exists returns ErrDuplicateMessage.
	RecordAlert(ctx context.Context, rec *models.AlertRecord) error

	// MarkSent flips the record's sent flag after a successful delivery.
	MarkSent(ctx context.Context, id string) error

	// HasMessage reports whether a record exists for the message key.
	HasMessage(ctx context.Context, messageKey string) (bool, error)

	// IsDuplicate reports whether content with the same hash was already
	// notified on the channel at or after the cutoff. Records that were
	// suppressed do not count.
	IsDuplicate(ctx context.Context, channelID, contentHash string, since time.Time) (bool, error)

	// CountRecentOccurrences counts records carrying the pattern
	// signature observed at or after the cutoff, sent or not.
	CountRecentOccurrences(ctx context.Context, patternSignature string, since time.Time) (int, error)

	// FetchRecentAlerts returns records observed at or after the cutoff,
	// newest first. Suppressed records are dropped unless includeFiltered
	// is set; minSeverity, when non-empty, drops records below it.
	FetchRecentAlerts(ctx context.Context, since time.Time, includeFiltered bool, minSeverity models.Severity) ([]*models.AlertRecord, error)

	// GetCursor returns the channel's poll cursor. ok is false when the
	// channel has never been polled.
	GetCursor(ctx context.Context, channelID string) (cursor time.Time, ok bool, err error)

	// SetCursor stores the channel's poll cursor. Moving an existing
	// cursor backwards fails with ErrCursorRegression; setting it to the
	// same position is allowed.
	SetCursor(ctx context.Context, channelID string, position time.Time) error

	// PurgeOlderThan deletes records observed before the cutoff and
	// returns how many were removed. Cursors are untouched.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats aggregates decision outcomes observed at or after the cutoff.
	Stats(ctx context.Context, since time.Time) (*Stats, error)

	// Close releases underlying resources.
	Close() error
}

// Stats summarizes stored decisions over a window.
type Stats struct {
	Total       int64                     `json:"total"`
	Sent        int64                     `json:"sent"`
	BySeverity  map[models.Severity]int64 `json:"by_severity"`
	TopPatterns []PatternCount            `json:"top_patterns"`
	TopChannels []ChannelCount            `json:"top_channels"`
}

// PatternCount is a pattern signature and how often it fired.
type PatternCount struct {
	Signature string `json:"signature"`
	Count     int64  `json:"count"`
}

// ChannelCount is a channel and how many records it produced.
type ChannelCount struct {
	ChannelID    string `json:"channel_id"`
	ChannelLabel string `json:"channel_label"`
	Count        int64  `json:"count"`
}
