package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) GetCursor(ctx context.Context, channelID string) (time.Time, bool, error) {
	var position int64
	err := s.db.QueryRowContext(ctx,
		"SELECT last_processed_at FROM cursors WHERE channel_id = ?", channelID).Scan(&position)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cursor: %w", err)
	}
	return time.UnixMicro(position).UTC(), true, nil
}

func (s *SQLiteStore) SetCursor(ctx context.Context, channelID string, position time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cursor update: %w", err)
	}
	defer tx.Rollback()

	proposed := position.UnixMicro()

	var stored int64
	err = tx.QueryRowContext(ctx,
		"SELECT last_processed_at FROM cursors WHERE channel_id = ?", channelID).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		// First cursor for this channel.
	case err != nil:
		return fmt.Errorf("read cursor: %w", err)
	case proposed < stored:
		return fmt.Errorf("channel %s: stored %d, proposed %d: %w",
			channelID, stored, proposed, ErrCursorRegression)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cursors (channel_id, last_processed_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			last_processed_at = excluded.last_processed_at,
			updated_at = excluded.updated_at
	`, channelID, proposed, time.Now().UnixMicro())
	if err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cursor update: %w", err)
	}
	return nil
}
