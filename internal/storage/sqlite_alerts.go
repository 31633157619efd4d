package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// alertColumns is the scan order shared by every SELECT over alerts.
const alertColumns = `id, message_key, channel_id, channel_label, author, raw_text,
	content_hash, pattern_signature, severity, decision_reason, reason_detail,
	observed_at, detected_at, sent_to_target`

func (s *SQLiteStore) RecordAlert(ctx context.Context, rec *models.AlertRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	// OR IGNORE turns a message_key collision into zero affected rows,
	// which keeps crash-resume inserts idempotent.
	query := `
		INSERT OR IGNORE INTO alerts (id, message_key, channel_id, channel_label, author,
			raw_text, content_hash, pattern_signature, severity, decision_reason,
			reason_detail, observed_at, detected_at, sent_to_target)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.MessageKey, rec.ChannelID, rec.ChannelLabel, rec.Author,
		rec.RawText, rec.ContentHash, rec.PatternSignature, rec.Severity,
		rec.Reason, nullString(rec.ReasonDetail), rec.ObservedAt.UnixMicro(),
		rec.DetectedAt.UnixMicro(), boolToInt(rec.SentToTarget),
	)
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	if n == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

func (s *SQLiteStore) MarkSent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE alerts SET sent_to_target = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark sent: no alert with id %s", id)
	}
	return nil
}

func (s *SQLiteStore) HasMessage(ctx context.Context, messageKey string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM alerts WHERE message_key = ?)", messageKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return exists == 1, nil
}

func (s *SQLiteStore) IsDuplicate(ctx context.Context, channelID, contentHash string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM alerts
			WHERE channel_id = ? AND content_hash = ? AND observed_at >= ? AND sent_to_target = 1
		)
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, channelID, contentHash, since.UnixMicro()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("duplicate lookup: %w", err)
	}
	return exists == 1, nil
}

func (s *SQLiteStore) CountRecentOccurrences(ctx context.Context, patternSignature string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE pattern_signature = ? AND observed_at >= ?",
		patternSignature, since.UnixMicro()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count occurrences: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) FetchRecentAlerts(ctx context.Context, since time.Time, includeFiltered bool, minSeverity models.Severity) ([]*models.AlertRecord, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE observed_at >= ?"
	if !includeFiltered {
		query += " AND sent_to_target = 1"
	}
	query += " ORDER BY observed_at DESC"

	rows, err := s.db.QueryContext(ctx, query, since.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	defer rows.Close()

	records, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	if minSeverity == "" {
		return records, nil
	}
	filtered := make([]*models.AlertRecord, 0, len(records))
	for _, rec := range records {
		if rec.Severity.AtLeast(minSeverity) {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE observed_at < ?", cutoff.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{BySeverity: make(map[models.Severity]int64)}
	cutoff := since.UnixMicro()

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(sent_to_target), 0) FROM alerts WHERE observed_at >= ?",
		cutoff).Scan(&stats.Total, &stats.Sent)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}

	if err := s.severityCounts(ctx, cutoff, stats); err != nil {
		return nil, err
	}
	if err := s.topPatterns(ctx, cutoff, stats); err != nil {
		return nil, err
	}
	if err := s.topChannels(ctx, cutoff, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStore) severityCounts(ctx context.Context, cutoff int64, stats *Stats) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT severity, COUNT(*) FROM alerts WHERE observed_at >= ? GROUP BY severity", cutoff)
	if err != nil {
		return fmt.Errorf("query severity counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return fmt.Errorf("scan severity count: %w", err)
		}
		stats.BySeverity[models.Severity(severity)] = count
	}
	return rows.Err()
}

func (s *SQLiteStore) topPatterns(ctx context.Context, cutoff int64, stats *Stats) error {
	query := `
		SELECT pattern_signature, COUNT(*) AS n FROM alerts
		WHERE observed_at >= ?
		GROUP BY pattern_signature ORDER BY n DESC, pattern_signature LIMIT 5
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return fmt.Errorf("query top patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pc PatternCount
		if err := rows.Scan(&pc.Signature, &pc.Count); err != nil {
			return fmt.Errorf("scan top pattern: %w", err)
		}
		stats.TopPatterns = append(stats.TopPatterns, pc)
	}
	return rows.Err()
}

func (s *SQLiteStore) topChannels(ctx context.Context, cutoff int64, stats *Stats) error {
	query := `
		SELECT channel_id, channel_label, COUNT(*) AS n FROM alerts
		WHERE observed_at >= ?
		GROUP BY channel_id, channel_label ORDER BY n DESC, channel_id LIMIT 5
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return fmt.Errorf("query top channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc ChannelCount
		if err := rows.Scan(&cc.ChannelID, &cc.ChannelLabel, &cc.Count); err != nil {
			return fmt.Errorf("scan top channel: %w", err)
		}
		stats.TopChannels = append(stats.TopChannels, cc)
	}
	return rows.Err()
}

func scanAlerts(rows *sql.Rows) ([]*models.AlertRecord, error) {
	var records []*models.AlertRecord
	for rows.Next() {
		rec := &models.AlertRecord{}
		var severity, reason string
		var detail sql.NullString
		var observedAt, detectedAt int64
		var sent int
		err := rows.Scan(&rec.ID, &rec.MessageKey, &rec.ChannelID, &rec.ChannelLabel,
			&rec.Author, &rec.RawText, &rec.ContentHash, &rec.PatternSignature,
			&severity, &reason, &detail, &observedAt, &detectedAt, &sent)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		rec.Severity = models.Severity(severity)
		rec.Reason = models.Reason(reason)
		rec.ReasonDetail = detail.String
		rec.ObservedAt = time.UnixMicro(observedAt).UTC()
		rec.DetectedAt = time.UnixMicro(detectedAt).UTC()
		rec.SentToTarget = sent == 1
		records = append(records, rec)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
