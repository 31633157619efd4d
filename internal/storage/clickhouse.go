package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// ArchiveConfig holds ClickHouse connection settings for the decision
// archive.
type ArchiveConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for archived decisions.
	RetentionDays int
}

// ClickHouseArchive keeps a long-term copy of every decision for
// analytics. SQLite stays the source of truth for the worker; the
// archive is write-path only.
type ClickHouseArchive struct {
	config *ArchiveConfig
	db     *sql.DB
}

// NewClickHouseArchive creates a new decision archive.
func NewClickHouseArchive(config *ArchiveConfig) *ClickHouseArchive {
	// Apply defaults
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 90
	}

	return &ClickHouseArchive{config: config}
}

// Open initializes the ClickHouse connection.
func (a *ClickHouseArchive) Open() error {
	opts := &clickhouse.Options{
		Addr: a.config.Addresses,
		Auth: clickhouse.Auth{
			Database: a.config.Database,
			Username: a.config.Username,
			Password: a.config.Password,
		},
		DialTimeout:  a.config.DialTimeout,
		MaxOpenConns: a.config.MaxOpenConns,
		MaxIdleConns: a.config.MaxIdleConns,
	}

	if a.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), a.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	a.db = db
	return nil
}

// Close closes the database connection.
func (a *ClickHouseArchive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Ping checks the connection health.
func (a *ClickHouseArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Migrate creates the decisions table if it doesn't exist.
func (a *ClickHouseArchive) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS alert_decisions (
			id UUID DEFAULT generateUUIDv4(),
			message_key String,
			channel_id LowCardinality(String),
			channel_label LowCardinality(String),
			author String,
			raw_text String,
			content_hash String,
			pattern_signature String,
			severity LowCardinality(String),
			decision_reason LowCardinality(String),
			reason_detail String,
			observed_at DateTime64(6, 'UTC'),
			detected_at DateTime64(6, 'UTC'),
			sent_to_target UInt8,
			_date Date DEFAULT toDate(observed_at)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (channel_id, decision_reason, observed_at, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, a.config.RetentionDays)

	if _, err := a.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create decisions table: %w", err)
	}

	return nil
}

// InsertBatch inserts multiple decision records using batch insert.
func (a *ClickHouseArchive) InsertBatch(ctx context.Context, records []*models.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alert_decisions (
			id, message_key, channel_id, channel_label, author, raw_text,
			content_hash, pattern_signature, severity, decision_reason,
			reason_detail, observed_at, detected_at, sent_to_target
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}

		_, err := stmt.ExecContext(ctx,
			id,
			rec.MessageKey,
			rec.ChannelID,
			rec.ChannelLabel,
			rec.Author,
			rec.RawText,
			rec.ContentHash,
			rec.PatternSignature,
			string(rec.Severity),
			string(rec.Reason),
			rec.ReasonDetail,
			rec.ObservedAt,
			rec.DetectedAt,
			boolToInt(rec.SentToTarget),
		)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
