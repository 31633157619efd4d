package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order. Timestamps are
// stored as microseconds since the Unix epoch.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- One row per observed message, sent or suppressed
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				message_key TEXT UNIQUE NOT NULL,
				channel_id TEXT NOT NULL,
				channel_label TEXT NOT NULL,
				author TEXT NOT NULL,
				raw_text TEXT NOT NULL,
				content_hash TEXT NOT NULL,
				pattern_signature TEXT NOT NULL,
				severity TEXT NOT NULL,
				decision_reason TEXT NOT NULL,
				reason_detail TEXT,
				observed_at INTEGER NOT NULL,
				detected_at INTEGER NOT NULL,
				sent_to_target INTEGER NOT NULL DEFAULT 0
			);

			-- Poll resume positions, one per channel
			CREATE TABLE IF NOT EXISTS cursors (
				channel_id TEXT PRIMARY KEY,
				last_processed_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(channel_id, content_hash, observed_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_signature ON alerts(pattern_signature, observed_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_observed ON alerts(observed_at);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UnixMicro(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
