package ops

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteChecker verifies the alert database is reachable.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a checker over the store's database handle.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check pings the database.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// Pinger is satisfied by connections that expose a health ping, such
// as *storage.ClickHouseArchive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClickHouseChecker verifies the decision archive is reachable.
type ClickHouseChecker struct {
	pinger Pinger
}

// NewClickHouseChecker creates a checker over the archive connection.
func NewClickHouseChecker(p Pinger) *ClickHouseChecker {
	return &ClickHouseChecker{pinger: p}
}

// Name returns the checker name.
func (c *ClickHouseChecker) Name() string {
	return "clickhouse"
}

// Check pings the archive.
func (c *ClickHouseChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("clickhouse not configured")
	}
	return c.pinger.Ping(ctx)
}
