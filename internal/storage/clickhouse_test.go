package storage

import (
	"context"
	"testing"
	"time"
)

// Unit tests (no ClickHouse required)

func TestNewClickHouseArchive_Defaults(t *testing.T) {
	archive := NewClickHouseArchive(&ArchiveConfig{
		Addresses: []string{"localhost:9000"},
		Database:  "noisegate",
	})

	cfg := archive.config
	if cfg.MaxOpenConns != 5 {
		t.Errorf("MaxOpenConns = %d, want 5", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 5 {
		t.Errorf("MaxIdleConns = %d, want 5", cfg.MaxIdleConns)
	}
	if cfg.DialTimeout != 5*time.Second {
		t.Errorf("DialTimeout = %v, want 5s", cfg.DialTimeout)
	}
	if cfg.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", cfg.RetentionDays)
	}
}

func TestNewClickHouseArchive_ExplicitConfig(t *testing.T) {
	archive := NewClickHouseArchive(&ArchiveConfig{
		Addresses:     []string{"ch1:9000", "ch2:9000"},
		Database:      "ops",
		MaxOpenConns:  2,
		MaxIdleConns:  1,
		DialTimeout:   time.Second,
		RetentionDays: 7,
	})

	cfg := archive.config
	if cfg.MaxOpenConns != 2 {
		t.Errorf("MaxOpenConns = %d, want 2", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 1 {
		t.Errorf("MaxIdleConns = %d, want 1", cfg.MaxIdleConns)
	}
	if cfg.DialTimeout != time.Second {
		t.Errorf("DialTimeout = %v, want 1s", cfg.DialTimeout)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.RetentionDays)
	}
}

func TestClickHouseArchive_CloseWithoutOpen(t *testing.T) {
	archive := NewClickHouseArchive(&ArchiveConfig{Addresses: []string{"localhost:9000"}})

	if err := archive.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestClickHouseArchive_InsertBatchEmpty(t *testing.T) {
	archive := NewClickHouseArchive(&ArchiveConfig{Addresses: []string{"localhost:9000"}})

	// An empty batch never touches the connection.
	if err := archive.InsertBatch(context.Background(), nil); err != nil {
		t.Errorf("InsertBatch(nil) = %v, want nil", err)
	}
}

// Integration tests are in clickhouse_integration_test.go
// Run with: go test -tags=integration ./internal/storage/...
