package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	// Create temp directory for test database
	tmpDir, err := os.MkdirTemp("", "noisegate-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

// makeRecord builds a record unique by channel and observation time.
func makeRecord(channel string, observed time.Time) *models.AlertRecord {
	return &models.AlertRecord{
		MessageKey:       models.Message{ChannelID: channel, Timestamp: observed}.Key(),
		ChannelID:        channel,
		ChannelLabel:     "ops-" + channel,
		Author:           "U123",
		RawText:          "db connection lost",
		ContentHash:      "hash-" + channel,
		PatternSignature: channel + ":generic",
		Severity:         models.SeverityImportant,
		Reason:           models.ReasonRecurrentThresholdMet,
		ReasonDetail:     "Recurrence threshold reached (3/3)",
		ObservedAt:       observed,
		DetectedAt:       observed,
	}
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if store.db == nil {
		t.Fatal("database should be open")
	}
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Verify tables exist by querying them
	tables := []string{"alerts", "cursors", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s should exist: %v", table, err)
		}
	}

	// Running migrations again is a no-op
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLiteStore_RecordAlert(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rec := makeRecord("C1", base)
	if err := store.RecordAlert(ctx, rec); err != nil {
		t.Fatalf("record alert: %v", err)
	}
	if rec.ID == "" {
		t.Error("record should be assigned an id")
	}

	has, err := store.HasMessage(ctx, rec.MessageKey)
	if err != nil {
		t.Fatalf("has message: %v", err)
	}
	if !has {
		t.Error("message should be recorded")
	}

	has, err = store.HasMessage(ctx, "C1:999")
	if err != nil {
		t.Fatalf("has message: %v", err)
	}
	if has {
		t.Error("unknown message key should not be recorded")
	}

	// Second insert with the same message key is rejected
	dup := makeRecord("C1", base)
	err = store.RecordAlert(ctx, dup)
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("duplicate insert error = %v, want ErrDuplicateMessage", err)
	}

	records, err := store.FetchRecentAlerts(ctx, base.Add(-time.Hour), true, "")
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records count = %d, want 1", len(records))
	}
}

func TestSQLiteStore_RecordAlertRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC)

	rec := makeRecord("C1", base)
	rec.Severity = models.SeverityCritical
	rec.Reason = models.ReasonNewCritical
	rec.ReasonDetail = "Matched critical keyword(s) 'outage'"
	rec.SentToTarget = true
	if err := store.RecordAlert(ctx, rec); err != nil {
		t.Fatalf("record alert: %v", err)
	}

	records, err := store.FetchRecentAlerts(ctx, base.Add(-time.Minute), true, "")
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records count = %d, want 1", len(records))
	}

	got := records[0]
	if got.ID != rec.ID {
		t.Errorf("id = %v, want %v", got.ID, rec.ID)
	}
	if got.MessageKey != rec.MessageKey {
		t.Errorf("message key = %v, want %v", got.MessageKey, rec.MessageKey)
	}
	if got.ChannelLabel != "ops-C1" {
		t.Errorf("channel label = %v, want ops-C1", got.ChannelLabel)
	}
	if got.Severity != models.SeverityCritical {
		t.Errorf("severity = %v, want CRITICAL", got.Severity)
	}
	if got.Reason != models.ReasonNewCritical {
		t.Errorf("reason = %v, want NEW_CRITICAL", got.Reason)
	}
	if got.ReasonDetail != rec.ReasonDetail {
		t.Errorf("reason detail = %v, want %v", got.ReasonDetail, rec.ReasonDetail)
	}
	if !got.ObservedAt.Equal(base) {
		t.Errorf("observed at = %v, want %v", got.ObservedAt, base)
	}
	if !got.SentToTarget {
		t.Error("sent flag should survive the round trip")
	}
}

func TestSQLiteStore_MarkSent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rec := makeRecord("C1", base)
	if err := store.RecordAlert(ctx, rec); err != nil {
		t.Fatalf("record alert: %v", err)
	}

	if err := store.MarkSent(ctx, rec.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	records, err := store.FetchRecentAlerts(ctx, base.Add(-time.Minute), false, "")
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 1 || !records[0].SentToTarget {
		t.Error("record should be marked sent")
	}

	if err := store.MarkSent(ctx, "no-such-id"); err == nil {
		t.Error("marking an unknown id should fail")
	}
}

func TestSQLiteStore_IsDuplicateCountsSentOnly(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	since := base.Add(-time.Hour)

	// A suppressed record with the same hash is not a duplicate source
	suppressed := makeRecord("C1", base)
	suppressed.SentToTarget = false
	if err := store.RecordAlert(ctx, suppressed); err != nil {
		t.Fatalf("record alert: %v", err)
	}

	dup, err := store.IsDuplicate(ctx, "C1", "hash-C1", since)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Error("suppressed record should not count as duplicate source")
	}

	// A sent record with the same hash is
	sent := makeRecord("C1", base.Add(time.Minute))
	sent.SentToTarget = true
	if err := store.RecordAlert(ctx, sent); err != nil {
		t.Fatalf("record alert: %v", err)
	}

	dup, err = store.IsDuplicate(ctx, "C1", "hash-C1", since)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Error("sent record should count as duplicate source")
	}

	// Outside the window it no longer counts
	dup, err = store.IsDuplicate(ctx, "C1", "hash-C1", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Error("record outside the window should not count")
	}

	// Other channels are unaffected
	dup, err = store.IsDuplicate(ctx, "C2", "hash-C1", since)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Error("duplicate check should be scoped to the channel")
	}
}

func TestSQLiteStore_CountRecentOccurrences(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := makeRecord("C1", base.Add(time.Duration(i)*time.Minute))
		if err := store.RecordAlert(ctx, rec); err != nil {
			t.Fatalf("record alert %d: %v", i, err)
		}
	}

	count, err := store.CountRecentOccurrences(ctx, "C1:generic", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count occurrences: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	// Cutoff inside the series only sees the tail
	count, err = store.CountRecentOccurrences(ctx, "C1:generic", base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("count occurrences: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	count, err = store.CountRecentOccurrences(ctx, "C1:other", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count occurrences: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestSQLiteStore_FetchRecentAlerts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	since := base.Add(-time.Hour)

	sent := makeRecord("C1", base)
	sent.Severity = models.SeverityCritical
	sent.SentToTarget = true

	filtered := makeRecord("C1", base.Add(time.Minute))
	filtered.Severity = models.SeverityNormal

	other := makeRecord("C2", base.Add(2*time.Minute))
	other.Severity = models.SeverityImportant
	other.SentToTarget = true

	for _, rec := range []*models.AlertRecord{sent, filtered, other} {
		if err := store.RecordAlert(ctx, rec); err != nil {
			t.Fatalf("record alert: %v", err)
		}
	}

	// Sent only
	records, err := store.FetchRecentAlerts(ctx, since, false, "")
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("sent records = %d, want 2", len(records))
	}

	// Including filtered, newest first
	records, err = store.FetchRecentAlerts(ctx, since, true, "")
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("all records = %d, want 3", len(records))
	}
	if records[0].ChannelID != "C2" {
		t.Errorf("first record channel = %v, want C2 (newest)", records[0].ChannelID)
	}

	// Severity floor
	records, err = store.FetchRecentAlerts(ctx, since, true, models.SeverityImportant)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("important+ records = %d, want 2", len(records))
	}
	for _, rec := range records {
		if !rec.Severity.AtLeast(models.SeverityImportant) {
			t.Errorf("record severity %v below floor", rec.Severity)
		}
	}

	// Cutoff excludes everything
	records, err = store.FetchRecentAlerts(ctx, base.Add(time.Hour), true, "")
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records past cutoff = %d, want 0", len(records))
	}
}

func TestSQLiteStore_Cursors(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 500000000, time.UTC)

	// Unset cursor
	_, ok, err := store.GetCursor(ctx, "C1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if ok {
		t.Error("cursor should be unset")
	}

	// Set and read back
	if err := store.SetCursor(ctx, "C1", base); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	got, ok, err := store.GetCursor(ctx, "C1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if !ok {
		t.Fatal("cursor should be set")
	}
	if !got.Equal(base) {
		t.Errorf("cursor = %v, want %v", got, base)
	}

	// Same position is allowed
	if err := store.SetCursor(ctx, "C1", base); err != nil {
		t.Errorf("re-setting same position: %v", err)
	}

	// Forward advance
	if err := store.SetCursor(ctx, "C1", base.Add(time.Minute)); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}

	// Backwards is rejected and the stored position survives
	err = store.SetCursor(ctx, "C1", base.Add(-time.Minute))
	if !errors.Is(err, ErrCursorRegression) {
		t.Fatalf("regression error = %v, want ErrCursorRegression", err)
	}
	got, _, err = store.GetCursor(ctx, "C1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if !got.Equal(base.Add(time.Minute)) {
		t.Errorf("cursor after rejected regression = %v, want %v", got, base.Add(time.Minute))
	}

	// Channels are independent
	if err := store.SetCursor(ctx, "C2", base.Add(-time.Hour)); err != nil {
		t.Errorf("set cursor on other channel: %v", err)
	}
}

func TestSQLiteStore_PurgeOlderThan(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := makeRecord("C1", base.Add(time.Duration(i)*time.Minute))
		if err := store.RecordAlert(ctx, rec); err != nil {
			t.Fatalf("record old alert %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		rec := makeRecord("C2", base.Add(24*time.Hour).Add(time.Duration(i)*time.Minute))
		if err := store.RecordAlert(ctx, rec); err != nil {
			t.Fatalf("record new alert %d: %v", i, err)
		}
	}
	if err := store.SetCursor(ctx, "C1", base); err != nil {
		t.Fatalf("set cursor: %v", err)
	}

	deleted, err := store.PurgeOlderThan(ctx, base.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	records, err := store.FetchRecentAlerts(ctx, base.Add(-time.Hour), true, "")
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("remaining records = %d, want 2", len(records))
	}

	// Cursors survive purges
	_, ok, err := store.GetCursor(ctx, "C1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if !ok {
		t.Error("cursor should survive the purge")
	}
}

func TestSQLiteStore_Stats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	critical := makeRecord("C1", base)
	critical.Severity = models.SeverityCritical
	critical.PatternSignature = "C1:outage"
	critical.SentToTarget = true

	important := makeRecord("C1", base.Add(time.Minute))
	important.PatternSignature = "C1:outage"
	important.SentToTarget = true

	normal := makeRecord("C2", base.Add(2*time.Minute))
	normal.Severity = models.SeverityNormal
	normal.PatternSignature = "C2:generic"

	stale := makeRecord("C3", base.Add(-48*time.Hour))

	for _, rec := range []*models.AlertRecord{critical, important, normal, stale} {
		if err := store.RecordAlert(ctx, rec); err != nil {
			t.Fatalf("record alert: %v", err)
		}
	}

	stats, err := store.Stats(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.Sent != 2 {
		t.Errorf("sent = %d, want 2", stats.Sent)
	}
	if stats.BySeverity[models.SeverityCritical] != 1 {
		t.Errorf("critical count = %d, want 1", stats.BySeverity[models.SeverityCritical])
	}
	if stats.BySeverity[models.SeverityImportant] != 1 {
		t.Errorf("important count = %d, want 1", stats.BySeverity[models.SeverityImportant])
	}
	if stats.BySeverity[models.SeverityNormal] != 1 {
		t.Errorf("normal count = %d, want 1", stats.BySeverity[models.SeverityNormal])
	}

	if len(stats.TopPatterns) == 0 || stats.TopPatterns[0].Signature != "C1:outage" {
		t.Errorf("top patterns = %+v, want C1:outage first", stats.TopPatterns)
	}
	if stats.TopPatterns[0].Count != 2 {
		t.Errorf("top pattern count = %d, want 2", stats.TopPatterns[0].Count)
	}

	if len(stats.TopChannels) == 0 || stats.TopChannels[0].ChannelID != "C1" {
		t.Errorf("top channels = %+v, want C1 first", stats.TopChannels)
	}
	if stats.TopChannels[0].Count != 2 {
		t.Errorf("top channel count = %d, want 2", stats.TopChannels[0].Count)
	}
}
