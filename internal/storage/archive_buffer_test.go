package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

type mockArchiveSink struct {
	insertCalls   int
	lastBatchSize int
	insertErr     error
}

func (m *mockArchiveSink) InsertBatch(ctx context.Context, records []*models.AlertRecord) error {
	m.insertCalls++
	m.lastBatchSize = len(records)
	return m.insertErr
}

func TestDecisionBuffer_Add(t *testing.T) {
	mock := &mockArchiveSink{}

	config := &DecisionBufferConfig{
		BatchSize:     3,
		FlushInterval: time.Hour, // Long interval so the timer doesn't trigger
		MaxSize:       100,
	}
	buffer := NewDecisionBuffer(mock, config, zerolog.Nop())
	defer buffer.Close()

	// Below batch size, nothing flushes
	for i := 0; i < 2; i++ {
		if err := buffer.Add(&models.AlertRecord{ID: "a"}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if mock.insertCalls != 0 {
		t.Errorf("insert calls = %d, want 0", mock.insertCalls)
	}

	// Hitting the batch size flushes
	if err := buffer.Add(&models.AlertRecord{ID: "b"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if mock.insertCalls != 1 {
		t.Errorf("insert calls = %d, want 1", mock.insertCalls)
	}
	if mock.lastBatchSize != 3 {
		t.Errorf("batch size = %d, want 3", mock.lastBatchSize)
	}
}

func TestDecisionBuffer_Flush(t *testing.T) {
	mock := &mockArchiveSink{}

	config := &DecisionBufferConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxSize:       100,
	}
	buffer := NewDecisionBuffer(mock, config, zerolog.Nop())
	defer buffer.Close()

	if err := buffer.Add(&models.AlertRecord{ID: "a"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := buffer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if mock.insertCalls != 1 {
		t.Errorf("insert calls = %d, want 1", mock.insertCalls)
	}

	// Flushing an empty buffer is a no-op
	if err := buffer.Flush(); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	if mock.insertCalls != 1 {
		t.Errorf("insert calls after empty flush = %d, want 1", mock.insertCalls)
	}
}

func TestDecisionBuffer_Overflow(t *testing.T) {
	mock := &mockArchiveSink{}

	config := &DecisionBufferConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxSize:       5,
	}
	buffer := NewDecisionBuffer(mock, config, zerolog.Nop())
	defer buffer.Close()

	for i := 0; i < 10; i++ {
		if err := buffer.Add(&models.AlertRecord{ID: "a"}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	stats := buffer.BufferStats()
	if stats.Dropped == 0 {
		t.Error("expected records to be dropped")
	}
	if stats.Pending > 5 {
		t.Errorf("pending = %d, want at most 5", stats.Pending)
	}
}

func TestDecisionBuffer_RetryAfterError(t *testing.T) {
	mock := &mockArchiveSink{insertErr: errors.New("clickhouse unavailable")}

	config := &DecisionBufferConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxSize:       100,
	}
	buffer := NewDecisionBuffer(mock, config, zerolog.Nop())
	defer buffer.Close()

	buffer.Add(&models.AlertRecord{ID: "a"})
	if err := buffer.Flush(); err == nil {
		t.Fatal("flush should propagate sink error")
	}

	// Records stay queued for the next attempt
	if stats := buffer.BufferStats(); stats.Pending != 1 {
		t.Errorf("pending after failed flush = %d, want 1", stats.Pending)
	}

	mock.insertErr = nil
	if err := buffer.Flush(); err != nil {
		t.Fatalf("retry flush: %v", err)
	}

	stats := buffer.BufferStats()
	if stats.Written != 1 {
		t.Errorf("written = %d, want 1", stats.Written)
	}
	if stats.Pending != 0 {
		t.Errorf("pending after retry = %d, want 0", stats.Pending)
	}
}

func TestDecisionBuffer_Close(t *testing.T) {
	mock := &mockArchiveSink{}

	config := &DecisionBufferConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxSize:       100,
	}
	buffer := NewDecisionBuffer(mock, config, zerolog.Nop())

	buffer.Add(&models.AlertRecord{ID: "a"})
	if err := buffer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if mock.insertCalls != 1 {
		t.Errorf("insert calls after close = %d, want 1", mock.insertCalls)
	}

	// Adds after close are dropped silently
	if err := buffer.Add(&models.AlertRecord{ID: "b"}); err != nil {
		t.Fatalf("add after close: %v", err)
	}
	if mock.insertCalls != 1 {
		t.Errorf("insert calls = %d, want 1", mock.insertCalls)
	}

	// Second close is a no-op
	if err := buffer.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
