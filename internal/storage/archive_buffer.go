package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/metrics"
	"github.com/good-yellow-bee/noisegate/internal/models"
)

// ArchiveSink receives batches of decision records.
type ArchiveSink interface {
	InsertBatch(ctx context.Context, records []*models.AlertRecord) error
}

// DecisionBuffer batches decision records for archive insertion. It
// flushes on either batch size or time interval, whichever comes first,
// and drops oldest records when the buffer reaches max capacity.
type DecisionBuffer struct {
	sink          ArchiveSink
	batchSize     int
	flushInterval time.Duration
	maxSize       int
	log           zerolog.Logger

	mu      sync.Mutex
	buffer  []*models.AlertRecord
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped atomic.Bool
	dropped atomic.Int64
	flushed atomic.Int64
	written atomic.Int64
}

// DecisionBufferConfig holds DecisionBuffer configuration.
type DecisionBufferConfig struct {
	// BatchSize is the number of records that triggers a flush.
	BatchSize int

	// FlushInterval is the time interval that triggers a flush.
	FlushInterval time.Duration

	// MaxSize is the maximum buffer size. When reached, oldest records
	// are dropped.
	MaxSize int
}

// NewDecisionBuffer creates a buffer in front of the sink and starts
// its flush loop.
func NewDecisionBuffer(sink ArchiveSink, config *DecisionBufferConfig, logger zerolog.Logger) *DecisionBuffer {
	// Apply defaults
	if config.BatchSize == 0 {
		config.BatchSize = 200
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxSize == 0 {
		config.MaxSize = 10000
	}

	b := &DecisionBuffer{
		sink:          sink,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		maxSize:       config.MaxSize,
		log:           logger,
		buffer:        make([]*models.AlertRecord, 0, config.BatchSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	go b.flushLoop()
	return b
}

// Add queues a record for archiving.
func (b *DecisionBuffer) Add(rec *models.AlertRecord) error {
	if b.stopped.Load() {
		return nil
	}

	b.mu.Lock()
	if len(b.buffer) >= b.maxSize {
		// Drop oldest to make room
		drop := len(b.buffer) - b.maxSize + 1
		b.dropped.Add(int64(drop))
		metrics.ArchiveDroppedTotal.Add(float64(drop))
		b.buffer = b.buffer[drop:]
		b.log.Warn().Int("dropped", drop).Msg("archive buffer overflow, dropped oldest records")
	}
	b.buffer = append(b.buffer, rec)
	shouldFlush := len(b.buffer) >= b.batchSize
	metrics.ArchivePending.Set(float64(len(b.buffer)))
	b.mu.Unlock()

	if shouldFlush {
		return b.Flush()
	}
	return nil
}

// Flush forces a flush of the current buffer.
func (b *DecisionBuffer) Flush() error {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}

	toFlush := b.buffer
	b.buffer = make([]*models.AlertRecord, 0, b.batchSize)
	metrics.ArchivePending.Set(0)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.sink.InsertBatch(ctx, toFlush); err != nil {
		metrics.ArchiveFlushErrors.Inc()
		// Put records back so the next flush retries them first
		b.mu.Lock()
		b.buffer = append(toFlush, b.buffer...)
		if len(b.buffer) > b.maxSize {
			excess := len(b.buffer) - b.maxSize
			b.dropped.Add(int64(excess))
			metrics.ArchiveDroppedTotal.Add(float64(excess))
			b.buffer = b.buffer[excess:]
		}
		metrics.ArchivePending.Set(float64(len(b.buffer)))
		b.mu.Unlock()
		return err
	}

	b.flushed.Add(1)
	b.written.Add(int64(len(toFlush)))
	metrics.ArchiveFlushesTotal.Inc()
	metrics.ArchiveWrittenTotal.Add(float64(len(toFlush)))
	return nil
}

// flushLoop periodically flushes the buffer.
func (b *DecisionBuffer) flushLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error().Err(err).Msg("archive flush failed")
			}
		case <-b.stopCh:
			// Final flush on shutdown
			if err := b.Flush(); err != nil {
				b.log.Error().Err(err).Msg("final archive flush failed")
			}
			return
		}
	}
}

// Close stops the buffer and flushes remaining records.
func (b *DecisionBuffer) Close() error {
	if b.stopped.Swap(true) {
		return nil // Already stopped
	}
	close(b.stopCh)
	<-b.doneCh
	return nil
}

// BufferStats returns buffer counters.
func (b *DecisionBuffer) BufferStats() ArchiveBufferStats {
	b.mu.Lock()
	pending := len(b.buffer)
	b.mu.Unlock()

	return ArchiveBufferStats{
		Pending: pending,
		Dropped: b.dropped.Load(),
		Flushed: b.flushed.Load(),
		Written: b.written.Load(),
	}
}

// ArchiveBufferStats contains buffer counters.
type ArchiveBufferStats struct {
	// Pending is the number of records waiting to be flushed.
	Pending int `json:"pending"`

	// Dropped is the total number of records dropped due to overflow.
	Dropped int64 `json:"dropped"`

	// Flushed is the total number of flush operations.
	Flushed int64 `json:"flushed"`

	// Written is the total number of records successfully archived.
	Written int64 `json:"written"`
}
