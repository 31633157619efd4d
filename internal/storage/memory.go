package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// MemoryStore is an in-memory AlertStore. It backs dry runs and tests
// where a database file is unwanted. Semantics match SQLiteStore.
type MemoryStore struct {
	mu      sync.Mutex
	records []*models.AlertRecord
	byKey   map[string]*models.AlertRecord
	byID    map[string]*models.AlertRecord
	cursors map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:   make(map[string]*models.AlertRecord),
		byID:    make(map[string]*models.AlertRecord),
		cursors: make(map[string]time.Time),
	}
}

func (s *MemoryStore) RecordAlert(ctx context.Context, rec *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[rec.MessageKey]; ok {
		return ErrDuplicateMessage
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	// Store a copy so later caller mutations cannot leak in.
	cp := *rec
	s.records = append(s.records, &cp)
	s.byKey[cp.MessageKey] = &cp
	s.byID[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("mark sent: no alert with id %s", id)
	}
	rec.SentToTarget = true
	return nil
}

func (s *MemoryStore) HasMessage(ctx context.Context, messageKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byKey[messageKey]
	return ok, nil
}

func (s *MemoryStore) IsDuplicate(ctx context.Context, channelID, contentHash string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ChannelID == channelID && rec.ContentHash == contentHash &&
			rec.SentToTarget && !rec.ObservedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountRecentOccurrences(ctx context.Context, patternSignature string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rec := range s.records {
		if rec.PatternSignature == patternSignature && !rec.ObservedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) FetchRecentAlerts(ctx context.Context, since time.Time, includeFiltered bool, minSeverity models.Severity) ([]*models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.AlertRecord
	for _, rec := range s.records {
		if rec.ObservedAt.Before(since) {
			continue
		}
		if !includeFiltered && !rec.SentToTarget {
			continue
		}
		if minSeverity != "" && !rec.Severity.AtLeast(minSeverity) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetCursor(ctx context.Context, channelID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, ok := s.cursors[channelID]
	return position, ok, nil
}

func (s *MemoryStore) SetCursor(ctx context.Context, channelID string, position time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.cursors[channelID]; ok && position.Before(stored) {
		return fmt.Errorf("channel %s: stored %d, proposed %d: %w",
			channelID, stored.UnixMicro(), position.UnixMicro(), ErrCursorRegression)
	}
	s.cursors[channelID] = position
	return nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	kept := make([]*models.AlertRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.ObservedAt.Before(cutoff) {
			delete(s.byKey, rec.MessageKey)
			delete(s.byID, rec.ID)
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

func (s *MemoryStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{BySeverity: make(map[models.Severity]int64)}
	patterns := make(map[string]int64)
	channels := make(map[string]*ChannelCount)

	for _, rec := range s.records {
		if rec.ObservedAt.Before(since) {
			continue
		}
		stats.Total++
		if rec.SentToTarget {
			stats.Sent++
		}
		stats.BySeverity[rec.Severity]++
		patterns[rec.PatternSignature]++

		cc, ok := channels[rec.ChannelID]
		if !ok {
			cc = &ChannelCount{ChannelID: rec.ChannelID, ChannelLabel: rec.ChannelLabel}
			channels[rec.ChannelID] = cc
		}
		cc.Count++
	}

	for signature, count := range patterns {
		stats.TopPatterns = append(stats.TopPatterns, PatternCount{Signature: signature, Count: count})
	}
	sort.Slice(stats.TopPatterns, func(i, j int) bool {
		a, b := stats.TopPatterns[i], stats.TopPatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Signature < b.Signature
	})
	if len(stats.TopPatterns) > 5 {
		stats.TopPatterns = stats.TopPatterns[:5]
	}

	for _, cc := range channels {
		stats.TopChannels = append(stats.TopChannels, *cc)
	}
	sort.Slice(stats.TopChannels, func(i, j int) bool {
		a, b := stats.TopChannels[i], stats.TopChannels[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ChannelID < b.ChannelID
	})
	if len(stats.TopChannels) > 5 {
		stats.TopChannels = stats.TopChannels[:5]
	}

	return stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
