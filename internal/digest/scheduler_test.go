package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

type fakePoster struct {
	mu       sync.Mutex
	err      error
	channels []string
	texts    []string
}

func (f *fakePoster) PostMessage(ctx context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.channels = append(f.channels, channelID)
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func newTestScheduler(t *testing.T, store *fakeStore, poster *fakePoster, mutate func(*SchedulerConfig)) *Scheduler {
	t.Helper()
	cfg := SchedulerConfig{
		Builder: newTestBuilder(t, store, nil, true),
		Poster:  poster,
		Channel: "#ops-summary",
		Logger:  zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

func TestNewScheduler_Validation(t *testing.T) {
	store := &fakeStore{}
	builder := newTestBuilder(t, store, nil, true)

	tests := []struct {
		name string
		cfg  SchedulerConfig
	}{
		{"missing builder", SchedulerConfig{Poster: &fakePoster{}, Channel: "#x"}},
		{"missing poster", SchedulerConfig{Builder: builder, Channel: "#x"}},
		{"missing channel", SchedulerConfig{Builder: builder, Poster: &fakePoster{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScheduler(tt.cfg); err == nil {
				t.Error("NewScheduler() error = nil, want validation failure")
			}
		})
	}
}

func TestScheduler_Defaults(t *testing.T) {
	s := newTestScheduler(t, &fakeStore{}, &fakePoster{}, nil)

	if s.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultInterval)
	}
	if s.lookback != DefaultLookback {
		t.Errorf("lookback = %v, want %v", s.lookback, DefaultLookback)
	}
}

func TestScheduler_PostNow(t *testing.T) {
	store := &fakeStore{alerts: []*models.AlertRecord{
		rec("ops", models.SeverityCritical, true, digestNow.Add(-time.Minute), "db down"),
	}}
	poster := &fakePoster{}
	s := newTestScheduler(t, store, poster, nil)

	if err := s.PostNow(context.Background()); err != nil {
		t.Fatalf("PostNow() error = %v", err)
	}

	if poster.count() != 1 {
		t.Fatalf("posted %d messages, want 1", poster.count())
	}
	if poster.channels[0] != "#ops-summary" {
		t.Errorf("channel = %q, want %q", poster.channels[0], "#ops-summary")
	}
	if !strings.Contains(poster.texts[0], "Automatic summary") {
		t.Errorf("posted text missing digest header:\n%s", poster.texts[0])
	}
}

func TestScheduler_PostNow_BuildError(t *testing.T) {
	store := &fakeStore{err: errors.New("db locked")}
	s := newTestScheduler(t, store, &fakePoster{}, nil)

	err := s.PostNow(context.Background())
	if err == nil {
		t.Fatal("PostNow() error = nil, want build failure")
	}
	if !strings.Contains(err.Error(), "build digest") {
		t.Errorf("error = %v, want build digest wrap", err)
	}
}

func TestScheduler_PostNow_PostError(t *testing.T) {
	poster := &fakePoster{err: errors.New("channel archived")}
	s := newTestScheduler(t, &fakeStore{}, poster, nil)

	err := s.PostNow(context.Background())
	if err == nil {
		t.Fatal("PostNow() error = nil, want post failure")
	}
	if !strings.Contains(err.Error(), "post digest") {
		t.Errorf("error = %v, want post digest wrap", err)
	}
}

func TestScheduler_RunSendsInitialDigest(t *testing.T) {
	poster := &fakePoster{}
	s := newTestScheduler(t, &fakeStore{}, poster, func(cfg *SchedulerConfig) {
		cfg.SendInitial = true
		cfg.Interval = time.Hour
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return poster.count() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestScheduler_RunWithoutInitialWaitsForTick(t *testing.T) {
	poster := &fakePoster{}
	s := newTestScheduler(t, &fakeStore{}, poster, func(cfg *SchedulerConfig) {
		cfg.Interval = time.Hour
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if poster.count() != 0 {
		t.Errorf("posted %d digests before first tick, want 0", poster.count())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
