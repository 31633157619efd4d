// Package worker drives the realtime monitoring loop. Each cycle it
// polls every configured channel for messages newer than the stored
// cursor, runs them through triage, records every decision and delivers
// the ones that warrant a notification.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/chat"
	"github.com/good-yellow-bee/noisegate/internal/metrics"
	"github.com/good-yellow-bee/noisegate/internal/models"
	"github.com/good-yellow-bee/noisegate/internal/notify"
	"github.com/good-yellow-bee/noisegate/internal/storage"
	"github.com/good-yellow-bee/noisegate/internal/triage"
)

const (
	// MinPollInterval is the floor applied to PollInterval so a
	// misconfigured worker cannot hammer the chat API.
	MinPollInterval = 5 * time.Second

	DefaultPollInterval       = 30 * time.Second
	DefaultFetchLimit         = 200
	DefaultFetchTimeout       = 60 * time.Second
	DefaultStorageTimeout     = 10 * time.Second
	DefaultMaxStorageFailures = 5

	notifyTimeout = 30 * time.Second
)

var (
	errTransientFetch = errors.New("transient fetch failure")
	errBatchAbandoned = errors.New("batch abandoned after storage failure")
)

// State identifies the worker lifecycle phase.
type State int32

const (
	StateInit State = iota
	StatePolling
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePolling:
		return "POLLING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Notifier delivers a positive decision to its notification targets.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, decision *models.Decision) error
}

// Archiver receives a copy of every finished record for long-term
// retention. *storage.DecisionBuffer satisfies it.
type Archiver interface {
	Add(rec *models.AlertRecord) error
}

// Config carries the worker's dependencies and tuning knobs. Zero
// values for the knobs select the defaults above.
type Config struct {
	Store   storage.AlertStore
	Chat    chat.Client
	Decider *triage.Decider
	Rules   *models.RuleSet

	// Notifier is optional; when nil the worker records decisions
	// without delivering anything.
	Notifier Notifier

	// Archive is optional. Every finished record is offered to it,
	// sent or not.
	Archive Archiver

	Logger zerolog.Logger

	// PollInterval is the pause between cycles, floored at
	// MinPollInterval.
	PollInterval time.Duration

	// FetchLimit caps how many messages one cycle pulls per channel.
	// A backlog larger than the limit drains across later cycles.
	FetchLimit int

	FetchTimeout   time.Duration
	StorageTimeout time.Duration

	// MaxStorageFailures stops the worker after this many consecutive
	// failed storage operations.
	MaxStorageFailures int

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Worker polls channels and turns their messages into recorded alert
// decisions. Run owns the loop; UpdateRules and Status may be called
// from other goroutines.
type Worker struct {
	store    storage.AlertStore
	chat     chat.Client
	decider  *triage.Decider
	notifier Notifier
	archive  Archiver
	log      zerolog.Logger
	now      func() time.Time

	pollInterval       time.Duration
	fetchLimit         int
	fetchTimeout       time.Duration
	storageTimeout     time.Duration
	maxStorageFailures int

	state atomic.Int32

	mu       sync.RWMutex
	rules    *models.RuleSet
	cursors  map[string]time.Time
	lastPoll time.Time

	// storageFailures is only touched from the poll goroutine.
	storageFailures int
}

// New validates the configuration and returns a worker in StateInit.
func New(cfg Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if cfg.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if cfg.Rules == nil {
		return nil, fmt.Errorf("rules are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultStorageTimeout
	}
	if cfg.MaxStorageFailures <= 0 {
		cfg.MaxStorageFailures = DefaultMaxStorageFailures
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Worker{
		store:              cfg.Store,
		chat:               cfg.Chat,
		decider:            cfg.Decider,
		notifier:           cfg.Notifier,
		archive:            cfg.Archive,
		log:                cfg.Logger,
		now:                cfg.Now,
		pollInterval:       cfg.PollInterval,
		fetchLimit:         cfg.FetchLimit,
		fetchTimeout:       cfg.FetchTimeout,
		storageTimeout:     cfg.StorageTimeout,
		maxStorageFailures: cfg.MaxStorageFailures,
		rules:              cfg.Rules,
		cursors:            make(map[string]time.Time),
	}, nil
}

// Run polls until ctx is cancelled. It returns nil on a clean shutdown
// and an error when the worker cannot continue: failed credentials or
// too many consecutive storage failures.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(StateStopped)

	if err := w.chat.CheckAuth(ctx); err != nil {
		return fmt.Errorf("chat auth check: %w", err)
	}

	interval := w.pollInterval
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	retry := NewBackoff(interval, 10*interval)

	w.setState(StatePolling)
	w.log.Info().
		Dur("interval", interval).
		Int("channels", w.Rules().Len()).
		Msg("realtime worker started")

	for {
		transient, err := w.runCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.setState(StateShuttingDown)
				return nil
			}
			return err
		}

		wait := interval
		if transient > 0 {
			wait = retry.Next()
			w.log.Warn().
				Int("failed_channels", transient).
				Dur("retry_in", wait).
				Msg("poll cycle had failures")
		} else {
			retry.Reset()
		}

		select {
		case <-ctx.Done():
			w.setState(StateShuttingDown)
			return nil
		case <-time.After(wait):
		}
	}
}

// RunOnce executes a single poll cycle across all configured channels.
// It backs the one-shot CLI mode.
func (w *Worker) RunOnce(ctx context.Context) error {
	_, err := w.runCycle(ctx)
	return err
}

// runCycle polls every channel once. It returns how many channels
// failed transiently; a non-nil error means the worker must stop.
func (w *Worker) runCycle(ctx context.Context) (int, error) {
	start := w.now()

	transient := 0
	for _, rule := range w.Rules().All() {
		if err := ctx.Err(); err != nil {
			return transient, err
		}
		err := w.pollChannel(ctx, rule)
		switch {
		case err == nil:
		case errors.Is(err, errTransientFetch) || errors.Is(err, errBatchAbandoned):
			metrics.WorkerPollErrorsTotal.WithLabelValues(rule.ID).Inc()
			transient++
		default:
			return transient, err
		}
	}

	metrics.WorkerPollCyclesTotal.Inc()
	metrics.WorkerCycleDuration.Observe(w.now().Sub(start).Seconds())

	w.mu.Lock()
	w.lastPoll = w.now()
	w.mu.Unlock()

	return transient, nil
}

// pollChannel fetches and processes one channel's backlog. Muted
// channels are polled like any other so their recurrence history stays
// warm; the decider keeps their sends suppressed.
func (w *Worker) pollChannel(ctx context.Context, rule *models.ChannelRule) error {
	cursor, ok, err := w.cursorFor(ctx, rule.ID)
	if err != nil {
		return w.storageFailed("get_cursor", err)
	}
	if !ok {
		// First sight of the channel: start from now instead of
		// replaying history.
		pos := w.now()
		if err := w.saveCursor(ctx, rule.ID, pos); err != nil {
			return w.storageFailed("set_cursor", err)
		}
		w.storageFailures = 0
		w.log.Info().Str("channel", rule.ID).Time("cursor", pos).Msg("cursor initialized")
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	messages, err := w.chat.FetchMessages(fetchCtx, rule.ID, cursor, w.fetchLimit)
	cancel()
	if err != nil {
		if errors.Is(err, chat.ErrAuth) {
			return fmt.Errorf("fetch %s: %w", rule.ID, err)
		}
		w.log.Warn().Err(err).Str("channel", rule.ID).Msg("fetch failed, retrying next cycle")
		return errTransientFetch
	}
	if len(messages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Once the batch starts writing it runs to completion; a shutdown
	// mid-batch must not strand recorded messages behind the cursor.
	writeCtx := context.WithoutCancel(ctx)

	for i := range messages {
		if err := w.processMessage(writeCtx, rule, messages[i]); err != nil {
			return err
		}
	}

	// The cursor advances only after the whole batch is recorded, so a
	// crash replays the batch and the message keys deduplicate it.
	last := messages[len(messages)-1].Timestamp
	if err := w.saveCursor(writeCtx, rule.ID, last); err != nil {
		return w.storageFailed("set_cursor", err)
	}
	w.storageFailures = 0

	metrics.WorkerMessagesTotal.WithLabelValues(rule.ID).Add(float64(len(messages)))
	w.log.Debug().
		Str("channel", rule.ID).
		Int("messages", len(messages)).
		Time("cursor", last).
		Msg("batch processed")
	return nil
}

func (w *Worker) processMessage(ctx context.Context, rule *models.ChannelRule, msg models.Message) error {
	opCtx, cancel := context.WithTimeout(ctx, w.storageTimeout)
	defer cancel()

	seen, err := w.store.HasMessage(opCtx, msg.Key())
	if err != nil {
		return w.storageFailed("has_message", err)
	}
	if seen {
		// Recorded by an earlier run that stopped before advancing the
		// cursor. Never notify twice.
		return nil
	}

	if msg.Author != "" {
		msg.Author = w.chat.ResolveUserName(opCtx, msg.Author)
	}

	decision, err := w.decider.Decide(opCtx, msg, rule)
	if err != nil {
		return w.storageFailed("decide", err)
	}

	if err := w.store.RecordAlert(opCtx, decision.Record); err != nil {
		if errors.Is(err, storage.ErrDuplicateMessage) {
			return nil
		}
		return w.storageFailed("record_alert", err)
	}

	rec := decision.Record
	metrics.TriageDecisionsTotal.WithLabelValues(string(rec.Reason), string(rec.Severity)).Inc()

	if decision.Send && w.notifier != nil {
		if w.dispatch(ctx, &decision) {
			if err := w.store.MarkSent(opCtx, rec.ID); err != nil {
				return w.storageFailed("mark_sent", err)
			}
			rec.SentToTarget = true
			w.log.Info().
				Str("channel", rule.ID).
				Str("severity", string(rec.Severity)).
				Str("reason", string(rec.Reason)).
				Int("occurrences", decision.Occurrences).
				Msg("alert notified")
		}
	} else {
		w.log.Debug().
			Str("channel", rule.ID).
			Str("severity", string(rec.Severity)).
			Str("reason", string(rec.Reason)).
			Msg("alert recorded without notification")
	}

	if w.archive != nil {
		cp := *rec
		if err := w.archive.Add(&cp); err != nil {
			w.log.Warn().Err(err).Str("record", rec.ID).Msg("archive enqueue failed")
		}
	}

	return nil
}

// dispatch delivers the decision and reports whether it went out. A
// failed delivery leaves the record unsent; identical content stays
// eligible for the next occurrence because only sent records
// deduplicate.
func (w *Worker) dispatch(ctx context.Context, decision *models.Decision) bool {
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	err := w.notifier.Dispatch(nctx, decision)
	if err == nil {
		metrics.NotificationsSentTotal.Inc()
		return true
	}

	if errors.Is(err, notify.ErrRateLimited) {
		metrics.NotificationsRateLimitedTotal.Inc()
	} else {
		metrics.NotificationErrorsTotal.Inc()
	}
	w.log.Warn().Err(err).
		Str("channel", decision.Record.ChannelID).
		Str("severity", string(decision.Record.Severity)).
		Msg("notification failed, record stays unsent")
	return false
}

// storageFailed counts one failed storage operation. It returns a
// fatal error once the consecutive-failure bound is hit, otherwise
// errBatchAbandoned so the current batch is retried on a later cycle.
func (w *Worker) storageFailed(op string, err error) error {
	w.storageFailures++
	metrics.StorageErrors.WithLabelValues(op).Inc()
	w.log.Error().Err(err).
		Str("op", op).
		Int("consecutive", w.storageFailures).
		Msg("storage operation failed")
	if w.storageFailures >= w.maxStorageFailures {
		return fmt.Errorf("%d consecutive storage failures, last %s: %w", w.storageFailures, op, err)
	}
	return errBatchAbandoned
}

// cursorFor returns the channel cursor, reading through to the store
// the first time a channel is seen.
func (w *Worker) cursorFor(ctx context.Context, channelID string) (time.Time, bool, error) {
	w.mu.RLock()
	cursor, ok := w.cursors[channelID]
	w.mu.RUnlock()
	if ok {
		return cursor, true, nil
	}

	cursor, ok, err := w.store.GetCursor(ctx, channelID)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}

	w.mu.Lock()
	w.cursors[channelID] = cursor
	w.mu.Unlock()
	return cursor, true, nil
}

// saveCursor persists the cursor and updates the in-memory copy.
func (w *Worker) saveCursor(ctx context.Context, channelID string, position time.Time) error {
	if err := w.store.SetCursor(ctx, channelID, position); err != nil {
		return err
	}
	w.mu.Lock()
	w.cursors[channelID] = position
	w.mu.Unlock()
	return nil
}

// UpdateRules swaps the rule set the next cycle polls with. Cursors of
// removed channels are kept so a rule that comes back resumes where it
// left off.
func (w *Worker) UpdateRules(rules *models.RuleSet) {
	if rules == nil {
		return
	}
	w.mu.Lock()
	w.rules = rules
	w.mu.Unlock()
	w.log.Info().Int("channels", rules.Len()).Msg("channel rules updated")
}

// Rules returns the active rule set.
func (w *Worker) Rules() *models.RuleSet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rules
}

// State reports the current lifecycle phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Status is a point-in-time snapshot for the ops surface.
type Status struct {
	State      string               `json:"state"`
	Channels   int                  `json:"channels"`
	LastPollAt time.Time            `json:"last_poll_at"`
	Cursors    map[string]time.Time `json:"cursors"`
}

// Status snapshots the worker for the status endpoint.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	cursors := make(map[string]time.Time, len(w.cursors))
	for id, pos := range w.cursors {
		cursors[id] = pos
	}
	return Status{
		State:      w.State().String(),
		Channels:   w.rules.Len(),
		LastPollAt: w.lastPoll,
		Cursors:    cursors,
	}
}
