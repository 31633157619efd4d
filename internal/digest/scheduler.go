package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/metrics"
)

const (
	DefaultInterval = time.Hour
	DefaultLookback = time.Hour
)

// Poster sends the rendered digest to a channel. chat.Client satisfies
// it.
type Poster interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

// SchedulerConfig configures a Scheduler. Builder, Poster and Channel
// are required.
type SchedulerConfig struct {
	Builder *Builder
	Poster  Poster

	// Channel is the resolved digest destination.
	Channel string

	Interval time.Duration
	Lookback time.Duration

	// SendInitial posts one digest as soon as the scheduler starts.
	SendInitial bool

	Logger zerolog.Logger
}

// Scheduler posts a digest on a fixed interval.
type Scheduler struct {
	builder     *Builder
	poster      Poster
	channel     string
	interval    time.Duration
	lookback    time.Duration
	sendInitial bool
	log         zerolog.Logger
}

// NewScheduler validates cfg and returns a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("digest builder is required")
	}
	if cfg.Poster == nil {
		return nil, fmt.Errorf("digest poster is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("digest channel is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	return &Scheduler{
		builder:     cfg.Builder,
		poster:      cfg.Poster,
		channel:     cfg.Channel,
		interval:    cfg.Interval,
		lookback:    cfg.Lookback,
		sendInitial: cfg.SendInitial,
		log:         cfg.Logger,
	}, nil
}

// Run posts digests on the configured interval until ctx is cancelled.
// It returns nil on a clean shutdown after any in-flight post finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.sendInitial {
		s.postLogged(ctx)
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.postLogged(ctx) }); err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}

	c.Start()
	s.log.Info().
		Dur("interval", s.interval).
		Dur("lookback", s.lookback).
		Str("channel", s.channel).
		Msg("digest scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// PostNow builds and posts one digest immediately.
func (s *Scheduler) PostNow(ctx context.Context) error {
	report, err := s.builder.Build(ctx, s.lookback)
	if err != nil {
		return fmt.Errorf("build digest: %w", err)
	}
	if err := s.poster.PostMessage(ctx, s.channel, report); err != nil {
		metrics.DigestErrorsTotal.Inc()
		return fmt.Errorf("post digest: %w", err)
	}
	s.log.Info().Str("channel", s.channel).Msg("digest posted")
	return nil
}

func (s *Scheduler) postLogged(ctx context.Context) {
	if err := s.PostNow(ctx); err != nil {
		s.log.Error().Err(err).Msg("digest delivery failed")
	}
}
