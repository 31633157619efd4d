package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// Store is the slice of the alert store consulted during decisions.
type Store interface {
	// IsDuplicate reports whether equivalent content was already
	// notified on the channel since the cutoff.
	IsDuplicate(ctx context.Context, channelID, contentHash string, since time.Time) (bool, error)

	// CountRecentOccurrences counts records carrying the pattern
	// signature observed since the cutoff.
	CountRecentOccurrences(ctx context.Context, patternSignature string, since time.Time) (int, error)
}

// Refiner gives a second opinion on borderline severities, typically
// via a small language model. Implementations must honor the context.
type Refiner interface {
	Refine(ctx context.Context, text, channelLabel string, occurrences int) (models.Severity, error)
}

// Windows holds the time windows consulted during a send decision.
type Windows struct {
	// Duplicate suppresses repeats of already-notified content.
	Duplicate time.Duration
	// CriticalDedup is the shorter window applied when the candidate
	// severity is CRITICAL.
	CriticalDedup time.Duration
	// Recurrence bounds how far back recurrence counting looks.
	Recurrence time.Duration
}

// DeciderConfig configures a Decider. Store, MinUrgency, and Windows
// are required. Refiner and Now are optional.
type DeciderConfig struct {
	Store      Store
	Refiner    Refiner
	MinUrgency models.Severity
	Windows    Windows
	Now        func() time.Time
}

// Decider turns classifications into send decisions using stored dedup
// and recurrence history.
type Decider struct {
	store      Store
	refiner    Refiner
	minUrgency models.Severity
	windows    Windows
	now        func() time.Time
}

// NewDecider validates the configuration and builds a Decider.
func NewDecider(cfg DeciderConfig) (*Decider, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("decider store is required")
	}
	if !cfg.MinUrgency.Valid() {
		return nil, fmt.Errorf("invalid min urgency %q", cfg.MinUrgency)
	}
	if cfg.Windows.Duplicate <= 0 || cfg.Windows.CriticalDedup <= 0 || cfg.Windows.Recurrence <= 0 {
		return nil, fmt.Errorf("decision windows must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Decider{
		store:      cfg.Store,
		refiner:    cfg.Refiner,
		minUrgency: cfg.MinUrgency,
		windows:    cfg.Windows,
		now:        now,
	}, nil
}

// Decide evaluates one message against its channel rule. The returned
// decision always carries a record to persist. An error means the
// store could not be consulted and nothing was decided.
//
// Critical messages notify immediately unless equivalent content was
// already sent inside the critical dedup window. Everything else must
// recur past the rule's threshold inside the recurrence window, and is
// then sent once, with further repeats suppressed by the dedup window.
func (d *Decider) Decide(ctx context.Context, msg models.Message, rule *models.ChannelRule) (models.Decision, error) {
	cls := Classify(msg.Text, rule)
	now := d.now()

	record := &models.AlertRecord{
		MessageKey:       msg.Key(),
		ChannelID:        msg.ChannelID,
		ChannelLabel:     rule.Label,
		Author:           msg.Author,
		RawText:          msg.Text,
		ContentHash:      cls.ContentHash,
		PatternSignature: cls.PatternSignature,
		Severity:         cls.Severity,
		ObservedAt:       msg.Timestamp,
		DetectedAt:       now,
	}
	detail := append([]string(nil), cls.Detail...)

	if cls.Severity == models.SeverityIgnore {
		record.Reason = models.ReasonIgnoredPattern
		record.ReasonDetail = strings.Join(detail, "; ")
		return models.Decision{Record: record, Send: false}, nil
	}

	threshold := rule.RecurrenceThreshold
	var floor models.Severity
	if cls.MatchedPattern != nil {
		if cls.MatchedPattern.RecurrenceThreshold > 0 {
			threshold = cls.MatchedPattern.RecurrenceThreshold
		}
		floor = cls.MatchedPattern.MinImportance
	}

	prior, err := d.store.CountRecentOccurrences(ctx, cls.PatternSignature, now.Add(-d.windows.Recurrence))
	if err != nil {
		return models.Decision{}, fmt.Errorf("count recent occurrences: %w", err)
	}
	occurrences := prior + 1
	recurrent := occurrences >= threshold

	effective := cls.Severity
	if recurrent {
		if floor != "" && floor.Rank() > effective.Rank() {
			effective = floor
			detail = append(detail, fmt.Sprintf("Recurrence threshold reached (%d/%d), severity raised to %s", occurrences, threshold, effective))
		} else {
			detail = append(detail, fmt.Sprintf("Recurrence threshold reached (%d/%d)", occurrences, threshold))
		}
	} else if prior > 0 {
		detail = append(detail, fmt.Sprintf("Seen %d time(s) recently", prior))
	}

	// Borderline severities get a second opinion when a refiner is
	// configured. Critical messages are never second-guessed.
	refinedCritical := false
	if d.refiner != nil && effective == d.minUrgency && effective != models.SeverityCritical {
		refined, rerr := d.refiner.Refine(ctx, msg.Text, rule.Label, occurrences)
		if rerr != nil {
			detail = append(detail, fmt.Sprintf("LLM error: %v", rerr))
		} else if refined.Valid() && refined != effective {
			effective = refined
			refinedCritical = refined == models.SeverityCritical
			detail = append(detail, fmt.Sprintf("Overridden by LLM (%s)", refined))
		}
	}
	record.Severity = effective

	if !effective.AtLeast(d.minUrgency) {
		record.Reason = models.ReasonBelowMinSeverity
		detail = append(detail, fmt.Sprintf("Below minimum urgency (%s < %s)", effective, d.minUrgency))
		record.ReasonDetail = strings.Join(detail, "; ")
		return models.Decision{Record: record, Send: false, Occurrences: occurrences}, nil
	}

	window := d.windows.Duplicate
	if effective == models.SeverityCritical {
		window = d.windows.CriticalDedup
	}
	dup, err := d.store.IsDuplicate(ctx, msg.ChannelID, cls.ContentHash, now.Add(-window))
	if err != nil {
		return models.Decision{}, fmt.Errorf("duplicate check: %w", err)
	}

	// Floor-raised criticals still follow the recurrence path; only
	// intrinsically critical messages bypass the threshold.
	criticalNow := cls.Severity == models.SeverityCritical || refinedCritical

	send := false
	switch {
	case dup:
		record.Reason = models.ReasonDuplicateSuppressed
		detail = append(detail, "Duplicate of a recent notification")
	case criticalNow:
		record.Reason = models.ReasonNewCritical
		send = true
	case recurrent:
		record.Reason = models.ReasonRecurrentThresholdMet
		send = true
	default:
		record.Reason = models.ReasonDuplicateSuppressed
		detail = append(detail, fmt.Sprintf("Below recurrence threshold (%d/%d)", occurrences, threshold))
	}

	if send && rule.Muted {
		send = false
		detail = append(detail, "Channel muted")
	}

	record.ReasonDetail = strings.Join(detail, "; ")
	return models.Decision{Record: record, Send: send, Occurrences: occurrences}, nil
}
