// Package digest renders periodic rollups of stored alert decisions and
// posts them to the summary channel.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/metrics"
	"github.com/good-yellow-bee/noisegate/internal/models"
)

const previewLimit = 120

// Store is the read surface the builder needs.
type Store interface {
	FetchRecentAlerts(ctx context.Context, since time.Time, includeFiltered bool, minSeverity models.Severity) ([]*models.AlertRecord, error)
}

// Summarizer produces the optional narrative appended to a digest.
// *llm.Client satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, report string) (string, error)
}

// BuilderConfig configures a Builder. Store is required.
type BuilderConfig struct {
	Store           Store
	Summarizer      Summarizer
	IncludeFiltered bool
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Builder renders digests from stored decisions.
type Builder struct {
	store           Store
	summarizer      Summarizer
	includeFiltered bool
	log             zerolog.Logger
	now             func() time.Time
}

// NewBuilder validates cfg and returns a Builder.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("digest store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		store:           cfg.Store,
		summarizer:      cfg.Summarizer,
		includeFiltered: cfg.IncludeFiltered,
		log:             cfg.Logger,
		now:             now,
	}, nil
}

// Build renders the digest covering the lookback window ending now.
// A summarizer failure never fails the build; the raw digest goes out
// with a note instead.
func (b *Builder) Build(ctx context.Context, lookback time.Duration) (string, error) {
	since := b.now().Add(-lookback)
	alerts, err := b.store.FetchRecentAlerts(ctx, since, b.includeFiltered, models.SeverityNormal)
	if err != nil {
		metrics.DigestErrorsTotal.Inc()
		return "", fmt.Errorf("fetch alerts: %w", err)
	}

	report := b.render(alerts, lookback)

	if b.summarizer != nil {
		summary, serr := b.summarizer.Summarize(ctx, report)
		switch {
		case serr != nil:
			b.log.Warn().Err(serr).Msg("digest summary failed, sending raw digest")
			report += fmt.Sprintf("\n\n⚠️ LLM call failed: %v", serr)
		case summary != "":
			report += fmt.Sprintf("\n\n🧠 *Smart summary:*\n%s", summary)
		}
	}

	metrics.DigestsBuiltTotal.Inc()
	return report, nil
}

func (b *Builder) render(alerts []*models.AlertRecord, lookback time.Duration) string {
	now := b.now().UTC()
	minutes := int(lookback.Minutes())

	lines := []string{
		fmt.Sprintf("🕒 *Automatic summary - %s*", now.Format("02/01 15:04")),
		fmt.Sprintf("Period analyzed: last %d minutes", minutes),
	}

	var sent, critical, important int
	for _, a := range alerts {
		if a.SentToTarget {
			sent++
		}
		switch a.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityImportant:
			important++
		}
	}
	total := len(alerts)
	filtered := total - sent

	lines = append(lines, fmt.Sprintf("Total alerts recorded: %d (notified: %d | filtered: %d)", total, sent, filtered))

	if critical > 0 || important > 0 {
		var segments []string
		if critical > 0 {
			segments = append(segments, fmt.Sprintf("🚨 %d critical", critical))
		}
		if important > 0 {
			segments = append(segments, fmt.Sprintf("⚠️ %d important", important))
		}
		lines = append(lines, "Classification: "+strings.Join(segments, ", "))
	} else {
		lines = append(lines, "Classification: no critical or important alerts in the period.")
	}

	if total > 0 {
		lines = append(lines, "", "📌 Highlights:")
		for _, a := range highlights(alerts, highlightCap(minutes)) {
			ts := a.ObservedAt
			if ts.IsZero() {
				ts = a.DetectedAt
			}
			status := "⏳"
			if a.SentToTarget {
				status = "✅"
			}
			lines = append(lines,
				fmt.Sprintf("%s %s · #%s · [%s] · %s", status, ts.UTC().Format("15:04"), a.ChannelLabel, a.Severity, preview(a.RawText)),
				fmt.Sprintf("   • Reason: %s", reasonLine(a)),
			)
		}
	} else {
		lines = append(lines, "", "✅ No relevant alerts recorded in the period.")
	}

	lines = append(lines, "", "_Monitor running in periodic digest mode_")
	return strings.Join(lines, "\n")
}

// highlights orders records for display: highest severity first, then
// channel, then newest. The cap keeps long periods readable.
func highlights(alerts []*models.AlertRecord, limit int) []*models.AlertRecord {
	sorted := append([]*models.AlertRecord(nil), alerts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if ri, rj := sorted[i].Severity.Rank(), sorted[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		if sorted[i].ChannelLabel != sorted[j].ChannelLabel {
			return sorted[i].ChannelLabel < sorted[j].ChannelLabel
		}
		return sorted[i].ObservedAt.After(sorted[j].ObservedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// highlightCap scales the highlight count with the period: one entry
// per five minutes, at least five.
func highlightCap(minutes int) int {
	if c := minutes / 5; c > 0 {
		return c
	}
	return 5
}

func preview(text string) string {
	p := strings.TrimSpace(text)
	if len(p) > previewLimit {
		p = p[:previewLimit-3] + "..."
	}
	return p
}

func reasonLine(a *models.AlertRecord) string {
	if a.ReasonDetail != "" {
		return a.ReasonDetail
	}
	return string(a.Reason)
}
