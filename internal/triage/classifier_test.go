package triage

import (
	"reflect"
	"testing"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

func mustRule(t *testing.T, rule *models.ChannelRule) *models.ChannelRule {
	t.Helper()
	if err := rule.Validate(); err != nil {
		t.Fatalf("rule validation failed: %v", err)
	}
	return rule
}

func TestClassifyPrecedence(t *testing.T) {
	rule := mustRule(t, &models.ChannelRule{
		ID:               "C1",
		SeverityHint:     models.SeverityNormal,
		CriticalKeywords: []string{"outage", "data loss"},
		IgnorePatterns:   []string{"maintenance drill"},
		Patterns: []*models.PatternRule{{
			Name:       "deploy-failed",
			Pattern:    "deploy.*failed",
			Importance: models.SeverityImportant,
		}},
	})

	tests := []struct {
		name         string
		text         string
		wantSeverity models.Severity
		wantTokens   []string
	}{
		{
			name:         "ignore wins over keyword",
			text:         "maintenance drill: simulating outage",
			wantSeverity: models.SeverityIgnore,
			wantTokens:   []string{"ignored"},
		},
		{
			name:         "pattern wins over keyword",
			text:         "deploy of billing failed after outage",
			wantSeverity: models.SeverityImportant,
			wantTokens:   []string{"deploy-failed"},
		},
		{
			name:         "critical keyword",
			text:         "partial OUTAGE in eu-west",
			wantSeverity: models.SeverityCritical,
			wantTokens:   []string{"outage"},
		},
		{
			name:         "multiple keywords collected",
			text:         "outage caused data loss",
			wantSeverity: models.SeverityCritical,
			wantTokens:   []string{"outage", "data loss"},
		},
		{
			name:         "falls back to channel hint",
			text:         "all quiet on the western front",
			wantSeverity: models.SeverityNormal,
			wantTokens:   []string{"generic"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.text, rule)
			if cls.Severity != tt.wantSeverity {
				t.Errorf("severity = %v, want %v", cls.Severity, tt.wantSeverity)
			}
			if !reflect.DeepEqual(cls.Tokens, tt.wantTokens) {
				t.Errorf("tokens = %v, want %v", cls.Tokens, tt.wantTokens)
			}
			want := PatternSignature(rule.ID, tt.wantTokens)
			if cls.PatternSignature != want {
				t.Errorf("signature = %q, want %q", cls.PatternSignature, want)
			}
		})
	}
}

func TestClassifyDeterminism(t *testing.T) {
	rule := mustRule(t, &models.ChannelRule{
		ID:               "C9",
		CriticalKeywords: []string{"down"},
	})

	text := "  Payment   API is DOWN\nagain "
	first := Classify(text, rule)
	second := Classify(text, rule)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical classifications, got %+v and %+v", first, second)
	}
	if first.ContentHash == "" || first.PatternSignature == "" {
		t.Error("expected hash and signature to be populated")
	}
}

func TestClassifyPatternAnnotations(t *testing.T) {
	pattern := &models.PatternRule{
		Name:                "payment-errors",
		Pattern:             "payment.*(failed|declined)",
		Importance:          models.SeverityNormal,
		MinImportance:       models.SeverityCritical,
		RecurrenceThreshold: 2,
	}
	rule := mustRule(t, &models.ChannelRule{ID: "C2", Patterns: []*models.PatternRule{pattern}})

	cls := Classify("payment for order 81 failed", rule)
	if cls.MatchedPattern == nil {
		t.Fatal("expected matched pattern annotation")
	}
	if cls.MatchedPattern.MinImportance != models.SeverityCritical {
		t.Errorf("expected min importance CRITICAL, got %v", cls.MatchedPattern.MinImportance)
	}
	if cls.MatchedPattern.RecurrenceThreshold != 2 {
		t.Errorf("expected threshold 2, got %d", cls.MatchedPattern.RecurrenceThreshold)
	}
	if cls.Severity != models.SeverityNormal {
		t.Errorf("expected nominal severity NORMAL, got %v", cls.Severity)
	}
}

func TestClassifyIgnoreHint(t *testing.T) {
	rule := mustRule(t, &models.ChannelRule{ID: "C3", SeverityHint: models.SeverityIgnore})

	cls := Classify("routine chatter", rule)
	if cls.Severity != models.SeverityIgnore {
		t.Errorf("expected IGNORE from hint, got %v", cls.Severity)
	}
	if !reflect.DeepEqual(cls.Tokens, []string{"generic"}) {
		t.Errorf("expected generic tokens, got %v", cls.Tokens)
	}
}

func TestClassifyFirstPatternWins(t *testing.T) {
	rule := mustRule(t, &models.ChannelRule{
		ID: "C4",
		Patterns: []*models.PatternRule{
			{Name: "first", Pattern: "timeout", Importance: models.SeverityImportant},
			{Name: "second", Pattern: "database", Importance: models.SeverityCritical},
		},
	})

	cls := Classify("database timeout", rule)
	if cls.MatchedPattern == nil || cls.MatchedPattern.Name != "first" {
		t.Errorf("expected first pattern to win, got %+v", cls.MatchedPattern)
	}
	if cls.Severity != models.SeverityImportant {
		t.Errorf("expected IMPORTANT, got %v", cls.Severity)
	}
}
