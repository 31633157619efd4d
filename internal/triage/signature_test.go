package triage

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"database timeout", "database timeout"},
		{"  database   timeout  ", "database timeout"},
		{"database\n\ttimeout", "database timeout"},
		{"", ""},
		{"   \n\t  ", ""},
		{"one", "one"},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.input); got != tt.expected {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestContentHashStability(t *testing.T) {
	h1 := ContentHash("C1", "Database Timeout")
	h2 := ContentHash("C1", "  database   TIMEOUT\n")
	h3 := ContentHash("C1", "database timeout exceeded")
	h4 := ContentHash("C2", "Database Timeout")

	if h1 != h2 {
		t.Errorf("expected identical hashes for reformatted text, got %q and %q", h1, h2)
	}
	if h1 == h3 {
		t.Error("expected different hashes for different text")
	}
	if h1 == h4 {
		t.Error("expected different hashes across channels")
	}
	if len(h1) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(h1))
	}
}

func TestPatternSignature(t *testing.T) {
	tests := []struct {
		name      string
		channelID string
		tokens    []string
		want      string
	}{
		{"single token", "C1", []string{"generic"}, "C1:generic"},
		{"multiple tokens", "C1", []string{"outage", "data loss"}, "C1:outage+data loss"},
		{"no tokens falls back", "C1", nil, "C1:generic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PatternSignature(tt.channelID, tt.tokens); got != tt.want {
				t.Errorf("PatternSignature() = %q, want %q", got, tt.want)
			}
		})
	}
}
