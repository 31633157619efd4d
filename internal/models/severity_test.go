package models

import "testing"

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input    string
		expected Severity
		wantErr  bool
	}{
		{"CRITICAL", SeverityCritical, false},
		{"critical", SeverityCritical, false},
		{"Critical", SeverityCritical, false},
		{"IMPORTANT", SeverityImportant, false},
		{"normal", SeverityNormal, false},
		{"IGNORE", SeverityIgnore, false},
		{"  important  ", SeverityImportant, false},
		{"", "", true},
		{"urgent", "", true},
		{"warn", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSeverity(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSeverity(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSeverity(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseSeverity(%q): expected %v, got %v", tt.input, tt.expected, got)
		}
	}
}

func TestSeverityAtLeast(t *testing.T) {
	tests := []struct {
		name string
		s    Severity
		min  Severity
		want bool
	}{
		{"critical at least important", SeverityCritical, SeverityImportant, true},
		{"critical at least critical", SeverityCritical, SeverityCritical, true},
		{"important below critical", SeverityImportant, SeverityCritical, false},
		{"normal at least ignore", SeverityNormal, SeverityIgnore, true},
		{"ignore below normal", SeverityIgnore, SeverityNormal, false},
		{"equal normal", SeverityNormal, SeverityNormal, true},
		{"unknown below ignore", Severity("bogus"), SeverityIgnore, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.AtLeast(tt.min); got != tt.want {
				t.Errorf("AtLeast(%v, %v) = %v, want %v", tt.s, tt.min, got, tt.want)
			}
		})
	}
}

func TestSeverityOrdering(t *testing.T) {
	ordered := SeveritiesOrdered()
	if len(ordered) != 4 {
		t.Fatalf("expected 4 severities, got %d", len(ordered))
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("expected %v to rank above %v", ordered[i], ordered[i-1])
		}
	}
}

func TestMaxSeverity(t *testing.T) {
	tests := []struct {
		a, b, want Severity
	}{
		{SeverityNormal, SeverityCritical, SeverityCritical},
		{SeverityCritical, SeverityNormal, SeverityCritical},
		{SeverityImportant, SeverityImportant, SeverityImportant},
		{SeverityIgnore, SeverityNormal, SeverityNormal},
	}

	for _, tt := range tests {
		if got := MaxSeverity(tt.a, tt.b); got != tt.want {
			t.Errorf("MaxSeverity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
