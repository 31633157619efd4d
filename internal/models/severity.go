// Package models contains the core data structures for noisegate.
package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity represents how urgent a chat message is. Levels are ordered
// from IGNORE (lowest) to CRITICAL (highest).
type Severity string

const (
	SeverityIgnore    Severity = "IGNORE"
	SeverityNormal    Severity = "NORMAL"
	SeverityImportant Severity = "IMPORTANT"
	SeverityCritical  Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityIgnore:    0,
	SeverityNormal:    1,
	SeverityImportant: 2,
	SeverityCritical:  3,
}

// SeveritiesOrdered returns all severities from lowest to highest.
func SeveritiesOrdered() []Severity {
	return []Severity{SeverityIgnore, SeverityNormal, SeverityImportant, SeverityCritical}
}

// Rank returns the numeric position of the severity in the ordering.
// Unknown values rank below IGNORE.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is one of the defined levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s ranks at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// MaxSeverity returns the higher ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseSeverity converts a string to a Severity. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// UnmarshalYAML accepts severity names in any case. Empty values stay
// empty so section defaults apply.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*s = ""
		return nil
	}
	sev, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}
