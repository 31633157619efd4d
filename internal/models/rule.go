package models

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultRecurrenceThreshold is used when a channel rule does not set
// its own threshold.
const DefaultRecurrenceThreshold = 3

// PatternRule assigns a severity to messages matching a regex on one
// channel.
type PatternRule struct {
	// Name identifies the pattern in signatures and digests. When empty
	// it is derived from the pattern text.
	Name string `yaml:"name,omitempty"`
	// Pattern is the regex matched against the message text.
	// Matching is case-insensitive.
	Pattern string `yaml:"pattern"`
	// Importance is the severity assigned when the pattern matches.
	Importance Severity `yaml:"importance"`
	// MinImportance raises recurring matches to at least this severity
	// once the recurrence threshold is met. Empty means no floor.
	MinImportance Severity `yaml:"min_importance,omitempty"`
	// RecurrenceThreshold overrides the channel threshold for this
	// pattern. Zero inherits the channel value.
	RecurrenceThreshold int `yaml:"recurrence_threshold,omitempty"`

	// compiledPattern is the compiled regex (internal use).
	compiledPattern *regexp.Regexp
}

// GetCompiledPattern returns the compiled regex pattern.
func (p *PatternRule) GetCompiledPattern() *regexp.Regexp {
	return p.compiledPattern
}

func (p *PatternRule) validate(channelID string) error {
	if p.Pattern == "" {
		return fmt.Errorf("pattern is required for channel %q", channelID)
	}

	compiled, err := regexp.Compile("(?i)" + p.Pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q for channel %q: %w", p.Pattern, channelID, err)
	}
	p.compiledPattern = compiled

	if p.Importance == "" {
		return fmt.Errorf("importance is required for pattern %q in channel %q", p.Pattern, channelID)
	}
	if !p.Importance.Valid() {
		return fmt.Errorf("invalid importance %q for pattern %q in channel %q", p.Importance, p.Pattern, channelID)
	}
	if p.MinImportance != "" && !p.MinImportance.Valid() {
		return fmt.Errorf("invalid min importance %q for pattern %q in channel %q", p.MinImportance, p.Pattern, channelID)
	}
	if p.RecurrenceThreshold < 0 {
		return fmt.Errorf("recurrence threshold must be positive for pattern %q in channel %q", p.Pattern, channelID)
	}

	if p.Name == "" {
		p.Name = derivePatternName(p.Pattern)
	}
	return nil
}

// ChannelRule configures monitoring for one chat channel.
type ChannelRule struct {
	// ID is the channel identifier used by the chat provider.
	ID string `yaml:"id"`
	// Label is the human readable channel name used in notifications.
	// Empty defaults to the channel id.
	Label string `yaml:"label,omitempty"`
	// SeverityHint is the baseline severity for messages that match no
	// keyword or pattern. Empty defaults to NORMAL.
	SeverityHint Severity `yaml:"severity_hint,omitempty"`
	// RecurrenceThreshold is how often a pattern must recur inside the
	// recurrence window before a non-critical notification goes out.
	// Zero selects DefaultRecurrenceThreshold.
	RecurrenceThreshold int `yaml:"recurrence_threshold,omitempty"`
	// CriticalKeywords force CRITICAL severity when found in the text.
	CriticalKeywords []string `yaml:"critical_keywords,omitempty"`
	// IgnorePatterns are regexes whose matches are dropped outright.
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`
	// Patterns assign severities to messages matching a regex.
	Patterns []*PatternRule `yaml:"patterns,omitempty"`
	// Muted records decisions for this channel without notifying.
	Muted bool `yaml:"muted,omitempty"`

	// compiledIgnores are the compiled ignore regexes (internal use).
	compiledIgnores []*regexp.Regexp
}

// Validate validates and compiles the channel rule configuration.
func (r *ChannelRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("channel id is required")
	}

	if r.SeverityHint == "" {
		r.SeverityHint = SeverityNormal
	}
	if !r.SeverityHint.Valid() {
		return fmt.Errorf("invalid severity hint %q for channel %q", r.SeverityHint, r.ID)
	}

	if r.RecurrenceThreshold < 0 {
		return fmt.Errorf("recurrence threshold must be positive for channel %q", r.ID)
	}
	if r.RecurrenceThreshold == 0 {
		r.RecurrenceThreshold = DefaultRecurrenceThreshold
	}

	// Blank ignore entries are dropped so compiled regexes stay aligned
	// with IgnorePatterns by index.
	kept := make([]string, 0, len(r.IgnorePatterns))
	r.compiledIgnores = nil
	for _, pattern := range r.IgnorePatterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		compiled, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return fmt.Errorf("invalid ignore pattern %q for channel %q: %w", pattern, r.ID, err)
		}
		kept = append(kept, pattern)
		r.compiledIgnores = append(r.compiledIgnores, compiled)
	}
	r.IgnorePatterns = kept

	for _, p := range r.Patterns {
		if err := p.validate(r.ID); err != nil {
			return err
		}
	}

	// Default label
	if r.Label == "" {
		r.Label = r.ID
	}

	return nil
}

// GetCompiledIgnores returns the compiled ignore regexes.
func (r *ChannelRule) GetCompiledIgnores() []*regexp.Regexp {
	return r.compiledIgnores
}

var patternNameStrip = regexp.MustCompile(`[^a-z0-9]+`)

// derivePatternName turns a regex into a stable lowercase identifier
// usable inside pattern signatures.
func derivePatternName(pattern string) string {
	name := patternNameStrip.ReplaceAllString(strings.ToLower(pattern), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return "pattern"
	}
	return name
}

// RuleSet is an immutable index of channel rules keyed by channel id.
// It is built once at configuration load time and shared read-only.
type RuleSet struct {
	rules map[string]*ChannelRule
	order []string
}

// NewRuleSet validates every rule and builds the lookup index.
func NewRuleSet(rules []*ChannelRule) (*RuleSet, error) {
	set := &RuleSet{rules: make(map[string]*ChannelRule, len(rules))}
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if _, exists := set.rules[rule.ID]; exists {
			return nil, fmt.Errorf("duplicate channel id %q", rule.ID)
		}
		set.rules[rule.ID] = rule
		set.order = append(set.order, rule.ID)
	}
	return set, nil
}

// Get returns the rule for a channel id.
func (s *RuleSet) Get(channelID string) (*ChannelRule, bool) {
	rule, ok := s.rules[channelID]
	return rule, ok
}

// All returns the rules in configuration order.
func (s *RuleSet) All() []*ChannelRule {
	out := make([]*ChannelRule, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rules[id])
	}
	return out
}

// Len returns the number of configured channels.
func (s *RuleSet) Len() int {
	return len(s.order)
}
