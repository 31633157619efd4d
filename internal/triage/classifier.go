package triage

import (
	"fmt"
	"strings"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// Classification is the outcome of classifying one message against its
// channel rule.
type Classification struct {
	// Severity is the nominal severity, before recurrence floors and
	// refinement are applied.
	Severity models.Severity

	// Tokens identify what matched, and feed the pattern signature.
	Tokens []string

	// ContentHash identifies near-identical content within the channel.
	ContentHash string

	// PatternSignature groups messages for recurrence counting.
	PatternSignature string

	// MatchedPattern is the pattern rule that matched, if any. Its
	// MinImportance and RecurrenceThreshold feed the send decision.
	MatchedPattern *models.PatternRule

	// MatchedKeywords are the critical keywords found in the text.
	MatchedKeywords []string

	// Detail collects human readable notes on how the result was
	// reached, joined into the record's reason detail.
	Detail []string
}

// Classify evaluates one message against a channel rule. It is a pure
// function over its inputs and never fails.
//
// Precedence, first match wins: ignore patterns, then pattern rules,
// then critical keywords, then the channel severity hint.
func Classify(text string, rule *models.ChannelRule) Classification {
	normalized := NormalizeText(text)
	lower := strings.ToLower(normalized)

	cls := Classification{ContentHash: ContentHash(rule.ID, text)}

	for i, re := range rule.GetCompiledIgnores() {
		if re.MatchString(normalized) {
			cls.Severity = models.SeverityIgnore
			cls.Tokens = []string{"ignored"}
			cls.Detail = append(cls.Detail, fmt.Sprintf("Ignored due to pattern '%s'", rule.IgnorePatterns[i]))
			cls.PatternSignature = PatternSignature(rule.ID, cls.Tokens)
			return cls
		}
	}

	for _, p := range rule.Patterns {
		if p.GetCompiledPattern().MatchString(normalized) {
			cls.Severity = p.Importance
			cls.Tokens = []string{p.Name}
			cls.MatchedPattern = p
			cls.Detail = append(cls.Detail, fmt.Sprintf("Matched pattern '%s' (%s)", p.Name, p.Importance))
			cls.PatternSignature = PatternSignature(rule.ID, cls.Tokens)
			return cls
		}
	}

	cls.Severity = rule.SeverityHint
	cls.Detail = append(cls.Detail, fmt.Sprintf("Base severity %s (channel hint)", cls.Severity))

	for _, keyword := range rule.CriticalKeywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw != "" && strings.Contains(lower, kw) {
			cls.MatchedKeywords = append(cls.MatchedKeywords, kw)
		}
	}
	if len(cls.MatchedKeywords) > 0 {
		cls.Severity = models.SeverityCritical
		cls.Tokens = cls.MatchedKeywords
		cls.Detail = append(cls.Detail, fmt.Sprintf("Matched critical keyword(s) '%s'", strings.Join(cls.MatchedKeywords, "', '")))
	} else {
		cls.Tokens = []string{"generic"}
	}

	cls.PatternSignature = PatternSignature(rule.ID, cls.Tokens)
	return cls
}
