// Package triage classifies chat messages and decides whether they
// warrant a notification. Classification is pure; decisions consult
// the alert store for dedup and recurrence history.
package triage

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// NormalizeText collapses all whitespace runs to single spaces and
// trims the ends. Used before hashing so reformatted copies of the
// same message hash identically.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContentHash fingerprints a message within a channel. The hash covers
// the lowercased normalized text plus the channel id, so the same text
// on two channels yields two distinct hashes.
func ContentHash(channelID, text string) string {
	normalized := strings.ToLower(NormalizeText(text))
	sum := md5.Sum([]byte(normalized + "::" + channelID))
	return hex.EncodeToString(sum[:])
}

// PatternSignature groups messages triggered by the same rule facet.
// Tokens come from classification: a pattern name, matched keywords,
// "ignored", or "generic".
func PatternSignature(channelID string, tokens []string) string {
	if len(tokens) == 0 {
		tokens = []string{"generic"}
	}
	return channelID + ":" + strings.Join(tokens, "+")
}
