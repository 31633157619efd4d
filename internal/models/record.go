package models

import "time"

// Reason explains the outcome of a send decision.
type Reason string

const (
	// ReasonNewCritical marks a critical message seen for the first time
	// inside its dedup window.
	ReasonNewCritical Reason = "NEW_CRITICAL"
	// ReasonRecurrentThresholdMet marks a message whose pattern recurred
	// often enough to notify.
	ReasonRecurrentThresholdMet Reason = "RECURRENT_THRESHOLD_MET"
	// ReasonDuplicateSuppressed marks a message held back because an
	// equivalent one was already sent, or the pattern has not recurred
	// enough yet.
	ReasonDuplicateSuppressed Reason = "DUPLICATE_SUPPRESSED"
	// ReasonBelowMinSeverity marks a message below the urgency cutoff.
	ReasonBelowMinSeverity Reason = "BELOW_MIN_SEVERITY"
	// ReasonIgnoredPattern marks a message matched by an ignore pattern.
	ReasonIgnoredPattern Reason = "IGNORED_PATTERN"
)

// AlertRecord is the persisted outcome of evaluating one message.
// Every observed message produces exactly one record, whether or not
// a notification was sent for it.
type AlertRecord struct {
	// ID is the record identifier assigned by the store.
	ID string `json:"id"`

	// MessageKey is the stable identity of the source message. The
	// store enforces uniqueness on it so replays after a crash do not
	// double-record.
	MessageKey string `json:"message_key"`

	// ChannelID identifies the channel the message was posted in.
	ChannelID string `json:"channel_id"`

	// ChannelLabel is the human readable channel name.
	ChannelLabel string `json:"channel_label,omitempty"`

	// Author is the display name of the poster, when known.
	Author string `json:"author,omitempty"`

	// RawText is the original message body.
	RawText string `json:"raw_text"`

	// ContentHash identifies near-identical message content within a
	// channel.
	ContentHash string `json:"content_hash"`

	// PatternSignature groups messages triggered by the same rule facet
	// for recurrence counting.
	PatternSignature string `json:"pattern_signature"`

	// Severity is the effective severity after floors and refinement.
	Severity Severity `json:"severity"`

	// Reason is the decision outcome.
	Reason Reason `json:"reason"`

	// ReasonDetail is a free-form account of how the decision was made.
	ReasonDetail string `json:"reason_detail,omitempty"`

	// ObservedAt is when the message was posted.
	ObservedAt time.Time `json:"observed_at"`

	// DetectedAt is when the worker evaluated the message.
	DetectedAt time.Time `json:"detected_at"`

	// SentToTarget reports whether a notification went out for this
	// record.
	SentToTarget bool `json:"sent_to_target"`
}

// Decision is the result of evaluating one message against its
// channel rule.
type Decision struct {
	// Record is the alert record to persist for the message.
	Record *AlertRecord

	// Send reports whether a notification should go to the target
	// channel.
	Send bool

	// Occurrences is how many times the message's pattern signature was
	// seen inside the recurrence window, counting this message.
	Occurrences int
}
