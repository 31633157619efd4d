package notify

import (
	"fmt"
	"strings"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// maxNotifyText caps the message body quoted in a notification so a
// pasted stack trace cannot blow past Slack's block size limits.
const maxNotifyText = 600

// FormatAlert renders the notification text for a send decision.
func FormatAlert(decision *models.Decision) string {
	rec := decision.Record

	author := rec.Author
	if author == "" {
		author = "unknown"
	}
	label := rec.ChannelLabel
	if label == "" {
		label = rec.ChannelID
	}
	reason := rec.ReasonDetail
	if reason == "" {
		reason = string(rec.Reason)
	}

	return fmt.Sprintf("%s *%s* alert in #%s\n• User: `%s`\n• Text: %s\n• Reason: %s",
		severityIcon(rec.Severity),
		rec.Severity,
		label,
		author,
		truncate(strings.TrimSpace(rec.RawText), maxNotifyText),
		reason)
}

// severityIcon returns the icon prefix for a notification.
func severityIcon(severity models.Severity) string {
	if severity == models.SeverityCritical {
		return "\U0001F6A8" // rotating light
	}
	return "⚠️" // warning sign
}

// NormalizeChannelRef turns a configured channel reference into a form
// the chat API accepts: channel IDs pass through, names get a "#"
// prefix.
func NormalizeChannelRef(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "C") && len(value) > 5 {
		return value // already a channel ID
	}
	if strings.HasPrefix(value, "#") {
		return value
	}
	return "#" + value
}

// truncate shortens a string to max length with an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
