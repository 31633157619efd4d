package llm

import "fmt"

const systemPrompt = "You are an assistant that prioritizes production alerts."

// TriagePrompt asks for a one-word severity verdict on a single alert.
// The reply is expected to be exactly one of the severity level names.
func TriagePrompt(messageText, channelLabel string, occurrences int) string {
	return fmt.Sprintf(
		"Quickly review the alert below and reply with ONLY CRITICAL, IMPORTANT, NORMAL or IGNORE.\n\n"+
			"Channel: %s\n"+
			"Recent occurrences: %d\n"+
			"Message: %s\n",
		channelLabel, occurrences, messageText)
}

// DigestPrompt asks for a short narrative summary of a rendered digest
// report.
func DigestPrompt(report string) string {
	return "Summarize the main points of the alert report below:\n\n" + report
}
