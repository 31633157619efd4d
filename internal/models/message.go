package models

import (
	"fmt"
	"time"
)

// Message is a single chat message observed on a monitored channel.
type Message struct {
	// ChannelID identifies the channel the message was posted in.
	ChannelID string `json:"channel_id"`

	// Timestamp is when the message was posted, at microsecond precision.
	Timestamp time.Time `json:"timestamp"`

	// Author is the display name of the poster, when known.
	Author string `json:"author,omitempty"`

	// Text is the raw message body.
	Text string `json:"text"`
}

// Key returns the stable identity of the message, derived from its
// channel and post time. Refetching the same message yields the same key.
func (m Message) Key() string {
	return fmt.Sprintf("%s:%d", m.ChannelID, m.Timestamp.UnixMicro())
}
