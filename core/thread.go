package core

import (
	"fmt"
	"strings"
	"time"
)

// Direction tells whether a thread message was sent to or received from the
// provider.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Attachment is a file reference carried on an inbound message. Ref points
// into blob storage; the raw bytes never travel through the event pipeline.
type Attachment struct {
	Filename    string `json:"filename"`
	Ref         string `json:"ref"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// ThreadMessage is one entry in a conversation thread. Sequence numbers are
// allocated by the store and are gap-free per thread; MessageID is the
// provider-side identifier used for duplicate suppression.
type ThreadMessage struct {
	ThreadID    string       `json:"thread_id"`
	Sequence    int          `json:"sequence"`
	MessageID   string       `json:"message_id"`
	Direction   Direction    `json:"direction"`
	MessageType MessageType  `json:"message_type,omitempty"`
	Subject     string       `json:"subject,omitempty"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SentAt      time.Time    `json:"sent_at"`
}

// ThreadID derives the deterministic thread identifier for a provider within
// a campaign and market. The same triple always yields the same thread, so
// every message lands in one conversation.
func ThreadID(campaignID, market, providerID string) string {
	return fmt.Sprintf("%s#%s#%s", campaignID, market, providerID)
}

// ParseThreadID splits a thread identifier back into its parts.
func ParseThreadID(id string) (campaignID, market, providerID string, err error) {
	parts := strings.SplitN(id, "#", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed thread id %q", id)
	}
	return parts[0], parts[1], parts[2], nil
}
