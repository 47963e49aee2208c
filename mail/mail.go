package mail

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hivelane/outreach/core"
)

// Outbound is one message to deliver.
type Outbound struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	Body    string
	// MessageID is the caller-assigned message id. Callers that need
	// redelivery to collapse onto one thread entry derive it from the
	// triggering event; implementations mint one when it is empty.
	MessageID   string
	MessageType core.MessageType
}

// Mailer delivers outbound messages. Send returns the message id under which
// the message went out, for the thread log.
type Mailer interface {
	Send(ctx context.Context, msg Outbound) (messageID string, err error)
}

// ReplyAddress encodes the session key into the reply-to address so inbound
// mail can be routed without free-text parsing. Campaign ids must not
// contain '.'; the first dot separates campaign from provider.
func ReplyAddress(domain, campaignID, providerID string) string {
	return fmt.Sprintf("reply+%s.%s@%s", campaignID, providerID, domain)
}

// ParseReplyAddress recovers the session key from a reply address.
func ParseReplyAddress(addr string) (campaignID, providerID string, err error) {
	local, _, ok := strings.Cut(addr, "@")
	if !ok {
		return "", "", fmt.Errorf("malformed address %q", addr)
	}
	tag, ok := strings.CutPrefix(local, "reply+")
	if !ok {
		return "", "", fmt.Errorf("address %q is not a reply address", addr)
	}
	campaignID, providerID, ok = strings.Cut(tag, ".")
	if !ok || campaignID == "" || providerID == "" {
		return "", "", fmt.Errorf("address %q has no session tag", addr)
	}
	return campaignID, providerID, nil
}

// Memory is an in-process Mailer that records every send.
type Memory struct {
	mu   sync.Mutex
	sent []Outbound
}

// NewMemory creates an empty memory mailer.
func NewMemory() *Memory {
	return &Memory{}
}

// Send records the message, fabricating a message id when the caller
// supplied none.
func (m *Memory) Send(_ context.Context, msg Outbound) (string, error) {
	if msg.MessageID == "" {
		msg.MessageID = "mem-" + uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return msg.MessageID, nil
}

// Sent returns a copy of everything sent so far.
func (m *Memory) Sent() []Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outbound, len(m.sent))
	copy(out, m.sent)
	return out
}
