package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hivelane/outreach/core"
)

// SchemaVersion is the current envelope schema revision. Consumers reject
// envelopes from a newer schema rather than guess at their meaning.
const SchemaVersion = 1

// Envelope wraps every event on the bus. Detail stays raw until the catalog
// validates and decodes it into the payload type for DetailType.
type Envelope struct {
	ID            string          `json:"id"`
	DetailType    core.EventType  `json:"detail_type"`
	SchemaVersion int             `json:"schema_version"`
	Source        string          `json:"source"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Trace         TraceContext    `json:"trace"`
	Detail        json.RawMessage `json:"detail"`
}

// NewEnvelope builds an envelope around payload with a fresh ID and the given
// trace context. The payload must marshal cleanly; a type registered in the
// catalog always does.
func NewEnvelope(eventType core.EventType, source string, tc TraceContext, payload any) (Envelope, error) {
	detail, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:            uuid.NewString(),
		DetailType:    eventType,
		SchemaVersion: SchemaVersion,
		Source:        source,
		OccurredAt:    time.Now().UTC(),
		Trace:         tc,
		Detail:        detail,
	}, nil
}

// Publisher delivers envelopes to the bus. Publish returns once the envelope
// is accepted for delivery, not once it is handled.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}
