package core

import "time"

// EventRecord is an append-only audit row written for every event accepted by
// the dispatcher, before any handler runs.
type EventRecord struct {
	ID         string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	CampaignID string    `json:"campaign_id,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// JobCorrelation joins an asynchronous analysis job back to the session that
// started it. Token is the caller-chosen idempotency key; a second submission
// with the same token reuses the original job instead of creating another.
type JobCorrelation struct {
	Token        string       `json:"token"`
	JobID        string       `json:"job_id"`
	CampaignID   string       `json:"campaign_id"`
	ProviderID   string       `json:"provider_id"`
	DocumentType DocumentType `json:"document_type"`
	DocumentRef  string       `json:"document_ref"`
	SubmittedAt  time.Time    `json:"submitted_at"`
}

// DeadLetter is a delivery that exhausted its retries or failed fatally. The
// original envelope is preserved verbatim for operator replay.
type DeadLetter struct {
	ID        string    `json:"id"`
	EventType EventType `json:"event_type"`
	Envelope  []byte    `json:"envelope"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}
