package core

import "fmt"

// ProviderStatus is the current stage of a provider within a campaign.
// Statuses are mutually exclusive; every session is in exactly one.
type ProviderStatus string

const (
	// StatusInvited means the provider was added to the campaign but initial
	// outreach has not been sent yet.
	StatusInvited ProviderStatus = "INVITED"
	// StatusWaitingResponse means outreach was sent and we are awaiting a reply.
	StatusWaitingResponse ProviderStatus = "WAITING_RESPONSE"
	// StatusWaitingDocument means the provider replied but required documents
	// are still missing or were invalid.
	StatusWaitingDocument ProviderStatus = "WAITING_DOCUMENT"
	// StatusDocumentProcessing means a document was submitted and analysis is
	// in progress.
	StatusDocumentProcessing ProviderStatus = "DOCUMENT_PROCESSING"
	// StatusUnderReview means automated screening finished and a decision is
	// being confirmed.
	StatusUnderReview ProviderStatus = "UNDER_REVIEW"
	// StatusQualified is terminal: the provider meets all requirements.
	StatusQualified ProviderStatus = "QUALIFIED"
	// StatusRejected is terminal: the provider does not meet requirements or
	// declined.
	StatusRejected ProviderStatus = "REJECTED"
	// StatusEscalated is terminal for the automated flow: a human takes over.
	StatusEscalated ProviderStatus = "ESCALATED"
)

// EventType names an event's detail-type in the catalog.
type EventType string

const (
	EventNewCampaignRequested      EventType = "NewCampaignRequested"
	EventSendMessageRequested      EventType = "SendMessageRequested"
	EventProviderResponseReceived  EventType = "ProviderResponseReceived"
	EventDocumentProcessed         EventType = "DocumentProcessed"
	EventScreeningCompleted        EventType = "ScreeningCompleted"
	EventFollowUpTriggered         EventType = "FollowUpTriggered"
	EventReplyToProviderRequested  EventType = "ReplyToProviderRequested"
)

// transitions is the allowed-successor set per status. Terminal statuses map
// to an empty set.
var transitions = map[ProviderStatus][]ProviderStatus{
	StatusInvited: {StatusWaitingResponse},
	StatusWaitingResponse: {
		StatusWaitingDocument,
		StatusDocumentProcessing,
		StatusUnderReview,
		StatusQualified,
		StatusRejected,
	},
	StatusWaitingDocument: {
		StatusDocumentProcessing,
		StatusRejected,
		StatusEscalated,
	},
	StatusDocumentProcessing: {
		StatusUnderReview,
		StatusWaitingDocument,
		StatusRejected,
	},
	StatusUnderReview: {
		StatusQualified,
		StatusRejected,
		StatusEscalated,
	},
	StatusQualified: {},
	StatusRejected:  {},
	StatusEscalated: {},
}

// expectedEvents maps each status to the single event type that legitimately
// advances a session out of that status. Terminal statuses expect nothing.
var expectedEvents = map[ProviderStatus]EventType{
	StatusInvited:            EventSendMessageRequested,
	StatusWaitingResponse:    EventProviderResponseReceived,
	StatusWaitingDocument:    EventProviderResponseReceived,
	StatusDocumentProcessing: EventDocumentProcessed,
	StatusUnderReview:        EventScreeningCompleted,
}

// Valid reports whether s is a known provider status.
func (s ProviderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s ProviderStatus) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// AllowedSuccessors returns a copy of the statuses reachable from s.
func AllowedSuccessors(s ProviderStatus) []ProviderStatus {
	next := transitions[s]
	out := make([]ProviderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to ProviderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ExpectedEvent returns the event type that advances a session out of status
// s, or "" for terminal statuses.
func ExpectedEvent(s ProviderStatus) EventType {
	return expectedEvents[s]
}

// ParseProviderStatus converts a stored string into a ProviderStatus.
func ParseProviderStatus(v string) (ProviderStatus, error) {
	s := ProviderStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid provider status %q", v)
	}
	return s, nil
}
