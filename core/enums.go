package core

// MessageType is the kind of outbound message sent to a provider.
type MessageType string

const (
	MessageInitialOutreach       MessageType = "initial_outreach"
	MessageFollowUp              MessageType = "follow_up"
	MessageMissingDocument       MessageType = "missing_document"
	MessageClarification         MessageType = "clarification"
	MessageQualifiedConfirmation MessageType = "qualified_confirmation"
	MessageRejection             MessageType = "rejection"
)

// DocumentType classifies a submitted document.
type DocumentType string

const (
	DocumentInsuranceCertificate DocumentType = "insurance_certificate"
	DocumentLicense              DocumentType = "license"
	DocumentCertification        DocumentType = "certification"
	DocumentW9                   DocumentType = "w9"
	DocumentOther                DocumentType = "other"
)

// ScreeningDecision is the outcome of automated screening.
type ScreeningDecision string

const (
	DecisionQualified   ScreeningDecision = "QUALIFIED"
	DecisionRejected    ScreeningDecision = "REJECTED"
	DecisionEscalated   ScreeningDecision = "ESCALATED"
	DecisionUnderReview ScreeningDecision = "UNDER_REVIEW"
)

// FollowUpReason explains why a dormant session is being nudged.
type FollowUpReason string

const (
	ReasonNoResponse      FollowUpReason = "no_response"
	ReasonMissingDocument FollowUpReason = "missing_document"
	ReasonIncompleteInfo  FollowUpReason = "incomplete_info"
)

// ReplyType is the kind of corrective reply requested for a provider.
type ReplyType string

const (
	ReplyMissingDocument     ReplyType = "missing_document"
	ReplyInvalidDocument     ReplyType = "invalid_document"
	ReplyClarificationNeeded ReplyType = "clarification_needed"
	ReplyAdditionalInfo      ReplyType = "additional_info"
)
