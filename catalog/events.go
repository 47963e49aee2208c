package catalog

import (
	"time"

	"github.com/hivelane/outreach/core"
)

// NewCampaignRequested starts a recruitment drive. The requirements snapshot
// it carries is frozen into the campaign record; later edits never affect
// screening of providers already in flight.
type NewCampaignRequested struct {
	CampaignID   string            `json:"campaign_id" validate:"required,slug"`
	BuyerID      string            `json:"buyer_id,omitempty" validate:"omitempty,slug"`
	Name         string            `json:"name" validate:"required"`
	Requirements core.Requirements `json:"requirements" validate:"required"`
}

// SendMessageRequested asks the communication layer to draft and send one
// outbound message. Context carries message-type specific hints, such as the
// follow-up reason or the names of missing documents.
type SendMessageRequested struct {
	CampaignID  string           `json:"campaign_id" validate:"required,slug"`
	ProviderID  string           `json:"provider_id" validate:"required,slug"`
	MessageType core.MessageType `json:"message_type" validate:"required,oneof=initial_outreach follow_up missing_document clarification qualified_confirmation rejection"`
	Context     map[string]any   `json:"context,omitempty"`
}

// ProviderResponseReceived is an inbound reply. MessageID is the provider
// side identifier; redelivering the same MessageID appends nothing twice.
type ProviderResponseReceived struct {
	CampaignID  string            `json:"campaign_id" validate:"required,slug"`
	ProviderID  string            `json:"provider_id" validate:"required,slug"`
	MessageID   string            `json:"message_id" validate:"required"`
	Subject     string            `json:"subject,omitempty"`
	Body        string            `json:"body" validate:"required,max=10000"`
	Attachments []core.Attachment `json:"attachments,omitempty" validate:"dive"`
	ReceivedAt  time.Time         `json:"received_at" validate:"required"`
}

// DocumentProcessed reports the outcome of an asynchronous document analysis
// job. Exactly one of Extracted or FailureReason is meaningful, keyed off
// Success.
type DocumentProcessed struct {
	CampaignID   string            `json:"campaign_id" validate:"required,slug"`
	ProviderID   string            `json:"provider_id" validate:"required,slug"`
	JobID        string            `json:"job_id" validate:"required"`
	DocumentType core.DocumentType `json:"document_type" validate:"required,oneof=insurance_certificate license certification w9 other"`
	DocumentRef  string            `json:"document_ref" validate:"required"`
	Success      bool              `json:"success"`
	Extracted    map[string]any    `json:"extracted,omitempty"`
	// OCRText is the raw recognized text, kept for audit and manual review.
	OCRText string `json:"ocr_text,omitempty"`
	// ConfidenceScores rates each extracted field in [0,1].
	ConfidenceScores map[string]float64 `json:"confidence_scores,omitempty" validate:"omitempty,dive,min=0,max=1"`
	FailureReason    string             `json:"failure_reason,omitempty"`
}

// ScreeningCompleted carries the automated screening verdict for a provider.
type ScreeningCompleted struct {
	CampaignID string                 `json:"campaign_id" validate:"required,slug"`
	ProviderID string                 `json:"provider_id" validate:"required,slug"`
	Decision   core.ScreeningDecision `json:"decision" validate:"required,oneof=QUALIFIED REJECTED ESCALATED UNDER_REVIEW"`
	Reasons    []string               `json:"reasons,omitempty"`
	// ConfidenceScore is the screener's confidence in the decision, in [0,1].
	// Nil when the verdict came from the mechanical rule check.
	ConfidenceScore *float64 `json:"confidence_score,omitempty" validate:"omitempty,min=0,max=1"`
	// ArtifactsReviewed lists the document refs considered for the verdict.
	ArtifactsReviewed []string `json:"artifacts_reviewed,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// FollowUpTriggered is emitted by the dormancy sweep for a session that has
// gone quiet. FollowUpNumber counts nudges for the same lull, capped at 3.
type FollowUpTriggered struct {
	CampaignID           string              `json:"campaign_id" validate:"required,slug"`
	ProviderID           string              `json:"provider_id" validate:"required,slug"`
	Reason               core.FollowUpReason `json:"reason" validate:"required,oneof=no_response missing_document incomplete_info"`
	FollowUpNumber       int                 `json:"follow_up_number" validate:"required,min=1,max=3"`
	DaysSinceLastContact int                 `json:"days_since_last_contact,omitempty" validate:"min=0"`
}

// ReplyToProviderRequested asks for a corrective reply in an existing thread,
// such as pointing out an invalid or missing document.
type ReplyToProviderRequested struct {
	CampaignID string         `json:"campaign_id" validate:"required,slug"`
	ProviderID string         `json:"provider_id" validate:"required,slug"`
	ReplyType  core.ReplyType `json:"reply_type" validate:"required,oneof=missing_document invalid_document clarification_needed additional_info"`
	Details    map[string]any `json:"details,omitempty"`
}

// Subject extracts the campaign/provider pair a decoded payload concerns.
// Campaign-scoped events return an empty provider ID.
func Subject(payload any) (campaignID, providerID string) {
	switch p := payload.(type) {
	case *NewCampaignRequested:
		return p.CampaignID, ""
	case *SendMessageRequested:
		return p.CampaignID, p.ProviderID
	case *ProviderResponseReceived:
		return p.CampaignID, p.ProviderID
	case *DocumentProcessed:
		return p.CampaignID, p.ProviderID
	case *ScreeningCompleted:
		return p.CampaignID, p.ProviderID
	case *FollowUpTriggered:
		return p.CampaignID, p.ProviderID
	case *ReplyToProviderRequested:
		return p.CampaignID, p.ProviderID
	default:
		return "", ""
	}
}
