package reasoning

// MessageDraft is the model's answer when drafting an outbound message.
type MessageDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ResponseClassification is the model's reading of an inbound reply.
type ResponseClassification struct {
	// Sentiment is "positive", "negative" or "ambiguous".
	Sentiment          string   `json:"sentiment"`
	EquipmentConfirmed []string `json:"equipment_confirmed,omitempty"`
	EquipmentMissing   []string `json:"equipment_missing,omitempty"`
	TravelConfirmed    *bool    `json:"travel_confirmed,omitempty"`
	Certifications     []string `json:"certifications,omitempty"`
	// MentionsAttachments is true when the reply references documents being
	// attached or sent separately.
	MentionsAttachments bool   `json:"mentions_attachments,omitempty"`
	Summary             string `json:"summary,omitempty"`
}

// DocumentAssessment is the model's judgement of an analyzed document.
type DocumentAssessment struct {
	Valid   bool   `json:"valid"`
	Problem string `json:"problem,omitempty"`
}

// ScreeningVerdict is the model's qualification recommendation.
type ScreeningVerdict struct {
	// Decision is QUALIFIED, REJECTED, ESCALATED or UNDER_REVIEW.
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
	// Confidence is the model's confidence in the decision, in [0,1]. Nil
	// when the model omitted it or the verdict came from the rule fallback.
	Confidence *float64 `json:"confidence,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}
