package core

import (
	"fmt"
	"time"
)

// SessionKey is the composite identity of a provider session.
type SessionKey struct {
	CampaignID string
	ProviderID string
}

func (k SessionKey) String() string { return k.CampaignID + "/" + k.ProviderID }

// Session is one provider's progress through one campaign. It is the only
// mutable shared resource in the system; all mutation goes through the
// transition engine's conditioned write.
//
// Invariant: Status and ExpectedNextEvent are always updated together in a
// single write, along with the dormant-index fields, so no reader can observe
// a mix of old and new transition state.
type Session struct {
	CampaignID string `json:"campaign_id"`
	ProviderID string `json:"provider_id"`

	Status            ProviderStatus `json:"status"`
	ExpectedNextEvent EventType      `json:"expected_next_event,omitempty"`

	// Version is the optimistic-concurrency token, incremented on every
	// successful write. It starts at 1.
	Version        int       `json:"version"`
	LastActivityAt time.Time `json:"last_activity_at"`

	ThreadID string `json:"thread_id,omitempty"`

	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Market string `json:"market"`

	EquipmentConfirmed []string `json:"equipment_confirmed,omitempty"`
	EquipmentMissing   []string `json:"equipment_missing,omitempty"`
	TravelConfirmed    *bool    `json:"travel_confirmed,omitempty"`

	DocumentsUploaded []string `json:"documents_uploaded,omitempty"`
	DocumentsPending  []string `json:"documents_pending,omitempty"`

	// Artifacts maps a logical document name to its storage location.
	// Append-only: entries are never removed.
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Extracted map[string]any    `json:"extracted,omitempty"`

	Certifications []string `json:"certifications,omitempty"`
	ScreeningNotes string   `json:"screening_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a session in the initial INVITED status with version 1.
func NewSession(key SessionKey, email, market string) *Session {
	now := time.Now().UTC()
	return &Session{
		CampaignID:        key.CampaignID,
		ProviderID:        key.ProviderID,
		Status:            StatusInvited,
		ExpectedNextEvent: ExpectedEvent(StatusInvited),
		Version:           1,
		LastActivityAt:    now,
		Email:             email,
		Market:            market,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Key returns the session's composite key.
func (s *Session) Key() SessionKey {
	return SessionKey{CampaignID: s.CampaignID, ProviderID: s.ProviderID}
}

// DormantKey is the composite secondary-index key used to discover sessions
// parked awaiting an external event: "<status>#<expected_next_event>".
func (s *Session) DormantKey() string {
	return DormantKey(s.Status, s.ExpectedNextEvent)
}

// DormantKey builds the composite dormant-index key for a status/event pair.
func DormantKey(status ProviderStatus, event EventType) string {
	if event == "" {
		return fmt.Sprintf("%s#None", status)
	}
	return fmt.Sprintf("%s#%s", status, event)
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	c := *s
	c.EquipmentConfirmed = append([]string(nil), s.EquipmentConfirmed...)
	c.EquipmentMissing = append([]string(nil), s.EquipmentMissing...)
	c.DocumentsUploaded = append([]string(nil), s.DocumentsUploaded...)
	c.DocumentsPending = append([]string(nil), s.DocumentsPending...)
	c.Certifications = append([]string(nil), s.Certifications...)
	if s.TravelConfirmed != nil {
		v := *s.TravelConfirmed
		c.TravelConfirmed = &v
	}
	if s.Artifacts != nil {
		c.Artifacts = make(map[string]string, len(s.Artifacts))
		for k, v := range s.Artifacts {
			c.Artifacts[k] = v
		}
	}
	if s.Extracted != nil {
		c.Extracted = make(map[string]any, len(s.Extracted))
		for k, v := range s.Extracted {
			c.Extracted[k] = v
		}
	}
	return &c
}

// SessionUpdate carries the optional field changes applied alongside a status
// transition. Nil fields are left untouched; Artifacts and Extracted are
// merged (append-only), never replaced.
type SessionUpdate struct {
	ThreadID           *string
	EquipmentConfirmed []string
	EquipmentMissing   []string
	TravelConfirmed    *bool
	DocumentsUploaded  []string
	DocumentsPending   []string
	Artifacts          map[string]string
	Extracted          map[string]any
	Certifications     []string
	ScreeningNotes     *string
}

// Apply merges the update into s in place.
func (u SessionUpdate) Apply(s *Session) {
	if u.ThreadID != nil {
		s.ThreadID = *u.ThreadID
	}
	if u.EquipmentConfirmed != nil {
		s.EquipmentConfirmed = u.EquipmentConfirmed
	}
	if u.EquipmentMissing != nil {
		s.EquipmentMissing = u.EquipmentMissing
	}
	if u.TravelConfirmed != nil {
		s.TravelConfirmed = u.TravelConfirmed
	}
	if u.DocumentsUploaded != nil {
		s.DocumentsUploaded = u.DocumentsUploaded
	}
	if u.DocumentsPending != nil {
		s.DocumentsPending = u.DocumentsPending
	}
	if len(u.Artifacts) > 0 {
		if s.Artifacts == nil {
			s.Artifacts = make(map[string]string, len(u.Artifacts))
		}
		for k, v := range u.Artifacts {
			s.Artifacts[k] = v
		}
	}
	if len(u.Extracted) > 0 {
		if s.Extracted == nil {
			s.Extracted = make(map[string]any, len(u.Extracted))
		}
		for k, v := range u.Extracted {
			s.Extracted[k] = v
		}
	}
	if u.Certifications != nil {
		s.Certifications = u.Certifications
	}
	if u.ScreeningNotes != nil {
		s.ScreeningNotes = *u.ScreeningNotes
	}
}
