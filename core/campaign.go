package core

import "time"

// CampaignStatus is the lifecycle stage of a campaign.
type CampaignStatus string

const (
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignStopped   CampaignStatus = "STOPPED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// EquipmentRequirements lists the gear a provider must or should have.
type EquipmentRequirements struct {
	Required []string `json:"required" yaml:"required"`
	Optional []string `json:"optional,omitempty" yaml:"optional"`
}

// DocumentRequirements lists the paperwork a provider must submit.
type DocumentRequirements struct {
	Required []DocumentType `json:"required" yaml:"required"`
	// InsuranceMinCoverage is the minimum liability coverage in whole
	// currency units; zero means no minimum is enforced.
	InsuranceMinCoverage int64 `json:"insurance_min_coverage,omitempty" yaml:"insurance_min_coverage"`
}

// CertificationRequirements lists credentials a provider must or should hold.
type CertificationRequirements struct {
	Required  []string `json:"required,omitempty" yaml:"required"`
	Preferred []string `json:"preferred,omitempty" yaml:"preferred"`
}

// Requirements is the immutable qualification bar captured when a campaign is
// created. Screening decisions are made against this snapshot, never against
// later edits.
type Requirements struct {
	Type               string                    `json:"type" yaml:"type"`
	Markets            []string                  `json:"markets" yaml:"markets"`
	ProvidersPerMarket int                       `json:"providers_per_market" yaml:"providers_per_market"`
	Equipment          EquipmentRequirements     `json:"equipment" yaml:"equipment"`
	Documents          DocumentRequirements      `json:"documents" yaml:"documents"`
	Certifications     CertificationRequirements `json:"certifications,omitempty" yaml:"certifications"`
	TravelRequired     bool                      `json:"travel_required,omitempty" yaml:"travel_required"`
}

// Campaign is a recruitment drive: a requirements snapshot plus an aggregate
// status gate. Handlers consult Active before doing any provider work so a
// stopped campaign quietly absorbs late events.
type Campaign struct {
	ID           string         `json:"campaign_id"`
	BuyerID      string         `json:"buyer_id,omitempty"`
	Name         string         `json:"name"`
	Status       CampaignStatus `json:"status"`
	Requirements Requirements   `json:"requirements"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Active reports whether the campaign still accepts provider activity.
func (c *Campaign) Active() bool {
	return c.Status == CampaignRunning
}
