package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/store"
)

// CampaignSource is the envelope source for campaign-agent events.
const CampaignSource = "outreach.campaign"

// CampaignAgent creates campaigns and seeds their provider sessions.
type CampaignAgent struct {
	deps Deps
}

// NewCampaignAgent builds the agent.
func NewCampaignAgent(deps Deps) *CampaignAgent {
	deps.defaults()
	return &CampaignAgent{deps: deps}
}

// HandleNewCampaign freezes the requirements snapshot, creates one INVITED
// session per discovered provider and requests initial outreach for each.
//
// Every step is idempotent: a redelivered event finds the campaign and
// sessions already present and only fills in whatever is missing.
func (a *CampaignAgent) HandleNewCampaign(ctx context.Context, env catalog.Envelope, payload any) error {
	p := payload.(*catalog.NewCampaignRequested)
	log := a.deps.Logger

	now := a.deps.Now().UTC()
	campaign := &core.Campaign{
		ID:           p.CampaignID,
		BuyerID:      p.BuyerID,
		Name:         p.Name,
		Status:       core.CampaignRunning,
		Requirements: p.Requirements,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.deps.Store.CreateCampaign(ctx, campaign); err != nil {
		if !errors.Is(err, store.ErrExists) {
			return err
		}
		existing, getErr := a.deps.Store.GetCampaign(ctx, p.CampaignID)
		if getErr != nil {
			return getErr
		}
		if !existing.Active() {
			log.Info("campaign no longer active, skipping seed", "campaign_id", p.CampaignID)
			return nil
		}
		campaign = existing
	}

	for _, market := range campaign.Requirements.Markets {
		providers, err := a.deps.Directory.Find(ctx, market, campaign.Requirements.Type, campaign.Requirements.ProvidersPerMarket)
		if err != nil {
			return &core.ExternalServiceError{Service: "directory", Err: err}
		}
		for _, provider := range providers {
			if err := a.seedProvider(ctx, env, campaign, market, provider); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *CampaignAgent) seedProvider(ctx context.Context, env catalog.Envelope, campaign *core.Campaign, market string, provider Provider) error {
	key := core.SessionKey{CampaignID: campaign.ID, ProviderID: provider.ID}
	sess := core.NewSession(key, provider.Email, market)
	sess.Name = provider.Name
	sess.ThreadID = core.ThreadID(campaign.ID, market, provider.ID)

	if err := a.deps.Store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrExists) {
			// Seeded by an earlier delivery; the outreach request below was
			// either published then or will be handled idempotently.
			return nil
		}
		return err
	}
	a.deps.Logger.Info("provider invited",
		"campaign_id", campaign.ID, "provider_id", provider.ID, "market", market)

	outreach, err := catalog.NewEnvelope(core.EventSendMessageRequested, CampaignSource, env.Trace.Child(), catalog.SendMessageRequested{
		CampaignID:  campaign.ID,
		ProviderID:  provider.ID,
		MessageType: core.MessageInitialOutreach,
	})
	if err != nil {
		return err
	}
	if err := a.deps.Publisher.Publish(ctx, outreach); err != nil {
		return fmt.Errorf("request outreach for %s: %w", key, err)
	}
	return nil
}
