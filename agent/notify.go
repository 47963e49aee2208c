package agent

import (
	"context"

	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
)

// NotifySource is the envelope source for notify-agent events.
const NotifySource = "outreach.notify"

// NotifyAgent applies screening verdicts and tells the provider the outcome.
type NotifyAgent struct {
	deps Deps
}

// NewNotifyAgent builds the agent.
func NewNotifyAgent(deps Deps) *NotifyAgent {
	deps.defaults()
	return &NotifyAgent{deps: deps}
}

// HandleScreeningCompleted moves the session to its verdict status first and
// requests the outcome message second. The ordering matters for duplicate
// deliveries: once the transition has happened, the duplicate's transition
// comes back superseded and no second message is requested.
func (a *NotifyAgent) HandleScreeningCompleted(ctx context.Context, env catalog.Envelope, payload any) error {
	p := payload.(*catalog.ScreeningCompleted)
	log := a.deps.Logger

	campaign, err := a.deps.Store.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		return err
	}
	if !campaign.Active() {
		log.Info("campaign inactive, dropping verdict",
			"campaign_id", p.CampaignID, "provider_id", p.ProviderID)
		return nil
	}

	key := core.SessionKey{CampaignID: p.CampaignID, ProviderID: p.ProviderID}
	sess, err := a.deps.Store.GetSession(ctx, key)
	if err != nil {
		return err
	}

	var target core.ProviderStatus
	var messageType core.MessageType
	switch p.Decision {
	case core.DecisionQualified:
		target = core.StatusQualified
		messageType = core.MessageQualifiedConfirmation
	case core.DecisionRejected:
		target = core.StatusRejected
		messageType = core.MessageRejection
	case core.DecisionEscalated:
		target = core.StatusEscalated
	case core.DecisionUnderReview:
		// The verdict wants a human; the session stays parked in review.
		log.Info("screening left for manual review",
			"campaign_id", p.CampaignID, "provider_id", p.ProviderID)
		return nil
	default:
		return &core.ValidationError{
			EventType: core.EventScreeningCompleted,
			Reason:    "unknown decision " + string(p.Decision),
		}
	}

	var notes *string
	if p.Notes != "" {
		notes = &p.Notes
	}
	if _, err := a.deps.Engine.Apply(ctx, transition(sess, core.StatusUnderReview, target, core.SessionUpdate{
		ScreeningNotes: notes,
	})); err != nil {
		return err
	}
	log.Info("screening verdict applied",
		"campaign_id", p.CampaignID, "provider_id", p.ProviderID,
		"decision", p.Decision, "reasons", p.Reasons)

	if err := completeCampaignIfDone(ctx, a.deps, p.CampaignID); err != nil {
		return err
	}

	if messageType == "" {
		// Escalations go to a human, not to the provider.
		return nil
	}
	msg, err := catalog.NewEnvelope(core.EventSendMessageRequested, NotifySource, env.Trace.Child(), catalog.SendMessageRequested{
		CampaignID:  p.CampaignID,
		ProviderID:  p.ProviderID,
		MessageType: messageType,
	})
	if err != nil {
		return err
	}
	return a.deps.Publisher.Publish(ctx, msg)
}

// completeCampaignIfDone marks the campaign COMPLETED once every session in
// it has reached a terminal status. Called after any handler applies a
// terminal transition. Outcome messages still flow afterwards; only STOPPED
// freezes outbound mail.
func completeCampaignIfDone(ctx context.Context, deps Deps, campaignID string) error {
	sessions, err := deps.Store.ListSessions(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if !sess.Status.Terminal() {
			return nil
		}
	}
	campaign, err := deps.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != core.CampaignRunning {
		return nil
	}
	campaign.Status = core.CampaignCompleted
	campaign.UpdatedAt = deps.Now().UTC()
	if err := deps.Store.UpdateCampaign(ctx, campaign); err != nil {
		return err
	}
	deps.Logger.Info("campaign completed",
		"campaign_id", campaignID, "sessions", len(sessions))
	return nil
}
