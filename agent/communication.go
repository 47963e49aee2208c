package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/mail"
	"github.com/hivelane/outreach/reasoning"
)

// CommunicationSource is the envelope source for communication-agent events.
const CommunicationSource = "outreach.communication"

// CommunicationAgent drafts and sends every outbound message and logs it in
// the conversation thread.
type CommunicationAgent struct {
	deps Deps
}

// NewCommunicationAgent builds the agent.
func NewCommunicationAgent(deps Deps) *CommunicationAgent {
	deps.defaults()
	return &CommunicationAgent{deps: deps}
}

// HandleSendMessage sends one outbound message. Initial outreach also moves
// the session INVITED → WAITING_RESPONSE; other message types leave status
// alone because their transitions belong to whoever requested the message.
func (a *CommunicationAgent) HandleSendMessage(ctx context.Context, env catalog.Envelope, payload any) error {
	p := payload.(*catalog.SendMessageRequested)

	campaign, sess, err := a.loadActive(ctx, p.CampaignID, p.ProviderID)
	if err != nil || campaign == nil {
		return err
	}

	if p.MessageType == core.MessageInitialOutreach && sess.Status != core.StatusInvited {
		// Redelivered after the first send already advanced the session.
		a.deps.Logger.Debug("initial outreach already sent",
			"campaign_id", p.CampaignID, "provider_id", p.ProviderID, "status", sess.Status)
		return nil
	}

	if _, err := a.send(ctx, env, campaign, sess, p.MessageType, p.Context); err != nil {
		return err
	}

	if p.MessageType == core.MessageInitialOutreach {
		threadID := sess.ThreadID
		if threadID == "" {
			threadID = core.ThreadID(campaign.ID, sess.Market, sess.ProviderID)
		}
		_, err = a.deps.Engine.Apply(ctx, transition(sess, core.StatusInvited, core.StatusWaitingResponse, core.SessionUpdate{
			ThreadID: &threadID,
		}))
		return err
	}
	return nil
}

// HandleFollowUp turns a dormancy nudge into a follow-up message and
// refreshes the session's activity clock so the next sweep waits a full
// threshold again.
func (a *CommunicationAgent) HandleFollowUp(ctx context.Context, env catalog.Envelope, payload any) error {
	p := payload.(*catalog.FollowUpTriggered)

	campaign, sess, err := a.loadActive(ctx, p.CampaignID, p.ProviderID)
	if err != nil || campaign == nil {
		return err
	}

	// The nudge only applies while the session is still waiting on the
	// provider; anything else means the lull ended before the sweep fired.
	if sess.ExpectedNextEvent != core.EventProviderResponseReceived {
		a.deps.Logger.Debug("follow-up no longer applicable",
			"campaign_id", p.CampaignID, "provider_id", p.ProviderID, "status", sess.Status)
		return nil
	}

	messageType := core.MessageFollowUp
	msgContext := map[string]any{
		"follow_up_number":        p.FollowUpNumber,
		"reason":                  string(p.Reason),
		"days_since_last_contact": p.DaysSinceLastContact,
	}
	if p.Reason == core.ReasonMissingDocument {
		messageType = core.MessageMissingDocument
		msgContext["documents"] = sess.DocumentsPending
	}

	sent, err := a.send(ctx, env, campaign, sess, messageType, msgContext)
	if err != nil || !sent {
		// A redelivered nudge already went out; refreshing the clock again
		// would push the next sweep window without any new contact.
		return err
	}

	// Status stays put; only the activity clock and version move.
	_, err = a.deps.Engine.Apply(ctx, transition(sess, sess.Status, sess.Status, core.SessionUpdate{}))
	return err
}

// HandleReply sends a corrective reply (missing document, invalid document,
// clarification) in the existing thread without touching session status.
func (a *CommunicationAgent) HandleReply(ctx context.Context, env catalog.Envelope, payload any) error {
	p := payload.(*catalog.ReplyToProviderRequested)

	campaign, sess, err := a.loadActive(ctx, p.CampaignID, p.ProviderID)
	if err != nil || campaign == nil {
		return err
	}

	messageType := core.MessageClarification
	switch p.ReplyType {
	case core.ReplyMissingDocument, core.ReplyInvalidDocument:
		messageType = core.MessageMissingDocument
	}
	_, err = a.send(ctx, env, campaign, sess, messageType, p.Details)
	return err
}

// loadActive fetches the campaign and session. A stopped campaign comes back
// as (nil, nil, nil): the event is quietly absorbed. COMPLETED campaigns keep
// sending so outcome messages for the final verdicts still reach providers.
func (a *CommunicationAgent) loadActive(ctx context.Context, campaignID, providerID string) (*core.Campaign, *core.Session, error) {
	campaign, err := a.deps.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if campaign.Status == core.CampaignStopped {
		a.deps.Logger.Info("campaign stopped, dropping message request",
			"campaign_id", campaignID, "provider_id", providerID)
		return nil, nil, nil
	}
	sess, err := a.deps.Store.GetSession(ctx, core.SessionKey{CampaignID: campaignID, ProviderID: providerID})
	if err != nil {
		return nil, nil, err
	}
	return campaign, sess, nil
}

// send drafts and delivers one message, keyed to the triggering envelope so a
// redelivered event maps onto the message already in the thread instead of
// mailing the provider twice. It reports whether a message actually went out
// on this call.
func (a *CommunicationAgent) send(ctx context.Context, env catalog.Envelope, campaign *core.Campaign, sess *core.Session, messageType core.MessageType, msgContext map[string]any) (bool, error) {
	threadID := sess.ThreadID
	if threadID == "" {
		threadID = core.ThreadID(campaign.ID, sess.Market, sess.ProviderID)
	}
	messageID := outboundMessageID(env)

	already, err := a.inThread(ctx, threadID, messageID)
	if err != nil {
		return false, err
	}
	if already {
		a.deps.Logger.Debug("outbound message already in thread, skipping send",
			"campaign_id", campaign.ID, "provider_id", sess.ProviderID, "message_id", messageID)
		return false, nil
	}

	draft := a.draft(ctx, campaign, sess, messageType, msgContext)

	if _, err := a.deps.Mailer.Send(ctx, mail.Outbound{
		To:          sess.Email,
		From:        a.deps.FromAddress,
		ReplyTo:     mail.ReplyAddress(a.deps.ReplyDomain, campaign.ID, sess.ProviderID),
		Subject:     draft.Subject,
		Body:        draft.Body,
		MessageID:   messageID,
		MessageType: messageType,
	}); err != nil {
		var ext *core.ExternalServiceError
		if errors.As(err, &ext) {
			return false, err
		}
		return false, &core.ExternalServiceError{Service: "mail", Err: err}
	}

	if _, err := a.deps.Store.AppendMessage(ctx, &core.ThreadMessage{
		ThreadID:    threadID,
		MessageID:   messageID,
		Direction:   core.DirectionOutbound,
		MessageType: messageType,
		Subject:     draft.Subject,
		Body:        draft.Body,
		SentAt:      a.deps.Now().UTC(),
	}); err != nil {
		return false, err
	}
	a.deps.Logger.Info("message sent",
		"campaign_id", campaign.ID, "provider_id", sess.ProviderID,
		"message_type", messageType, "message_id", messageID)
	return true, nil
}

// outboundMessageID derives the thread message id for env's outbound message.
// Stable across redeliveries of the same envelope.
func outboundMessageID(env catalog.Envelope) string {
	return "out-" + env.ID
}

func (a *CommunicationAgent) inThread(ctx context.Context, threadID, messageID string) (bool, error) {
	msgs, err := a.deps.Store.ListThread(ctx, threadID)
	if err != nil {
		return false, err
	}
	for _, msg := range msgs {
		if msg.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

// draft asks the reasoning service for a message and falls back to the
// static templates when it declines or misbehaves.
func (a *CommunicationAgent) draft(ctx context.Context, campaign *core.Campaign, sess *core.Session, messageType core.MessageType, msgContext map[string]any) reasoning.MessageDraft {
	reqJSON, _ := json.Marshal(campaign.Requirements)
	ctxJSON, _ := json.Marshal(msgContext)

	var draft reasoning.MessageDraft
	_, err := a.deps.Reasoner.Decide(ctx, reasoning.Request{
		System: "You draft short, friendly recruiting emails for a services marketplace. " +
			`Answer with JSON: {"subject": "...", "body": "..."}.`,
		Prompt: fmt.Sprintf("Campaign: %s\nRequirements: %s\nProvider: %s (market %s)\nMessage type: %s\nContext: %s",
			campaign.Name, reqJSON, sess.Name, sess.Market, messageType, ctxJSON),
	}, &draft)
	if err != nil || draft.Body == "" {
		if err != nil && !errors.Is(err, reasoning.ErrDisabled) {
			a.deps.Logger.Warn("draft generation failed, using template",
				"campaign_id", campaign.ID, "provider_id", sess.ProviderID, "error", err)
		}
		return draftFallback(messageType, campaign, sess, msgContext)
	}
	return draft
}
