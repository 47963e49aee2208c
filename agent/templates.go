package agent

import (
	"fmt"
	"strings"

	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/reasoning"
)

// draftFallback produces a deterministic message when no reasoning service
// is available or the model's draft could not be used.
func draftFallback(messageType core.MessageType, campaign *core.Campaign, sess *core.Session, context map[string]any) reasoning.MessageDraft {
	name := sess.Name
	if name == "" {
		name = "there"
	}

	switch messageType {
	case core.MessageInitialOutreach:
		return reasoning.MessageDraft{
			Subject: fmt.Sprintf("Invitation to join %s", campaign.Name),
			Body: fmt.Sprintf("Hi %s,\n\nWe are building our %s network in %s and would love to work with you. "+
				"If you are interested, just reply to this email.\n\nThanks,\nThe %s team",
				name, campaign.Requirements.Type, sess.Market, campaign.Name),
		}
	case core.MessageFollowUp:
		return reasoning.MessageDraft{
			Subject: fmt.Sprintf("Re: Invitation to join %s", campaign.Name),
			Body: fmt.Sprintf("Hi %s,\n\nJust checking in on our earlier invitation. "+
				"We would still love to hear from you.\n\nThanks,\nThe %s team", name, campaign.Name),
		}
	case core.MessageMissingDocument:
		docs := documentList(context)
		return reasoning.MessageDraft{
			Subject: fmt.Sprintf("Re: Invitation to join %s", campaign.Name),
			Body: fmt.Sprintf("Hi %s,\n\nThanks for your interest. To complete your application we still need: %s. "+
				"Please reply with the documents attached.\n\nThanks,\nThe %s team", name, docs, campaign.Name),
		}
	case core.MessageClarification:
		return reasoning.MessageDraft{
			Subject: fmt.Sprintf("Re: Invitation to join %s", campaign.Name),
			Body: fmt.Sprintf("Hi %s,\n\nThanks for getting back to us. Could you confirm whether you are interested "+
				"in joining, and whether you have the required equipment?\n\nThanks,\nThe %s team", name, campaign.Name),
		}
	case core.MessageQualifiedConfirmation:
		return reasoning.MessageDraft{
			Subject: fmt.Sprintf("Welcome to %s", campaign.Name),
			Body: fmt.Sprintf("Hi %s,\n\nGood news: you are fully qualified and have been added to our network. "+
				"We will reach out with your first assignment soon.\n\nWelcome aboard,\nThe %s team", name, campaign.Name),
		}
	case core.MessageRejection:
		return reasoning.MessageDraft{
			Subject: fmt.Sprintf("Update on your %s application", campaign.Name),
			Body: fmt.Sprintf("Hi %s,\n\nThank you for your time. Unfortunately we cannot move forward with your "+
				"application right now. We will keep your details on file for future opportunities.\n\nBest,\nThe %s team",
				name, campaign.Name),
		}
	default:
		return reasoning.MessageDraft{
			Subject: fmt.Sprintf("Re: %s", campaign.Name),
			Body:    fmt.Sprintf("Hi %s,\n\nThanks for your message.\n\nThe %s team", name, campaign.Name),
		}
	}
}

func documentList(context map[string]any) string {
	raw, ok := context["documents"]
	if !ok {
		return "the required documents"
	}
	switch v := raw.(type) {
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", raw)
	}
}
