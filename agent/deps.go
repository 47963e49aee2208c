package agent

import (
	"time"

	"github.com/hivelane/outreach/bridge"
	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/dispatch"
	"github.com/hivelane/outreach/engine"
	"github.com/hivelane/outreach/logging"
	"github.com/hivelane/outreach/mail"
	"github.com/hivelane/outreach/reasoning"
	"github.com/hivelane/outreach/store"
)

// Deps bundles the collaborators every agent needs.
type Deps struct {
	Store     store.Store
	Engine    *engine.Engine
	Publisher catalog.Publisher
	Mailer    mail.Mailer
	Reasoner  reasoning.Service
	Bridge    *bridge.Bridge
	Directory Directory
	Logger    logging.Logger

	// FromAddress is the sender of all outbound mail.
	FromAddress string
	// ReplyDomain hosts the per-session reply addresses.
	ReplyDomain string

	Now func() time.Time
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = logging.NoOpLogger{}
	}
	if d.Reasoner == nil {
		d.Reasoner = reasoning.Disabled{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// RegisterAll wires every agent's handlers into the dispatcher.
func RegisterAll(d *dispatch.Dispatcher, deps Deps) {
	campaign := NewCampaignAgent(deps)
	comms := NewCommunicationAgent(deps)
	screening := NewScreeningAgent(deps)
	notify := NewNotifyAgent(deps)

	d.Register(core.EventNewCampaignRequested, dispatch.HandlerFunc(campaign.HandleNewCampaign))
	d.Register(core.EventSendMessageRequested, dispatch.HandlerFunc(comms.HandleSendMessage))
	d.Register(core.EventFollowUpTriggered, dispatch.HandlerFunc(comms.HandleFollowUp))
	d.Register(core.EventReplyToProviderRequested, dispatch.HandlerFunc(comms.HandleReply))
	d.Register(core.EventProviderResponseReceived, dispatch.HandlerFunc(screening.HandleProviderResponse))
	d.Register(core.EventDocumentProcessed, dispatch.HandlerFunc(screening.HandleDocumentProcessed))
	d.Register(core.EventScreeningCompleted, dispatch.HandlerFunc(notify.HandleScreeningCompleted))
}
