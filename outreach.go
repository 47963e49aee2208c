// Package outreach provides a high-level façade over the event catalog, the
// session engine and the agents that together run provider recruitment
// campaigns. Most applications interact with this package by:
//  1. Creating a System via New() (optionally overriding the default
//     in-memory store, mailer and document analyzer)
//  2. Calling Start() to launch the bus workers
//  3. Feeding it work: StartCampaign(), ReceiveMail(), CompleteDocument()
//
// The façade delegates event routing to bus.Bus and dispatch.Dispatcher while
// keeping setup ergonomics concise. All defaults are safe for local
// development and testing; production deployments supply the SQLite store, a
// real mailer and analyzer, and a structured logger.
package outreach

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hivelane/outreach/agent"
	"github.com/hivelane/outreach/blob"
	"github.com/hivelane/outreach/bridge"
	"github.com/hivelane/outreach/bus"
	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/dispatch"
	"github.com/hivelane/outreach/engine"
	"github.com/hivelane/outreach/logging"
	"github.com/hivelane/outreach/mail"
	"github.com/hivelane/outreach/reasoning"
	"github.com/hivelane/outreach/store"
	"github.com/hivelane/outreach/sweep"
)

// Source is the envelope source stamped on events published through the
// façade's own entry points.
const Source = "outreach.api"

// Options configures the System.
type Options struct {
	// Store persists sessions, campaigns, threads and jobs. Defaults to the
	// in-memory implementation; use store.OpenSQLite for durability.
	Store store.Store

	// Mailer delivers outbound messages. Defaults to the in-memory mailer.
	Mailer mail.Mailer

	// Analyzer is the asynchronous document analysis backend. Defaults to the
	// in-memory analyzer, which accepts every submission.
	Analyzer bridge.Analyzer

	// Blobs holds attachment bytes. Defaults to the in-memory blob store.
	Blobs blob.Store

	// Reasoner drafts messages and screens responses. Defaults to
	// reasoning.Disabled, which makes the agents fall back to templates and
	// rule-based screening.
	Reasoner reasoning.Service

	// Directory resolves candidate providers per market when a campaign
	// starts. Defaults to an empty static directory.
	Directory agent.Directory

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// FromAddress is the sender of all outbound mail.
	FromAddress string
	// ReplyDomain hosts the per-session reply addresses that route inbound
	// mail back to its campaign and provider.
	ReplyDomain string

	// Bus tunables; zero values take the bus package defaults.
	BusBufferSize  int
	BusWorkers     int
	BusMaxAttempts int
	BusBackoff     time.Duration

	// Sweep tunables; zero values take the sweep package defaults.
	SweepRules        []sweep.Rule
	SweepBatchSize    int
	SweepMaxFollowUps int
}

// System is the high-level façade aggregating the bus, the dispatcher and the
// agents behind it.
type System struct {
	opts    Options
	store   store.Store
	catalog *catalog.Catalog
	bus     *bus.Bus
	sweeper *sweep.Sweeper
	bridge  *bridge.Bridge
}

// New creates a System with optional overrides. Any unset collaborator is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *System {
	opts := Options{
		Mailer:      mail.NewMemory(),
		Analyzer:    bridge.NewMemoryAnalyzer(),
		Blobs:       blob.NewMemory(),
		Reasoner:    reasoning.Disabled{},
		Directory:   agent.NewStaticDirectory(),
		Logger:      logging.NoOpLogger{},
		FromAddress: "outreach@localhost",
		ReplyDomain: "localhost",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}

	cat := catalog.New()
	dispatcher := dispatch.New(cat, opts.Store, dispatch.WithLogger(opts.Logger))
	b := bus.New(dispatcher, opts.Store, func(o *bus.Options) {
		if opts.BusBufferSize > 0 {
			o.BufferSize = opts.BusBufferSize
		}
		if opts.BusWorkers > 0 {
			o.Workers = opts.BusWorkers
		}
		if opts.BusMaxAttempts > 0 {
			o.MaxAttempts = opts.BusMaxAttempts
		}
		if opts.BusBackoff > 0 {
			o.Backoff = opts.BusBackoff
		}
		o.Logger = opts.Logger
	})

	br := bridge.New(opts.Store, opts.Analyzer, b, bridge.WithLogger(opts.Logger))
	agent.RegisterAll(dispatcher, agent.Deps{
		Store:       opts.Store,
		Engine:      engine.New(opts.Store),
		Publisher:   b,
		Mailer:      opts.Mailer,
		Reasoner:    opts.Reasoner,
		Bridge:      br,
		Directory:   opts.Directory,
		Logger:      opts.Logger,
		FromAddress: opts.FromAddress,
		ReplyDomain: opts.ReplyDomain,
	})

	sweeper := sweep.New(opts.Store, b, func(o *sweep.Options) {
		if len(opts.SweepRules) > 0 {
			o.Rules = opts.SweepRules
		}
		if opts.SweepBatchSize > 0 {
			o.BatchSize = opts.SweepBatchSize
		}
		if opts.SweepMaxFollowUps > 0 {
			o.MaxFollowUps = opts.SweepMaxFollowUps
		}
		o.Logger = opts.Logger
	})

	return &System{
		opts:    opts,
		store:   opts.Store,
		catalog: cat,
		bus:     b,
		sweeper: sweeper,
		bridge:  br,
	}
}

// Start launches the bus workers. The context bounds the workers' lifetime.
func (s *System) Start(ctx context.Context) { s.bus.Start(ctx) }

// Drain waits for all accepted events, retries included, to finish.
func (s *System) Drain(ctx context.Context) error { return s.bus.Drain(ctx) }

// Stop refuses new events, drains in-flight ones and shuts the workers down.
func (s *System) Stop(ctx context.Context) error { return s.bus.Stop(ctx) }

// Close stops the bus and closes the store.
func (s *System) Close(ctx context.Context) error {
	if err := s.bus.Stop(ctx); err != nil {
		return err
	}
	return s.store.Close()
}

// Publish validates nothing and queues the envelope as-is; the dispatcher
// validates on delivery. Use the typed entry points below where one exists.
func (s *System) Publish(ctx context.Context, env catalog.Envelope) error {
	return s.bus.Publish(ctx, env)
}

// StartCampaign publishes a NewCampaignRequested event with a fresh trace.
// BuyerID identifies the requesting buyer and may be empty.
func (s *System) StartCampaign(ctx context.Context, campaignID, buyerID, name string, requirements core.Requirements) error {
	env, err := catalog.NewEnvelope(core.EventNewCampaignRequested, Source, catalog.NewTraceContext(), catalog.NewCampaignRequested{
		CampaignID:   campaignID,
		BuyerID:      buyerID,
		Name:         name,
		Requirements: requirements,
	})
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, env)
}

// StopCampaign marks a campaign stopped. In-flight events for its sessions
// are absorbed by the agents from then on.
func (s *System) StopCampaign(ctx context.Context, campaignID string) error {
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != core.CampaignRunning {
		return nil
	}
	campaign.Status = core.CampaignStopped
	campaign.UpdatedAt = time.Now().UTC()
	return s.store.UpdateCampaign(ctx, campaign)
}

// ReceiveMail routes an inbound message to its session and queues the
// resulting response event. Mail without a valid reply address is rejected.
func (s *System) ReceiveMail(ctx context.Context, in mail.Inbound) error {
	env, err := mail.ToEvent(in)
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, env)
}

// ReceiveRawMail stores the message's attachment bytes in the blob store and
// routes the message like ReceiveMail.
func (s *System) ReceiveRawMail(ctx context.Context, in mail.Inbound, raw []mail.RawAttachment) error {
	campaignID, providerID, err := mail.ParseReplyAddress(in.To)
	if err != nil {
		return &core.ValidationError{
			EventType: core.EventProviderResponseReceived,
			Reason:    err.Error(),
		}
	}
	attachments, err := mail.StoreAttachments(ctx, s.opts.Blobs, campaignID, providerID, in.MessageID, raw)
	if err != nil {
		return err
	}
	in.Attachments = append(in.Attachments, attachments...)
	return s.ReceiveMail(ctx, in)
}

// Attachment fetches stored attachment bytes by ref.
func (s *System) Attachment(ctx context.Context, ref string) ([]byte, string, error) {
	return s.opts.Blobs.Get(ctx, ref)
}

// CompleteDocument reports the outcome of a document analysis job. Unknown or
// already-consumed job IDs are ignored.
func (s *System) CompleteDocument(ctx context.Context, jobID string, result bridge.CompletionResult) error {
	return s.bridge.OnCompletion(ctx, jobID, result)
}

// PendingJob returns the in-flight analysis job for a document, or a
// not-found error once the job has completed.
func (s *System) PendingJob(ctx context.Context, campaignID, providerID, documentRef string) (*core.JobCorrelation, error) {
	return s.store.GetJobByToken(ctx, bridge.Token(campaignID, providerID, documentRef))
}

// RunSweep executes the dormancy rules once.
func (s *System) RunSweep(ctx context.Context) (sweep.Result, error) {
	return s.sweeper.RunOnce(ctx)
}

// ScheduleSweep registers the dormancy sweep on the given cron runner.
func (s *System) ScheduleSweep(c *cron.Cron, spec string) (cron.EntryID, error) {
	return s.sweeper.Schedule(c, spec)
}

// Session returns the current state of one provider's workflow.
func (s *System) Session(ctx context.Context, campaignID, providerID string) (*core.Session, error) {
	return s.store.GetSession(ctx, core.SessionKey{CampaignID: campaignID, ProviderID: providerID})
}

// Sessions lists every session in a campaign.
func (s *System) Sessions(ctx context.Context, campaignID string) ([]*core.Session, error) {
	return s.store.ListSessions(ctx, campaignID)
}

// Campaign returns a campaign record.
func (s *System) Campaign(ctx context.Context, campaignID string) (*core.Campaign, error) {
	return s.store.GetCampaign(ctx, campaignID)
}

// Thread returns the full conversation log for a session, in order.
func (s *System) Thread(ctx context.Context, threadID string) ([]core.ThreadMessage, error) {
	return s.store.ListThread(ctx, threadID)
}

// Events returns the audit trail recorded for a provider.
func (s *System) Events(ctx context.Context, campaignID, providerID string) ([]core.EventRecord, error) {
	return s.store.ListEvents(ctx, campaignID, providerID)
}

// DeadLetters returns up to limit undeliverable envelopes, newest first.
func (s *System) DeadLetters(ctx context.Context, limit int) ([]core.DeadLetter, error) {
	return s.store.ListDeadLetters(ctx, limit)
}
