package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/logging"
	"github.com/hivelane/outreach/store"
)

// Handler processes one decoded event. The payload is the typed struct the
// catalog produced for the envelope's detail-type.
//
// Handlers must be idempotent under redelivery: the same envelope may arrive
// more than once and must converge on the same state.
type Handler interface {
	Handle(ctx context.Context, env catalog.Envelope, payload any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env catalog.Envelope, payload any) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, env catalog.Envelope, payload any) error {
	return f(ctx, env, payload)
}

// Options configures a Dispatcher.
type Options struct {
	Logger logging.Logger
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Dispatcher validates envelopes, records them in the audit log and invokes
// the handler registered for their detail-type.
type Dispatcher struct {
	catalog  *catalog.Catalog
	events   store.EventStore
	handlers map[core.EventType]Handler
	logger   logging.Logger
}

// New builds a dispatcher. Handlers are registered afterwards with Register.
func New(cat *catalog.Catalog, events store.EventStore, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{
		catalog:  cat,
		events:   events,
		handlers: make(map[core.EventType]Handler),
		logger:   opts.Logger,
	}
}

// Register binds a handler to an event type, replacing any previous binding.
func (d *Dispatcher) Register(eventType core.EventType, h Handler) {
	d.handlers[eventType] = h
}

// Dispatch processes one envelope end to end.
//
// The returned error is already classified: nil means done (including the
// superseded case), a fatal error means the envelope must be dead-lettered
// without retry, anything else is a candidate for redelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, env catalog.Envelope) error {
	payload, err := d.catalog.Validate(env)
	if err != nil {
		d.logger.Warn("envelope rejected", "event_type", env.DetailType, "event_id", env.ID, "error", err)
		return err
	}

	if sc, scErr := env.Trace.SpanContext(); scErr == nil {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}

	campaignID, providerID := catalog.Subject(payload)
	rec := &core.EventRecord{
		ID:         env.ID,
		EventType:  env.DetailType,
		CampaignID: campaignID,
		ProviderID: providerID,
		TraceID:    env.Trace.TraceID,
		Payload:    env.Detail,
		ReceivedAt: time.Now().UTC(),
	}
	// Audit failures never block handling; the log line is the fallback.
	if err := d.events.RecordEvent(ctx, rec); err != nil {
		d.logger.Warn("audit record failed", "event_id", env.ID, "error", err)
	}

	h, ok := d.handlers[env.DetailType]
	if !ok {
		d.logger.Warn("no handler registered, dropping event", "event_type", env.DetailType, "event_id", env.ID)
		return nil
	}

	start := time.Now()
	err = h.Handle(ctx, env, payload)
	switch {
	case err == nil:
		d.logger.Debug("event handled", "event_type", env.DetailType, "event_id", env.ID, "duration", time.Since(start))
		return nil
	case core.IsStale(err):
		// Someone else already did this work; the delivery succeeded.
		d.logger.Debug("event superseded", "event_type", env.DetailType, "event_id", env.ID, "detail", err)
		return nil
	default:
		d.logger.Error("event handling failed", "event_type", env.DetailType, "event_id", env.ID, "fatal", core.Fatal(err), "error", err)
		return err
	}
}
