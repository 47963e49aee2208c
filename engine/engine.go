package engine

import (
	"context"
	"time"

	"github.com/hivelane/outreach/core"
)

// Store is the slice of persistence the engine needs.
type Store interface {
	GetSession(ctx context.Context, key core.SessionKey) (*core.Session, error)
	UpdateSession(ctx context.Context, sess *core.Session, expectedVersion int) error
}

// Transition describes one requested status change. From is the status the
// caller observed; if the stored session has moved on, the transition is
// superseded and fails with core.StaleVersionError.
//
// From == To is a legal refresh: the session stays in place but its update
// fields, version and activity timestamp still advance. Follow-ups use this
// to bump LastActivityAt without changing status.
type Transition struct {
	Key  core.SessionKey
	From core.ProviderStatus
	To   core.ProviderStatus

	// ExpectedNextEvent overrides the default expected event for To when
	// set. Leave nil to derive it from the state machine.
	ExpectedNextEvent *core.EventType

	Update core.SessionUpdate
}

// Options configures an Engine.
type Options struct {
	// Now supplies timestamps; replaced in tests.
	Now func() time.Time
}

// Engine validates and applies transitions.
type Engine struct {
	store Store
	now   func() time.Time
}

// New builds an engine over the given session store.
func New(store Store, optFns ...func(o *Options)) *Engine {
	opts := Options{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{store: store, now: opts.Now}
}

// Apply performs the transition and returns the updated session.
//
// Error contract: core.NotFoundError when the session does not exist,
// core.StaleVersionError when the observed status or version is out of date
// (benign, the work was done by someone else), core.InvalidTransitionError
// when the state machine forbids the change.
func (e *Engine) Apply(ctx context.Context, tr Transition) (*core.Session, error) {
	sess, err := e.store.GetSession(ctx, tr.Key)
	if err != nil {
		return nil, err
	}

	if sess.Status != tr.From {
		return nil, &core.StaleVersionError{
			Key:             tr.Key,
			ExpectedStatus:  tr.From,
			ActualStatus:    sess.Status,
			ExpectedVersion: sess.Version,
		}
	}
	if tr.From != tr.To && !core.CanTransition(tr.From, tr.To) {
		return nil, &core.InvalidTransitionError{From: tr.From, To: tr.To}
	}

	expectedVersion := sess.Version
	next := sess.Clone()
	next.Status = tr.To
	if tr.ExpectedNextEvent != nil {
		next.ExpectedNextEvent = *tr.ExpectedNextEvent
	} else {
		next.ExpectedNextEvent = core.ExpectedEvent(tr.To)
	}
	tr.Update.Apply(next)
	next.Version = expectedVersion + 1
	now := e.now().UTC()
	next.LastActivityAt = now
	next.UpdatedAt = now

	if err := e.store.UpdateSession(ctx, next, expectedVersion); err != nil {
		return nil, err
	}
	return next, nil
}
