package store

import (
	"context"
	"errors"
	"time"

	"github.com/hivelane/outreach/core"
)

// ErrExists is returned by create operations when the record is already
// present. Callers that treat duplicate creation as benign check for it with
// errors.Is.
var ErrExists = errors.New("record already exists")

// SessionStore persists provider sessions with optimistic concurrency.
type SessionStore interface {
	// CreateSession inserts a new session. Returns ErrExists if a session
	// with the same key is already present.
	CreateSession(ctx context.Context, sess *core.Session) error

	// GetSession returns the session for key or core.NotFoundError.
	GetSession(ctx context.Context, key core.SessionKey) (*core.Session, error)

	// UpdateSession writes sess conditioned on the stored row still carrying
	// expectedVersion. On a version mismatch it returns core.StaleVersionError
	// and leaves the row untouched.
	UpdateSession(ctx context.Context, sess *core.Session, expectedVersion int) error

	// FindDormant returns up to limit sessions in the given status, expecting
	// the given event, whose last activity predates before. Results are
	// ordered oldest first.
	FindDormant(ctx context.Context, status core.ProviderStatus, event core.EventType, before time.Time, limit int) ([]*core.Session, error)

	// ListSessions returns every session in a campaign.
	ListSessions(ctx context.Context, campaignID string) ([]*core.Session, error)
}

// CampaignStore persists campaign records.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *core.Campaign) error
	GetCampaign(ctx context.Context, id string) (*core.Campaign, error)
	UpdateCampaign(ctx context.Context, c *core.Campaign) error
}

// ThreadStore persists conversation threads as append-only logs.
type ThreadStore interface {
	// AppendMessage assigns the next gap-free sequence number for the thread
	// and stores the message. Re-appending a message ID already present in
	// the thread is a no-op that returns the existing sequence.
	AppendMessage(ctx context.Context, msg *core.ThreadMessage) (sequence int, err error)

	// ListThread returns the thread's messages ordered by sequence.
	ListThread(ctx context.Context, threadID string) ([]core.ThreadMessage, error)
}

// EventStore keeps the append-only audit log of accepted events.
type EventStore interface {
	RecordEvent(ctx context.Context, rec *core.EventRecord) error
	ListEvents(ctx context.Context, campaignID, providerID string) ([]core.EventRecord, error)
}

// JobStore persists async job correlations with consume-once semantics.
type JobStore interface {
	// PutJob stores a correlation. Returns ErrExists if the token is taken.
	PutJob(ctx context.Context, job *core.JobCorrelation) error

	// GetJobByToken returns the correlation for token or core.NotFoundError.
	GetJobByToken(ctx context.Context, token string) (*core.JobCorrelation, error)

	// ListJobs returns the correlations still in flight for one session.
	ListJobs(ctx context.Context, campaignID, providerID string) ([]*core.JobCorrelation, error)

	// ConsumeJob atomically removes and returns the correlation for jobID.
	// A second consume of the same job returns core.NotFoundError.
	ConsumeJob(ctx context.Context, jobID string) (*core.JobCorrelation, error)
}

// DeadLetterStore keeps deliveries that exhausted their retries.
type DeadLetterStore interface {
	AddDeadLetter(ctx context.Context, dl *core.DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]core.DeadLetter, error)
}

// Store bundles every persistence concern behind one handle.
type Store interface {
	SessionStore
	CampaignStore
	ThreadStore
	EventStore
	JobStore
	DeadLetterStore

	Close() error
}
