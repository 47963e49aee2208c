package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/logging"
	"github.com/hivelane/outreach/store"
)

// Source is the envelope source stamped on sweep-originated events.
const Source = "outreach.sweep"

// Rule describes one dormancy check.
type Rule struct {
	Status        core.ProviderStatus
	ExpectedEvent core.EventType
	// After is how long a session may sit untouched before it counts as
	// dormant.
	After  time.Duration
	Reason core.FollowUpReason
}

// DefaultRules returns the standard dormancy checks: three days for an
// unanswered outreach, two days for missing documents.
func DefaultRules() []Rule {
	return []Rule{
		{
			Status:        core.StatusWaitingResponse,
			ExpectedEvent: core.EventProviderResponseReceived,
			After:         72 * time.Hour,
			Reason:        core.ReasonNoResponse,
		},
		{
			Status:        core.StatusWaitingDocument,
			ExpectedEvent: core.EventProviderResponseReceived,
			After:         48 * time.Hour,
			Reason:        core.ReasonMissingDocument,
		},
	}
}

// Options configures a Sweeper.
type Options struct {
	Rules []Rule
	// BatchSize caps sessions examined per rule per run; the rest are picked
	// up by the next run.
	BatchSize int
	// MaxFollowUps is the follow-up budget per lull. Sessions past it are
	// left alone.
	MaxFollowUps int
	Logger       logging.Logger
	Now          func() time.Time
}

// WithLogger sets the sweeper's logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Result summarizes one sweep run.
type Result struct {
	Scanned   int
	Published int
	Skipped   int
}

// Sweeper runs dormancy checks and emits follow-up events.
type Sweeper struct {
	sessions  store.SessionStore
	publisher catalog.Publisher
	opts      Options
}

// New builds a sweeper over the session store and publisher.
func New(sessions store.SessionStore, publisher catalog.Publisher, optFns ...func(o *Options)) *Sweeper {
	opts := Options{
		Rules:        DefaultRules(),
		BatchSize:    100,
		MaxFollowUps: 3,
		Logger:       logging.NoOpLogger{},
		Now:          time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sweeper{sessions: sessions, publisher: publisher, opts: opts}
}

// RunOnce executes every rule once and returns aggregate counters. Publish
// failures abort the run; the next run re-discovers anything unprocessed
// because session state was never touched.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := s.opts.Now().UTC()
	for _, rule := range s.opts.Rules {
		before := now.Add(-rule.After)
		dormant, err := s.sessions.FindDormant(ctx, rule.Status, rule.ExpectedEvent, before, s.opts.BatchSize)
		if err != nil {
			return res, fmt.Errorf("dormant query for %s: %w", core.DormantKey(rule.Status, rule.ExpectedEvent), err)
		}
		res.Scanned += len(dormant)

		for _, sess := range dormant {
			number := followUpNumber(now.Sub(sess.LastActivityAt), rule.After)
			if number > s.opts.MaxFollowUps {
				res.Skipped++
				s.opts.Logger.Debug("follow-up budget spent, leaving session alone",
					"campaign_id", sess.CampaignID, "provider_id", sess.ProviderID)
				continue
			}
			env, err := catalog.NewEnvelope(core.EventFollowUpTriggered, Source, catalog.NewTraceContext(), catalog.FollowUpTriggered{
				CampaignID:           sess.CampaignID,
				ProviderID:           sess.ProviderID,
				Reason:               rule.Reason,
				FollowUpNumber:       number,
				DaysSinceLastContact: int(now.Sub(sess.LastActivityAt).Hours() / 24),
			})
			if err != nil {
				return res, err
			}
			if err := s.publisher.Publish(ctx, env); err != nil {
				return res, fmt.Errorf("publish follow-up for %s: %w", sess.Key(), err)
			}
			res.Published++
		}
	}
	s.opts.Logger.Info("sweep complete", "scanned", res.Scanned, "published", res.Published, "skipped", res.Skipped)
	return res, nil
}

// followUpNumber counts how many thresholds have elapsed. One threshold is
// the first follow-up; the count is not clamped at the top so callers can
// tell budget overruns apart from the final nudge.
func followUpNumber(elapsed, after time.Duration) int {
	if after <= 0 {
		return 1
	}
	n := int(elapsed / after)
	if n < 1 {
		n = 1
	}
	return n
}

// Schedule registers the sweep on c with a standard 5-field cron expression
// and returns the entry id.
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.opts.Logger.Error("sweep run failed", "error", err)
		}
	})
}
