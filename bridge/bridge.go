package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/logging"
	"github.com/hivelane/outreach/store"
)

// Source is the envelope source stamped on completion events.
const Source = "outreach.bridge"

// Analyzer starts asynchronous document analysis. Implementations wrap the
// actual analysis backend; Submit returns the backend's job id.
type Analyzer interface {
	Submit(ctx context.Context, documentRef string, token string) (jobID string, err error)
}

// Token derives the idempotency token for a document submission. The same
// document for the same provider always yields the same token.
func Token(campaignID, providerID, documentRef string) string {
	return fmt.Sprintf("%s:%s:%s", campaignID, providerID, documentRef)
}

// SubmitRequest describes one document to analyze.
type SubmitRequest struct {
	CampaignID   string
	ProviderID   string
	DocumentType core.DocumentType
	DocumentRef  string
}

// CompletionResult is what the analysis backend reports for a finished job.
type CompletionResult struct {
	Success   bool
	Extracted map[string]any
	// OCRText is the raw recognized text, when the backend provides it.
	OCRText string
	// ConfidenceScores rates each extracted field in [0,1].
	ConfidenceScores map[string]float64
	FailureReason    string
}

// Options configures a Bridge.
type Options struct {
	Logger logging.Logger
	Now    func() time.Time
}

// WithLogger sets the bridge logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Bridge mediates between event handlers and the analysis backend.
type Bridge struct {
	jobs      store.JobStore
	analyzer  Analyzer
	publisher catalog.Publisher
	opts      Options
}

// New builds a bridge.
func New(jobs store.JobStore, analyzer Analyzer, publisher catalog.Publisher, optFns ...func(o *Options)) *Bridge {
	opts := Options{Logger: logging.NoOpLogger{}, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bridge{jobs: jobs, analyzer: analyzer, publisher: publisher, opts: opts}
}

// Submit starts analysis for the document, or returns the job already in
// flight for the same token.
func (b *Bridge) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	token := Token(req.CampaignID, req.ProviderID, req.DocumentRef)

	if existing, err := b.jobs.GetJobByToken(ctx, token); err == nil {
		b.opts.Logger.Debug("reusing in-flight analysis job",
			"campaign_id", req.CampaignID, "provider_id", req.ProviderID, "job_id", existing.JobID)
		return existing.JobID, nil
	} else if !core.IsNotFound(err) {
		return "", err
	}

	jobID, err := b.analyzer.Submit(ctx, req.DocumentRef, token)
	if err != nil {
		return "", &core.ExternalServiceError{Service: "document-analysis", Err: err}
	}

	job := &core.JobCorrelation{
		Token:        token,
		JobID:        jobID,
		CampaignID:   req.CampaignID,
		ProviderID:   req.ProviderID,
		DocumentType: req.DocumentType,
		DocumentRef:  req.DocumentRef,
		SubmittedAt:  b.opts.Now().UTC(),
	}
	if err := b.jobs.PutJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrExists) {
			// Lost the race to a concurrent submit; theirs is the job of
			// record.
			winner, getErr := b.jobs.GetJobByToken(ctx, token)
			if getErr != nil {
				return "", getErr
			}
			return winner.JobID, nil
		}
		return "", err
	}
	b.opts.Logger.Info("analysis job submitted",
		"campaign_id", req.CampaignID, "provider_id", req.ProviderID,
		"document_type", req.DocumentType, "job_id", jobID)
	return jobID, nil
}

// OnCompletion translates a raw completion signal into a DocumentProcessed
// event. An unknown job id means the completion was already processed; that
// is a quiet no-op, not an error.
func (b *Bridge) OnCompletion(ctx context.Context, jobID string, result CompletionResult) error {
	job, err := b.jobs.ConsumeJob(ctx, jobID)
	if err != nil {
		if core.IsNotFound(err) {
			b.opts.Logger.Debug("completion for unknown or already-consumed job", "job_id", jobID)
			return nil
		}
		return err
	}

	env, err := catalog.NewEnvelope(core.EventDocumentProcessed, Source, catalog.NewTraceContext(), catalog.DocumentProcessed{
		CampaignID:    job.CampaignID,
		ProviderID:    job.ProviderID,
		JobID:         jobID,
		DocumentType:  job.DocumentType,
		DocumentRef:   job.DocumentRef,
		Success:          result.Success,
		Extracted:        result.Extracted,
		OCRText:          result.OCRText,
		ConfidenceScores: result.ConfidenceScores,
		FailureReason:    result.FailureReason,
	})
	if err != nil {
		return err
	}
	return b.publisher.Publish(ctx, env)
}
