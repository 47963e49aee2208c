package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelane/outreach/bridge"
	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/engine"
	"github.com/hivelane/outreach/mail"
	"github.com/hivelane/outreach/reasoning"
	"github.com/hivelane/outreach/store"
)

type capturingPublisher struct {
	mu   sync.Mutex
	envs []catalog.Envelope
}

func (p *capturingPublisher) Publish(_ context.Context, env catalog.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *capturingPublisher) byType(eventType core.EventType) []catalog.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []catalog.Envelope
	for _, env := range p.envs {
		if env.DetailType == eventType {
			out = append(out, env)
		}
	}
	return out
}

type harness struct {
	store    *store.Memory
	pub      *capturingPublisher
	mailer   *mail.Memory
	analyzer *bridge.MemoryAnalyzer
	deps     Deps
}

func newHarness(t *testing.T, reasoner reasoning.Service) *harness {
	t.Helper()
	mem := store.NewMemory()
	pub := &capturingPublisher{}
	mailer := mail.NewMemory()
	analyzer := bridge.NewMemoryAnalyzer()
	deps := Deps{
		Store:       mem,
		Engine:      engine.New(mem),
		Publisher:   pub,
		Mailer:      mailer,
		Reasoner:    reasoner,
		Bridge:      bridge.New(mem, analyzer, pub),
		Directory:   NewStaticDirectory(),
		FromAddress: "talent@hivelane.example",
		ReplyDomain: "mail.hivelane.example",
	}
	deps.defaults()
	return &harness{store: mem, pub: pub, mailer: mailer, analyzer: analyzer, deps: deps}
}

func (h *harness) seedCampaign(t *testing.T, requirements core.Requirements) *core.Campaign {
	t.Helper()
	c := &core.Campaign{
		ID:           "camp-1",
		Name:         "Austin photographers",
		Status:       core.CampaignRunning,
		Requirements: requirements,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, h.store.CreateCampaign(context.Background(), c))
	return c
}

func (h *harness) seedSession(t *testing.T, status core.ProviderStatus) *core.Session {
	t.Helper()
	sess := core.NewSession(core.SessionKey{CampaignID: "camp-1", ProviderID: "prov-1"}, "pat@provider.example", "austin")
	sess.Name = "Pat"
	sess.ThreadID = core.ThreadID("camp-1", "austin", "prov-1")
	sess.Status = status
	sess.ExpectedNextEvent = core.ExpectedEvent(status)
	require.NoError(t, h.store.CreateSession(context.Background(), sess))
	return sess
}

func (h *harness) session(t *testing.T) *core.Session {
	t.Helper()
	sess, err := h.store.GetSession(context.Background(), core.SessionKey{CampaignID: "camp-1", ProviderID: "prov-1"})
	require.NoError(t, err)
	return sess
}

func envelope(t *testing.T, eventType core.EventType, payload any) (catalog.Envelope, any) {
	t.Helper()
	env, err := catalog.NewEnvelope(eventType, "test", catalog.NewTraceContext(), payload)
	require.NoError(t, err)
	decoded, err := catalog.New().Validate(env)
	require.NoError(t, err)
	return env, decoded
}

func responseEvent(t *testing.T, body string, attachments ...core.Attachment) (catalog.Envelope, any) {
	return envelope(t, core.EventProviderResponseReceived, catalog.ProviderResponseReceived{
		CampaignID:  "camp-1",
		ProviderID:  "prov-1",
		MessageID:   "msg-in-1",
		Body:        body,
		Attachments: attachments,
		ReceivedAt:  time.Now().UTC(),
	})
}

func basicRequirements() core.Requirements {
	return core.Requirements{
		Type:               "photographer",
		Markets:            []string{"austin"},
		ProvidersPerMarket: 5,
	}
}

func TestCampaignSeedsSessionsAndOutreach(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Directory = NewStaticDirectory(
		Provider{ID: "prov-1", Name: "Pat", Email: "pat@provider.example", Market: "austin"},
		Provider{ID: "prov-2", Name: "Sam", Email: "sam@provider.example", Market: "austin"},
		Provider{ID: "prov-3", Name: "Kim", Email: "kim@provider.example", Market: "denver"},
	)
	a := NewCampaignAgent(h.deps)

	env, payload := envelope(t, core.EventNewCampaignRequested, catalog.NewCampaignRequested{
		CampaignID:   "camp-1",
		Name:         "Austin photographers",
		Requirements: basicRequirements(),
	})
	require.NoError(t, a.HandleNewCampaign(context.Background(), env, payload))

	sessions, err := h.store.ListSessions(context.Background(), "camp-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2, "only the austin providers belong to the campaign")
	assert.Equal(t, core.StatusInvited, sessions[0].Status)

	outreach := h.pub.byType(core.EventSendMessageRequested)
	assert.Len(t, outreach, 2)
	assert.Equal(t, env.Trace.TraceID, outreach[0].Trace.TraceID)

	// Redelivery creates nothing new.
	require.NoError(t, a.HandleNewCampaign(context.Background(), env, payload))
	sessions, err = h.store.ListSessions(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Len(t, h.pub.byType(core.EventSendMessageRequested), 2)
}

func TestInitialOutreachSendsAndAdvances(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusInvited)
	a := NewCommunicationAgent(h.deps)

	env, payload := envelope(t, core.EventSendMessageRequested, catalog.SendMessageRequested{
		CampaignID:  "camp-1",
		ProviderID:  "prov-1",
		MessageType: core.MessageInitialOutreach,
	})
	require.NoError(t, a.HandleSendMessage(context.Background(), env, payload))

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pat@provider.example", sent[0].To)
	assert.Equal(t, "reply+camp-1.prov-1@mail.hivelane.example", sent[0].ReplyTo)

	sess := h.session(t)
	assert.Equal(t, core.StatusWaitingResponse, sess.Status)
	assert.Equal(t, core.EventProviderResponseReceived, sess.ExpectedNextEvent)

	thread, err := h.store.ListThread(context.Background(), sess.ThreadID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, core.DirectionOutbound, thread[0].Direction)

	// Redelivery after the transition is a no-op.
	require.NoError(t, a.HandleSendMessage(context.Background(), env, payload))
	assert.Len(t, h.mailer.Sent(), 1)
}

func TestNegativeResponseRejects(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusWaitingResponse)
	a := NewScreeningAgent(h.deps)

	env, payload := responseEvent(t, "Thanks, but I'm not interested.")
	require.NoError(t, a.HandleProviderResponse(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusRejected, sess.Status)

	msgs := h.pub.byType(core.EventSendMessageRequested)
	require.Len(t, msgs, 1)
	decoded, err := catalog.New().Validate(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, core.MessageRejection, decoded.(*catalog.SendMessageRequested).MessageType)
}

func TestPositiveResponseRequestsDocuments(t *testing.T) {
	reqs := basicRequirements()
	reqs.Documents.Required = []core.DocumentType{core.DocumentInsuranceCertificate}

	h := newHarness(t, nil)
	h.seedCampaign(t, reqs)
	h.seedSession(t, core.StatusWaitingResponse)
	a := NewScreeningAgent(h.deps)

	env, payload := responseEvent(t, "Yes, sounds good, I'd love to join!")
	require.NoError(t, a.HandleProviderResponse(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusWaitingDocument, sess.Status)
	assert.Equal(t, []string{"insurance_certificate"}, sess.DocumentsPending)

	replies := h.pub.byType(core.EventReplyToProviderRequested)
	require.Len(t, replies, 1)
	decoded, err := catalog.New().Validate(replies[0])
	require.NoError(t, err)
	assert.Equal(t, core.ReplyMissingDocument, decoded.(*catalog.ReplyToProviderRequested).ReplyType)
}

func TestPositiveResponseWithoutDocRequirementsGoesToReview(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusWaitingResponse)
	a := NewScreeningAgent(h.deps)

	env, payload := responseEvent(t, "Count me in!")
	require.NoError(t, a.HandleProviderResponse(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusUnderReview, sess.Status)

	verdicts := h.pub.byType(core.EventScreeningCompleted)
	require.Len(t, verdicts, 1)
	decoded, err := catalog.New().Validate(verdicts[0])
	require.NoError(t, err)
	assert.Equal(t, core.DecisionQualified, decoded.(*catalog.ScreeningCompleted).Decision)
}

func TestAttachmentsStartOneJobEach(t *testing.T) {
	reqs := basicRequirements()
	reqs.Documents.Required = []core.DocumentType{core.DocumentInsuranceCertificate}

	h := newHarness(t, nil)
	h.seedCampaign(t, reqs)
	h.seedSession(t, core.StatusWaitingResponse)
	a := NewScreeningAgent(h.deps)

	att := core.Attachment{Filename: "insurance.pdf", Ref: "blob://in/insurance.pdf"}
	env, payload := responseEvent(t, "Docs attached.", att)
	require.NoError(t, a.HandleProviderResponse(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusDocumentProcessing, sess.Status)
	assert.Equal(t, "blob://in/insurance.pdf", sess.Artifacts["insurance.pdf"])
	assert.Equal(t, 1, h.analyzer.Submissions())

	// Duplicate delivery is superseded after the transition.
	env2, payload2 := responseEvent(t, "Docs attached.", att)
	err := a.HandleProviderResponse(context.Background(), env2, payload2)
	require.Error(t, err)
	assert.True(t, core.IsStale(err))
	assert.Equal(t, 1, h.analyzer.Submissions())
}

func TestDocumentProcessedCompletesAndScreens(t *testing.T) {
	reqs := basicRequirements()
	reqs.Documents.Required = []core.DocumentType{core.DocumentInsuranceCertificate}
	reqs.Documents.InsuranceMinCoverage = 1_000_000

	h := newHarness(t, nil)
	h.seedCampaign(t, reqs)
	h.seedSession(t, core.StatusDocumentProcessing)
	a := NewScreeningAgent(h.deps)

	env, payload := envelope(t, core.EventDocumentProcessed, catalog.DocumentProcessed{
		CampaignID:   "camp-1",
		ProviderID:   "prov-1",
		JobID:        "job-1",
		DocumentType: core.DocumentInsuranceCertificate,
		DocumentRef:  "blob://in/insurance.pdf",
		Success:      true,
		Extracted:    map[string]any{"coverage_amount": float64(2_000_000)},
	})
	require.NoError(t, a.HandleDocumentProcessed(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusUnderReview, sess.Status)
	assert.Equal(t, []string{"insurance_certificate"}, sess.DocumentsUploaded)
	assert.Empty(t, sess.DocumentsPending)
	assert.Len(t, h.pub.byType(core.EventScreeningCompleted), 1)
}

func TestUnderinsuredDocumentBounces(t *testing.T) {
	reqs := basicRequirements()
	reqs.Documents.Required = []core.DocumentType{core.DocumentInsuranceCertificate}
	reqs.Documents.InsuranceMinCoverage = 1_000_000

	h := newHarness(t, nil)
	h.seedCampaign(t, reqs)
	h.seedSession(t, core.StatusDocumentProcessing)
	a := NewScreeningAgent(h.deps)

	env, payload := envelope(t, core.EventDocumentProcessed, catalog.DocumentProcessed{
		CampaignID:   "camp-1",
		ProviderID:   "prov-1",
		JobID:        "job-1",
		DocumentType: core.DocumentInsuranceCertificate,
		DocumentRef:  "blob://in/insurance.pdf",
		Success:      true,
		Extracted:    map[string]any{"coverage_amount": float64(250_000)},
	})
	require.NoError(t, a.HandleDocumentProcessed(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusWaitingDocument, sess.Status)

	replies := h.pub.byType(core.EventReplyToProviderRequested)
	require.Len(t, replies, 1)
	decoded, err := catalog.New().Validate(replies[0])
	require.NoError(t, err)
	reply := decoded.(*catalog.ReplyToProviderRequested)
	assert.Equal(t, core.ReplyInvalidDocument, reply.ReplyType)
	assert.Contains(t, reply.Details["problem"], "below required")
}

// putJob plants a correlation for an analysis still in flight, the way the
// bridge records one on submission.
func (h *harness) putJob(t *testing.T, jobID, docRef string, docType core.DocumentType) {
	t.Helper()
	require.NoError(t, h.store.PutJob(context.Background(), &core.JobCorrelation{
		Token:        bridge.Token("camp-1", "prov-1", docRef),
		JobID:        jobID,
		CampaignID:   "camp-1",
		ProviderID:   "prov-1",
		DocumentType: docType,
		DocumentRef:  docRef,
		SubmittedAt:  time.Now().UTC(),
	}))
}

func documentResult(t *testing.T, jobID string, docType core.DocumentType, ref string, extracted map[string]any) (catalog.Envelope, any) {
	return envelope(t, core.EventDocumentProcessed, catalog.DocumentProcessed{
		CampaignID:   "camp-1",
		ProviderID:   "prov-1",
		JobID:        jobID,
		DocumentType: docType,
		DocumentRef:  ref,
		Success:      true,
		Extracted:    extracted,
	})
}

func TestSecondDocumentResultWaitsForSiblings(t *testing.T) {
	reqs := basicRequirements()
	reqs.Documents.Required = []core.DocumentType{core.DocumentInsuranceCertificate, core.DocumentW9}
	reqs.Documents.InsuranceMinCoverage = 1_000_000

	h := newHarness(t, nil)
	h.seedCampaign(t, reqs)
	h.seedSession(t, core.StatusDocumentProcessing)
	a := NewScreeningAgent(h.deps)

	// The w9 analysis is still running when the insurance result lands.
	h.putJob(t, "job-w9", "blob://in/w9.pdf", core.DocumentW9)

	env, payload := documentResult(t, "job-ins", core.DocumentInsuranceCertificate, "blob://in/insurance.pdf",
		map[string]any{"coverage_amount": float64(2_000_000)})
	require.NoError(t, a.HandleDocumentProcessed(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusDocumentProcessing, sess.Status, "session holds until every job reports")
	assert.Equal(t, []string{"insurance_certificate"}, sess.DocumentsUploaded)
	assert.Equal(t, []string{"w9"}, sess.DocumentsPending)
	assert.Empty(t, h.pub.byType(core.EventScreeningCompleted))

	// The last job reports; only now does the session leave processing.
	_, err := h.store.ConsumeJob(context.Background(), "job-w9")
	require.NoError(t, err)
	env2, payload2 := documentResult(t, "job-w9", core.DocumentW9, "blob://in/w9.pdf", nil)
	require.NoError(t, a.HandleDocumentProcessed(context.Background(), env2, payload2))

	sess = h.session(t)
	assert.Equal(t, core.StatusUnderReview, sess.Status)
	assert.ElementsMatch(t, []string{"insurance_certificate", "w9"}, sess.DocumentsUploaded)
	assert.Len(t, h.pub.byType(core.EventScreeningCompleted), 1)
}

func TestInvalidDocumentHoldsWhileSiblingsRun(t *testing.T) {
	reqs := basicRequirements()
	reqs.Documents.Required = []core.DocumentType{core.DocumentInsuranceCertificate, core.DocumentW9}
	reqs.Documents.InsuranceMinCoverage = 1_000_000

	h := newHarness(t, nil)
	h.seedCampaign(t, reqs)
	h.seedSession(t, core.StatusDocumentProcessing)
	a := NewScreeningAgent(h.deps)

	h.putJob(t, "job-w9", "blob://in/w9.pdf", core.DocumentW9)

	env, payload := documentResult(t, "job-ins", core.DocumentInsuranceCertificate, "blob://in/insurance.pdf",
		map[string]any{"coverage_amount": float64(250_000)})
	require.NoError(t, a.HandleDocumentProcessed(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusDocumentProcessing, sess.Status, "the bounce waits for the sibling job")
	replies := h.pub.byType(core.EventReplyToProviderRequested)
	require.Len(t, replies, 1)

	// Redelivery republishes the reply under the same id, so the outbound
	// mail collapses onto one thread entry downstream.
	require.NoError(t, a.HandleDocumentProcessed(context.Background(), env, payload))
	replies = h.pub.byType(core.EventReplyToProviderRequested)
	require.Len(t, replies, 2)
	assert.Equal(t, replies[0].ID, replies[1].ID)

	// The w9 comes back clean; the insurance is still owed, so the session
	// lands in WAITING_DOCUMENT rather than review.
	_, err := h.store.ConsumeJob(context.Background(), "job-w9")
	require.NoError(t, err)
	env2, payload2 := documentResult(t, "job-w9", core.DocumentW9, "blob://in/w9.pdf", nil)
	require.NoError(t, a.HandleDocumentProcessed(context.Background(), env2, payload2))

	sess = h.session(t)
	assert.Equal(t, core.StatusWaitingDocument, sess.Status)
	assert.Equal(t, []string{"insurance_certificate"}, sess.DocumentsPending)
	assert.Empty(t, h.pub.byType(core.EventScreeningCompleted))
}

func TestScreeningVerdictAppliedOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusUnderReview)
	a := NewNotifyAgent(h.deps)

	env, payload := envelope(t, core.EventScreeningCompleted, catalog.ScreeningCompleted{
		CampaignID: "camp-1",
		ProviderID: "prov-1",
		Decision:   core.DecisionQualified,
	})
	require.NoError(t, a.HandleScreeningCompleted(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusQualified, sess.Status)

	msgs := h.pub.byType(core.EventSendMessageRequested)
	require.Len(t, msgs, 1)
	decoded, err := catalog.New().Validate(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, core.MessageQualifiedConfirmation, decoded.(*catalog.SendMessageRequested).MessageType)

	// The last verdict wrapped the campaign up, so the duplicate is absorbed
	// at the campaign gate and requests no second message.
	campaign, err := h.store.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, core.CampaignCompleted, campaign.Status)
	require.NoError(t, a.HandleScreeningCompleted(context.Background(), env, payload))
	assert.Len(t, h.pub.byType(core.EventSendMessageRequested), 1)
}

func TestCampaignStaysRunningWithActiveSessions(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusUnderReview)

	other := core.NewSession(core.SessionKey{CampaignID: "camp-1", ProviderID: "prov-2"}, "sam@provider.example", "austin")
	other.Status = core.StatusWaitingResponse
	other.ExpectedNextEvent = core.ExpectedEvent(core.StatusWaitingResponse)
	require.NoError(t, h.store.CreateSession(context.Background(), other))

	a := NewNotifyAgent(h.deps)
	env, payload := envelope(t, core.EventScreeningCompleted, catalog.ScreeningCompleted{
		CampaignID: "camp-1",
		ProviderID: "prov-1",
		Decision:   core.DecisionQualified,
	})
	require.NoError(t, a.HandleScreeningCompleted(context.Background(), env, payload))

	campaign, err := h.store.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, core.CampaignRunning, campaign.Status, "prov-2 is still in flight")

	// With the campaign still running, the duplicate hits the stale guard.
	err = a.HandleScreeningCompleted(context.Background(), env, payload)
	require.Error(t, err)
	assert.True(t, core.IsStale(err))
	assert.Len(t, h.pub.byType(core.EventSendMessageRequested), 1)
}

func TestOutcomeMailStillSentAfterCompletion(t *testing.T) {
	h := newHarness(t, nil)
	c := h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusQualified)

	c.Status = core.CampaignCompleted
	require.NoError(t, h.store.UpdateCampaign(context.Background(), c))

	a := NewCommunicationAgent(h.deps)
	env, payload := envelope(t, core.EventSendMessageRequested, catalog.SendMessageRequested{
		CampaignID:  "camp-1",
		ProviderID:  "prov-1",
		MessageType: core.MessageQualifiedConfirmation,
	})
	require.NoError(t, a.HandleSendMessage(context.Background(), env, payload))
	require.Len(t, h.mailer.Sent(), 1)
	assert.Equal(t, core.MessageQualifiedConfirmation, h.mailer.Sent()[0].MessageType)
}

func TestEscalationSkipsProviderMail(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusUnderReview)
	a := NewNotifyAgent(h.deps)

	env, payload := envelope(t, core.EventScreeningCompleted, catalog.ScreeningCompleted{
		CampaignID: "camp-1",
		ProviderID: "prov-1",
		Decision:   core.DecisionEscalated,
		Notes:      "unusual certification set",
	})
	require.NoError(t, a.HandleScreeningCompleted(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusEscalated, sess.Status)
	assert.Equal(t, "unusual certification set", sess.ScreeningNotes)
	assert.Empty(t, h.pub.byType(core.EventSendMessageRequested))
}

func TestStoppedCampaignAbsorbsEvents(t *testing.T) {
	h := newHarness(t, nil)
	c := h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusWaitingResponse)

	c.Status = core.CampaignStopped
	require.NoError(t, h.store.UpdateCampaign(context.Background(), c))

	a := NewScreeningAgent(h.deps)
	env, payload := responseEvent(t, "Count me in!")
	require.NoError(t, a.HandleProviderResponse(context.Background(), env, payload))

	sess := h.session(t)
	assert.Equal(t, core.StatusWaitingResponse, sess.Status, "stopped campaigns freeze their sessions")
	assert.Empty(t, h.pub.envs)
}

func TestFollowUpSendsAndRefreshesClock(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	seeded := h.seedSession(t, core.StatusWaitingResponse)
	a := NewCommunicationAgent(h.deps)

	env, payload := envelope(t, core.EventFollowUpTriggered, catalog.FollowUpTriggered{
		CampaignID:     "camp-1",
		ProviderID:     "prov-1",
		Reason:         core.ReasonNoResponse,
		FollowUpNumber: 1,
	})
	require.NoError(t, a.HandleFollowUp(context.Background(), env, payload))

	require.Len(t, h.mailer.Sent(), 1)
	assert.Equal(t, core.MessageFollowUp, h.mailer.Sent()[0].MessageType)

	sess := h.session(t)
	assert.Equal(t, core.StatusWaitingResponse, sess.Status)
	assert.Equal(t, seeded.Version+1, sess.Version)
	assert.True(t, sess.LastActivityAt.After(seeded.LastActivityAt))
}

func TestRedeliveredFollowUpSendsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	seeded := h.seedSession(t, core.StatusWaitingResponse)
	a := NewCommunicationAgent(h.deps)

	env, payload := envelope(t, core.EventFollowUpTriggered, catalog.FollowUpTriggered{
		CampaignID:     "camp-1",
		ProviderID:     "prov-1",
		Reason:         core.ReasonNoResponse,
		FollowUpNumber: 1,
	})
	require.NoError(t, a.HandleFollowUp(context.Background(), env, payload))
	require.NoError(t, a.HandleFollowUp(context.Background(), env, payload))

	require.Len(t, h.mailer.Sent(), 1, "redelivery must not nudge the provider twice")

	thread, err := h.store.ListThread(context.Background(), seeded.ThreadID)
	require.NoError(t, err)
	assert.Len(t, thread, 1)

	// The activity clock moved once, not twice.
	sess := h.session(t)
	assert.Equal(t, seeded.Version+1, sess.Version)
}

func TestRedeliveredReplySendsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	seeded := h.seedSession(t, core.StatusWaitingDocument)
	a := NewCommunicationAgent(h.deps)

	env, payload := envelope(t, core.EventReplyToProviderRequested, catalog.ReplyToProviderRequested{
		CampaignID: "camp-1",
		ProviderID: "prov-1",
		ReplyType:  core.ReplyMissingDocument,
		Details:    map[string]any{"documents": []any{"insurance_certificate"}},
	})
	require.NoError(t, a.HandleReply(context.Background(), env, payload))
	require.NoError(t, a.HandleReply(context.Background(), env, payload))

	require.Len(t, h.mailer.Sent(), 1)
	thread, err := h.store.ListThread(context.Background(), seeded.ThreadID)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestRedeliveredOutcomeNoticeSendsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusRejected)
	a := NewCommunicationAgent(h.deps)

	env, payload := envelope(t, core.EventSendMessageRequested, catalog.SendMessageRequested{
		CampaignID:  "camp-1",
		ProviderID:  "prov-1",
		MessageType: core.MessageRejection,
	})
	require.NoError(t, a.HandleSendMessage(context.Background(), env, payload))
	require.NoError(t, a.HandleSendMessage(context.Background(), env, payload))
	require.Len(t, h.mailer.Sent(), 1)
}

func TestFollowUpAfterResponseIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusDocumentProcessing)
	a := NewCommunicationAgent(h.deps)

	env, payload := envelope(t, core.EventFollowUpTriggered, catalog.FollowUpTriggered{
		CampaignID:     "camp-1",
		ProviderID:     "prov-1",
		Reason:         core.ReasonNoResponse,
		FollowUpNumber: 1,
	})
	require.NoError(t, a.HandleFollowUp(context.Background(), env, payload))
	assert.Empty(t, h.mailer.Sent())
}

func TestReasonedDraftIsUsed(t *testing.T) {
	mock := reasoning.NewMock(`{"subject":"Join us, Pat","body":"Custom drafted body"}`)
	h := newHarness(t, mock)
	h.seedCampaign(t, basicRequirements())
	h.seedSession(t, core.StatusInvited)
	a := NewCommunicationAgent(h.deps)

	env, payload := envelope(t, core.EventSendMessageRequested, catalog.SendMessageRequested{
		CampaignID:  "camp-1",
		ProviderID:  "prov-1",
		MessageType: core.MessageInitialOutreach,
	})
	require.NoError(t, a.HandleSendMessage(context.Background(), env, payload))

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Join us, Pat", sent[0].Subject)
	assert.Equal(t, "Custom drafted body", sent[0].Body)
}

func TestClassifierFallbackKeywords(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"I'm not interested, please remove me", "negative"},
		{"Yes, sounds good!", "positive"},
		{"Who is this?", "ambiguous"},
	}
	for _, tt := range tests {
		got := classifyFallback(tt.body)
		assert.Equal(t, tt.want, got.Sentiment, "body %q", tt.body)
	}
	assert.True(t, classifyFallback("please see attached insurance").MentionsAttachments)
}
