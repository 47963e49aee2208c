package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hivelane/outreach/bridge"
	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/reasoning"
)

// ScreeningSource is the envelope source for screening-agent events.
const ScreeningSource = "outreach.screening"

// ScreeningAgent interprets provider replies and document analysis results
// and moves sessions toward a screening verdict.
type ScreeningAgent struct {
	deps Deps
}

// NewScreeningAgent builds the agent.
func NewScreeningAgent(deps Deps) *ScreeningAgent {
	deps.defaults()
	return &ScreeningAgent{deps: deps}
}

// HandleProviderResponse processes an inbound reply: logs it, classifies it
// and advances the session down the matching branch.
func (a *ScreeningAgent) HandleProviderResponse(ctx context.Context, env catalog.Envelope, payload any) error {
	p := payload.(*catalog.ProviderResponseReceived)
	log := a.deps.Logger

	campaign, err := a.deps.Store.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		return err
	}
	if !campaign.Active() {
		log.Info("campaign inactive, dropping response",
			"campaign_id", p.CampaignID, "provider_id", p.ProviderID)
		return nil
	}

	key := core.SessionKey{CampaignID: p.CampaignID, ProviderID: p.ProviderID}
	sess, err := a.deps.Store.GetSession(ctx, key)
	if err != nil {
		return err
	}
	if sess.ExpectedNextEvent != core.EventProviderResponseReceived {
		// Duplicate delivery after the session moved on, or a late reply in
		// a stage where replies carry no workflow meaning.
		return &core.StaleVersionError{
			Key:             key,
			ExpectedStatus:  sess.Status,
			ActualStatus:    sess.Status,
			ExpectedVersion: sess.Version,
		}
	}

	threadID := sess.ThreadID
	if threadID == "" {
		threadID = core.ThreadID(campaign.ID, sess.Market, sess.ProviderID)
	}
	if _, err := a.deps.Store.AppendMessage(ctx, &core.ThreadMessage{
		ThreadID:    threadID,
		MessageID:   p.MessageID,
		Direction:   core.DirectionInbound,
		Subject:     p.Subject,
		Body:        p.Body,
		Attachments: p.Attachments,
		SentAt:      p.ReceivedAt,
	}); err != nil {
		return err
	}

	classification := a.classify(ctx, campaign, sess, p.Body)
	update := core.SessionUpdate{
		EquipmentConfirmed: classification.EquipmentConfirmed,
		EquipmentMissing:   classification.EquipmentMissing,
		TravelConfirmed:    classification.TravelConfirmed,
		Certifications:     classification.Certifications,
	}

	switch {
	case classification.Sentiment == "negative":
		return a.reject(ctx, env, sess, update, "provider declined")

	case len(p.Attachments) > 0:
		return a.startDocumentAnalysis(ctx, sess, p.Attachments, update)

	case classification.Sentiment == "positive":
		return a.advancePositive(ctx, env, campaign, sess, update)

	default:
		return a.askClarification(ctx, env, sess, update)
	}
}

func (a *ScreeningAgent) reject(ctx context.Context, env catalog.Envelope, sess *core.Session, update core.SessionUpdate, note string) error {
	update.ScreeningNotes = &note
	if _, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusRejected, update)); err != nil {
		return err
	}
	if err := completeCampaignIfDone(ctx, a.deps, sess.CampaignID); err != nil {
		return err
	}
	msg, err := catalog.NewEnvelope(core.EventSendMessageRequested, ScreeningSource, env.Trace.Child(), catalog.SendMessageRequested{
		CampaignID:  sess.CampaignID,
		ProviderID:  sess.ProviderID,
		MessageType: core.MessageRejection,
	})
	if err != nil {
		return err
	}
	return a.deps.Publisher.Publish(ctx, msg)
}

// startDocumentAnalysis submits every attachment and parks the session in
// DOCUMENT_PROCESSING. Duplicate submissions collapse onto the in-flight
// jobs via the bridge's idempotency token.
func (a *ScreeningAgent) startDocumentAnalysis(ctx context.Context, sess *core.Session, attachments []core.Attachment, update core.SessionUpdate) error {
	artifacts := make(map[string]string, len(attachments))
	for _, att := range attachments {
		docType := guessDocumentType(att.Filename)
		if _, err := a.deps.Bridge.Submit(ctx, bridge.SubmitRequest{
			CampaignID:   sess.CampaignID,
			ProviderID:   sess.ProviderID,
			DocumentType: docType,
			DocumentRef:  att.Ref,
		}); err != nil {
			return err
		}
		artifacts[att.Filename] = att.Ref
	}
	update.Artifacts = artifacts
	_, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusDocumentProcessing, update))
	return err
}

// advancePositive handles an interested reply without attachments: either
// ask for the required documents or go straight to screening when the
// campaign requires none.
func (a *ScreeningAgent) advancePositive(ctx context.Context, env catalog.Envelope, campaign *core.Campaign, sess *core.Session, update core.SessionUpdate) error {
	required := campaign.Requirements.Documents.Required
	if len(required) > 0 {
		pending := make([]string, 0, len(required))
		for _, d := range required {
			pending = append(pending, string(d))
		}
		update.DocumentsPending = pending
		if _, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusWaitingDocument, update)); err != nil {
			return err
		}
		reply, err := catalog.NewEnvelope(core.EventReplyToProviderRequested, ScreeningSource, env.Trace.Child(), catalog.ReplyToProviderRequested{
			CampaignID: sess.CampaignID,
			ProviderID: sess.ProviderID,
			ReplyType:  core.ReplyMissingDocument,
			Details:    map[string]any{"documents": pending},
		})
		if err != nil {
			return err
		}
		return a.deps.Publisher.Publish(ctx, reply)
	}

	if !core.CanTransition(sess.Status, core.StatusUnderReview) {
		// No route to review from here without documents; hand to a human.
		note := "interested but no automated path to review"
		if _, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusEscalated, core.SessionUpdate{
			ScreeningNotes: &note,
		})); err != nil {
			return err
		}
		return completeCampaignIfDone(ctx, a.deps, sess.CampaignID)
	}
	updated, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusUnderReview, update))
	if err != nil {
		return err
	}
	return a.publishVerdict(ctx, env, campaign, updated)
}

func (a *ScreeningAgent) askClarification(ctx context.Context, env catalog.Envelope, sess *core.Session, update core.SessionUpdate) error {
	if _, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusWaitingDocument, update)); err != nil {
		return err
	}
	reply, err := catalog.NewEnvelope(core.EventReplyToProviderRequested, ScreeningSource, env.Trace.Child(), catalog.ReplyToProviderRequested{
		CampaignID: sess.CampaignID,
		ProviderID: sess.ProviderID,
		ReplyType:  core.ReplyClarificationNeeded,
	})
	if err != nil {
		return err
	}
	return a.deps.Publisher.Publish(ctx, reply)
}

// HandleDocumentProcessed folds an analysis result back into the session.
// While sibling analysis jobs for the same session are still running the
// session stays in DOCUMENT_PROCESSING so their results are not discarded as
// stale. Once the last job has reported: invalid or failed documents bounce
// the provider back to WAITING_DOCUMENT with an explanation, a complete valid
// set moves the session to review and publishes the screening verdict.
func (a *ScreeningAgent) HandleDocumentProcessed(ctx context.Context, env catalog.Envelope, payload any) error {
	p := payload.(*catalog.DocumentProcessed)

	campaign, err := a.deps.Store.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		return err
	}
	if !campaign.Active() {
		a.deps.Logger.Info("campaign inactive, dropping document result",
			"campaign_id", p.CampaignID, "provider_id", p.ProviderID)
		return nil
	}

	key := core.SessionKey{CampaignID: p.CampaignID, ProviderID: p.ProviderID}
	sess, err := a.deps.Store.GetSession(ctx, key)
	if err != nil {
		return err
	}
	if sess.ExpectedNextEvent != core.EventDocumentProcessed {
		return &core.StaleVersionError{
			Key:             key,
			ExpectedStatus:  sess.Status,
			ActualStatus:    sess.Status,
			ExpectedVersion: sess.Version,
		}
	}

	// The bridge consumed this result's correlation before publishing it, so
	// whatever is left in the job store is still being analyzed.
	inFlight, err := a.deps.Store.ListJobs(ctx, p.CampaignID, p.ProviderID)
	if err != nil {
		return err
	}

	if !p.Success {
		return a.bounceDocument(ctx, env, sess, p, p.FailureReason, len(inFlight) > 0)
	}
	if problem := assessDocument(campaign, p); problem != "" {
		return a.bounceDocument(ctx, env, sess, p, problem, len(inFlight) > 0)
	}

	uploaded := appendUnique(sess.DocumentsUploaded, string(p.DocumentType))
	pending := subtract(requiredDocuments(campaign), uploaded)
	update := core.SessionUpdate{
		DocumentsUploaded: uploaded,
		DocumentsPending:  pending,
		Extracted:         p.Extracted,
	}

	if len(inFlight) > 0 {
		// Record the accepted document and hold for the remaining results.
		_, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusDocumentProcessing, update))
		return err
	}

	if len(pending) > 0 {
		if _, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusWaitingDocument, update)); err != nil {
			return err
		}
		reply, err := catalog.NewEnvelope(core.EventReplyToProviderRequested, ScreeningSource, env.Trace.Child(), catalog.ReplyToProviderRequested{
			CampaignID: sess.CampaignID,
			ProviderID: sess.ProviderID,
			ReplyType:  core.ReplyMissingDocument,
			Details:    map[string]any{"documents": pending},
		})
		if err != nil {
			return err
		}
		return a.deps.Publisher.Publish(ctx, reply)
	}

	updated, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, core.StatusUnderReview, update))
	if err != nil {
		return err
	}
	return a.publishVerdict(ctx, env, campaign, updated)
}

func (a *ScreeningAgent) bounceDocument(ctx context.Context, env catalog.Envelope, sess *core.Session, p *catalog.DocumentProcessed, problem string, jobsInFlight bool) error {
	target := core.StatusWaitingDocument
	if jobsInFlight {
		// Sibling analyses are still running; hold until they report. The
		// bounced document stays pending, so the last result routes the
		// session back to WAITING_DOCUMENT if the provider must resend it.
		target = core.StatusDocumentProcessing
	}
	if _, err := a.deps.Engine.Apply(ctx, transition(sess, sess.Status, target, core.SessionUpdate{})); err != nil {
		return err
	}
	reply, err := catalog.NewEnvelope(core.EventReplyToProviderRequested, ScreeningSource, env.Trace.Child(), catalog.ReplyToProviderRequested{
		CampaignID: sess.CampaignID,
		ProviderID: sess.ProviderID,
		ReplyType:  core.ReplyInvalidDocument,
		Details: map[string]any{
			"document_type": string(p.DocumentType),
			"problem":       problem,
		},
	})
	if err != nil {
		return err
	}
	// Key the reply to the result that caused it: if this handler runs again
	// for the same result, the outbound mail collapses onto one thread entry.
	reply.ID = env.ID + ":invalid-document"
	return a.deps.Publisher.Publish(ctx, reply)
}

// publishVerdict computes and publishes the screening decision for a session
// now sitting in UNDER_REVIEW.
func (a *ScreeningAgent) publishVerdict(ctx context.Context, env catalog.Envelope, campaign *core.Campaign, sess *core.Session) error {
	verdict := a.screen(ctx, campaign, sess)
	out, err := catalog.NewEnvelope(core.EventScreeningCompleted, ScreeningSource, env.Trace.Child(), catalog.ScreeningCompleted{
		CampaignID:        sess.CampaignID,
		ProviderID:        sess.ProviderID,
		Decision:          core.ScreeningDecision(verdict.Decision),
		Reasons:           verdict.Reasons,
		ConfidenceScore:   verdict.Confidence,
		ArtifactsReviewed: artifactRefs(sess),
		Notes:             verdict.Notes,
	})
	if err != nil {
		return err
	}
	return a.deps.Publisher.Publish(ctx, out)
}

// artifactRefs lists the session's document storage refs in a stable order.
func artifactRefs(sess *core.Session) []string {
	if len(sess.Artifacts) == 0 {
		return nil
	}
	out := make([]string, 0, len(sess.Artifacts))
	for _, ref := range sess.Artifacts {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// classify asks the reasoning service to read the reply, falling back to the
// keyword heuristic.
func (a *ScreeningAgent) classify(ctx context.Context, campaign *core.Campaign, sess *core.Session, body string) reasoning.ResponseClassification {
	reqJSON, _ := json.Marshal(campaign.Requirements)

	var out reasoning.ResponseClassification
	_, err := a.deps.Reasoner.Decide(ctx, reasoning.Request{
		System: "You read replies from service providers being recruited for a marketplace. " +
			`Answer with JSON: {"sentiment": "positive|negative|ambiguous", "equipment_confirmed": [], ` +
			`"equipment_missing": [], "travel_confirmed": null, "certifications": [], ` +
			`"mentions_attachments": false, "summary": "..."}.`,
		Prompt: fmt.Sprintf("Requirements: %s\n\nReply from %s:\n%s", reqJSON, sess.Name, body),
	}, &out)
	if err != nil || out.Sentiment == "" {
		if err != nil && !errors.Is(err, reasoning.ErrDisabled) {
			a.deps.Logger.Warn("classification failed, using keyword fallback",
				"campaign_id", sess.CampaignID, "provider_id", sess.ProviderID, "error", err)
		}
		return classifyFallback(body)
	}
	return out
}

// screen produces the verdict, preferring the reasoning service and falling
// back to the requirement rules. An inconclusive rule check escalates rather
// than guesses.
func (a *ScreeningAgent) screen(ctx context.Context, campaign *core.Campaign, sess *core.Session) reasoning.ScreeningVerdict {
	sessJSON, _ := json.Marshal(sess)
	reqJSON, _ := json.Marshal(campaign.Requirements)

	var out reasoning.ScreeningVerdict
	_, err := a.deps.Reasoner.Decide(ctx, reasoning.Request{
		System: "You screen marketplace provider applications against campaign requirements. " +
			`Answer with JSON: {"decision": "QUALIFIED|REJECTED|ESCALATED|UNDER_REVIEW", "reasons": [], "confidence": 0.0, "notes": "..."}.`,
		Prompt: fmt.Sprintf("Requirements: %s\n\nApplication state: %s", reqJSON, sessJSON),
	}, &out)
	if err == nil && validDecision(out.Decision) {
		return out
	}
	if err != nil && !errors.Is(err, reasoning.ErrDisabled) {
		a.deps.Logger.Warn("verdict generation failed, using rules",
			"campaign_id", sess.CampaignID, "provider_id", sess.ProviderID, "error", err)
	}
	return screenByRules(campaign, sess)
}

func validDecision(d string) bool {
	switch core.ScreeningDecision(d) {
	case core.DecisionQualified, core.DecisionRejected, core.DecisionEscalated, core.DecisionUnderReview:
		return true
	}
	return false
}

// screenByRules checks the requirements snapshot mechanically.
func screenByRules(campaign *core.Campaign, sess *core.Session) reasoning.ScreeningVerdict {
	var reasons []string
	inconclusive := false

	confirmed := toSet(sess.EquipmentConfirmed)
	for _, item := range campaign.Requirements.Equipment.Required {
		if confirmed[item] {
			continue
		}
		if toSet(sess.EquipmentMissing)[item] {
			reasons = append(reasons, fmt.Sprintf("missing required equipment: %s", item))
		} else {
			inconclusive = true
		}
	}

	if campaign.Requirements.TravelRequired {
		switch {
		case sess.TravelConfirmed == nil:
			inconclusive = true
		case !*sess.TravelConfirmed:
			reasons = append(reasons, "travel required but declined")
		}
	}

	held := toSet(sess.Certifications)
	for _, cert := range campaign.Requirements.Certifications.Required {
		if !held[cert] {
			reasons = append(reasons, fmt.Sprintf("missing required certification: %s", cert))
		}
	}

	switch {
	case len(reasons) > 0:
		return reasoning.ScreeningVerdict{Decision: string(core.DecisionRejected), Reasons: reasons}
	case inconclusive:
		return reasoning.ScreeningVerdict{
			Decision: string(core.DecisionEscalated),
			Notes:    "requirements could not be verified automatically",
		}
	default:
		return reasoning.ScreeningVerdict{Decision: string(core.DecisionQualified)}
	}
}

// assessDocument checks extracted fields against campaign rules. Empty
// string means the document passed.
func assessDocument(campaign *core.Campaign, p *catalog.DocumentProcessed) string {
	if p.DocumentType == core.DocumentInsuranceCertificate {
		if minCoverage := campaign.Requirements.Documents.InsuranceMinCoverage; minCoverage > 0 {
			coverage, ok := numberField(p.Extracted, "coverage_amount")
			if !ok {
				return "coverage amount could not be read"
			}
			if int64(coverage) < minCoverage {
				return fmt.Sprintf("coverage %d below required %d", int64(coverage), minCoverage)
			}
		}
	}
	if raw, ok := p.Extracted["expiry_date"]; ok {
		if s, ok := raw.(string); ok {
			if expiry, err := time.Parse("2006-01-02", s); err == nil && expiry.Before(time.Now()) {
				return fmt.Sprintf("document expired on %s", s)
			}
		}
	}
	return ""
}

func numberField(m map[string]any, key string) (float64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func guessDocumentType(filename string) core.DocumentType {
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "insurance"), strings.Contains(lower, "coi"):
		return core.DocumentInsuranceCertificate
	case strings.Contains(lower, "license"), strings.Contains(lower, "licence"):
		return core.DocumentLicense
	case strings.Contains(lower, "w9"), strings.Contains(lower, "w-9"):
		return core.DocumentW9
	case strings.Contains(lower, "cert"):
		return core.DocumentCertification
	default:
		return core.DocumentOther
	}
}

func requiredDocuments(campaign *core.Campaign) []string {
	out := make([]string, 0, len(campaign.Requirements.Documents.Required))
	for _, d := range campaign.Requirements.Documents.Required {
		out = append(out, string(d))
	}
	return out
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(append([]string(nil), list...), item)
}

func subtract(all, remove []string) []string {
	removed := toSet(remove)
	var out []string
	for _, item := range all {
		if !removed[item] {
			out = append(out, item)
		}
	}
	return out
}

func toSet(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, item := range list {
		out[item] = true
	}
	return out
}
