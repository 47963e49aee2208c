package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/store"
)

func newEngine(t *testing.T) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return New(mem), mem
}

func seedSession(t *testing.T, mem *store.Memory, status core.ProviderStatus) *core.Session {
	t.Helper()
	sess := core.NewSession(core.SessionKey{CampaignID: "camp-1", ProviderID: "prov-1"}, "p@example.com", "austin")
	sess.Status = status
	sess.ExpectedNextEvent = core.ExpectedEvent(status)
	require.NoError(t, mem.CreateSession(context.Background(), sess))
	return sess
}

func TestApplyAdvancesStatusAndVersion(t *testing.T) {
	e, mem := newEngine(t)
	sess := seedSession(t, mem, core.StatusInvited)

	got, err := e.Apply(context.Background(), Transition{
		Key:  sess.Key(),
		From: core.StatusInvited,
		To:   core.StatusWaitingResponse,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaitingResponse, got.Status)
	assert.Equal(t, core.EventProviderResponseReceived, got.ExpectedNextEvent)
	assert.Equal(t, 2, got.Version)

	stored, err := mem.GetSession(context.Background(), sess.Key())
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaitingResponse, stored.Status)
}

func TestApplyRejectsIllegalTransition(t *testing.T) {
	e, mem := newEngine(t)
	sess := seedSession(t, mem, core.StatusInvited)

	_, err := e.Apply(context.Background(), Transition{
		Key:  sess.Key(),
		From: core.StatusInvited,
		To:   core.StatusQualified,
	})
	require.Error(t, err)
	assert.True(t, core.Fatal(err))

	stored, err := mem.GetSession(context.Background(), sess.Key())
	require.NoError(t, err)
	assert.Equal(t, core.StatusInvited, stored.Status)
	assert.Equal(t, 1, stored.Version)
}

func TestApplyStaleWhenStatusMoved(t *testing.T) {
	e, mem := newEngine(t)
	sess := seedSession(t, mem, core.StatusWaitingResponse)

	// First applier wins.
	_, err := e.Apply(context.Background(), Transition{
		Key:  sess.Key(),
		From: core.StatusWaitingResponse,
		To:   core.StatusRejected,
	})
	require.NoError(t, err)

	// The duplicate delivery observes the old status and is superseded.
	_, err = e.Apply(context.Background(), Transition{
		Key:  sess.Key(),
		From: core.StatusWaitingResponse,
		To:   core.StatusUnderReview,
	})
	require.Error(t, err)
	assert.True(t, core.IsStale(err))
	assert.False(t, core.Retryable(err))
}

func TestApplyNotFound(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Apply(context.Background(), Transition{
		Key:  core.SessionKey{CampaignID: "camp-1", ProviderID: "ghost"},
		From: core.StatusInvited,
		To:   core.StatusWaitingResponse,
	})
	assert.True(t, core.IsNotFound(err))
}

func TestApplyRefreshKeepsStatus(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	e := New(mem, func(o *Options) { o.Now = func() time.Time { return fixed } })
	sess := seedSession(t, mem, core.StatusWaitingResponse)

	got, err := e.Apply(context.Background(), Transition{
		Key:  sess.Key(),
		From: core.StatusWaitingResponse,
		To:   core.StatusWaitingResponse,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaitingResponse, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, fixed, got.LastActivityAt)
}

func TestApplyMergesUpdate(t *testing.T) {
	e, mem := newEngine(t)
	sess := seedSession(t, mem, core.StatusWaitingResponse)

	notes := "docs attached"
	got, err := e.Apply(context.Background(), Transition{
		Key:  sess.Key(),
		From: core.StatusWaitingResponse,
		To:   core.StatusDocumentProcessing,
		Update: core.SessionUpdate{
			Artifacts:      map[string]string{"insurance_certificate": "blob://a"},
			ScreeningNotes: &notes,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "blob://a", got.Artifacts["insurance_certificate"])
	assert.Equal(t, "docs attached", got.ScreeningNotes)
}

func TestApplyExpectedEventOverride(t *testing.T) {
	e, mem := newEngine(t)
	sess := seedSession(t, mem, core.StatusWaitingDocument)

	override := core.EventDocumentProcessed
	got, err := e.Apply(context.Background(), Transition{
		Key:               sess.Key(),
		From:              core.StatusWaitingDocument,
		To:                core.StatusDocumentProcessing,
		ExpectedNextEvent: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, core.EventDocumentProcessed, got.ExpectedNextEvent)
}
