package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	key := SessionKey{CampaignID: "c", ProviderID: "p"}
	tests := []struct {
		name      string
		err       error
		fatal     bool
		retryable bool
		stale     bool
	}{
		{
			name:  "validation is fatal",
			err:   &ValidationError{EventType: EventProviderResponseReceived, Reason: "missing body"},
			fatal: true,
		},
		{
			name:  "invalid transition is fatal",
			err:   &InvalidTransitionError{From: StatusQualified, To: StatusInvited},
			fatal: true,
		},
		{
			name:  "not found is fatal",
			err:   &NotFoundError{Kind: "session", CampaignID: "c", ProviderID: "p"},
			fatal: true,
		},
		{
			name:  "stale version is benign",
			err:   &StaleVersionError{Key: key, ExpectedStatus: StatusWaitingResponse, ActualStatus: StatusRejected, ExpectedVersion: 3},
			stale: true,
		},
		{
			name:      "transient is retryable",
			err:       &TransientError{Op: "session write", Err: errors.New("throttled")},
			retryable: true,
		},
		{
			name:      "external service is retryable",
			err:       &ExternalServiceError{Service: "reasoning", Err: errors.New("overloaded")},
			retryable: true,
		},
		{
			name:      "deadline exceeded is retryable",
			err:       fmt.Errorf("mail send: %w", context.DeadlineExceeded),
			retryable: true,
		},
		{
			name:      "unknown errors default to retryable",
			err:       errors.New("something odd"),
			retryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, Fatal(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
			assert.Equal(t, tt.stale, IsStale(tt.err))
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := &StaleVersionError{Key: SessionKey{CampaignID: "c", ProviderID: "p"}, ExpectedStatus: StatusInvited, ExpectedVersion: 1}
	wrapped := fmt.Errorf("apply transition: %w", inner)
	assert.True(t, IsStale(wrapped))
	assert.False(t, Retryable(wrapped))

	nf := fmt.Errorf("lookup: %w", &NotFoundError{Kind: "campaign", CampaignID: "c"})
	assert.True(t, IsNotFound(nf))
	assert.True(t, Fatal(nf))
}
