package core

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError indicates a missing prerequisite record. It is fatal unless
// the handler's contract is "create on first sight".
type NotFoundError struct {
	Kind       string // "session", "campaign", "job", ...
	CampaignID string
	ProviderID string
}

func (e *NotFoundError) Error() string {
	if e.ProviderID != "" {
		return fmt.Sprintf("%s not found for provider %q in campaign %q", e.Kind, e.ProviderID, e.CampaignID)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.CampaignID)
}

// StaleVersionError indicates a benign race: the session advanced before this
// attempt could apply, so the attempt is superseded. Dispatchers treat it as
// success, never as a failure.
type StaleVersionError struct {
	Key             SessionKey
	ExpectedStatus  ProviderStatus
	ActualStatus    ProviderStatus
	ExpectedVersion int
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("session %s superseded: expected status %s (version %d), found %s",
		e.Key, e.ExpectedStatus, e.ExpectedVersion, e.ActualStatus)
}

// InvalidTransitionError indicates an illegal status change was attempted.
// This is a programming or configuration error and is never retried.
type InvalidTransitionError struct {
	From ProviderStatus
	To   ProviderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s (allowed: %v)",
		e.From, e.To, AllowedSuccessors(e.From))
}

// ValidationError indicates a malformed event payload. Fatal, never retried;
// a rejected event is never applied.
type ValidationError struct {
	EventType EventType
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.EventType != "" {
		return fmt.Sprintf("invalid %s payload: %s", e.EventType, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// TransientError wraps an infrastructure failure (timeout, throttling) that
// is safe to redeliver.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// ExternalServiceError wraps a failure from an external collaborator
// (reasoning service, document analysis, mail). Retryable up to a limit.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service error: %v", e.Service, e.Err)
}
func (e *ExternalServiceError) Unwrap() error { return e.Err }

// IsStale reports whether err is (or wraps) a StaleVersionError.
func IsStale(err error) bool {
	var sv *StaleVersionError
	return errors.As(err, &sv)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Fatal reports whether err must not be redelivered: validation failures,
// illegal transitions and missing prerequisites cannot succeed on retry.
// Unknown errors are not fatal; they get bounded retries and then the
// dead-letter path.
func Fatal(err error) bool {
	var (
		ve *ValidationError
		it *InvalidTransitionError
		nf *NotFoundError
	)
	return errors.As(err, &ve) || errors.As(err, &it) || errors.As(err, &nf)
}

// Retryable reports whether err is worth redelivering.
func Retryable(err error) bool {
	if err == nil || Fatal(err) || IsStale(err) {
		return false
	}
	var (
		te *TransientError
		ee *ExternalServiceError
	)
	if errors.As(err, &te) || errors.As(err, &ee) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Unknown errors default to retryable; bounded attempts keep this safe.
	return true
}
