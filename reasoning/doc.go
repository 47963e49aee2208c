// Package reasoning wraps large language model calls behind a small Service
// interface that produces typed JSON decisions: message drafts, response
// classifications, document assessments and screening verdicts.
//
// Handlers never depend on a concrete provider. The anthropic and openai
// subpackages adapt the official SDKs; Disabled turns every call into
// ErrDisabled so the deterministic fallbacks take over; Mock scripts answers
// for tests.
package reasoning
