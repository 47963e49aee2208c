package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDisabled is returned by the Disabled service. Callers fall back to
// their deterministic behavior when they see it.
var ErrDisabled = errors.New("reasoning disabled")

// Request is one decision prompt.
type Request struct {
	// System frames the model's role for this decision.
	System string
	// Prompt is the decision input, usually including serialized domain
	// state.
	Prompt string
	// MaxTokens caps the response length; zero uses the provider default.
	MaxTokens int64
	// Temperature overrides the provider default when non-nil.
	Temperature *float64
}

// Meta describes how a decision was produced.
type Meta struct {
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Service produces structured decisions. Decide unmarshals the model's JSON
// answer into out; a malformed answer is an error, never a half-filled out.
type Service interface {
	Decide(ctx context.Context, req Request, out any) (Meta, error)
}

// ParseJSON extracts the JSON object from a model answer, tolerating code
// fences and prose around the object.
func ParseJSON(raw string, out any) error {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		text = strings.TrimPrefix(text, "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model answer")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model answer: %w", err)
	}
	return nil
}

// Disabled is a Service that always declines. Use it when no provider is
// configured.
type Disabled struct{}

// Decide always returns ErrDisabled.
func (Disabled) Decide(context.Context, Request, any) (Meta, error) {
	return Meta{}, ErrDisabled
}

// Mock is a scripted Service for tests. Answers are consumed in order; when
// they run out, Decide returns ErrDisabled.
type Mock struct {
	mu       sync.Mutex
	answers  []string
	requests []Request
}

// NewMock builds a mock that replays the given JSON answers.
func NewMock(answers ...string) *Mock {
	return &Mock{answers: answers}
}

// Decide pops the next scripted answer and decodes it into out.
func (m *Mock) Decide(_ context.Context, req Request, out any) (Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.answers) == 0 {
		return Meta{}, ErrDisabled
	}
	answer := m.answers[0]
	m.answers = m.answers[1:]
	if err := ParseJSON(answer, out); err != nil {
		return Meta{}, err
	}
	return Meta{Provider: "mock", Model: "scripted"}, nil
}

// Requests returns the prompts seen so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
