// Package openai provides a reasoning.Service backed by the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/reasoning"
)

// Options configure the OpenAI adapter. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Service wraps the OpenAI Chat Completions API behind reasoning.Service.
type Service struct {
	client *openai.Client
	opts   Options
}

var _ reasoning.Service = (*Service)(nil)

// New creates a new OpenAI service using the official client.
func New(optFns ...func(o *Options)) *Service {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a service from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Service {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{client: client, opts: opts}
}

// Decide sends the prompt and decodes the JSON answer into out.
func (s *Service) Decide(ctx context.Context, req reasoning.Request, out any) (reasoning.Meta, error) {
	maxTokens := s.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := s.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               s.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return reasoning.Meta{}, &core.ExternalServiceError{Service: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return reasoning.Meta{}, &core.ExternalServiceError{Service: "openai", Err: fmt.Errorf("no choices returned")}
	}

	meta := reasoning.Meta{
		Provider:     "openai",
		Model:        s.opts.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if err := reasoning.ParseJSON(resp.Choices[0].Message.Content, out); err != nil {
		return meta, &core.ExternalServiceError{Service: "openai", Err: err}
	}
	return meta, nil
}
