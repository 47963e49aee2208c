// Package anthropic provides a reasoning.Service backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hivelane/outreach/core"
	"github.com/hivelane/outreach/reasoning"
)

// Options configures the Anthropic adapter (temperature, model id, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Service wraps the Anthropic Messages API behind reasoning.Service.
type Service struct {
	client *anthropic.Client
	opts   Options
}

var _ reasoning.Service = (*Service)(nil)

// New creates a new Anthropic service using the official client.
func New(optFns ...func(o *Options)) *Service {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Service{client: &client, opts: opts}
}

// NewFromClient creates a service from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Service {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{client: client, opts: opts}
}

// Decide sends the prompt and decodes the JSON answer into out.
func (s *Service) Decide(ctx context.Context, req reasoning.Request, out any) (reasoning.Meta, error) {
	maxTokens := s.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := s.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       s.opts.Model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return reasoning.Meta{}, &core.ExternalServiceError{Service: "anthropic", Err: err}
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return reasoning.Meta{}, &core.ExternalServiceError{Service: "anthropic", Err: fmt.Errorf("empty completion")}
	}

	meta := reasoning.Meta{
		Provider:     "anthropic",
		Model:        string(s.opts.Model),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	if err := reasoning.ParseJSON(text, out); err != nil {
		return meta, &core.ExternalServiceError{Service: "anthropic", Err: err}
	}
	return meta, nil
}
