package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/hivelane/outreach/core"
)

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// payloadFactories maps each detail-type to a constructor for its payload.
var payloadFactories = map[core.EventType]func() any{
	core.EventNewCampaignRequested:     func() any { return &NewCampaignRequested{} },
	core.EventSendMessageRequested:     func() any { return &SendMessageRequested{} },
	core.EventProviderResponseReceived: func() any { return &ProviderResponseReceived{} },
	core.EventDocumentProcessed:        func() any { return &DocumentProcessed{} },
	core.EventScreeningCompleted:       func() any { return &ScreeningCompleted{} },
	core.EventFollowUpTriggered:        func() any { return &FollowUpTriggered{} },
	core.EventReplyToProviderRequested: func() any { return &ReplyToProviderRequested{} },
}

// Catalog validates envelopes and decodes their payloads. Safe for
// concurrent use.
type Catalog struct {
	validate *validator.Validate
}

// New builds the catalog with its custom validations registered.
func New() *Catalog {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRe.MatchString(fl.Field().String())
	})
	return &Catalog{validate: v}
}

// Known reports whether the catalog has a payload type for eventType.
func (c *Catalog) Known(eventType core.EventType) bool {
	_, ok := payloadFactories[eventType]
	return ok
}

// Validate checks the envelope and decodes its detail into the typed payload
// for its detail-type. Any failure comes back as *core.ValidationError so
// callers can classify it as fatal without inspecting the message.
func (c *Catalog) Validate(env Envelope) (any, error) {
	if env.ID == "" {
		return nil, &core.ValidationError{EventType: env.DetailType, Reason: "missing envelope id"}
	}
	if env.SchemaVersion > SchemaVersion {
		return nil, &core.ValidationError{
			EventType: env.DetailType,
			Reason:    fmt.Sprintf("schema version %d is newer than supported %d", env.SchemaVersion, SchemaVersion),
		}
	}
	if err := c.validate.Struct(env.Trace); err != nil {
		return nil, &core.ValidationError{EventType: env.DetailType, Reason: fmt.Sprintf("bad trace context: %v", err)}
	}
	factory, ok := payloadFactories[env.DetailType]
	if !ok {
		return nil, &core.ValidationError{EventType: env.DetailType, Reason: "unknown detail-type"}
	}
	payload := factory()
	if err := json.Unmarshal(env.Detail, payload); err != nil {
		return nil, &core.ValidationError{EventType: env.DetailType, Reason: fmt.Sprintf("undecodable detail: %v", err)}
	}
	if err := c.validate.Struct(payload); err != nil {
		return nil, &core.ValidationError{EventType: env.DetailType, Reason: err.Error()}
	}
	return payload, nil
}
