package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/hivelane/outreach/blob"
	"github.com/hivelane/outreach/catalog"
	"github.com/hivelane/outreach/core"
)

// Source is the envelope source stamped on inbound-mail events.
const Source = "outreach.mail"

// Inbound is a raw message arriving from the email channel.
type Inbound struct {
	From        string
	To          string
	MessageID   string
	Subject     string
	Body        string
	Attachments []core.Attachment
	ReceivedAt  time.Time
}

// RawAttachment is an attachment as it arrives from the email channel, bytes
// included.
type RawAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StoreAttachments persists raw attachment bytes and returns thread-ready
// attachment records. Refs are deterministic per message, so redelivering the
// same inbound message overwrites the same objects instead of duplicating
// them.
func StoreAttachments(ctx context.Context, blobs blob.Store, campaignID, providerID, messageID string, raw []RawAttachment) ([]core.Attachment, error) {
	out := make([]core.Attachment, 0, len(raw))
	for _, att := range raw {
		ref := fmt.Sprintf("blob://mail/%s/%s/%s/%s", campaignID, providerID, messageID, att.Filename)
		if err := blobs.Put(ctx, ref, att.Data, att.ContentType); err != nil {
			return nil, fmt.Errorf("store attachment %s: %w", att.Filename, err)
		}
		out = append(out, core.Attachment{
			Filename:    att.Filename,
			Ref:         ref,
			ContentType: att.ContentType,
			SizeBytes:   int64(len(att.Data)),
		})
	}
	return out, nil
}

// ToEvent routes an inbound message to its session and wraps it in a
// ProviderResponseReceived envelope with a fresh root trace. Mail that does
// not carry a reply address fails here and never reaches the bus.
func ToEvent(in Inbound) (catalog.Envelope, error) {
	campaignID, providerID, err := ParseReplyAddress(in.To)
	if err != nil {
		return catalog.Envelope{}, &core.ValidationError{
			EventType: core.EventProviderResponseReceived,
			Reason:    err.Error(),
		}
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return catalog.NewEnvelope(core.EventProviderResponseReceived, Source, catalog.NewTraceContext(), catalog.ProviderResponseReceived{
		CampaignID:  campaignID,
		ProviderID:  providerID,
		MessageID:   in.MessageID,
		Subject:     in.Subject,
		Body:        in.Body,
		Attachments: in.Attachments,
		ReceivedAt:  receivedAt,
	})
}
