package webhook

import (
	"time"

	"courier/pkg/errors"
)

// Request is the raw provider webhook body. Field names follow the
// provider's wire format.
type Request struct {
	InstanceID string `json:"instanceId"`
	Event      Event  `json:"event"`
}

type Event struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	FromSelf       bool      `json:"fromSelf"`
	Timestamp      time.Time `json:"timestamp"`
	Content        string    `json:"content"`
}

// Validate rejects malformed payloads before they touch the dedup store or
// the queue. Validation failures are never retried by the provider.
func (r Request) Validate() error {
	if r.InstanceID == "" {
		return errors.ErrValidation.WithDetail("message", "instanceId is required")
	}
	if r.Event.ID == "" {
		return errors.ErrValidation.WithDetail("message", "event.id is required")
	}
	if r.Event.ConversationID == "" {
		return errors.ErrValidation.WithDetail("message", "event.conversationId is required")
	}
	if r.Event.Timestamp.IsZero() {
		return errors.ErrValidation.WithDetail("message", "event.timestamp is required")
	}
	return nil
}

// InboundEvent is the normalized event published to messages.inbound.
// Uniqueness is per (InstanceID, EventID), not global. Immutable once
// created.
type InboundEvent struct {
	EventID        string    `json:"event_id"`
	InstanceID     string    `json:"instance_id"`
	ConversationID string    `json:"conversation_id"`
	SenderIsSelf   bool      `json:"sender_is_self"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	ReceivedAt     time.Time `json:"received_at"`
}

func (r Request) ToInboundEvent(receivedAt time.Time) InboundEvent {
	return InboundEvent{
		EventID:        r.Event.ID,
		InstanceID:     r.InstanceID,
		ConversationID: r.Event.ConversationID,
		SenderIsSelf:   r.Event.FromSelf,
		Content:        r.Event.Content,
		Timestamp:      r.Event.Timestamp,
		ReceivedAt:     receivedAt,
	}
}

type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSelf      Outcome = "self"
)
