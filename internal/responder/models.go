package responder

import (
	"time"

	"courier/pkg/errors"
)

// TicketAgentConfig is the read-only snapshot returned by the ticket
// resolver for one inbound event. It is never mutated by this pipeline.
type TicketAgentConfig struct {
	TicketID                 string  `json:"ticket_id"`
	AgentID                  string  `json:"agent_id"`
	AutoResponseEnabled      bool    `json:"auto_response_enabled"`
	ConfidenceThreshold      float64 `json:"confidence_threshold"`
	MaxAttempts              int     `json:"max_attempts"`
	EscalationTimeoutMinutes int     `json:"escalation_timeout_minutes"`
}

// Validate is applied once at resolution time. Defaults are filled for
// unset optional fields; out-of-range values are rejected.
func (c *TicketAgentConfig) Validate() error {
	if c.TicketID == "" {
		return errors.ErrValidation.WithDetail("message", "ticket_id is required")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.ErrValidation.WithDetail("message", "confidence_threshold must be in [0,1]")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.EscalationTimeoutMinutes <= 0 {
		c.EscalationTimeoutMinutes = 30
	}
	return nil
}

// GeneratedReply is published to messages.outbound and consumed exactly
// once by the dispatcher.
type GeneratedReply struct {
	ReplyID        string    `json:"reply_id"`
	ConversationID string    `json:"conversation_id"`
	InstanceID     string    `json:"instance_id"`
	TicketID       string    `json:"ticket_id"`
	Text           string    `json:"text"`
	Confidence     float64   `json:"confidence"`
	GeneratedAt    time.Time `json:"generated_at"`
	SourceEventID  string    `json:"source_event_id"`
}

type State string

const (
	StateReceived   State = "received"
	StateResolved   State = "resolved"
	StateGated      State = "gated"
	StateResponded  State = "responded"
	StateEscalated  State = "escalated"
	StateSuppressed State = "suppressed"
)

// DecisionRecord is the operator-facing audit entry written for every
// terminal state the engine reaches.
type DecisionRecord struct {
	EventID        string    `bson:"event_id" json:"event_id"`
	InstanceID     string    `bson:"instance_id" json:"instance_id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	TicketID       string    `bson:"ticket_id,omitempty" json:"ticket_id,omitempty"`
	State          State     `bson:"state" json:"state"`
	Reason         string    `bson:"reason,omitempty" json:"reason,omitempty"`
	Confidence     float64   `bson:"confidence,omitempty" json:"confidence,omitempty"`
	Threshold      float64   `bson:"threshold,omitempty" json:"threshold,omitempty"`
	DecidedAt      time.Time `bson:"decided_at" json:"decided_at"`
}
