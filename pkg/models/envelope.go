package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the unit of work owned by the broker between publish and
// commit. Attempt starts at 0 and is incremented on each redelivery.
type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Body       json.RawMessage `json:"body"`
	Metadata   Metadata        `json:"metadata"`
}

type Metadata struct {
	TraceID string   `json:"trace_id,omitempty"`
	DLQ     *DLQInfo `json:"dlq,omitempty"`
}

// DLQInfo is attached when a message is routed to a dead-letter topic so
// operators can see why it landed there.
type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}

func NewEnvelope(routingKey string, body interface{}) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal envelope body: %w", err)
	}

	return Envelope{
		ID:         uuid.NewString(),
		RoutingKey: routingKey,
		EnqueuedAt: time.Now().UTC(),
		Body:       raw,
	}, nil
}

func (e Envelope) DecodeBody(v interface{}) error {
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("failed to decode envelope body: %w", err)
	}
	return nil
}
