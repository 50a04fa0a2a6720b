package dispatcher

import "time"

type DeliveryStatus string

const (
	StatusPending      DeliveryStatus = "pending"
	StatusSent         DeliveryStatus = "sent"
	StatusFailed       DeliveryStatus = "failed"
	StatusDeadLettered DeliveryStatus = "dead_lettered"
)

// DeliveryRecord tracks one outbound reply through the provider send.
// Uniqueness is per (ConversationID, SourceEventID); a redelivered reply
// for the same pair updates the existing row instead of inserting a new one.
type DeliveryRecord struct {
	ID             int64          `json:"id"`
	ReplyID        string         `json:"reply_id"`
	ConversationID string         `json:"conversation_id"`
	InstanceID     string         `json:"instance_id"`
	SourceEventID  string         `json:"source_event_id"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error,omitempty"`
	ProviderRef    string         `json:"provider_ref,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
