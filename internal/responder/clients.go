package responder

import (
	"context"
)

// TicketResolver is the external ticket/agent lookup, consumed as a black
// box. A conversation with no ticket or agent match fails with
// errors.ErrResolverNotFound.
type TicketResolver interface {
	ResolveTicketAgent(ctx context.Context, conversationID string) (TicketAgentConfig, error)
}

type CompletionRequest struct {
	ConversationID string `json:"conversation_id"`
	InstanceID     string `json:"instance_id"`
	Context        string `json:"context"`
}

type CompletionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Completer generates a candidate reply plus a confidence score.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
