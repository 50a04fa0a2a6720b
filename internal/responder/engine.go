package responder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"courier/internal/broker"
	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/webhook"
	"courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
)

// Engine runs each inbound event through
// Received -> Resolved -> Gated -> {Responded | Escalated | Suppressed}.
// Events are processed independently; ordering within a conversation is
// best-effort and deferred to the external ticket store.
type Engine struct {
	resolver  TicketResolver
	completer Completer
	producer  broker.Producer
	decisions DecisionStore
	retryCfg  config.RetryConfig
	logger    logger.Logger
}

func NewEngine(resolver TicketResolver, completer Completer, producer broker.Producer, decisions DecisionStore, retryCfg config.RetryConfig, log logger.Logger) *Engine {
	if decisions == nil {
		decisions = NopDecisionStore{}
	}
	return &Engine{
		resolver:  resolver,
		completer: completer,
		producer:  producer,
		decisions: decisions,
		retryCfg:  retryCfg,
		logger:    log,
	}
}

// Process is the consumer handler for messages.inbound. A nil return commits
// the message; transient errors bubble up to the broker's retry/DLQ path.
func (e *Engine) Process(ctx context.Context, envelope models.Envelope) error {
	var event webhook.InboundEvent
	if err := envelope.DecodeBody(&event); err != nil {
		return errors.ErrValidation.WithCause(err).AsFatal()
	}

	ctx = logging.WithInstanceID(ctx, event.InstanceID)
	ctx = logging.WithEventID(ctx, event.EventID)

	// Self events are filtered at the webhook; a second guard here keeps a
	// misbehaving publisher from triggering an auto-response.
	if event.SenderIsSelf {
		e.record(ctx, decision(event, StateSuppressed, "self_event"))
		return nil
	}

	cfg, err := e.resolver.ResolveTicketAgent(ctx, event.ConversationID)
	if err != nil {
		if errors.IsResolverNotFound(err) {
			e.record(ctx, decision(event, StateSuppressed, "no_ticket_agent"))
			return nil
		}
		return err
	}

	if err := cfg.Validate(); err != nil {
		return errors.ErrValidation.WithCause(err).WithDetail("ticket_id", cfg.TicketID).AsFatal()
	}

	if !cfg.AutoResponseEnabled || cfg.AgentID == "" {
		rec := decision(event, StateSuppressed, "auto_response_disabled")
		rec.TicketID = cfg.TicketID
		e.record(ctx, rec)
		return nil
	}

	result, err := e.gate(ctx, event, cfg)
	if err != nil {
		// Completion exhaustion escalates to a human instead of parking the
		// event in the DLQ: the conversation still gets handled.
		rec := decision(event, StateEscalated, "completion_failed: "+err.Error())
		rec.TicketID = cfg.TicketID
		rec.Threshold = cfg.ConfidenceThreshold
		e.record(ctx, rec)
		return nil
	}

	if result.Confidence < cfg.ConfidenceThreshold {
		rec := decision(event, StateEscalated, "confidence_below_threshold")
		rec.TicketID = cfg.TicketID
		rec.Confidence = result.Confidence
		rec.Threshold = cfg.ConfidenceThreshold
		e.record(ctx, rec)
		e.logger.InfowCtx(ctx, "Escalated to human",
			"ticket_id", cfg.TicketID,
			"confidence", result.Confidence,
			"threshold", cfg.ConfidenceThreshold,
		)
		return nil
	}

	reply := GeneratedReply{
		ReplyID:        uuid.NewString(),
		ConversationID: event.ConversationID,
		InstanceID:     event.InstanceID,
		TicketID:       cfg.TicketID,
		Text:           result.Text,
		Confidence:     result.Confidence,
		GeneratedAt:    time.Now().UTC(),
		SourceEventID:  event.EventID,
	}

	outEnvelope, err := models.NewEnvelope(event.InstanceID+constants.RoutingKeySuffixOutbound, reply)
	if err != nil {
		return errors.ErrInternal.WithCause(err).AsFatal()
	}
	outEnvelope.Metadata.TraceID = logging.GetTraceID(ctx)

	// A redelivery after a crash between publish and commit can produce a
	// duplicate GeneratedReply; the dispatcher's (conversation, source event)
	// idempotency marker absorbs it.
	if err := e.producer.Publish(ctx, constants.TopicOutbound, outEnvelope); err != nil {
		return err
	}

	rec := decision(event, StateResponded, "")
	rec.TicketID = cfg.TicketID
	rec.Confidence = result.Confidence
	rec.Threshold = cfg.ConfidenceThreshold
	e.record(ctx, rec)

	e.logger.InfowCtx(ctx, "Reply generated",
		"ticket_id", cfg.TicketID,
		"reply_id", reply.ReplyID,
		"confidence", result.Confidence,
	)
	return nil
}

// gate invokes the completion collaborator, retrying transient failures up
// to the ticket's MaxAttempts.
func (e *Engine) gate(ctx context.Context, event webhook.InboundEvent, cfg TicketAgentConfig) (CompletionResult, error) {
	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   e.retryCfg.BaseDelay,
		MaxDelay:    e.retryCfg.MaxDelay,
		Jitter:      e.retryCfg.Jitter,
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}

	var result CompletionResult
	err := retry.Execute(ctx, policy, func() error {
		start := time.Now()
		var callErr error
		result, callErr = e.completer.Complete(ctx, CompletionRequest{
			ConversationID: event.ConversationID,
			InstanceID:     event.InstanceID,
			Context:        event.Content,
		})

		status := "success"
		if callErr != nil {
			status = "error"
		}
		metrics.CompletionRequestsTotal.WithLabelValues(status).Inc()
		metrics.CompletionDuration.WithLabelValues(status).Observe(float64(time.Since(start).Milliseconds()))

		return callErr
	})
	if err != nil {
		return CompletionResult{}, errors.Wrap(err, errors.ErrRetryExhausted)
	}

	return result, nil
}

func (e *Engine) record(ctx context.Context, rec DecisionRecord) {
	metrics.ResponderDecisionsTotal.WithLabelValues(string(rec.State)).Inc()

	if err := e.decisions.Record(ctx, rec); err != nil {
		// The decision already took effect; a failed audit write is
		// operator-visible through logs, not a reason to redeliver.
		e.logger.ErrorwCtx(ctx, "Failed to record decision",
			"error", err,
			"state", rec.State,
		)
	}
}

func decision(event webhook.InboundEvent, state State, reason string) DecisionRecord {
	return DecisionRecord{
		EventID:        event.EventID,
		InstanceID:     event.InstanceID,
		ConversationID: event.ConversationID,
		State:          state,
		Reason:         reason,
		DecidedAt:      time.Now().UTC(),
	}
}
