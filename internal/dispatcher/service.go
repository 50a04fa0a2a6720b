package dispatcher

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/sony/gobreaker"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/internal/responder"
	"courier/pkg/circuitbreaker"
	"courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
)

// Service consumes messages.outbound and delivers each reply to the
// provider exactly once per (conversation, source event). The idempotency
// marker is claimed before the provider call; ambiguous outcomes keep the
// marker, trading rare message loss against duplicate sends to end users.
type Service struct {
	sender     SendClient
	markers    MarkerStore
	deliveries DeliveryRepository
	policy     retry.Policy
	logger     logger.Logger
}

func NewService(sender SendClient, markers MarkerStore, deliveries DeliveryRepository, retryCfg config.RetryConfig, log logger.Logger) *Service {
	policy := retry.Policy{
		MaxAttempts: retryCfg.MaxAttempts,
		BaseDelay:   retryCfg.BaseDelay,
		MaxDelay:    retryCfg.MaxDelay,
		Jitter:      retryCfg.Jitter,
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	return &Service{
		sender:     sender,
		markers:    markers,
		deliveries: deliveries,
		policy:     policy,
		logger:     log,
	}
}

// Dispatch is the consumer handler for messages.outbound. A nil return
// commits the message; transient errors bubble up to the broker's
// retry/DLQ path.
func (s *Service) Dispatch(ctx context.Context, envelope models.Envelope) error {
	var reply responder.GeneratedReply
	if err := envelope.DecodeBody(&reply); err != nil {
		return errors.ErrValidation.WithCause(err).AsFatal()
	}

	ctx = logging.WithInstanceID(ctx, reply.InstanceID)
	ctx = logging.WithEventID(ctx, reply.SourceEventID)

	claimed, err := s.markers.Claim(ctx, reply.ConversationID, reply.SourceEventID)
	if err != nil {
		return err
	}
	if !claimed {
		metrics.DispatchesTotal.WithLabelValues("duplicate").Inc()
		s.logger.InfowCtx(ctx, "Skipping already-dispatched reply",
			"conversation_id", reply.ConversationID,
			"reply_id", reply.ReplyID,
		)
		return nil
	}

	rec := &DeliveryRecord{
		ReplyID:        reply.ReplyID,
		ConversationID: reply.ConversationID,
		InstanceID:     reply.InstanceID,
		SourceEventID:  reply.SourceEventID,
		Status:         StatusPending,
	}
	if err := s.deliveries.Upsert(ctx, rec); err != nil {
		// Nothing was sent yet; releasing the marker lets the redelivery
		// retry from scratch.
		s.releaseMarker(ctx, reply)
		return err
	}

	var result SendResult
	attempts := 0
	sendErr := retry.ExecuteWithCallback(ctx, s.policy, func() error {
		attempts++
		start := time.Now()
		var callErr error
		result, callErr = s.sender.Send(ctx, SendRequest{
			ConversationID: reply.ConversationID,
			InstanceID:     reply.InstanceID,
			Text:           reply.Text,
			ReplyID:        reply.ReplyID,
		})

		status := "success"
		if callErr != nil {
			status = "error"
		}
		metrics.ProviderSendsTotal.WithLabelValues(status).Inc()
		metrics.ProviderSendDuration.WithLabelValues(status).Observe(float64(time.Since(start).Milliseconds()))

		return callErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		s.logger.WarnwCtx(ctx, "Provider send failed, retrying",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})

	if sendErr == nil {
		if err := s.deliveries.UpdateStatus(ctx, reply.ConversationID, reply.SourceEventID, StatusSent, attempts, "", result.ProviderRef); err != nil {
			// The provider has the message; the record catches up on the
			// next operator sweep rather than risking a duplicate send.
			s.logger.ErrorwCtx(ctx, "Failed to mark delivery sent", "error", err)
		}
		metrics.DispatchesTotal.WithLabelValues("sent").Inc()
		s.logger.InfowCtx(ctx, "Reply delivered",
			"conversation_id", reply.ConversationID,
			"reply_id", reply.ReplyID,
			"attempts", attempts,
		)
		return nil
	}

	// Permanent rejection or exhausted retries: the message is done here.
	// The marker stays so redeliveries of the same reply do not retry a
	// send the provider already refused.
	reason := "provider_permanent"
	status := StatusFailed
	if !errors.IsProviderPermanent(sendErr) {
		reason = "retry_exhausted"
		status = StatusDeadLettered
		sendErr = errors.Wrap(sendErr, errors.ErrRetryExhausted)
	}

	if err := s.deliveries.UpdateStatus(ctx, reply.ConversationID, reply.SourceEventID, status, attempts, sendErr.Error(), ""); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to mark delivery "+string(status), "error", err)
	}
	metrics.DispatchesTotal.WithLabelValues(string(status)).Inc()
	s.logger.ErrorwCtx(ctx, "Reply delivery abandoned",
		"conversation_id", reply.ConversationID,
		"reply_id", reply.ReplyID,
		"reason", reason,
		"attempts", attempts,
		"error", sendErr,
	)
	return sendErr
}

func (s *Service) releaseMarker(ctx context.Context, reply responder.GeneratedReply) {
	if err := s.markers.Release(ctx, reply.ConversationID, reply.SourceEventID); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to release sent marker", "error", err)
	}
}

// BreakerSendClient guards provider sends with a circuit breaker. An open
// circuit surfaces as a transient error so the normal retry path applies.
type BreakerSendClient struct {
	inner   SendClient
	breaker *circuitbreaker.Wrapper
}

func NewBreakerSendClient(inner SendClient, breaker *circuitbreaker.Wrapper) *BreakerSendClient {
	return &BreakerSendClient{inner: inner, breaker: breaker}
}

func (c *BreakerSendClient) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.inner.Send(ctx, req)
	})
	if err != nil {
		if goerrors.Is(err, gobreaker.ErrOpenState) || goerrors.Is(err, gobreaker.ErrTooManyRequests) {
			return SendResult{}, errors.ErrServiceUnavailable.WithCause(err).WithDetail("breaker", "provider")
		}
		return SendResult{}, err
	}
	sendResult, ok := result.(SendResult)
	if !ok {
		return SendResult{}, errors.ErrInternal.WithDetail("message", "unexpected breaker result type")
	}
	return sendResult, nil
}
