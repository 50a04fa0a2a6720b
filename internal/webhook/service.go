package webhook

import (
	"context"
	"time"

	"courier/internal/broker"
	"courier/internal/constants"
	"courier/internal/dedup"
	"courier/internal/logger"
	"courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
)

// Service normalizes inbound webhook deliveries and gates them through the
// dedup cache before publishing to messages.inbound.
type Service struct {
	dedup    *dedup.Service
	producer broker.Producer
	logger   logger.Logger
}

func NewService(dedupSvc *dedup.Service, producer broker.Producer, log logger.Logger) *Service {
	return &Service{
		dedup:    dedupSvc,
		producer: producer,
		logger:   log,
	}
}

// Handle validates, dedup-gates and publishes a webhook delivery.
//
// The dedup claim is taken atomically before the publish; if the publish
// fails the claim is released, so broker downtime surfaces as a 5xx the
// provider will retry instead of permanently losing the event. A claim held
// by a concurrent duplicate delivery means that delivery owns the publish.
func (s *Service) Handle(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		s.observe("rejected", start)
		return "", err
	}

	ctx = logging.WithInstanceID(ctx, req.InstanceID)
	ctx = logging.WithEventID(ctx, req.Event.ID)

	// Echoes of our own outbound sends are accepted but never queued.
	if req.Event.FromSelf {
		s.observe(string(OutcomeSelf), start)
		s.logger.DebugwCtx(ctx, "Dropped self event",
			"conversation_id", req.Event.ConversationID,
		)
		return OutcomeSelf, nil
	}

	accepted, err := s.dedup.Accept(ctx, req.InstanceID, req.Event.ID)
	if err != nil {
		s.observe("error", start)
		return "", errors.ErrServiceUnavailable.WithCause(err)
	}
	if !accepted {
		s.observe(string(OutcomeDuplicate), start)
		s.logger.InfowCtx(ctx, "Duplicate event acknowledged without enqueue")
		return OutcomeDuplicate, nil
	}

	event := req.ToInboundEvent(time.Now().UTC())
	envelope, err := models.NewEnvelope(req.InstanceID+constants.RoutingKeySuffixInbound, event)
	if err != nil {
		s.releaseClaim(ctx, req)
		s.observe("error", start)
		return "", errors.ErrInternal.WithCause(err)
	}
	envelope.Metadata.TraceID = logging.GetTraceID(ctx)

	if err := s.producer.Publish(ctx, constants.TopicInbound, envelope); err != nil {
		s.releaseClaim(ctx, req)
		s.observe("error", start)
		return "", errors.ErrPublish.WithCause(err)
	}

	s.observe(string(OutcomeAccepted), start)
	s.logger.InfowCtx(ctx, "Inbound event enqueued",
		"conversation_id", req.Event.ConversationID,
		"envelope_id", envelope.ID,
	)
	return OutcomeAccepted, nil
}

func (s *Service) releaseClaim(ctx context.Context, req Request) {
	if err := s.dedup.Release(ctx, req.InstanceID, req.Event.ID); err != nil {
		// The claim will age out with the TTL; the event is delayed, not lost.
		s.logger.ErrorwCtx(ctx, "Failed to release dedup claim after publish failure",
			"error", err,
		)
	}
}

func (s *Service) observe(outcome string, start time.Time) {
	metrics.WebhookEventsTotal.WithLabelValues(outcome).Inc()
	metrics.WebhookHandleDuration.WithLabelValues(outcome).Observe(float64(time.Since(start).Milliseconds()))
}
