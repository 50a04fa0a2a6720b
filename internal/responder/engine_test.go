package responder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/webhook"
	"courier/pkg/errors"
	"courier/pkg/models"
)

type fakeResolver struct {
	cfg   TicketAgentConfig
	err   error
	calls int
}

func (r *fakeResolver) ResolveTicketAgent(ctx context.Context, conversationID string) (TicketAgentConfig, error) {
	r.calls++
	if r.err != nil {
		return TicketAgentConfig{}, r.err
	}
	return r.cfg, nil
}

type fakeCompleter struct {
	result CompletionResult
	errs   []error
	calls  int
}

func (c *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return CompletionResult{}, err
		}
	}
	return c.result, nil
}

type fakeProducer struct {
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	topic    string
	envelope models.Envelope
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, envelope models.Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedMessage{topic: topic, envelope: envelope})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) SetServiceName(name string) {}

type recordingDecisionStore struct {
	records []DecisionRecord
}

func (s *recordingDecisionStore) Record(ctx context.Context, rec DecisionRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func enabledConfig(threshold float64) TicketAgentConfig {
	return TicketAgentConfig{
		TicketID:            "ticket-1",
		AgentID:             "agent-1",
		AutoResponseEnabled: true,
		ConfidenceThreshold: threshold,
		MaxAttempts:         3,
	}
}

func inboundEnvelope(t *testing.T, event webhook.InboundEvent) models.Envelope {
	t.Helper()
	envelope, err := models.NewEnvelope(event.InstanceID+constants.RoutingKeySuffixInbound, event)
	require.NoError(t, err)
	return envelope
}

func testEvent() webhook.InboundEvent {
	return webhook.InboundEvent{
		EventID:        "evt-1",
		InstanceID:     "inst-1",
		ConversationID: "conv-1",
		Content:        "where is my order?",
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ReceivedAt:     time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
	}
}

func newTestEngine(resolver TicketResolver, completer Completer, producer *fakeProducer, store DecisionStore) *Engine {
	retryCfg := config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
	return NewEngine(resolver, completer, producer, store, retryCfg, logger.NopLogger())
}

func TestEngine_Process_HighConfidenceResponds(t *testing.T) {
	resolver := &fakeResolver{cfg: enabledConfig(0.4)}
	completer := &fakeCompleter{result: CompletionResult{Text: "Your order ships tomorrow.", Confidence: 0.55}}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	require.Len(t, producer.published, 1)
	msg := producer.published[0]
	assert.Equal(t, constants.TopicOutbound, msg.topic)
	assert.Equal(t, "inst-1.outbound", msg.envelope.RoutingKey)

	var reply GeneratedReply
	require.NoError(t, msg.envelope.DecodeBody(&reply))
	assert.Equal(t, "Your order ships tomorrow.", reply.Text)
	assert.Equal(t, "conv-1", reply.ConversationID)
	assert.Equal(t, "evt-1", reply.SourceEventID)
	assert.Equal(t, 0.55, reply.Confidence)
	assert.NotEmpty(t, reply.ReplyID)

	require.Len(t, store.records, 1)
	assert.Equal(t, StateResponded, store.records[0].State)
	assert.Equal(t, "ticket-1", store.records[0].TicketID)
}

func TestEngine_Process_LowConfidenceEscalates(t *testing.T) {
	resolver := &fakeResolver{cfg: enabledConfig(0.4)}
	completer := &fakeCompleter{result: CompletionResult{Text: "Maybe check tracking?", Confidence: 0.2}}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	assert.Empty(t, producer.published)
	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, StateEscalated, rec.State)
	assert.Equal(t, "confidence_below_threshold", rec.Reason)
	assert.Equal(t, 0.2, rec.Confidence)
	assert.Equal(t, 0.4, rec.Threshold)
}

func TestEngine_Process_ConfidenceEqualToThresholdResponds(t *testing.T) {
	resolver := &fakeResolver{cfg: enabledConfig(0.4)}
	completer := &fakeCompleter{result: CompletionResult{Text: "ok", Confidence: 0.4}}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	assert.Len(t, producer.published, 1)
	require.Len(t, store.records, 1)
	assert.Equal(t, StateResponded, store.records[0].State)
}

func TestEngine_Process_AutoResponseDisabledSuppresses(t *testing.T) {
	cfg := enabledConfig(0.4)
	cfg.AutoResponseEnabled = false
	resolver := &fakeResolver{cfg: cfg}
	completer := &fakeCompleter{}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	assert.Zero(t, completer.calls)
	assert.Empty(t, producer.published)
	require.Len(t, store.records, 1)
	assert.Equal(t, StateSuppressed, store.records[0].State)
	assert.Equal(t, "auto_response_disabled", store.records[0].Reason)
}

func TestEngine_Process_NoAgentSuppresses(t *testing.T) {
	cfg := enabledConfig(0.4)
	cfg.AgentID = ""
	resolver := &fakeResolver{cfg: cfg}
	completer := &fakeCompleter{}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	assert.Zero(t, completer.calls)
	assert.Empty(t, producer.published)
	require.Len(t, store.records, 1)
	assert.Equal(t, StateSuppressed, store.records[0].State)
}

func TestEngine_Process_ResolverNotFoundSuppresses(t *testing.T) {
	resolver := &fakeResolver{err: errors.ErrResolverNotFound.WithDetail("conversation_id", "conv-1")}
	completer := &fakeCompleter{}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	assert.Empty(t, producer.published)
	require.Len(t, store.records, 1)
	assert.Equal(t, StateSuppressed, store.records[0].State)
	assert.Equal(t, "no_ticket_agent", store.records[0].Reason)
}

func TestEngine_Process_ResolverTransientErrorBubblesUp(t *testing.T) {
	resolver := &fakeResolver{err: errors.ErrServiceUnavailable.WithDetail("upstream", "resolver")}
	engine := newTestEngine(resolver, &fakeCompleter{}, &fakeProducer{}, &recordingDecisionStore{})

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestEngine_Process_SelfEventSuppressed(t *testing.T) {
	resolver := &fakeResolver{cfg: enabledConfig(0.4)}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, &fakeCompleter{}, producer, store)

	event := testEvent()
	event.SenderIsSelf = true

	err := engine.Process(context.Background(), inboundEnvelope(t, event))
	require.NoError(t, err)

	assert.Zero(t, resolver.calls)
	assert.Empty(t, producer.published)
	require.Len(t, store.records, 1)
	assert.Equal(t, StateSuppressed, store.records[0].State)
	assert.Equal(t, "self_event", store.records[0].Reason)
}

func TestEngine_Process_CompletionRetriesThenSucceeds(t *testing.T) {
	resolver := &fakeResolver{cfg: enabledConfig(0.4)}
	completer := &fakeCompleter{
		result: CompletionResult{Text: "recovered", Confidence: 0.9},
		errs:   []error{errors.ErrTimeout, nil},
	}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	assert.Equal(t, 2, completer.calls)
	assert.Len(t, producer.published, 1)
	require.Len(t, store.records, 1)
	assert.Equal(t, StateResponded, store.records[0].State)
}

func TestEngine_Process_CompletionExhaustionEscalates(t *testing.T) {
	resolver := &fakeResolver{cfg: enabledConfig(0.4)}
	completer := &fakeCompleter{
		errs: []error{errors.ErrTimeout, errors.ErrTimeout, errors.ErrTimeout},
	}
	producer := &fakeProducer{}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.NoError(t, err)

	// Bounded to the ticket's MaxAttempts, then a human takes over.
	assert.Equal(t, 3, completer.calls)
	assert.Empty(t, producer.published)
	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, StateEscalated, rec.State)
	assert.Contains(t, rec.Reason, "completion_failed")
}

func TestEngine_Process_PublishFailureBubblesUp(t *testing.T) {
	resolver := &fakeResolver{cfg: enabledConfig(0.4)}
	completer := &fakeCompleter{result: CompletionResult{Text: "ok", Confidence: 0.9}}
	producer := &fakeProducer{err: fmt.Errorf("broker down")}
	store := &recordingDecisionStore{}
	engine := newTestEngine(resolver, completer, producer, store)

	err := engine.Process(context.Background(), inboundEnvelope(t, testEvent()))
	require.Error(t, err)

	// No terminal decision yet: the broker redelivers and the dispatcher's
	// idempotency marker absorbs the duplicate completion.
	assert.Empty(t, store.records)
}

func TestEngine_Process_MalformedBodyIsFatal(t *testing.T) {
	engine := newTestEngine(&fakeResolver{}, &fakeCompleter{}, &fakeProducer{}, &recordingDecisionStore{})

	envelope, err := models.NewEnvelope("inst-1.inbound", "not an object")
	require.NoError(t, err)

	procErr := engine.Process(context.Background(), envelope)
	require.Error(t, procErr)
	assert.True(t, errors.IsValidation(procErr))
}
