package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/errors"
	"courier/pkg/models"
)

func fastRetryConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "test-group",
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}
}

func testConsumer() *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         fastRetryConfig(),
		logger:      logger.NopLogger(),
		serviceName: "test-service",
	}
}

func testEnvelope(t *testing.T) models.Envelope {
	t.Helper()
	envelope, err := models.NewEnvelope("inst-1.inbound", map[string]string{"k": "v"})
	require.NoError(t, err)
	return envelope
}

type recordingProducer struct {
	serviceName string
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, msg models.Envelope) error {
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) SetServiceName(name string) { p.serviceName = name }

func TestSetServiceName_PropagatesToDLQProducer(t *testing.T) {
	dlq := &recordingProducer{}
	c := &KafkaConsumer{
		cfg:         fastRetryConfig(),
		logger:      logger.NopLogger(),
		dlqProducer: dlq,
	}

	c.SetServiceName("dispatcher-service")

	assert.Equal(t, "dispatcher-service", c.serviceName)
	assert.Equal(t, "dispatcher-service", dlq.serviceName)
}

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "messages.inbound.dlq", DLQTopic("messages.inbound"))
	assert.Equal(t, "messages.outbound.dlq", DLQTopic("messages.outbound"))
}

func TestHandleWithRetry_TransientErrorRetriesToExhaustion(t *testing.T) {
	c := testConsumer()

	calls := 0
	err := c.handleWithRetry(context.Background(), testEnvelope(t), func(ctx context.Context, msg models.Envelope) error {
		calls++
		return fmt.Errorf("transient failure")
	}, "messages.inbound")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetry_FatalErrorSkipsRetries(t *testing.T) {
	c := testConsumer()

	calls := 0
	err := c.handleWithRetry(context.Background(), testEnvelope(t), func(ctx context.Context, msg models.Envelope) error {
		calls++
		return errors.ErrValidation.WithDetail("message", "bad payload")
	}, "messages.inbound")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestHandleWithRetry_AttemptIncrementsPerInvocation(t *testing.T) {
	c := testConsumer()

	var attempts []int
	err := c.handleWithRetry(context.Background(), testEnvelope(t), func(ctx context.Context, msg models.Envelope) error {
		attempts = append(attempts, msg.Attempt)
		return fmt.Errorf("failing")
	}, "messages.inbound")

	require.Error(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestHandleWithRetry_PanicIsRecoveredAndFatal(t *testing.T) {
	c := testConsumer()

	calls := 0
	err := c.handleWithRetry(context.Background(), testEnvelope(t), func(ctx context.Context, msg models.Envelope) error {
		calls++
		panic("unexpected state")
	}, "messages.inbound")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.IsTransient(err))
}

func TestHandleWithRetry_RetryExhaustedWrapGoesStraightToDLQPath(t *testing.T) {
	c := testConsumer()

	// A handler that already exhausted its own retry budget surfaces the
	// exhaustion as terminal: no second retry cycle, the error reaches the
	// caller so the message is published to the dead-letter topic.
	calls := 0
	err := c.handleWithRetry(context.Background(), testEnvelope(t), func(ctx context.Context, msg models.Envelope) error {
		calls++
		return errors.Wrap(errors.ErrProviderTransient.WithDetail("status_code", 502), errors.ErrRetryExhausted)
	}, "messages.outbound")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsRetryExhausted(err))
	assert.Equal(t, "permanent_failure", dlqReason(err))
}

func TestDLQReason_Classification(t *testing.T) {
	assert.Equal(t, "max_retries_exceeded", dlqReason(fmt.Errorf("timeout")))
	assert.Equal(t, "max_retries_exceeded", dlqReason(errors.ErrServiceUnavailable))
	assert.Equal(t, "permanent_failure", dlqReason(errors.ErrProviderPermanent))
	assert.Equal(t, "permanent_failure", dlqReason(errors.ErrValidation))
}
