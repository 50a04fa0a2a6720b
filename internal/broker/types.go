package broker

import (
	"context"

	"courier/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.Envelope) error
	Close() error
	SetServiceName(name string)
}

// Consumer invokes the handler once per message. A nil handler error commits
// the message; an error runs the retry policy and finally routes the message
// to the topic's dead-letter pair.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg models.Envelope) error

func DLQTopic(topic string) string {
	return topic + ".dlq"
}
