package broker

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/errors"
)

// EnsureTopology declares the pipeline's topics and their dead-letter pairs.
// Declaration is idempotent: an existing topic with matching partition count
// is accepted, a mismatched one fails with a topology conflict.
func EnsureTopology(ctx context.Context, cfg config.KafkaConfig, log logger.Logger) error {
	topics := []string{
		constants.TopicInbound,
		constants.TopicInboundDLQ,
		constants.TopicOutbound,
		constants.TopicOutboundDLQ,
	}

	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to resolve kafka controller: %w", err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	for _, topic := range topics {
		existing, err := conn.ReadPartitions(topic)
		if err != nil {
			return fmt.Errorf("failed to read partitions for %s: %w", topic, err)
		}
		if len(existing) != partitions {
			return errors.ErrTopologyConflict.
				WithDetail("topic", topic).
				WithDetail("declared_partitions", partitions).
				WithDetail("existing_partitions", len(existing))
		}
	}

	log.Infow("Queue topology declared",
		"topics", topics,
		"partitions", partitions,
		"replication_factor", replication,
	)
	return nil
}
