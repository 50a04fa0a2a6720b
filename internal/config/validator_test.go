package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 10,
		},
		Broker: BrokerConfig{
			Type: "kafka",
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "courier",
			},
		},
		Deduplication: DeduplicationConfig{
			Store:        "redis",
			TTLSeconds:   120,
			OnStoreError: "allow",
		},
	}
}

func TestValidateStatic_ValidConfig(t *testing.T) {
	require.NoError(t, ValidateStatic(validConfig()))
}

func TestValidateStatic_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateStatic_UnsupportedBrokerType(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Type = "rabbit"
	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.type")
}

func TestValidateStatic_MissingBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Kafka.Brokers = nil
	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.kafka.brokers")
}

func TestValidateStatic_DedupTTLBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Deduplication.TTLSeconds = 30
	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deduplication.ttl_seconds")

	cfg.Deduplication.TTLSeconds = 600
	err = ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deduplication.ttl_seconds")

	cfg.Deduplication.TTLSeconds = 300
	require.NoError(t, ValidateStatic(cfg))
}

func TestValidateStatic_InvalidDedupStore(t *testing.T) {
	cfg := validConfig()
	cfg.Deduplication.Store = "memcached"
	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deduplication.store")
}

func TestValidateStatic_InvalidFallback(t *testing.T) {
	cfg := validConfig()
	cfg.Deduplication.OnStoreError = "panic"
	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deduplication.on_store_error")
}

func TestValidateStatic_RetryDelays(t *testing.T) {
	cfg := validConfig()
	cfg.Dispatcher.Retry = RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Second,
		MaxDelay:    time.Second,
	}
	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatcher.retry")
}
