package config

import (
	"fmt"
	"time"

	"courier/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errs = append(errs, err)
	}

	if err := validateDeduplication(cfg.Deduplication); err != nil {
		errs = append(errs, err)
	}

	if err := validateRetry("broker.kafka.retry", cfg.Broker.Kafka.Retry); err != nil {
		errs = append(errs, err)
	}

	if err := validateRetry("responder.retry", cfg.Responder.Retry); err != nil {
		errs = append(errs, err)
	}

	if err := validateRetry("dispatcher.retry", cfg.Dispatcher.Retry); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	switch cfg.Type {
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unsupported broker type: %s", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one broker address is required",
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "consumer group id is required",
		}
	}

	if cfg.Concurrency < 0 {
		return &ValidationError{
			Field:   "broker.kafka.concurrency",
			Message: "concurrency cannot be negative",
		}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig) error {
	switch cfg.Store {
	case "", constants.DedupStoreRedis, constants.DedupStoreLocal:
	default:
		return &ValidationError{
			Field:   "deduplication.store",
			Message: fmt.Sprintf("store must be %q or %q, got %q", constants.DedupStoreRedis, constants.DedupStoreLocal, cfg.Store),
		}
	}

	if cfg.TTLSeconds != 0 {
		ttl := time.Duration(cfg.TTLSeconds) * time.Second
		if ttl < constants.DedupTTLMin || ttl > constants.DedupTTLMax {
			return &ValidationError{
				Field:   "deduplication.ttl_seconds",
				Message: fmt.Sprintf("ttl must be between %s and %s, got %s", constants.DedupTTLMin, constants.DedupTTLMax, ttl),
			}
		}
	}

	switch cfg.OnStoreError {
	case "", constants.FallbackAllow, constants.FallbackDeny:
	default:
		return &ValidationError{
			Field:   "deduplication.on_store_error",
			Message: fmt.Sprintf("on_store_error must be %q or %q, got %q", constants.FallbackAllow, constants.FallbackDeny, cfg.OnStoreError),
		}
	}

	return nil
}

func validateRetry(field string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   field + ".max_attempts",
			Message: "max attempts cannot be negative",
		}
	}

	if cfg.BaseDelay < 0 || cfg.MaxDelay < 0 {
		return &ValidationError{
			Field:   field,
			Message: "delays cannot be negative",
		}
	}

	if cfg.MaxDelay > 0 && cfg.BaseDelay > cfg.MaxDelay {
		return &ValidationError{
			Field:   field,
			Message: "base delay cannot exceed max delay",
		}
	}

	return nil
}
