package integration

import (
	"time"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/dispatcher"
	"courier/internal/logger"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestDeduplicationConfig() config.DeduplicationConfig {
	return config.DeduplicationConfig{
		Store:        constants.DedupStoreRedis,
		TTLSeconds:   120,
		OnStoreError: constants.FallbackAllow,
	}
}

func createTestDeliveryRecord(conversationID, sourceEventID string) *dispatcher.DeliveryRecord {
	return &dispatcher.DeliveryRecord{
		ReplyID:        "reply-" + sourceEventID,
		ConversationID: conversationID,
		InstanceID:     "inst-1",
		SourceEventID:  sourceEventID,
		Status:         dispatcher.StatusPending,
	}
}

func shortTTL() time.Duration {
	return 2 * time.Second
}
