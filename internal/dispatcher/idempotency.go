package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/constants"
	"courier/pkg/errors"
)

// MarkerStore records that a (conversation, source event) pair has been
// handed to the provider. Claim is atomic: exactly one concurrent claimer
// wins. The marker is kept even when the send outcome is ambiguous, biasing
// toward at-most-once delivery.
type MarkerStore interface {
	Claim(ctx context.Context, conversationID, sourceEventID string) (bool, error)
	Release(ctx context.Context, conversationID, sourceEventID string) error
}

type RedisMarkerStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisMarkerStore(client redis.UniversalClient, ttl time.Duration) *RedisMarkerStore {
	if ttl <= 0 {
		ttl = constants.DefaultSentMarkerTTL
	}
	return &RedisMarkerStore{client: client, ttl: ttl}
}

func markerKey(conversationID, sourceEventID string) string {
	return fmt.Sprintf("%s%s:%s", constants.CacheKeyPrefixSent, conversationID, sourceEventID)
}

func (s *RedisMarkerStore) Claim(ctx context.Context, conversationID, sourceEventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, markerKey(conversationID, sourceEventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, errors.ErrServiceUnavailable.WithCause(err).WithDetail("store", "sent_marker")
	}
	return ok, nil
}

// Release drops the marker so a later redelivery can retry the send. Only
// called when the provider definitively did not receive the message.
func (s *RedisMarkerStore) Release(ctx context.Context, conversationID, sourceEventID string) error {
	if err := s.client.Del(ctx, markerKey(conversationID, sourceEventID)).Err(); err != nil {
		return errors.ErrServiceUnavailable.WithCause(err).WithDetail("store", "sent_marker")
	}
	return nil
}
