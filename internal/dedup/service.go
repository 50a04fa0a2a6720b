package dedup

import (
	"context"
	"fmt"
	"time"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/metrics"
	"courier/pkg/tracing"
)

type storeErrorOutcome int

const (
	storeErrorDeny storeErrorOutcome = iota
	storeErrorAllow
)

// Instrumentation scope for spans started by this package, independent of
// which service consumes it.
const tracerName = "courier/internal/dedup"

// Service answers "have I already accepted this event?" with an atomic
// check-and-set keyed by (instanceID, eventID).
type Service struct {
	repo             Repository
	cfg              config.DeduplicationConfig
	ttl              time.Duration
	logger           logger.Logger
	stopCacheMetrics chan struct{}
	cancelMetricsCtx context.CancelFunc
}

func NewService(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	ttl := constants.DedupTTLDefault
	if cfg.TTLSeconds > 0 {
		ttl = time.Duration(cfg.TTLSeconds) * time.Second
	}

	if cfg.Store == constants.DedupStoreLocal {
		log.Warnw("Dedup store is process-local; duplicate suppression is per-process only",
			"store", cfg.Store,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		repo:             repo,
		cfg:              cfg,
		ttl:              ttl,
		logger:           log,
		stopCacheMetrics: make(chan struct{}),
		cancelMetricsCtx: cancel,
	}

	go s.updateCacheSizeMetrics(ctx)

	return s
}

func Key(instanceID, eventID string) string {
	return fmt.Sprintf("%s%s:%s", constants.CacheKeyPrefixDedup, instanceID, eventID)
}

// Accept atomically claims the (instanceID, eventID) key with a TTL.
// It returns true when the event is new and the caller should proceed,
// false when the key was already claimed within the TTL window.
func (s *Service) Accept(ctx context.Context, instanceID, eventID string) (bool, error) {
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "dedup.accept")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := Key(instanceID, eventID)
	start := time.Now()
	success, err := s.repo.SetNX(ctx, key, time.Now().Unix(), s.ttl)
	duration := time.Since(start)

	if err != nil {
		return s.handleStoreError(ctx, err, duration, key)
	}

	s.recordMetrics(duration, success)
	return success, nil
}

// Release deletes a claim taken by Accept. It is the compensating step when
// the queue publish fails after a successful claim: without it the event
// would be silently lost for the rest of the TTL window.
func (s *Service) Release(ctx context.Context, instanceID, eventID string) error {
	key := Key(instanceID, eventID)
	if err := s.repo.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to release dedup claim %s: %w", key, err)
	}
	s.logger.DebugwCtx(ctx, "Released dedup claim", "key", key)
	return nil
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) handleStoreError(ctx context.Context, err error, duration time.Duration, key string) (bool, error) {
	s.recordMetricsWithStatus(duration, "error")

	if s.cfg.OnStoreError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("dedup", "allow_on_error", err.Error()).Inc()
		s.logger.WarnwCtx(ctx, "Dedup store error, allowing event (fallback: allow)",
			"error", err,
			"key", key,
		)
		return true, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("dedup", "deny_on_error", err.Error()).Inc()
	return false, fmt.Errorf("dedup store error for key %s: %w", key, err)
}

func (s *Service) recordMetrics(duration time.Duration, isNew bool) {
	status := "duplicate"
	if isNew {
		status = "accepted"
	}
	s.recordMetricsWithStatus(duration, status)
}

func (s *Service) recordMetricsWithStatus(duration time.Duration, status string) {
	metrics.DedupChecksTotal.WithLabelValues(status).Inc()
	metrics.ObserveDedupDuration(duration, status)
}

func (s *Service) updateCacheSizeMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			size, err := s.repo.Size(ctx, constants.CacheKeyPrefixDedup)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debugw("Failed to get dedup cache size for metrics",
					"error", err,
				)
				continue
			}
			metrics.SetDedupCacheSize(size)
		case <-s.stopCacheMetrics:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) StopCacheMetricsUpdater() {
	if s.cancelMetricsCtx != nil {
		s.cancelMetricsCtx()
	}
	close(s.stopCacheMetrics)
}
