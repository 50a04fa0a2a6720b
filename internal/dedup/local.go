package dedup

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LocalRepository keeps dedup state in process memory. It degrades the
// at-most-once guarantee to per-process; the service logs this at startup.
type LocalRepository struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewLocalRepository() *LocalRepository {
	return &LocalRepository{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (r *LocalRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)

	if expiry, exists := r.entries[key]; exists && now.Before(expiry) {
		return false, nil
	}

	r.entries[key] = now.Add(ttl)
	return true, nil
}

func (r *LocalRepository) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

func (r *LocalRepository) Size(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)

	count := 0
	for key := range r.entries {
		if strings.HasPrefix(key, prefix) {
			count++
		}
	}
	return count, nil
}

// sweepLocked drops expired entries so the map stays bounded by TTL x rate.
func (r *LocalRepository) sweepLocked(now time.Time) {
	for key, expiry := range r.entries {
		if !now.Before(expiry) {
			delete(r.entries, key)
		}
	}
}
