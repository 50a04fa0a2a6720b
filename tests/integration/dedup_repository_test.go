package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/dedup"
)

func TestDedupRepository_SetNX_ClaimsOnce(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRedisRepository(infra.RedisClient)

	ok, err := repo.SetNX(ctx, "dedup:inst-1:evt-1", time.Now().Unix(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetNX(ctx, "dedup:inst-1:evt-1", time.Now().Unix(), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDedupRepository_ClaimExpiresWithTTL(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRedisRepository(infra.RedisClient)

	ok, err := repo.SetNX(ctx, "dedup:inst-1:evt-ttl", time.Now().Unix(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(1500 * time.Millisecond)

	ok, err = repo.SetNX(ctx, "dedup:inst-1:evt-ttl", time.Now().Unix(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupRepository_DelReleasesClaim(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRedisRepository(infra.RedisClient)

	ok, err := repo.SetNX(ctx, "dedup:inst-1:evt-1", time.Now().Unix(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Del(ctx, "dedup:inst-1:evt-1"))

	ok, err = repo.SetNX(ctx, "dedup:inst-1:evt-1", time.Now().Unix(), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupService_ExactlyOneOfConcurrentClaims(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRedisRepository(infra.RedisClient)
	svc := dedup.NewService(repo, createTestDeduplicationConfig(), createTestLogger())
	t.Cleanup(svc.StopCacheMetricsUpdater)

	const claimers = 10
	results := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		go func() {
			accepted, err := svc.Accept(ctx, "inst-1", "evt-concurrent")
			if err != nil {
				results <- false
				return
			}
			results <- accepted
		}()
	}

	acceptedCount := 0
	for i := 0; i < claimers; i++ {
		if <-results {
			acceptedCount++
		}
	}

	assert.Equal(t, 1, acceptedCount)
}

func TestDedupRepository_SizeCountsPrefix(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRedisRepository(infra.RedisClient)

	for _, key := range []string{"dedup:inst-1:evt-1", "dedup:inst-1:evt-2", "sent:conv-1:evt-1"} {
		_, err := repo.SetNX(ctx, key, 1, time.Minute)
		require.NoError(t, err)
	}

	size, err := repo.Size(ctx, "dedup:")
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}
