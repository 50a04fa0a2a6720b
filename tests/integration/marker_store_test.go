package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/dispatcher"
)

func TestMarkerStore_ClaimOncePerPair(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	store := dispatcher.NewRedisMarkerStore(infra.RedisClient, time.Minute)

	ok, err := store.Claim(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different source event in the same conversation is a new send.
	ok, err = store.Claim(ctx, "conv-1", "evt-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkerStore_ReleaseAllowsReclaim(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	store := dispatcher.NewRedisMarkerStore(infra.RedisClient, time.Minute)

	ok, err := store.Claim(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "conv-1", "evt-1"))

	ok, err = store.Claim(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkerStore_MarkerExpiresWithTTL(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	store := dispatcher.NewRedisMarkerStore(infra.RedisClient, shortTTL())

	ok, err := store.Claim(ctx, "conv-1", "evt-ttl")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(shortTTL() + 500*time.Millisecond)

	ok, err = store.Claim(ctx, "conv-1", "evt-ttl")
	require.NoError(t, err)
	assert.True(t, ok)
}
