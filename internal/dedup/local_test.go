package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRepository_SetNX_ClaimsOnce(t *testing.T) {
	repo := NewLocalRepository()
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalRepository_SetNX_ExpiredKeyIsClaimable(t *testing.T) {
	repo := NewLocalRepository()
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return current }

	ok, err := repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	current = current.Add(30 * time.Second)
	ok, err = repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	current = current.Add(31 * time.Second)
	ok, err = repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalRepository_Del_ReleasesClaim(t *testing.T) {
	repo := NewLocalRepository()
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Del(ctx, "dedup:inst-1:evt-1"))

	ok, err = repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalRepository_Size_CountsOnlyPrefixAndLive(t *testing.T) {
	repo := NewLocalRepository()
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return current }

	_, err := repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	require.NoError(t, err)
	_, err = repo.SetNX(ctx, "dedup:inst-1:evt-2", 1, time.Second)
	require.NoError(t, err)
	_, err = repo.SetNX(ctx, "sent:conv-1:evt-1", 1, time.Minute)
	require.NoError(t, err)

	size, err := repo.Size(ctx, "dedup:")
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	current = current.Add(2 * time.Second)
	size, err = repo.Size(ctx, "dedup:")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestLocalRepository_CanceledContext(t *testing.T) {
	repo := NewLocalRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.SetNX(ctx, "dedup:inst-1:evt-1", 1, time.Minute)
	assert.Error(t, err)
	assert.Error(t, repo.Del(ctx, "dedup:inst-1:evt-1"))
}
