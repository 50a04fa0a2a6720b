package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/dispatcher"
	"courier/pkg/errors"
)

func TestDeliveryRepository_UpsertAndGet(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	ctx := context.Background()

	repo := dispatcher.NewPostgresDeliveryRepository(infra.PostgresDB)

	rec := createTestDeliveryRecord("conv-1", "evt-1")
	require.NoError(t, repo.Upsert(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, dispatcher.StatusPending, got.Status)
	assert.Equal(t, "reply-evt-1", got.ReplyID)
	assert.Equal(t, "inst-1", got.InstanceID)
}

func TestDeliveryRepository_UpsertSamePairUpdatesExistingRow(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	ctx := context.Background()

	repo := dispatcher.NewPostgresDeliveryRepository(infra.PostgresDB)

	first := createTestDeliveryRecord("conv-1", "evt-1")
	require.NoError(t, repo.Upsert(ctx, first))

	second := createTestDeliveryRecord("conv-1", "evt-1")
	second.Status = dispatcher.StatusFailed
	second.Attempts = 2
	second.LastError = "provider timeout"
	require.NoError(t, repo.Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	got, err := repo.Get(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, dispatcher.StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "provider timeout", got.LastError)
}

func TestDeliveryRepository_ReupsertClearsStaleProviderRef(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	ctx := context.Background()

	repo := dispatcher.NewPostgresDeliveryRepository(infra.PostgresDB)

	rec := createTestDeliveryRecord("conv-1", "evt-1")
	require.NoError(t, repo.Upsert(ctx, rec))
	require.NoError(t, repo.UpdateStatus(ctx, "conv-1", "evt-1", dispatcher.StatusSent, 1, "", "prov-123"))

	// A redelivered reply re-upserts pending; the record must not keep the
	// previous attempt's provider ref next to a pending status.
	again := createTestDeliveryRecord("conv-1", "evt-1")
	require.NoError(t, repo.Upsert(ctx, again))

	got, err := repo.Get(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, dispatcher.StatusPending, got.Status)
	assert.Empty(t, got.ProviderRef)
}

func TestDeliveryRepository_UpdateStatus(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	ctx := context.Background()

	repo := dispatcher.NewPostgresDeliveryRepository(infra.PostgresDB)

	rec := createTestDeliveryRecord("conv-1", "evt-1")
	require.NoError(t, repo.Upsert(ctx, rec))

	require.NoError(t, repo.UpdateStatus(ctx, "conv-1", "evt-1", dispatcher.StatusSent, 1, "", "prov-123"))

	got, err := repo.Get(ctx, "conv-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, dispatcher.StatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "prov-123", got.ProviderRef)
}

func TestDeliveryRepository_UpdateStatusUnknownPair(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	ctx := context.Background()

	repo := dispatcher.NewPostgresDeliveryRepository(infra.PostgresDB)

	err := repo.UpdateStatus(ctx, "conv-missing", "evt-missing", dispatcher.StatusSent, 1, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDeliveryRepository_GetUnknownPair(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)
	ctx := context.Background()

	repo := dispatcher.NewPostgresDeliveryRepository(infra.PostgresDB)

	_, err := repo.Get(ctx, "conv-missing", "evt-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
