package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-migrator/internal/adapters/postgres"
	"github.com/kevin07696/subscription-migrator/internal/domain"
)

func TestStateRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := postgres.NewStateRepository(pool)

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	require.NoError(t, repo.Save(ctx, []byte(`{"status":"idle"}`)))
	require.NoError(t, repo.Save(ctx, []byte(`{"status":"paused"}`)))

	doc, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"paused"}`, string(doc))

	require.NoError(t, repo.Delete(ctx))
	_, err = repo.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestVetoLog(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	log := postgres.NewVetoLog(pool)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, log.Append(ctx, domain.RenewalVeto{SubscriptionID: 1, Type: domain.VetoScheduledPayment, Timestamp: now}))
	require.NoError(t, log.Append(ctx, domain.RenewalVeto{
		SubscriptionID: 2,
		Type:           domain.VetoActionSchedulerPrevented,
		Hook:           domain.HookScheduledPayment,
		Timestamp:      now.Add(time.Minute),
	}))

	recent, err := log.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].SubscriptionID)
	assert.Equal(t, domain.HookScheduledPayment, recent[0].Hook)
	assert.True(t, recent[0].Timestamp.Equal(now.Add(time.Minute)))
}
