package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/adapters/postgres"
)

// setupTestDB connects to TEST_DATABASE_URL, applies the embedded migrations and truncates every table.
// Tests are skipped when the variable is not set.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger := zap.NewNop()
	migrator, err := postgres.NewMigrator(dbURL, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	migrator.Close()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL), logger)
	if err != nil {
		t.Skipf("Could not connect to test database: %v", err)
	}

	truncate := func() {
		_, _ = pool.Exec(ctx, `TRUNCATE sublium_subscription_items, sublium_subscriptions,
			sublium_plan_relations, sublium_plans, sublium_plan_groups,
			migration_state, migration_renewal_vetoes RESTART IDENTITY CASCADE`)
		_, _ = pool.Exec(ctx, `UPDATE sublium_gateways SET installed = FALSE`)
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		pool.Close()
	})
	return pool
}
