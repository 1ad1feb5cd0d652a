//go:build integration

// Package pgtest starts a throwaway Postgres for integration tests.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	pg "github.com/ariefcatur/storefront-settlement/internal/postgres"
)

// Start runs a migrated postgres:16 container and returns a pool on it. The
// container is removed when t finishes.
func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	_, err = pg.Migrate(dsn)
	require.NoError(t, err)

	pool, err := pg.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// SeedProduct inserts a catalog row. denomStock and denomPrices may be nil.
func SeedProduct(t *testing.T, db *pgxpool.Pool, id string, priceCents int64, stock *int, denomStock map[int]int, denomPrices map[int]int64) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO products(id, name, price_cents, stock, denomination_stock, denomination_prices)
		VALUES ($1, $1, $2, $3, $4, $5)`,
		id, priceCents, stock, denomStock, denomPrices)
	require.NoError(t, err)
}
