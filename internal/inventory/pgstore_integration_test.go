//go:build integration

package inventory_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/postgres"
	"github.com/ariefcatur/storefront-settlement/internal/postgres/pgtest"
)

func intPtr(v int) *int { return &v }

func TestPGStoreHoldLifecycle(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	pgtest.SeedProduct(t, db, "sku-1", 1000, intPtr(5), nil, nil)
	pgtest.SeedProduct(t, db, "gift", 0, nil, map[int]int{0: 1, 25: 4}, map[int]int64{25: 2500})

	ledger := inventory.NewLedger(&inventory.PGStore{DB: db}, time.Minute, zerolog.New(io.Discard))
	sku := inventory.Key{ProductID: "sku-1"}

	_, err := ledger.CreateHold(ctx, "cart-a", sku, 3, 0)
	require.NoError(t, err)
	avail, err := ledger.AvailableQuantity(ctx, sku)
	require.NoError(t, err)
	assert.Equal(t, 2, avail)

	_, err = ledger.CreateHold(ctx, "cart-b", sku, 3, 0)
	assert.ErrorIs(t, err, apperr.InsufficientStock)

	// replacing a cart's own hold does not count it twice
	_, err = ledger.CreateHold(ctx, "cart-a", sku, 5, 0)
	require.NoError(t, err)

	// zero denomination is its own bucket, distinct from unset
	d0 := inventory.Key{ProductID: "gift", Denomination: inventory.Denom(0)}
	_, err = ledger.CreateHold(ctx, "cart-a", d0, 1, 0)
	require.NoError(t, err)
	_, err = ledger.CreateHold(ctx, "cart-b", d0, 1, 0)
	assert.ErrorIs(t, err, apperr.InsufficientStock)
	avail, err = ledger.AvailableQuantity(ctx, inventory.Key{ProductID: "gift", Denomination: inventory.Denom(25)})
	require.NoError(t, err)
	assert.Equal(t, 4, avail)

	n, err := ledger.ReleaseCart(ctx, "cart-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	avail, err = ledger.AvailableQuantity(ctx, sku)
	require.NoError(t, err)
	assert.Equal(t, 5, avail)
}

func TestPGStoreSweepAndExpiry(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	pgtest.SeedProduct(t, db, "sku-1", 1000, intPtr(2), nil, nil)

	ledger := inventory.NewLedger(&inventory.PGStore{DB: db}, time.Minute, zerolog.New(io.Discard))
	sku := inventory.Key{ProductID: "sku-1"}

	_, err := ledger.CreateHold(ctx, "cart-a", sku, 2, 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	avail, err := ledger.AvailableQuantity(ctx, sku)
	require.NoError(t, err)
	assert.Equal(t, 2, avail, "expired holds stop counting before the sweep")

	n, err := ledger.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPGStoreDecrementClamps(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	pgtest.SeedProduct(t, db, "sku-1", 1000, intPtr(3), nil, nil)
	pgtest.SeedProduct(t, db, "gift", 0, nil, map[int]int{10: 1, 25: 2}, nil)

	err := postgres.WithTx(ctx, db, func(tx pgx.Tx) error {
		store := &inventory.PGStore{DB: tx}

		taken, err := store.Decrement(ctx, inventory.Key{ProductID: "sku-1"}, 5)
		require.NoError(t, err)
		assert.Equal(t, 3, taken)

		taken, err = store.Decrement(ctx, inventory.Key{ProductID: "gift", Denomination: inventory.Denom(25)}, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, taken)
		return nil
	})
	require.NoError(t, err)

	store := &inventory.PGStore{DB: db}
	p, err := store.Product(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 0, *p.Stock)

	p, err = store.Product(ctx, "gift")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{10: 1, 25: 1}, p.DenominationStock)

	_, err = store.Product(ctx, "missing")
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}
