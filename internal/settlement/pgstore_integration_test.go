//go:build integration

package settlement

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/postgres/pgtest"
)

func TestSettleAgainstPostgres(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	stock := 1
	pgtest.SeedProduct(t, db, "p1", 2100, &stock, nil, nil)

	repo := &orders.Repo{DB: db}
	o := pendingOrder(uuid.NewString(), "ORD-0001", 4200, orders.MethodCryptoTransfer)
	o.CreatedAt, o.UpdatedAt = time.Now().UTC(), time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &o))

	ledger := inventory.NewLedger(&inventory.PGStore{DB: db}, time.Minute, zerolog.New(io.Discard))
	_, err := ledger.CreateHold(ctx, o.CartID, inventory.Key{ProductID: "p1"}, 1, 0)
	require.NoError(t, err)

	pub := &fakePublisher{}
	rec := New(Deps{
		Adapters:  gateway.NewRegistry(gateway.NewCryptoTransfer(gateway.CryptoTransferConfig{ToleranceBPS: 100}, nil)),
		Tx:        PGRunner{Pool: db},
		Publisher: pub,
		Log:       zerolog.New(io.Discard),
		Service:   "test",
	})

	cb := cryptoCallback("ORD-0001", o.CallbackToken, "0xfeed", "42.00")
	res, err := rec.SettleCallback(ctx, gateway.RailCryptoTransfer, cb)
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, orders.StatusCompleted, res.Status)

	got, err := repo.ByNumber(ctx, "ORD-0001")
	require.NoError(t, err)
	assert.Equal(t, orders.FulfillmentOversold, got.FulfillmentStatus, "two ordered, one in stock")
	assert.Equal(t, "0xfeed", got.ProviderTxID)

	p, err := (&inventory.PGStore{DB: db}).Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, *p.Stock)

	avail, err := ledger.AvailableQuantity(ctx, inventory.Key{ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 0, avail)
	var holds int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM product_holds WHERE cart_id=$1`, o.CartID).Scan(&holds))
	assert.Zero(t, holds)

	// redelivery without a dedup cache is settled by the database
	res, err = rec.SettleCallback(ctx, gateway.RailCryptoTransfer, cb)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 1, pub.count())
}
