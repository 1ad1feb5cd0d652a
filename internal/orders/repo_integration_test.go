//go:build integration

package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/postgres/pgtest"
)

func TestRepoRoundTrip(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	stock := 10
	pgtest.SeedProduct(t, db, "sku-1", 1500, &stock, nil, nil)
	pgtest.SeedProduct(t, db, "gift", 1000, nil, map[int]int{0: 2, 50: 2}, map[int]int64{50: 5000})

	repo := &orders.Repo{DB: db}

	prices, err := repo.Prices(ctx, []inventory.Key{
		{ProductID: "sku-1"},
		{ProductID: "gift", Denomination: inventory.Denom(50)},
		{ProductID: "gift", Denomination: inventory.Denom(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), prices[inventory.Key{ProductID: "sku-1"}])
	assert.Equal(t, int64(5000), prices[inventory.Key{ProductID: "gift", Denomination: inventory.Denom(50)}])
	assert.Equal(t, int64(1000), prices[inventory.Key{ProductID: "gift", Denomination: inventory.Denom(0)}])

	_, err = repo.Prices(ctx, []inventory.Key{{ProductID: "nope"}})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)

	first, err := repo.NextNumber(ctx)
	require.NoError(t, err)
	second, err := repo.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ORD-0001", first)
	assert.Equal(t, "ORD-0002", second)

	now := time.Now().UTC().Truncate(time.Millisecond)
	o := orders.Order{
		ID:                uuid.NewString(),
		Number:            first,
		CartID:            "cart-1",
		Items:             []orders.LineItem{{ProductID: "sku-1", Quantity: 2, UnitPriceCents: 1500}, {ProductID: "gift", Denomination: inventory.Denom(0), Quantity: 1, UnitPriceCents: 1000}},
		SubtotalCents:     4000,
		TotalCents:        4000,
		Currency:          "USD",
		PaymentMethod:     orders.MethodCard,
		PaymentStatus:     orders.StatusPending,
		FulfillmentStatus: orders.FulfillmentUnfulfilled,
		CallbackToken:     "tok",
		Customer:          orders.Contact{Name: "Ada", Email: "ada@example.com"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, repo.Create(ctx, &o))

	got, err := repo.ByNumber(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.Items, got.Items)
	assert.Equal(t, "ada@example.com", got.Customer.Email)
	assert.Empty(t, got.ProviderReference)
	assert.Nil(t, got.SettledAt)

	require.NoError(t, repo.SetProviderReference(ctx, o.ID, "pay_123"))
	byRef, err := repo.FindForUpdate(ctx, "", "pay_123")
	require.NoError(t, err)
	assert.Equal(t, first, byRef.Number)

	owner, err := repo.ClaimTransaction(ctx, "card", "tx-1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, owner)
	owner, err = repo.ClaimTransaction(ctx, "card", "tx-1", uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, o.ID, owner, "first claim wins")

	settled := time.Now().UTC()
	require.NoError(t, repo.ApplyPayment(ctx, orders.PaymentUpdate{
		OrderID: o.ID, Status: orders.StatusCompleted, FulfillmentStatus: orders.FulfillmentReady,
		ProviderTxID: "tx-1", SettledAt: &settled,
	}))
	got, err = repo.ByNumber(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, got.PaymentStatus)
	assert.Equal(t, "tx-1", got.ProviderTxID)
	assert.NotNil(t, got.SettledAt)

	assert.ErrorIs(t, repo.SetProviderReference(ctx, o.ID, "pay_456"), orders.ErrNotFound)
	_, err = repo.ByNumber(ctx, "ORD-9999")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
