package httpx_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/checkout"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/settlement"
)

type MockSettler struct{ mock.Mock }

func (m *MockSettler) SettleCallback(ctx context.Context, rail gateway.Rail, raw gateway.RawPayload) (settlement.Result, error) {
	args := m.Called(ctx, rail, raw)
	return args.Get(0).(settlement.Result), args.Error(1)
}

func (m *MockSettler) Recognizes(rail gateway.Rail, raw gateway.RawPayload) bool {
	return m.Called(rail, raw).Bool(0)
}

func (m *MockSettler) Methods(rail gateway.Rail) []string {
	args := m.Called(rail)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

type MockCheckout struct{ mock.Mock }

func (m *MockCheckout) PlaceOrder(ctx context.Context, in checkout.PlaceOrderInput) (orders.Order, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockCheckout) InitiatePayment(ctx context.Context, number string) (gateway.Initiation, error) {
	args := m.Called(ctx, number)
	return args.Get(0).(gateway.Initiation), args.Error(1)
}

type MockOrders struct{ mock.Mock }

func (m *MockOrders) ByNumber(ctx context.Context, number string) (orders.Order, error) {
	args := m.Called(ctx, number)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockOrders) Override(ctx context.Context, number string, status orders.PaymentStatus, actor string) (orders.Order, error) {
	args := m.Called(ctx, number, status, actor)
	return args.Get(0).(orders.Order), args.Error(1)
}

type MockLedger struct{ mock.Mock }

func (m *MockLedger) AvailableQuantity(ctx context.Context, key inventory.Key) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) CreateHold(ctx context.Context, cartID string, key inventory.Key, qty int, ttl time.Duration) (inventory.Hold, error) {
	args := m.Called(ctx, cartID, key, qty, ttl)
	return args.Get(0).(inventory.Hold), args.Error(1)
}

func (m *MockLedger) ReleaseHold(ctx context.Context, cartID string, key inventory.Key) error {
	return m.Called(ctx, cartID, key).Error(0)
}

type MockAffiliates struct{ mock.Mock }

func (m *MockAffiliates) Create(ctx context.Context, wallet string, rate decimal.Decimal) (affiliate.Account, error) {
	args := m.Called(ctx, wallet, rate.String())
	return args.Get(0).(affiliate.Account), args.Error(1)
}

func (m *MockAffiliates) Get(ctx context.Context, wallet string) (affiliate.Account, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).(affiliate.Account), args.Error(1)
}

// memCache is a map-backed StatusCache.
type memCache map[string][]byte

func (c memCache) Get(_ context.Context, id string, out any) (bool, error) {
	b, ok := c[id]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (c memCache) Put(_ context.Context, id string, v any) error {
	b, err := json.Marshal(v)
	c[id] = b
	return err
}

// racingCache misses the first read and then acts as if another writer
// cached view in the meantime.
type racingCache struct {
	memCache
	view  orders.StatusView
	reads int
}

func (c *racingCache) Get(ctx context.Context, id string, out any) (bool, error) {
	c.reads++
	if c.reads == 1 {
		_ = c.memCache.Put(ctx, id, c.view)
		return false, nil
	}
	return c.memCache.Get(ctx, id, out)
}
