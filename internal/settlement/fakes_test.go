package settlement

import (
	"context"
	"errors"
	"maps"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

// state is the in-memory record store. A transaction works on a clone and
// replaces the committed state only when fn succeeds.
type state struct {
	orders     map[string]orders.Order // by id
	claims     map[string]string       // rail|txid -> order id
	stock      map[inventory.Key]int
	holds      map[string]int // cart -> hold count
	affiliates map[string]affiliate.Account
	writes     int
}

func newState() *state {
	return &state{
		orders:     map[string]orders.Order{},
		claims:     map[string]string{},
		stock:      map[inventory.Key]int{},
		holds:      map[string]int{},
		affiliates: map[string]affiliate.Account{},
	}
}

func (s *state) clone() *state {
	return &state{
		orders:     maps.Clone(s.orders),
		claims:     maps.Clone(s.claims),
		stock:      maps.Clone(s.stock),
		holds:      maps.Clone(s.holds),
		affiliates: maps.Clone(s.affiliates),
		writes:     s.writes,
	}
}

func (s *state) byNumber(number string) orders.Order {
	for _, o := range s.orders {
		if o.Number == number {
			return o
		}
	}
	return orders.Order{}
}

type fakeRunner struct {
	mu    sync.Mutex
	s     *state
	txErr error // returned by every store call when set
}

func (f *fakeRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	work := f.s.clone()
	if err := fn(ctx, fakeTx{s: work, err: f.txErr}); err != nil {
		return err
	}
	f.s = work
	return nil
}

func (f *fakeRunner) state() *state {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

type fakeTx struct {
	s   *state
	err error
}

func (t fakeTx) Orders() OrderStore          { return fakeOrders(t) }
func (t fakeTx) Stock() StockStore           { return fakeStock(t) }
func (t fakeTx) Affiliates() affiliate.Store { return fakeAffiliates(t) }

type fakeOrders fakeTx

func (f fakeOrders) FindForUpdate(_ context.Context, number, ref string) (orders.Order, error) {
	if f.err != nil {
		return orders.Order{}, f.err
	}
	for _, o := range f.s.orders {
		if number != "" && o.Number == number {
			return o, nil
		}
	}
	for _, o := range f.s.orders {
		if ref != "" && o.ProviderReference == ref {
			return o, nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (f fakeOrders) ClaimTransaction(_ context.Context, rail, txID, orderID string) (string, error) {
	k := rail + "|" + txID
	if owner, ok := f.s.claims[k]; ok {
		return owner, nil
	}
	f.s.claims[k] = orderID
	return orderID, nil
}

func (f fakeOrders) ApplyPayment(_ context.Context, u orders.PaymentUpdate) error {
	o, ok := f.s.orders[u.OrderID]
	if !ok {
		return orders.ErrNotFound
	}
	o.PaymentStatus = u.Status
	o.FulfillmentStatus = u.FulfillmentStatus
	if u.ProviderTxID != "" {
		o.ProviderTxID = u.ProviderTxID
	}
	if u.SettledAt != nil {
		o.SettledAt = u.SettledAt
	}
	f.s.orders[u.OrderID] = o
	f.s.writes++
	return nil
}

type fakeStock fakeTx

func (f fakeStock) Decrement(_ context.Context, key inventory.Key, qty int) (int, error) {
	have, ok := f.s.stock[key]
	if !ok {
		return 0, inventory.ErrProductNotFound
	}
	n := min(have, qty)
	f.s.stock[key] = have - n
	return n, nil
}

func (f fakeStock) DeleteCart(_ context.Context, cartID string) (int, error) {
	n := f.s.holds[cartID]
	delete(f.s.holds, cartID)
	return n, nil
}

type fakeAffiliates fakeTx

func (f fakeAffiliates) Insert(_ context.Context, a affiliate.Account) error {
	f.s.affiliates[a.Wallet] = a
	return nil
}

func (f fakeAffiliates) Get(_ context.Context, w string) (affiliate.Account, error) {
	a, ok := f.s.affiliates[w]
	if !ok {
		return affiliate.Account{}, affiliate.ErrNotFound
	}
	return a, nil
}

func (f fakeAffiliates) Record(_ context.Context, w string, tx, ok, c int64) error {
	a, found := f.s.affiliates[w]
	if !found {
		return affiliate.ErrNotFound
	}
	a.TotalTransactions += tx
	a.SuccessfulTransactions += ok
	a.CommissionCents += c
	f.s.affiliates[w] = a
	return nil
}

type memKV struct {
	mu   sync.Mutex
	data map[string]any
	err  error
}

func newMemKV() *memKV { return &memKV{data: map[string]any{}} }

func (m *memKV) Get(_ context.Context, id string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	v, ok := m.data[id]
	if !ok {
		return false, nil
	}
	res, isResult := v.(Result)
	dst, wantsResult := out.(*Result)
	if !isResult || !wantsResult {
		return false, errors.New("unexpected type")
	}
	*dst = res
	return true, nil
}

func (m *memKV) Put(_ context.Context, id string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[id] = v
	return nil
}

type published struct {
	topic string
	env   []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(topic string, _, value []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, env: value})
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}
