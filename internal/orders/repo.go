package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/postgres"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
)

// Repo reads and writes orders. DB is a pool or a transaction; methods that
// lock rows must be called inside a transaction.
type Repo struct{ DB postgres.DBTX }

const orderColumns = `id, number, cart_id, subtotal_cents, tax_cents, shipping_cents, total_cents,
	currency, payment_method, payment_status, fulfillment_status, provider_reference,
	provider_tx_id, callback_token, affiliate_wallet, customer, shipping_address,
	billing_address, created_at, updated_at, settled_at`

// NextNumber allocates the next human-readable order number.
func (r *Repo) NextNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.DB.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return fmt.Sprintf("ORD-%04d", n), nil
}

// Insert persists o and its line items. The caller wraps it in a transaction
// when atomicity with other writes matters.
func (r *Repo) Insert(ctx context.Context, o *Order) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, number, cart_id, subtotal_cents, tax_cents, shipping_cents, total_cents,
			currency, payment_method, payment_status, fulfillment_status, callback_token,
			affiliate_wallet, customer, shipping_address, billing_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)`,
		o.ID, o.Number, o.CartID, o.SubtotalCents, o.TaxCents, o.ShippingCents, o.TotalCents,
		o.Currency, string(o.PaymentMethod), string(o.PaymentStatus), string(o.FulfillmentStatus),
		o.CallbackToken, nullable(o.AffiliateWallet), o.Customer, o.ShippingAddress, o.BillingAddress,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		_, err = r.DB.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, denomination, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, i, it.ProductID, it.Denomination.Arg(), it.Quantity, it.UnitPriceCents,
		)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

func (r *Repo) ByNumber(ctx context.Context, number string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE number=$1`, number))
	if err != nil {
		return Order{}, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// FindForUpdate locks the order matching number, falling back to the stored
// provider reference when number is empty or unknown.
func (r *Repo) FindForUpdate(ctx context.Context, number, providerRef string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 <> '' AND number = $1) OR ($2 <> '' AND provider_reference = $2)
		ORDER BY (number = $1) DESC
		LIMIT 1
		FOR UPDATE`, number, providerRef))
	if err != nil {
		return Order{}, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// SetProviderReference records the rail's reference for a still-pending order.
func (r *Repo) SetProviderReference(ctx context.Context, orderID, ref string) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE orders SET provider_reference=$2, updated_at=now()
		WHERE id=$1 AND payment_status='pending'`, orderID, ref)
	if err != nil {
		return fmt.Errorf("set provider reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) ApplyPayment(ctx context.Context, u PaymentUpdate) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET payment_status=$2, fulfillment_status=$3,
		    provider_tx_id=COALESCE($4, provider_tx_id),
		    settled_at=COALESCE($5, settled_at),
		    updated_at=now()
		WHERE id=$1`,
		u.OrderID, string(u.Status), string(u.FulfillmentStatus), nullable(u.ProviderTxID), u.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("apply payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimTransaction binds (rail, txID) to orderID on first sight and returns
// the order that owns it.
func (r *Repo) ClaimTransaction(ctx context.Context, rail, txID, orderID string) (string, error) {
	if _, err := r.DB.Exec(ctx, `
		INSERT INTO payment_transactions(rail, provider_tx_id, order_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (rail, provider_tx_id) DO NOTHING`, rail, txID, orderID); err != nil {
		return "", fmt.Errorf("claim transaction: %w", err)
	}
	var owner string
	err := r.DB.QueryRow(ctx, `
		SELECT order_id::text FROM payment_transactions WHERE rail=$1 AND provider_tx_id=$2`,
		rail, txID).Scan(&owner)
	if err != nil {
		return "", fmt.Errorf("load transaction owner: %w", err)
	}
	return owner, nil
}

// Prices returns the current unit price for every key. Client-supplied prices
// are never trusted.
func (r *Repo) Prices(ctx context.Context, keys []inventory.Key) (map[inventory.Key]int64, error) {
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ProductID)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, price_cents, COALESCE(denomination_prices, '{}'::jsonb)
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	defer rows.Close()

	type priced struct {
		base   int64
		byDeno map[string]int64
	}
	found := map[string]priced{}
	for rows.Next() {
		var (
			id string
			p  priced
		)
		if err := rows.Scan(&id, &p.base, &p.byDeno); err != nil {
			return nil, err
		}
		found[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[inventory.Key]int64, len(keys))
	for _, k := range keys {
		p, ok := found[k.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, k.ProductID)
		}
		price := p.base
		if k.Denomination.Set {
			if v, ok := p.byDeno[strconv.Itoa(k.Denomination.Value)]; ok {
				price = v
			}
		}
		out[k] = price
	}
	return out, nil
}

func (r *Repo) items(ctx context.Context, orderID string) ([]LineItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, denomination, qty, unit_price_cents
		FROM order_items WHERE order_id=$1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var (
			it    LineItem
			denom *int
		)
		if err := rows.Scan(&it.ProductID, &denom, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		it.Denomination = inventory.FromPtr(denom)
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                               Order
		method, status, fulfillment     string
		providerRef, providerTx, wallet *string
		settledAt                       *time.Time
	)
	err := row.Scan(&o.ID, &o.Number, &o.CartID, &o.SubtotalCents, &o.TaxCents, &o.ShippingCents,
		&o.TotalCents, &o.Currency, &method, &status, &fulfillment, &providerRef, &providerTx,
		&o.CallbackToken, &wallet, &o.Customer, &o.ShippingAddress, &o.BillingAddress,
		&o.CreatedAt, &o.UpdatedAt, &settledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.PaymentMethod = PaymentMethod(method)
	o.PaymentStatus = PaymentStatus(status)
	o.FulfillmentStatus = FulfillmentStatus(fulfillment)
	o.ProviderReference = deref(providerRef)
	o.ProviderTxID = deref(providerTx)
	o.AffiliateWallet = deref(wallet)
	o.SettledAt = settledAt
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Create inserts o and its items atomically, opening a transaction (or a
// savepoint when DB is already a transaction).
func (r *Repo) Create(ctx context.Context, o *Order) error {
	b, ok := r.DB.(beginner)
	if !ok {
		return r.Insert(ctx, o)
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := (&Repo{DB: tx}).Insert(ctx, o); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
