package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-settlement/internal/postgres"
)

// PGStore implements Store on the products and product_holds tables. Hold
// expiry is stored as epoch milliseconds.
type PGStore struct{ DB postgres.DBTX }

func (s *PGStore) Product(ctx context.Context, productID string) (Product, error) {
	return s.product(ctx, productID, false)
}

func (s *PGStore) product(ctx context.Context, productID string, lock bool) (Product, error) {
	q := `SELECT id, stock, denomination_stock FROM products WHERE id=$1`
	if lock {
		q += ` FOR UPDATE`
	}
	var p Product
	err := s.DB.QueryRow(ctx, q, productID).Scan(&p.ID, &p.Stock, &p.DenominationStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	return p, nil
}

func (s *PGStore) SumActiveHolds(ctx context.Context, key Key, now time.Time, excludeCart string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty), 0)
		FROM product_holds
		WHERE product_id = $1
		  AND denomination IS NOT DISTINCT FROM $2::integer
		  AND expires_at_ms > $3
		  AND cart_id <> $4`,
		key.ProductID, key.Denomination.Arg(), now.UnixMilli(), excludeCart,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum holds %s: %w", key, err)
	}
	return n, nil
}

func (s *PGStore) UpsertHold(ctx context.Context, h Hold) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO product_holds(cart_id, product_id, denomination, qty, expires_at_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id, denomination)
		DO UPDATE SET qty = EXCLUDED.qty, expires_at_ms = EXCLUDED.expires_at_ms`,
		h.CartID, h.Key.ProductID, h.Key.Denomination.Arg(), h.Quantity, h.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert hold %s/%s: %w", h.CartID, h.Key, err)
	}
	return nil
}

func (s *PGStore) DeleteHold(ctx context.Context, cartID string, key Key) error {
	_, err := s.DB.Exec(ctx, `
		DELETE FROM product_holds
		WHERE cart_id = $1 AND product_id = $2 AND denomination IS NOT DISTINCT FROM $3::integer`,
		cartID, key.ProductID, key.Denomination.Arg())
	if err != nil {
		return fmt.Errorf("delete hold %s/%s: %w", cartID, key, err)
	}
	return nil
}

func (s *PGStore) DeleteCart(ctx context.Context, cartID string) (int, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM product_holds WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("delete cart holds %s: %w", cartID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM product_holds WHERE expires_at_ms <= $1`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired holds: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Decrement locks the product row and removes up to qty units for key,
// clamped at zero. It returns the units actually taken and must run inside
// the settlement transaction.
func (s *PGStore) Decrement(ctx context.Context, key Key, qty int) (int, error) {
	p, err := s.product(ctx, key.ProductID, true)
	if err != nil {
		return 0, err
	}
	taken := p.Take(key.Denomination, qty)
	if _, err := s.DB.Exec(ctx, `
		UPDATE products SET stock = $2, denomination_stock = $3, updated_at = now()
		WHERE id = $1`, p.ID, p.Stock, p.DenominationStock); err != nil {
		return 0, fmt.Errorf("decrement stock %s: %w", key, err)
	}
	return taken, nil
}
