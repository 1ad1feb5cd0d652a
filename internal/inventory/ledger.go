// Package inventory is the inventory hold ledger: short-lived per-cart
// reservations that gate checkout against oversell.
//
// Availability reads and hold creation are deliberately lock-free. Two carts
// can both pass the check for the last unit; settlement's stock decrement is
// the authoritative gate and flags any shortfall on the order.
package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
)

var ErrProductNotFound = errors.New("product not found")

type Hold struct {
	CartID    string    `json:"cartId"`
	Key       Key       `json:"-"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h Hold) Active(now time.Time) bool { return h.ExpiresAt.After(now) }

type Store interface {
	Product(ctx context.Context, productID string) (Product, error)
	// SumActiveHolds totals holds on key expiring after now, skipping
	// excludeCart's own hold when it is non-empty.
	SumActiveHolds(ctx context.Context, key Key, now time.Time, excludeCart string) (int, error)
	UpsertHold(ctx context.Context, h Hold) error
	DeleteHold(ctx context.Context, cartID string, key Key) error
	DeleteCart(ctx context.Context, cartID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Ledger struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time
}

func NewLedger(store Store, defaultTTL time.Duration, log zerolog.Logger) *Ledger {
	return &Ledger{
		store: store,
		ttl:   defaultTTL,
		log:   log.With().Str("component", "hold-ledger").Logger(),
		now:   time.Now,
	}
}

// AvailableQuantity is stock minus active holds, floored at zero. It is a
// point-in-time read and takes no locks.
func (l *Ledger) AvailableQuantity(ctx context.Context, key Key) (int, error) {
	return l.available(ctx, key, "")
}

func (l *Ledger) available(ctx context.Context, key Key, excludeCart string) (int, error) {
	p, err := l.store.Product(ctx, key.ProductID)
	if errors.Is(err, ErrProductNotFound) {
		return 0, apperr.Newf(apperr.KindNotFound, "product %s not found", key.ProductID)
	}
	if err != nil {
		return 0, err
	}
	held, err := l.store.SumActiveHolds(ctx, key, l.now(), excludeCart)
	if err != nil {
		return 0, err
	}
	return max(p.StockFor(key.Denomination)-held, 0), nil
}

// CreateHold reserves quantity of key for cartID, replacing the cart's
// existing hold on the same key. ttl <= 0 uses the ledger default.
func (l *Ledger) CreateHold(ctx context.Context, cartID string, key Key, quantity int, ttl time.Duration) (Hold, error) {
	if cartID == "" || key.ProductID == "" {
		return Hold{}, apperr.New(apperr.KindValidation, "cart and product are required")
	}
	if quantity <= 0 {
		return Hold{}, apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	if ttl <= 0 {
		ttl = l.ttl
	}

	avail, err := l.available(ctx, key, cartID)
	if err != nil {
		return Hold{}, err
	}
	if quantity > avail {
		return Hold{}, apperr.Newf(apperr.KindInsufficientStock, "only %d of %s available", avail, key).
			WithDetail("productId", key.ProductID).
			WithDetail("available", strconv.Itoa(avail))
	}

	h := Hold{CartID: cartID, Key: key, Quantity: quantity, ExpiresAt: l.now().Add(ttl)}
	if err := l.store.UpsertHold(ctx, h); err != nil {
		return Hold{}, err
	}
	l.log.Debug().Str("cart", cartID).Stringer("key", key).Int("qty", quantity).Msg("hold created")
	return h, nil
}

// ReleaseHold is idempotent.
func (l *Ledger) ReleaseHold(ctx context.Context, cartID string, key Key) error {
	return l.store.DeleteHold(ctx, cartID, key)
}

func (l *Ledger) ReleaseCart(ctx context.Context, cartID string) (int, error) {
	return l.store.DeleteCart(ctx, cartID)
}

// Sweep deletes every hold expired at the current time.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	n, err := l.store.DeleteExpired(ctx, l.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.Info().Int("released", n).Msg("expired holds swept")
	}
	return n, nil
}
