package settlement

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

// apply moves o to next and performs the side effects of that status inside
// tx. The caller has already checked the transition is allowed.
//
// Completion decrements stock by the ordered quantities. The decrement never
// goes below zero; a shortfall marks the order oversold instead of failing the
// payment, since the customer has already paid.
func (r *Reconciler) apply(ctx context.Context, tx Tx, o orders.Order, next orders.PaymentStatus, txID string, log zerolog.Logger) (orders.Order, error) {
	now := r.now().UTC()
	u := orders.PaymentUpdate{
		OrderID:           o.ID,
		Status:            next,
		FulfillmentStatus: o.FulfillmentStatus,
		ProviderTxID:      txID,
	}

	switch next {
	case orders.StatusCompleted:
		u.FulfillmentStatus = orders.FulfillmentReady
		for _, it := range o.Items {
			taken, err := tx.Stock().Decrement(ctx, it.Key(), it.Quantity)
			if err != nil && !errors.Is(err, inventory.ErrProductNotFound) {
				return o, err
			}
			if taken < it.Quantity {
				u.FulfillmentStatus = orders.FulfillmentOversold
				log.Warn().Str("order", o.Number).Stringer("key", it.Key()).
					Int("ordered", it.Quantity).Int("taken", taken).
					Msg("stock shortfall at settlement, order needs review")
			}
		}
		u.SettledAt = &now
	case orders.StatusFailed, orders.StatusCancelled:
		u.FulfillmentStatus = orders.FulfillmentVoid
	}

	if next.Terminal() {
		if _, err := tx.Stock().DeleteCart(ctx, o.CartID); err != nil {
			return o, err
		}
		if err := affiliate.Accrue(ctx, tx.Affiliates(), log, o.AffiliateWallet, o.TotalCents, next == orders.StatusCompleted); err != nil {
			return o, err
		}
	}

	if err := tx.Orders().ApplyPayment(ctx, u); err != nil {
		return o, err
	}

	o.PaymentStatus = next
	o.FulfillmentStatus = u.FulfillmentStatus
	o.UpdatedAt = now
	if txID != "" {
		o.ProviderTxID = txID
	}
	if u.SettledAt != nil {
		o.SettledAt = u.SettledAt
	}
	return o, nil
}

// Override lets an operator force a status, for example completing an order
// after reviewing a payment mismatch. The monotonic machine still applies and
// the same side effects run as for a callback.
func (r *Reconciler) Override(ctx context.Context, number string, status orders.PaymentStatus, actor string) (orders.Order, error) {
	if !status.Valid() {
		return orders.Order{}, apperr.Newf(apperr.KindValidation, "unknown payment status %q", status)
	}
	if actor == "" {
		return orders.Order{}, apperr.New(apperr.KindValidation, "actor is required")
	}
	log := r.log.With().Str("order", number).Str("actor", actor).Str("status", string(status)).Logger()

	var updated orders.Order
	err := r.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().FindForUpdate(ctx, number, "")
		if errors.Is(err, orders.ErrNotFound) {
			return apperr.Newf(apperr.KindOrderNotFound, "order %s not found", number)
		}
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.PaymentStatus, status) {
			return apperr.Newf(apperr.KindInvalidTransition, "cannot move order from %s to %s", o.PaymentStatus, status)
		}
		updated, err = r.apply(ctx, tx, o, status, "", log)
		return err
	})
	if err != nil {
		return orders.Order{}, r.fail(err, log)
	}

	log.Info().Msg("payment status overridden")
	r.publish(ctx, updated, "", actor, log)
	return updated, nil
}

func (r *Reconciler) publish(ctx context.Context, o orders.Order, rail gateway.Rail, actor string, log zerolog.Logger) {
	if r.cache != nil {
		if err := r.cache.Put(ctx, o.Number, o.View()); err != nil {
			log.Warn().Err(err).Msg("write status cache")
		}
	}
	env := orders.NewEnvelope(orders.EventPaymentStatusChanged, r.service, o.ID, traceID(ctx), orders.PaymentStatusChangedPayload{
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: string(o.FulfillmentStatus),
		Rail:              string(rail),
		ProviderTxID:      o.ProviderTxID,
		TotalCents:        o.TotalCents,
		Currency:          o.Currency,
		Actor:             actor,
	})
	orders.Emit(r.pub, orders.TopicPaymentStatus, env)
}
