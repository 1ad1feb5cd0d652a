// Package settlement applies payment-provider callbacks to orders. It is the
// only writer of an order's payment status after checkout, and every write
// happens in one database transaction so a redelivered or concurrent callback
// sees either all of a settlement or none of it.
package settlement

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/tracing"
)

type OrderStore interface {
	FindForUpdate(ctx context.Context, number, providerRef string) (orders.Order, error)
	ClaimTransaction(ctx context.Context, rail, txID, orderID string) (string, error)
	ApplyPayment(ctx context.Context, u orders.PaymentUpdate) error
}

type StockStore interface {
	Decrement(ctx context.Context, key inventory.Key, qty int) (int, error)
	DeleteCart(ctx context.Context, cartID string) (int, error)
}

// Tx is the set of stores bound to one transaction.
type Tx interface {
	Orders() OrderStore
	Stock() StockStore
	Affiliates() affiliate.Store
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// KV is a best-effort JSON cache; see redisx.JSONStore.
type KV interface {
	Get(ctx context.Context, id string, out any) (bool, error)
	Put(ctx context.Context, id string, v any) error
}

type Deps struct {
	Adapters  *gateway.Registry
	Tx        TxRunner
	Dedup     KV // optional
	Cache     KV // optional
	Publisher orders.Publisher
	Log       zerolog.Logger
	Service   string
}

type Reconciler struct {
	adapters *gateway.Registry
	tx       TxRunner
	dedup    KV
	cache    KV
	pub      orders.Publisher
	log      zerolog.Logger
	service  string
	now      func() time.Time
}

func New(d Deps) *Reconciler {
	return &Reconciler{
		adapters: d.Adapters,
		tx:       d.Tx,
		dedup:    d.Dedup,
		cache:    d.Cache,
		pub:      d.Publisher,
		log:      d.Log.With().Str("component", "settlement").Logger(),
		service:  d.Service,
		now:      time.Now,
	}
}

// Result is the outcome of one callback. The JSON form is the POST webhook
// response body.
type Result struct {
	OK          bool                 `json:"success"`
	Updated     bool                 `json:"updated"`
	OrderID     string               `json:"orderId,omitempty"`
	OrderNumber string               `json:"orderNumber,omitempty"`
	Status      orders.PaymentStatus `json:"paymentStatus,omitempty"`
	// Duplicate is set when the provider transaction belongs to another order.
	Duplicate bool   `json:"-"`
	AckText   string `json:"-"`
}

// Recognizes reports whether raw has the callback shape of rail. The webhook
// endpoint answers unrecognized GETs with an informational body.
func (r *Reconciler) Recognizes(rail gateway.Rail, raw gateway.RawPayload) bool {
	a, ok := r.adapters.Get(rail)
	if !ok {
		return false
	}
	f, err := gateway.ParsePayload(raw)
	return err == nil && a.Recognizes(f)
}

func (r *Reconciler) Methods(rail gateway.Rail) []string {
	if a, ok := r.adapters.Get(rail); ok {
		return a.Methods()
	}
	return nil
}

// SettleCallback parses, validates and applies one provider callback. It is
// safe to call again with the same payload.
func (r *Reconciler) SettleCallback(ctx context.Context, rail gateway.Rail, raw gateway.RawPayload) (Result, error) {
	a, ok := r.adapters.Get(rail)
	if !ok {
		return Result{}, apperr.Newf(apperr.KindNotFound, "unknown payment rail %q", rail)
	}
	fields, err := gateway.ParsePayload(raw)
	if err != nil {
		return Result{}, err
	}
	if !a.Recognizes(fields) {
		return Result{}, apperr.Newf(apperr.KindMalformedPayload, "payload is not a %s callback", rail)
	}
	cb, err := a.Normalize(raw, fields)
	if err != nil {
		return Result{}, err
	}
	return r.settle(ctx, a, cb)
}

func (r *Reconciler) settle(ctx context.Context, a gateway.Adapter, cb gateway.Callback) (Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "settlement.settle", trace.WithAttributes(
		attribute.String("rail", string(cb.Rail)),
		attribute.String("provider_tx_id", cb.ProviderTxID),
		attribute.String("outcome", string(cb.Outcome)),
	))
	defer span.End()

	log := r.log.With().
		Str("rail", string(cb.Rail)).
		Str("provider_tx_id", cb.ProviderTxID).
		Str("order_ref", cb.OrderRef).
		Str("outcome", string(cb.Outcome)).
		Logger()

	markID := strings.Join([]string{string(cb.Rail), cb.ProviderTxID, string(cb.Outcome), firstNonEmpty(cb.OrderRef, cb.ProviderReference)}, ":")
	if res, ok := r.seen(ctx, markID, cb, log); ok {
		return res, nil
	}

	var (
		res     Result
		settled orders.Order
	)
	err := r.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().FindForUpdate(ctx, cb.OrderRef, cb.ProviderReference)
		if errors.Is(err, orders.ErrNotFound) {
			return apperr.Newf(apperr.KindOrderNotFound, "order %s not found", firstNonEmpty(cb.OrderRef, cb.ProviderReference))
		}
		if err != nil {
			return err
		}
		res = Result{OK: true, OrderID: o.ID, OrderNumber: o.Number, Status: o.PaymentStatus, AckText: cb.AckText}

		if err := verify(a, cb, o, log); err != nil {
			return err
		}
		if cb.ProviderTxID != "" {
			owner, err := tx.Orders().ClaimTransaction(ctx, string(cb.Rail), cb.ProviderTxID, o.ID)
			if err != nil {
				return err
			}
			if owner != o.ID {
				res.Duplicate = true
				return nil
			}
		}
		if o.PaymentStatus.Terminal() {
			return nil
		}
		next := cb.Outcome.Status()
		if !orders.CanTransition(o.PaymentStatus, next) {
			return nil
		}

		settled, err = r.apply(ctx, tx, o, next, cb.ProviderTxID, log)
		if err != nil {
			return err
		}
		res.Updated = true
		res.Status = settled.PaymentStatus
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, r.fail(err, log)
	}

	switch {
	case res.Duplicate:
		span.SetAttributes(attribute.Bool("duplicate", true))
		log.Warn().Str("order", res.OrderNumber).Msg("provider transaction already applied to another order")
		return res, nil
	case res.Updated:
		log.Info().Str("order", res.OrderNumber).Str("status", string(res.Status)).Msg("order settled")
		r.publish(ctx, settled, cb.Rail, "", log)
	default:
		log.Debug().Str("order", res.OrderNumber).Str("status", string(res.Status)).Msg("callback already applied")
	}
	if res.Status.Terminal() {
		r.mark(ctx, markID, cb, res, log)
	}
	return res, nil
}

// verify checks the callback against the locked order. Amounts are only
// checked on success callbacks; failure notices often carry none.
//
// A retried initiation overwrites the stored provider reference, so a stale
// reference is only fatal when the order was not matched by its number.
func verify(a gateway.Adapter, cb gateway.Callback, o orders.Order, log zerolog.Logger) error {
	if cb.Token != "" && subtle.ConstantTimeCompare([]byte(cb.Token), []byte(o.CallbackToken)) != 1 {
		return apperr.New(apperr.KindInvalidSignature, "callback token does not match order")
	}
	if cb.ProviderReference != "" && o.ProviderReference != "" && cb.ProviderReference != o.ProviderReference {
		if cb.OrderRef == "" || cb.OrderRef != o.Number {
			return apperr.New(apperr.KindPaymentMismatch, "provider reference does not match order").
				WithDetail("orderNumber", o.Number)
		}
		log.Warn().Str("order", o.Number).
			Str("callback_reference", cb.ProviderReference).
			Str("current_reference", o.ProviderReference).
			Msg("callback for an earlier payment initiation")
	}
	if cb.Outcome != gateway.OutcomeSucceeded {
		return nil
	}
	if !cb.HasAmount {
		return apperr.New(apperr.KindMalformedPayload, "success callback without amount")
	}
	if cb.Currency != "" && !strings.EqualFold(cb.Currency, o.Currency) {
		return apperr.Newf(apperr.KindPaymentMismatch, "currency %s does not match order currency %s", cb.Currency, o.Currency).
			WithDetail("orderNumber", o.Number)
	}
	diff := cb.AmountCents - o.TotalCents
	if diff < 0 {
		diff = -diff
	}
	if diff > a.Tolerance(o.TotalCents) {
		return apperr.Newf(apperr.KindPaymentMismatch, "paid %s, expected %s", gateway.FromCents(cb.AmountCents), gateway.FromCents(o.TotalCents)).
			WithDetail("orderNumber", o.Number)
	}
	return nil
}

// fail logs err at a level matching its kind and hides internals from callers.
func (r *Reconciler) fail(err error, log zerolog.Logger) error {
	switch apperr.KindOf(err) {
	case apperr.KindInternal:
		log.Error().Err(err).Msg("settlement failed")
		return apperr.Wrap(apperr.KindInternal, "settlement failed", err)
	case apperr.KindPaymentMismatch, apperr.KindInvalidSignature:
		log.Warn().Err(err).Msg("callback rejected, order left for review")
	default:
		log.Info().Err(err).Msg("callback rejected")
	}
	return err
}

func (r *Reconciler) seen(ctx context.Context, markID string, cb gateway.Callback, log zerolog.Logger) (Result, bool) {
	if r.dedup == nil || cb.ProviderTxID == "" || cb.Outcome == gateway.OutcomeProcessing {
		return Result{}, false
	}
	var res Result
	found, err := r.dedup.Get(ctx, markID, &res)
	if err != nil {
		log.Warn().Err(err).Msg("dedup lookup failed, falling back to database")
		return Result{}, false
	}
	if !found {
		return Result{}, false
	}
	res.Updated = false
	res.AckText = cb.AckText
	log.Debug().Str("order", res.OrderNumber).Msg("callback already settled")
	return res, true
}

func (r *Reconciler) mark(ctx context.Context, markID string, cb gateway.Callback, res Result, log zerolog.Logger) {
	if r.dedup == nil || cb.ProviderTxID == "" {
		return
	}
	if err := r.dedup.Put(ctx, markID, res); err != nil {
		log.Warn().Err(err).Msg("write dedup mark")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
