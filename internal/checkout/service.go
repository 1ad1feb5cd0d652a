// Package checkout turns a cart into a pending order and starts payment on
// the order's rail.
package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/tracing"
)

type OrderRepo interface {
	NextNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, o *orders.Order) error
	ByNumber(ctx context.Context, number string) (orders.Order, error)
	SetProviderReference(ctx context.Context, orderID, ref string) error
	Prices(ctx context.Context, keys []inventory.Key) (map[inventory.Key]int64, error)
}

type HoldLedger interface {
	CreateHold(ctx context.Context, cartID string, key inventory.Key, quantity int, ttl time.Duration) (inventory.Hold, error)
	ReleaseHold(ctx context.Context, cartID string, key inventory.Key) error
}

type Settings struct {
	TaxRateBPS        int64
	ShippingFlatCents int64
	Currency          string
	HoldTTL           time.Duration
	GatewayTimeout    time.Duration
}

type Service struct {
	repo     OrderRepo
	holds    HoldLedger
	adapters *gateway.Registry
	pub      orders.Publisher
	cfg      Settings
	validate *validator.Validate
	log      zerolog.Logger
	service  string
	now      func() time.Time
}

func NewService(repo OrderRepo, holds HoldLedger, adapters *gateway.Registry, pub orders.Publisher, cfg Settings, log zerolog.Logger, service string) *Service {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Service{
		repo:     repo,
		holds:    holds,
		adapters: adapters,
		pub:      pub,
		cfg:      cfg,
		validate: apperr.NewValidator(),
		log:      log.With().Str("component", "checkout").Logger(),
		service:  service,
		now:      time.Now,
	}
}

type ItemInput struct {
	ProductID    string `json:"productId" validate:"required"`
	Denomination *int   `json:"denomination,omitempty" validate:"omitempty,gte=0"`
	Quantity     int    `json:"quantity" validate:"gt=0"`
}

type PlaceOrderInput struct {
	CartID          string               `json:"cartId"`
	Items           []ItemInput          `json:"items" validate:"required,min=1,dive"`
	Customer        orders.Contact       `json:"customer"`
	ShippingAddress orders.Address       `json:"shippingAddress"`
	BillingAddress  *orders.Address      `json:"billingAddress,omitempty"`
	PaymentMethod   orders.PaymentMethod `json:"paymentMethod" validate:"required,oneof=card crypto-commerce crypto-transfer cash-app"`
	AffiliateWallet string               `json:"affiliateWallet,omitempty" validate:"omitempty,eth_addr"`
}

// PlaceOrder prices the cart from the catalog, holds stock for every line and
// records a pending order. Holds taken by this call are released if any later
// step fails.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (orders.Order, error) {
	ctx, span := tracing.Tracer().Start(ctx, "checkout.place_order")
	defer span.End()

	if err := s.validate.StructCtx(ctx, in); err != nil {
		return orders.Order{}, apperr.FromValidation(err)
	}
	wallet := ""
	if in.AffiliateWallet != "" {
		w, err := affiliate.NormalizeWallet(in.AffiliateWallet)
		if err != nil {
			return orders.Order{}, err
		}
		wallet = w
	}
	cartID := in.CartID
	if cartID == "" {
		cartID = uuid.NewString()
	}

	items := mergeItems(in.Items)
	keys := make([]inventory.Key, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Key())
	}
	prices, err := s.repo.Prices(ctx, keys)
	if errors.Is(err, orders.ErrProductNotFound) {
		return orders.Order{}, apperr.Wrap(apperr.KindValidation, "unknown product", err)
	}
	if err != nil {
		return orders.Order{}, err
	}

	var subtotal int64
	for i := range items {
		items[i].UnitPriceCents = prices[items[i].Key()]
		subtotal += items[i].UnitPriceCents * int64(items[i].Quantity)
	}
	tax := Tax(subtotal, s.cfg.TaxRateBPS)

	var held []inventory.Key
	release := func() {
		rctx := context.WithoutCancel(ctx)
		for _, k := range held {
			if err := s.holds.ReleaseHold(rctx, cartID, k); err != nil {
				s.log.Warn().Err(err).Str("cart", cartID).Stringer("key", k).Msg("release hold after failed checkout")
			}
		}
	}
	for _, it := range items {
		if _, err := s.holds.CreateHold(ctx, cartID, it.Key(), it.Quantity, s.cfg.HoldTTL); err != nil {
			release()
			return orders.Order{}, err
		}
		held = append(held, it.Key())
	}

	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		release()
		return orders.Order{}, err
	}
	now := s.now().UTC()
	o := orders.Order{
		ID:                uuid.NewString(),
		Number:            number,
		CartID:            cartID,
		Items:             items,
		SubtotalCents:     subtotal,
		TaxCents:          tax,
		ShippingCents:     s.cfg.ShippingFlatCents,
		TotalCents:        subtotal + tax + s.cfg.ShippingFlatCents,
		Currency:          s.cfg.Currency,
		PaymentMethod:     in.PaymentMethod,
		PaymentStatus:     orders.StatusPending,
		FulfillmentStatus: orders.FulfillmentUnfulfilled,
		CallbackToken:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		AffiliateWallet:   wallet,
		Customer:          in.Customer,
		ShippingAddress:   in.ShippingAddress,
		BillingAddress:    in.ShippingAddress,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.BillingAddress != nil {
		o.BillingAddress = *in.BillingAddress
	}
	if err := s.repo.Create(ctx, &o); err != nil {
		release()
		return orders.Order{}, err
	}

	span.SetAttributes(attribute.String("order.number", o.Number), attribute.Int64("order.total_cents", o.TotalCents))
	s.log.Info().Str("order", o.Number).Str("cart", cartID).Int64("total_cents", o.TotalCents).
		Str("method", string(o.PaymentMethod)).Msg("order placed")
	orders.Emit(s.pub, orders.TopicOrderPlaced, orders.NewEnvelope(orders.EventOrderPlaced, s.service, o.ID, "", orders.OrderPlacedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		CartID:        o.CartID,
		PaymentMethod: string(o.PaymentMethod),
		Items:         orders.ItemsOf(o),
		TotalCents:    o.TotalCents,
		Currency:      o.Currency,
	}))
	return o, nil
}

// InitiatePayment starts payment for a pending order on its rail. A gateway
// failure leaves the order untouched so the call can be retried.
func (s *Service) InitiatePayment(ctx context.Context, number string) (gateway.Initiation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "checkout.initiate_payment")
	defer span.End()

	o, err := s.repo.ByNumber(ctx, number)
	if errors.Is(err, orders.ErrNotFound) {
		return gateway.Initiation{}, apperr.Newf(apperr.KindOrderNotFound, "order %s not found", number)
	}
	if err != nil {
		return gateway.Initiation{}, err
	}
	if o.PaymentStatus != orders.StatusPending {
		return gateway.Initiation{}, apperr.Newf(apperr.KindInvalidTransition, "order %s is %s", number, o.PaymentStatus)
	}
	a, ok := s.adapters.ForMethod(o.PaymentMethod)
	if !ok {
		return gateway.Initiation{}, apperr.Newf(apperr.KindGatewayUnavailable, "payment method %s is not configured", o.PaymentMethod)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	started, err := a.Initiate(callCtx, o)
	if err != nil {
		s.log.Warn().Err(err).Str("order", number).Str("rail", string(a.Rail())).Msg("payment initiation failed")
		if apperr.KindOf(err) != apperr.KindGatewayUnavailable {
			err = apperr.Wrap(apperr.KindGatewayUnavailable, "payment provider error", err)
		}
		return gateway.Initiation{}, err
	}

	if err := s.repo.SetProviderReference(ctx, o.ID, started.ProviderReference); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return gateway.Initiation{}, apperr.Newf(apperr.KindInvalidTransition, "order %s is no longer pending", number)
		}
		return gateway.Initiation{}, err
	}

	s.log.Info().Str("order", number).Str("rail", string(a.Rail())).Str("reference", started.ProviderReference).Msg("payment initiated")
	orders.Emit(s.pub, orders.TopicPaymentInitiated, orders.NewEnvelope(orders.EventPaymentInitiated, s.service, o.ID, "", orders.PaymentInitiatedPayload{
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		Rail:              string(a.Rail()),
		ProviderReference: started.ProviderReference,
	}))
	return started, nil
}

// Tax is subtotal × bps / 10000, rounded half up.
func Tax(subtotal, bps int64) int64 {
	if bps <= 0 {
		return 0
	}
	return decimal.NewFromInt(subtotal).Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000)).Round(0).IntPart()
}

// mergeItems collapses repeated keys into one line, keeping first-seen order.
func mergeItems(in []ItemInput) []orders.LineItem {
	out := make([]orders.LineItem, 0, len(in))
	idx := map[inventory.Key]int{}
	for _, it := range in {
		li := orders.LineItem{ProductID: it.ProductID, Denomination: inventory.FromPtr(it.Denomination), Quantity: it.Quantity}
		if i, ok := idx[li.Key()]; ok {
			out[i].Quantity += li.Quantity
			continue
		}
		idx[li.Key()] = len(out)
		out = append(out, li)
	}
	return out
}
