package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/checkout"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

type Checkout interface {
	PlaceOrder(ctx context.Context, in checkout.PlaceOrderInput) (orders.Order, error)
	InitiatePayment(ctx context.Context, number string) (gateway.Initiation, error)
}

type OrderReader interface {
	ByNumber(ctx context.Context, number string) (orders.Order, error)
}

// StatusCache is the read-through cache for order status; redisx.JSONStore
// satisfies it.
type StatusCache interface {
	Get(ctx context.Context, id string, out any) (bool, error)
	Put(ctx context.Context, id string, v any) error
}

type OrdersHandler struct {
	Checkout Checkout
	Orders   OrderReader
	Cache    StatusCache
	Log      zerolog.Logger
}

type lineResponse struct {
	ProductID      string `json:"productId"`
	Denomination   *int   `json:"denomination,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type orderResponse struct {
	OrderID           string                   `json:"orderId"`
	OrderNumber       string                   `json:"orderNumber"`
	CartID            string                   `json:"cartId"`
	Items             []lineResponse           `json:"items"`
	SubtotalCents     int64                    `json:"subtotalCents"`
	TaxCents          int64                    `json:"taxCents"`
	ShippingCents     int64                    `json:"shippingCents"`
	TotalCents        int64                    `json:"totalCents"`
	Currency          string                   `json:"currency"`
	PaymentMethod     orders.PaymentMethod     `json:"paymentMethod"`
	PaymentStatus     orders.PaymentStatus     `json:"paymentStatus"`
	FulfillmentStatus orders.FulfillmentStatus `json:"fulfillmentStatus"`
}

func toOrderResponse(o orders.Order) orderResponse {
	items := make([]lineResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineResponse{
			ProductID:      it.ProductID,
			Denomination:   it.Denomination.Ptr(),
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return orderResponse{
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		CartID:            o.CartID,
		Items:             items,
		SubtotalCents:     o.SubtotalCents,
		TaxCents:          o.TaxCents,
		ShippingCents:     o.ShippingCents,
		TotalCents:        o.TotalCents,
		Currency:          o.Currency,
		PaymentMethod:     o.PaymentMethod,
		PaymentStatus:     o.PaymentStatus,
		FulfillmentStatus: o.FulfillmentStatus,
	}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/api/orders", h.createOrder)
	r.Get("/api/orders/{number}", h.getOrder)
	r.Post("/api/orders/{number}/payments", h.initiatePayment)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req checkout.PlaceOrderInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.Checkout.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// getOrder serves the status view from cache and falls back to Postgres.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	ctx := r.Context()

	var view orders.StatusView
	if h.Cache != nil {
		found, err := h.Cache.Get(ctx, number, &view)
		if err != nil {
			h.Log.Warn().Err(err).Str("order", number).Msg("status cache read")
		}
		if found {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, view)
			return
		}
	}

	o, err := h.Orders.ByNumber(ctx, number)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, h.Log, apperr.Newf(apperr.KindOrderNotFound, "order %s not found", number))
		return
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	view = o.View()
	if h.Cache != nil {
		view = h.refresh(ctx, number, view)
	}
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, view)
}

// refresh caches view unless a newer view was cached while the database was
// read. The newer one is returned in that case.
func (h *OrdersHandler) refresh(ctx context.Context, number string, view orders.StatusView) orders.StatusView {
	var cur orders.StatusView
	found, err := h.Cache.Get(ctx, number, &cur)
	if err == nil && found && !orders.Supersedes(cur, view) {
		return cur
	}
	if err := h.Cache.Put(ctx, number, view); err != nil {
		h.Log.Warn().Err(err).Str("order", number).Msg("status cache write")
	}
	return view
}

func (h *OrdersHandler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	started, err := h.Checkout.InitiatePayment(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}
