package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
)

type HoldLedger interface {
	AvailableQuantity(ctx context.Context, key inventory.Key) (int, error)
	CreateHold(ctx context.Context, cartID string, key inventory.Key, quantity int, ttl time.Duration) (inventory.Hold, error)
	ReleaseHold(ctx context.Context, cartID string, key inventory.Key) error
}

// HoldsHandler exposes cart holds so a storefront can reserve stock before
// checkout.
type HoldsHandler struct {
	Ledger HoldLedger
	Log    zerolog.Logger
}

func (h *HoldsHandler) Register(r chi.Router) {
	r.Post("/api/holds", h.createHold)
	r.Delete("/api/holds", h.releaseHold)
	r.Get("/api/inventory/{productID}", h.available)
}

type holdRequest struct {
	CartID       string `json:"cartId"`
	ProductID    string `json:"productId"`
	Denomination *int   `json:"denomination,omitempty"`
	Quantity     int    `json:"quantity"`
}

func (q holdRequest) key() inventory.Key {
	return inventory.Key{ProductID: q.ProductID, Denomination: inventory.FromPtr(q.Denomination)}
}

type holdResponse struct {
	CartID       string    `json:"cartId"`
	ProductID    string    `json:"productId"`
	Denomination *int      `json:"denomination,omitempty"`
	Quantity     int       `json:"quantity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (h *HoldsHandler) createHold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	hold, err := h.Ledger.CreateHold(r.Context(), req.CartID, req.key(), req.Quantity, 0)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, holdResponse{
		CartID:       hold.CartID,
		ProductID:    hold.Key.ProductID,
		Denomination: hold.Key.Denomination.Ptr(),
		Quantity:     hold.Quantity,
		ExpiresAt:    hold.ExpiresAt,
	})
}

func (h *HoldsHandler) releaseHold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if req.CartID == "" || req.ProductID == "" {
		writeError(w, h.Log, apperr.New(apperr.KindValidation, "cartId and productId are required"))
		return
	}
	if err := h.Ledger.ReleaseHold(r.Context(), req.CartID, req.key()); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityResponse struct {
	ProductID    string `json:"productId"`
	Denomination *int   `json:"denomination,omitempty"`
	Available    int    `json:"available"`
}

func (h *HoldsHandler) available(w http.ResponseWriter, r *http.Request) {
	d, err := inventory.ParseDenomination(r.URL.Query().Get("denomination"))
	if err != nil {
		writeError(w, h.Log, apperr.Wrap(apperr.KindValidation, "invalid denomination", err))
		return
	}
	key := inventory.Key{ProductID: chi.URLParam(r, "productID"), Denomination: d}
	n, err := h.Ledger.AvailableQuantity(r.Context(), key)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ProductID: key.ProductID, Denomination: d.Ptr(), Available: n})
}
