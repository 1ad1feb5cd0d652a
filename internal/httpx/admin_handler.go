package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

type Affiliates interface {
	Create(ctx context.Context, wallet string, rate decimal.Decimal) (affiliate.Account, error)
	Get(ctx context.Context, wallet string) (affiliate.Account, error)
}

type Overrider interface {
	Override(ctx context.Context, number string, status orders.PaymentStatus, actor string) (orders.Order, error)
}

// AdminHandler serves operator routes behind a bearer token. An empty token
// disables them.
type AdminHandler struct {
	Token      string
	Affiliates Affiliates
	Orders     Overrider
	Log        zerolog.Logger

	validate *validator.Validate
}

func (h *AdminHandler) Register(r chi.Router) {
	h.validate = apperr.NewValidator()
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.auth)
		r.Post("/affiliates", h.createAffiliate)
		r.Get("/affiliates/{wallet}", h.getAffiliate)
		r.Post("/orders/{number}/status", h.overrideStatus)
	})
}

func (h *AdminHandler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if h.Token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
			writeError(w, h.Log, apperr.New(apperr.KindUnauthorized, "admin token required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createAffiliateReq struct {
	WalletAddress  string          `json:"walletAddress" validate:"required"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
}

func (h *AdminHandler) createAffiliate(w http.ResponseWriter, r *http.Request) {
	var req createAffiliateReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.Log, apperr.FromValidation(err))
		return
	}
	acct, err := h.Affiliates.Create(r.Context(), req.WalletAddress, req.CommissionRate)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *AdminHandler) getAffiliate(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Affiliates.Get(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type overrideReq struct {
	Status orders.PaymentStatus `json:"status" validate:"required,oneof=processing completed failed cancelled"`
	Actor  string               `json:"actor" validate:"required"`
}

func (h *AdminHandler) overrideStatus(w http.ResponseWriter, r *http.Request) {
	var req overrideReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.Log, apperr.FromValidation(err))
		return
	}
	o, err := h.Orders.Override(r.Context(), chi.URLParam(r, "number"), req.Status, req.Actor)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o.View())
}
