package httpx

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/settlement"
)

type Settler interface {
	SettleCallback(ctx context.Context, rail gateway.Rail, raw gateway.RawPayload) (settlement.Result, error)
	Recognizes(rail gateway.Rail, raw gateway.RawPayload) bool
	Methods(rail gateway.Rail) []string
}

// WebhooksHandler receives provider callbacks on /api/webhooks/{rail}.
type WebhooksHandler struct {
	Settler Settler
	Log     zerolog.Logger
}

func (h *WebhooksHandler) Register(r chi.Router) {
	r.Get("/api/webhooks/{rail}", h.callback)
	r.Post("/api/webhooks/{rail}", h.callback)
}

type webhookInfo struct {
	Message string   `json:"message"`
	Methods []string `json:"methods"`
}

func (h *WebhooksHandler) callback(w http.ResponseWriter, r *http.Request) {
	rail := gateway.Rail(chi.URLParam(r, "rail"))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, h.Log, apperr.Wrap(apperr.KindMalformedPayload, "unreadable body", err))
		return
	}
	raw := gateway.RawPayload{
		Method:      r.Method,
		ContentType: r.Header.Get("Content-Type"),
		Header:      r.Header,
		Body:        body,
		Query:       r.URL.Query(),
	}

	// Browsers and provider dashboards probe the URL with a bare GET.
	if r.Method == http.MethodGet && !h.Settler.Recognizes(rail, raw) {
		methods := h.Settler.Methods(rail)
		if methods == nil {
			writeError(w, h.Log, apperr.Newf(apperr.KindNotFound, "unknown payment rail %q", rail))
			return
		}
		writeJSON(w, http.StatusOK, webhookInfo{Message: "payment callback endpoint for " + string(rail), Methods: methods})
		return
	}

	res, err := h.Settler.SettleCallback(r.Context(), rail, raw)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if r.Method == http.MethodGet && res.AckText != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, res.AckText)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
