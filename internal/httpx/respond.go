package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
)

const maxBody = 1 << 20

type errorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and body. Internal errors are logged and
// reported with a generic message.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind := apperr.KindOf(err)
	code := apperr.HTTPStatus(kind)
	if kind == apperr.KindInternal {
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, code, errorBody{Error: "internal error"})
		return
	}
	body := errorBody{Error: err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Error = ae.Message
		body.Details = ae.Details
	}
	writeJSON(w, code, body)
}

// decodeJSON reads at most maxBody bytes of JSON into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid json", err)
	}
	return nil
}
