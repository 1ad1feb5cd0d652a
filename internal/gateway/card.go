package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

type CardConfig struct {
	APIURL        string
	APIKey        string
	WebhookSecret string
	PublicBaseURL string
}

// Card is a hosted card checkout. Callbacks arrive as JSON or form posts with
// minor-unit amounts.
type Card struct {
	cfg CardConfig
	hc  *http.Client
}

func NewCard(cfg CardConfig, hc *http.Client) *Card { return &Card{cfg: cfg, hc: hc} }

func (c *Card) Rail() Rail              { return RailCard }
func (c *Card) Methods() []string       { return []string{http.MethodPost} }
func (c *Card) Tolerance(_ int64) int64 { return 0 }

func (c *Card) Initiate(ctx context.Context, o orders.Order) (Initiation, error) {
	req := map[string]any{
		"amount":       o.TotalCents,
		"currency":     strings.ToLower(o.Currency),
		"reference":    o.Number,
		"email":        o.Customer.Email,
		"return_url":   strings.TrimRight(c.cfg.PublicBaseURL, "/") + "/orders/" + o.Number,
		"callback_url": callbackURL(c.cfg.PublicBaseURL, c.Rail()),
	}
	var resp struct {
		ID           string `json:"id"`
		CheckoutURL  string `json:"checkout_url"`
		ClientSecret string `json:"client_secret"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/payments"
	if err := call(ctx, c.hc, c.Rail(), http.MethodPost, endpoint, headers, req, &resp); err != nil {
		return Initiation{}, err
	}
	if resp.ID == "" {
		return Initiation{}, apperr.New(apperr.KindGatewayUnavailable, "card payment response without id")
	}
	return Initiation{RedirectURL: resp.CheckoutURL, ClientToken: resp.ClientSecret, ProviderReference: resp.ID}, nil
}

func (c *Card) Recognizes(f Fields) bool {
	return f.Get("payment_id") != "" && f.Get("status") != ""
}

func (c *Card) Normalize(raw RawPayload, f Fields) (Callback, error) {
	if err := verifyHMAC(c.cfg.WebhookSecret, raw.Body, raw.Header.Get("X-Signature")); err != nil {
		return Callback{}, err
	}

	var outcome Outcome
	switch strings.ToLower(f.Get("status")) {
	case "succeeded", "captured", "completed":
		outcome = OutcomeSucceeded
	case "processing":
		outcome = OutcomeProcessing
	case "failed", "declined":
		outcome = OutcomeFailed
	case "canceled", "cancelled", "voided":
		outcome = OutcomeCancelled
	default:
		return Callback{}, apperr.Newf(apperr.KindMalformedPayload, "unknown card status %q", f.Get("status"))
	}

	cb := Callback{
		Rail:              c.Rail(),
		ProviderTxID:      f.Get("payment_id"),
		OrderRef:          f.Get("reference"),
		ProviderReference: f.Get("payment_id"),
		Currency:          strings.ToUpper(f.Get("currency")),
		Outcome:           outcome,
	}
	if s := f.Get("amount"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Callback{}, apperr.Wrap(apperr.KindMalformedPayload, "invalid amount", err)
		}
		cb.AmountCents, cb.HasAmount = n, true
	}
	return cb, nil
}
