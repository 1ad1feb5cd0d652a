package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

type CashAppConfig struct {
	APIURL        string
	APIKey        string
	WebhookSecret string
	PublicBaseURL string
}

type CashApp struct {
	cfg CashAppConfig
	hc  *http.Client
}

func NewCashApp(cfg CashAppConfig, hc *http.Client) *CashApp { return &CashApp{cfg: cfg, hc: hc} }

func (c *CashApp) Rail() Rail              { return RailCashApp }
func (c *CashApp) Methods() []string       { return []string{http.MethodPost} }
func (c *CashApp) Tolerance(_ int64) int64 { return 0 }

func (c *CashApp) Initiate(ctx context.Context, o orders.Order) (Initiation, error) {
	req := map[string]any{
		"idempotency_key": uuid.NewString(),
		"reference_id":    o.Number,
		"amount_money":    map[string]any{"amount": o.TotalCents, "currency": o.Currency},
		"redirect_url":    strings.TrimRight(c.cfg.PublicBaseURL, "/") + "/orders/" + o.Number,
	}
	var resp struct {
		Payment struct {
			ID          string `json:"id"`
			RedirectURL string `json:"redirect_url"`
		} `json:"payment"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/payments"
	if err := call(ctx, c.hc, c.Rail(), http.MethodPost, endpoint, headers, req, &resp); err != nil {
		return Initiation{}, err
	}
	if resp.Payment.ID == "" {
		return Initiation{}, apperr.New(apperr.KindGatewayUnavailable, "cash app response without payment id")
	}
	return Initiation{RedirectURL: resp.Payment.RedirectURL, ProviderReference: resp.Payment.ID}, nil
}

const cashAppPayment = "data.object.payment."

func (c *CashApp) Recognizes(f Fields) bool {
	return f.Get(cashAppPayment+"id") != ""
}

func (c *CashApp) Normalize(raw RawPayload, f Fields) (Callback, error) {
	if err := verifyHMAC(c.cfg.WebhookSecret, raw.Body, raw.Header.Get("X-Cashapp-Signature")); err != nil {
		return Callback{}, err
	}

	var outcome Outcome
	switch strings.ToUpper(f.Get(cashAppPayment + "status")) {
	case "COMPLETED":
		outcome = OutcomeSucceeded
	case "APPROVED", "PENDING":
		outcome = OutcomeProcessing
	case "FAILED":
		outcome = OutcomeFailed
	case "CANCELED", "CANCELLED":
		outcome = OutcomeCancelled
	default:
		return Callback{}, apperr.Newf(apperr.KindMalformedPayload, "unknown cash app status %q", f.Get(cashAppPayment+"status"))
	}

	id := f.Get(cashAppPayment + "id")
	cb := Callback{
		Rail:              c.Rail(),
		ProviderTxID:      id,
		OrderRef:          f.Get(cashAppPayment + "reference_id"),
		ProviderReference: id,
		Currency:          f.Get(cashAppPayment + "amount_money.currency"),
		Outcome:           outcome,
	}
	if s := f.Get(cashAppPayment + "amount_money.amount"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Callback{}, apperr.Wrap(apperr.KindMalformedPayload, "invalid amount", err)
		}
		cb.AmountCents, cb.HasAmount = n, true
	}
	return cb, nil
}
