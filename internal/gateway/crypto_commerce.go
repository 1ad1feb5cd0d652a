package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

type CryptoCommerceConfig struct {
	APIURL        string
	APIKey        string
	WebhookSecret string
	PublicBaseURL string
}

// CryptoCommerce is a hosted-charge rail: the customer pays on the provider's
// page and charge:* webhook events are POSTed back as signed JSON.
type CryptoCommerce struct {
	cfg CryptoCommerceConfig
	hc  *http.Client
}

func NewCryptoCommerce(cfg CryptoCommerceConfig, hc *http.Client) *CryptoCommerce {
	return &CryptoCommerce{cfg: cfg, hc: hc}
}

func (c *CryptoCommerce) Rail() Rail              { return RailCryptoCommerce }
func (c *CryptoCommerce) Methods() []string       { return []string{http.MethodPost} }
func (c *CryptoCommerce) Tolerance(_ int64) int64 { return 0 }

func (c *CryptoCommerce) Initiate(ctx context.Context, o orders.Order) (Initiation, error) {
	req := map[string]any{
		"name":         "Order " + o.Number,
		"pricing_type": "fixed_price",
		"local_price":  map[string]string{"amount": FromCents(o.TotalCents), "currency": o.Currency},
		"metadata":     map[string]string{"order_number": o.Number},
		"redirect_url": strings.TrimRight(c.cfg.PublicBaseURL, "/") + "/orders/" + o.Number,
	}
	var resp struct {
		Data struct {
			Code      string `json:"code"`
			HostedURL string `json:"hosted_url"`
		} `json:"data"`
	}
	headers := map[string]string{"X-CC-Api-Key": c.cfg.APIKey, "X-CC-Version": "2018-03-22"}
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/charges"
	if err := call(ctx, c.hc, c.Rail(), http.MethodPost, endpoint, headers, req, &resp); err != nil {
		return Initiation{}, err
	}
	if resp.Data.Code == "" {
		return Initiation{}, apperr.New(apperr.KindGatewayUnavailable, "charge response without code")
	}
	return Initiation{RedirectURL: resp.Data.HostedURL, ProviderReference: resp.Data.Code}, nil
}

func (c *CryptoCommerce) Recognizes(f Fields) bool {
	return strings.HasPrefix(f.Get("event.type"), "charge:")
}

func (c *CryptoCommerce) Normalize(raw RawPayload, f Fields) (Callback, error) {
	if err := verifyHMAC(c.cfg.WebhookSecret, raw.Body, raw.Header.Get("X-CC-Webhook-Signature")); err != nil {
		return Callback{}, err
	}

	var outcome Outcome
	switch f.Get("event.type") {
	case "charge:confirmed", "charge:resolved":
		outcome = OutcomeSucceeded
	case "charge:pending":
		outcome = OutcomeProcessing
	case "charge:failed", "charge:expired":
		outcome = OutcomeFailed
	default:
		return Callback{}, apperr.Newf(apperr.KindMalformedPayload, "unsupported event %q", f.Get("event.type"))
	}

	code := f.Get("event.data.code")
	cb := Callback{
		Rail:              c.Rail(),
		ProviderTxID:      f.First("event.data.payments.0.transaction_id", "event.data.code"),
		OrderRef:          f.Get("event.data.metadata.order_number"),
		ProviderReference: code,
		Outcome:           outcome,
	}
	if cb.ProviderTxID == "" || (cb.OrderRef == "" && code == "") {
		return Callback{}, apperr.New(apperr.KindMalformedPayload, "missing charge identifiers")
	}

	amount := f.First("event.data.payments.0.value.local.amount", "event.data.pricing.local.amount")
	if amount != "" {
		cents, err := ToCents(amount)
		if err != nil {
			return Callback{}, err
		}
		cb.AmountCents, cb.HasAmount = cents, true
		cb.Currency = f.First("event.data.payments.0.value.local.currency", "event.data.pricing.local.currency")
	}
	return cb, nil
}
