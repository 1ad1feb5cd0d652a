package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

type CryptoTransferConfig struct {
	APIURL        string
	APIKey        string
	Coin          string // ticker path, e.g. polygon/usdc
	PayoutAddress string
	ToleranceBPS  int64
	PublicBaseURL string
}

// CryptoTransfer is a BlockBee-style rail: the provider hands out a deposit
// address per order and calls back with a GET query string once funds arrive.
type CryptoTransfer struct {
	cfg CryptoTransferConfig
	hc  *http.Client
}

func NewCryptoTransfer(cfg CryptoTransferConfig, hc *http.Client) *CryptoTransfer {
	return &CryptoTransfer{cfg: cfg, hc: hc}
}

func (c *CryptoTransfer) Rail() Rail        { return RailCryptoTransfer }
func (c *CryptoTransfer) Methods() []string { return []string{http.MethodGet} }

func (c *CryptoTransfer) Tolerance(expected int64) int64 {
	return BPSTolerance(expected, c.cfg.ToleranceBPS)
}

func (c *CryptoTransfer) Initiate(ctx context.Context, o orders.Order) (Initiation, error) {
	cb := url.Values{}
	cb.Set("order", o.Number)
	cb.Set("nonce", o.CallbackToken)

	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	q.Set("address", c.cfg.PayoutAddress)
	q.Set("callback", callbackURL(c.cfg.PublicBaseURL, c.Rail())+"?"+cb.Encode())
	q.Set("pending", "1")
	q.Set("convert", "1")
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/" + strings.Trim(c.cfg.Coin, "/") + "/create/?" + q.Encode()

	var resp struct {
		Status    string `json:"status"`
		AddressIn string `json:"address_in"`
	}
	if err := call(ctx, c.hc, c.Rail(), http.MethodGet, endpoint, nil, nil, &resp); err != nil {
		return Initiation{}, err
	}
	if resp.Status != "success" || resp.AddressIn == "" {
		return Initiation{}, apperr.Newf(apperr.KindGatewayUnavailable, "crypto provider status %q", resp.Status)
	}
	return Initiation{ClientToken: resp.AddressIn, ProviderReference: resp.AddressIn}, nil
}

func (c *CryptoTransfer) Recognizes(f Fields) bool {
	return f.Get("txid_in") != "" || (f.Has("address_in") && f.Has("value_coin"))
}

func (c *CryptoTransfer) Normalize(_ RawPayload, f Fields) (Callback, error) {
	txid := f.Get("txid_in")
	if txid == "" {
		return Callback{}, apperr.New(apperr.KindMalformedPayload, "missing txid_in")
	}
	if f.Get("order") == "" && f.Get("address_in") == "" {
		return Callback{}, apperr.New(apperr.KindMalformedPayload, "missing order reference")
	}
	if f.Get("nonce") == "" {
		return Callback{}, apperr.New(apperr.KindMalformedPayload, "missing nonce")
	}

	cb := Callback{
		Rail:              c.Rail(),
		ProviderTxID:      txid,
		OrderRef:          f.Get("order"),
		ProviderReference: f.Get("address_in"),
		Currency:          "USD",
		Outcome:           OutcomeSucceeded,
		Token:             f.Get("nonce"),
		AckText:           "ok",
	}
	if f.Get("pending") == "1" {
		cb.Outcome = OutcomeProcessing
	}

	// value_coin_convert is a JSON object of fiat equivalents; the coin itself
	// is a dollar stablecoin, so value_coin is the fallback.
	amount := gjson.Get(f.Get("value_coin_convert"), "USD").String()
	if amount == "" {
		amount = f.Get("value_coin")
	}
	if amount != "" {
		cents, err := ToCents(amount)
		if err != nil {
			return Callback{}, err
		}
		cb.AmountCents, cb.HasAmount = cents, true
	}
	return cb, nil
}
