package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

func normalize(t *testing.T, a Adapter, raw RawPayload) (Callback, error) {
	t.Helper()
	f, err := ParsePayload(raw)
	require.NoError(t, err)
	require.True(t, a.Recognizes(f), "fields not recognized: %v", f)
	return a.Normalize(raw, f)
}

func TestCryptoTransferNormalize(t *testing.T) {
	a := NewCryptoTransfer(CryptoTransferConfig{ToleranceBPS: 100}, nil)
	raw := RawPayload{Method: http.MethodGet, Query: url.Values{
		"txid_in":            {"0xfeed"},
		"address_in":         {"0xdeposit"},
		"value_coin":         {"41.9"},
		"value_coin_convert": {`{"USD": "42.00", "EUR": "38.50"}`},
		"order":              {"ORD-0001"},
		"nonce":              {"tok"},
		"pending":            {"0"},
	}}

	cb, err := normalize(t, a, raw)
	require.NoError(t, err)
	assert.Equal(t, Callback{
		Rail: RailCryptoTransfer, ProviderTxID: "0xfeed", OrderRef: "ORD-0001",
		ProviderReference: "0xdeposit", AmountCents: 4200, HasAmount: true, Currency: "USD",
		Outcome: OutcomeSucceeded, Token: "tok", AckText: "ok",
	}, cb)
	assert.Equal(t, int64(42), a.Tolerance(4200))
}

func TestCryptoTransferPendingAndFallbackAmount(t *testing.T) {
	a := NewCryptoTransfer(CryptoTransferConfig{}, nil)
	raw := RawPayload{Query: url.Values{
		"txid_in": {"0xfeed"}, "value_coin": {"10"}, "order": {"ORD-0002"}, "nonce": {"tok"}, "pending": {"1"},
	}}
	cb, err := normalize(t, a, raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, cb.Outcome)
	assert.Equal(t, int64(1000), cb.AmountCents)
}

func TestCryptoTransferRequiresNonce(t *testing.T) {
	a := NewCryptoTransfer(CryptoTransferConfig{}, nil)
	_, err := normalize(t, a, RawPayload{Query: url.Values{"txid_in": {"0x1"}, "order": {"ORD-1"}}})
	assert.ErrorIs(t, err, apperr.MalformedPayload)
}

func TestCryptoCommerceNormalize(t *testing.T) {
	const secret = "whsec"
	a := NewCryptoCommerce(CryptoCommerceConfig{WebhookSecret: secret}, nil)
	body := []byte(`{"event":{"type":"charge:confirmed","data":{"code":"CH1","metadata":{"order_number":"ORD-0001"},
		"payments":[{"transaction_id":"0xabc","value":{"local":{"amount":"42.00","currency":"USD"}}}]}}}`)

	raw := RawPayload{
		Method: http.MethodPost, ContentType: "application/json", Body: body,
		Header: http.Header{"X-Cc-Webhook-Signature": {sign(secret, body)}},
	}
	cb, err := normalize(t, a, raw)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", cb.ProviderTxID)
	assert.Equal(t, "ORD-0001", cb.OrderRef)
	assert.Equal(t, "CH1", cb.ProviderReference)
	assert.Equal(t, int64(4200), cb.AmountCents)
	assert.Equal(t, OutcomeSucceeded, cb.Outcome)

	raw.Header.Set("X-CC-Webhook-Signature", sign("other", body))
	_, err = normalize(t, a, raw)
	assert.ErrorIs(t, err, apperr.InvalidSignature)
}

func TestCardStatusMapping(t *testing.T) {
	a := NewCard(CardConfig{}, nil)
	tests := map[string]Outcome{
		"succeeded":  OutcomeSucceeded,
		"captured":   OutcomeSucceeded,
		"processing": OutcomeProcessing,
		"declined":   OutcomeFailed,
		"canceled":   OutcomeCancelled,
	}
	for status, want := range tests {
		t.Run(status, func(t *testing.T) {
			raw := RawPayload{
				ContentType: "application/x-www-form-urlencoded",
				Body:        []byte("payment_id=pay_1&reference=ORD-0003&amount=4200&currency=usd&status=" + status),
			}
			cb, err := normalize(t, a, raw)
			require.NoError(t, err)
			assert.Equal(t, want, cb.Outcome)
			assert.Equal(t, "USD", cb.Currency)
			assert.Equal(t, int64(4200), cb.AmountCents)
		})
	}
}

func TestCashAppCancelled(t *testing.T) {
	a := NewCashApp(CashAppConfig{}, nil)
	body := []byte(`{"type":"payment.updated","data":{"object":{"payment":{"id":"GRR_1","reference_id":"ORD-0006","status":"CANCELED","amount_money":{"amount":1500,"currency":"USD"}}}}}`)
	cb, err := normalize(t, a, RawPayload{ContentType: "application/json", Body: body})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, cb.Outcome)
	assert.Equal(t, orders.StatusCancelled, cb.Outcome.Status())
	assert.Equal(t, "GRR_1", cb.ProviderTxID)
	assert.Equal(t, int64(1500), cb.AmountCents)
}

func TestCardInitiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ORD-0001", body["reference"])
		assert.EqualValues(t, 4200, body["amount"])
		_, _ = w.Write([]byte(`{"id":"pay_1","checkout_url":"https://pay.example/c/1"}`))
	}))
	defer srv.Close()

	a := NewCard(CardConfig{APIURL: srv.URL, APIKey: "sk_test", PublicBaseURL: "https://shop.example"}, NewHTTPClient(time.Second))
	got, err := a.Initiate(context.Background(), orders.Order{Number: "ORD-0001", TotalCents: 4200, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, Initiation{RedirectURL: "https://pay.example/c/1", ProviderReference: "pay_1"}, got)
}

func TestInitiateFailuresAreGatewayUnavailable(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	order := orders.Order{Number: "ORD-0001", TotalCents: 4200, Currency: "USD"}
	for name, base := range map[string]string{"5xx": failing.URL, "unreachable": closed.URL} {
		t.Run(name, func(t *testing.T) {
			a := NewCashApp(CashAppConfig{APIURL: base}, NewHTTPClient(time.Second))
			_, err := a.Initiate(context.Background(), order)
			assert.ErrorIs(t, err, apperr.GatewayUnavailable)
			assert.True(t, apperr.Retryable(err))
		})
	}
}

func TestCryptoTransferInitiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/polygon/usdc/create/", r.URL.Path)
		cb, err := url.Parse(r.URL.Query().Get("callback"))
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "/api/webhooks/crypto-transfer", cb.Path)
		assert.Equal(t, "ORD-0001", cb.Query().Get("order"))
		assert.Equal(t, "tok", cb.Query().Get("nonce"))
		_, _ = w.Write([]byte(`{"status":"success","address_in":"0xdeposit"}`))
	}))
	defer srv.Close()

	a := NewCryptoTransfer(CryptoTransferConfig{
		APIURL: srv.URL, Coin: "polygon/usdc", PublicBaseURL: "https://shop.example",
	}, NewHTTPClient(time.Second))
	got, err := a.Initiate(context.Background(), orders.Order{Number: "ORD-0001", CallbackToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "0xdeposit", got.ProviderReference)
}

func TestMoneyHelpers(t *testing.T) {
	c, err := ToCents("42.005")
	require.NoError(t, err)
	assert.Equal(t, int64(4201), c)
	assert.Equal(t, "42.00", FromCents(4200))
	assert.Equal(t, int64(42), BPSTolerance(4200, 100))
	c, err = ToCents(" 0.00 ")
	require.NoError(t, err)
	assert.Zero(t, c)

	for _, bad := range []string{"abc", "-1.00", "184467440737095516.58", "92233720368547758.08"} {
		_, err = ToCents(bad)
		assert.ErrorIs(t, err, apperr.MalformedPayload, bad)
	}
	c, err = ToCents("92233720368547758.07")
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), c)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewCard(CardConfig{}, nil), NewCashApp(CashAppConfig{}, nil))
	a, ok := r.ForMethod(orders.MethodCashApp)
	require.True(t, ok)
	assert.Equal(t, RailCashApp, a.Rail())
	_, ok = r.Get(RailCryptoTransfer)
	assert.False(t, ok)
	assert.Equal(t, []Rail{RailCard, RailCashApp}, r.Rails())
}
