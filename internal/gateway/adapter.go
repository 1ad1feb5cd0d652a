// Package gateway holds one adapter per payment rail. Adapters translate
// between the order and a rail's initiation API, and between a rail's callback
// shape and a normalized Callback. They never change order state.
package gateway

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-settlement/internal/apperr"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
)

type Rail string

const (
	RailCryptoTransfer Rail = "crypto-transfer"
	RailCryptoCommerce Rail = "crypto-commerce"
	RailCard           Rail = "card"
	RailCashApp        Rail = "cash-app"
)

type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeProcessing Outcome = "processing"
	OutcomeFailed     Outcome = "failed"
	OutcomeCancelled  Outcome = "cancelled"
)

// Status is the payment status an outcome moves an order to.
func (o Outcome) Status() orders.PaymentStatus {
	switch o {
	case OutcomeSucceeded:
		return orders.StatusCompleted
	case OutcomeProcessing:
		return orders.StatusProcessing
	case OutcomeCancelled:
		return orders.StatusCancelled
	default:
		return orders.StatusFailed
	}
}

// Callback is a rail callback normalized for the reconciler.
type Callback struct {
	Rail              Rail
	ProviderTxID      string
	OrderRef          string // order number, when the rail echoes it
	ProviderReference string
	AmountCents       int64
	HasAmount         bool
	Currency          string
	Outcome           Outcome
	// Token is the order's callback token echoed by rails that do not sign
	// their callbacks.
	Token string
	// AckText is the plain-text body a GET rail expects on success.
	AckText string
}

type Initiation struct {
	RedirectURL       string `json:"redirectUrl,omitempty"`
	ClientToken       string `json:"clientToken,omitempty"`
	ProviderReference string `json:"providerReference"`
}

type Adapter interface {
	Rail() Rail
	// Methods are the HTTP methods the rail calls back with.
	Methods() []string
	Initiate(ctx context.Context, o orders.Order) (Initiation, error)
	// Recognizes reports whether fields have this rail's callback shape.
	Recognizes(f Fields) bool
	Normalize(raw RawPayload, f Fields) (Callback, error)
	// Tolerance is the absolute amount difference in cents accepted for an
	// order expecting expectedCents.
	Tolerance(expectedCents int64) int64
}

// Registry holds the adapters configured for this process.
type Registry struct {
	byRail map[Rail]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byRail: make(map[Rail]Adapter, len(adapters))}
	for _, a := range adapters {
		r.byRail[a.Rail()] = a
	}
	return r
}

func (r *Registry) Get(rail Rail) (Adapter, bool) {
	a, ok := r.byRail[rail]
	return a, ok
}

// ForMethod maps an order's payment method to its rail adapter.
func (r *Registry) ForMethod(m orders.PaymentMethod) (Adapter, bool) {
	return r.Get(Rail(m))
}

func (r *Registry) Rails() []Rail {
	out := make([]Rail, 0, len(r.byRail))
	for rail := range r.byRail {
		out = append(out, rail)
	}
	slices.Sort(out)
	return out
}

// ToCents converts a decimal major-unit amount such as "42.00" to cents,
// rounding half up. Negative amounts and amounts that do not fit in int64
// cents are rejected.
func ToCents(amount string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, apperr.Wrap(apperr.KindMalformedPayload, "invalid amount", err)
	}
	if d.IsNegative() {
		return 0, apperr.Newf(apperr.KindMalformedPayload, "negative amount %s", amount)
	}
	cents := d.Shift(2).Round(0)
	if !cents.BigInt().IsInt64() {
		return 0, apperr.Newf(apperr.KindMalformedPayload, "amount %s out of range", amount)
	}
	return cents.IntPart(), nil
}

// FromCents formats cents as a major-unit decimal string with two places.
func FromCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// BPSTolerance is expected × bps / 10000, rounded half up.
func BPSTolerance(expectedCents, bps int64) int64 {
	return decimal.NewFromInt(expectedCents).Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000)).Round(0).IntPart()
}
