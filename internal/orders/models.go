package orders

import (
	"time"

	"github.com/ariefcatur/storefront-settlement/internal/inventory"
)

type Order struct {
	ID                string
	Number            string
	CartID            string
	Items             []LineItem
	SubtotalCents     int64
	TaxCents          int64
	ShippingCents     int64
	TotalCents        int64
	Currency          string
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	ProviderReference string
	ProviderTxID      string
	// CallbackToken is echoed back by rails that cannot sign their callbacks.
	CallbackToken   string
	AffiliateWallet string
	Customer        Contact
	ShippingAddress Address
	BillingAddress  Address
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SettledAt       *time.Time
}

type LineItem struct {
	ProductID      string
	Denomination   inventory.Denomination
	Quantity       int
	UnitPriceCents int64
}

func (li LineItem) Key() inventory.Key {
	return inventory.Key{ProductID: li.ProductID, Denomination: li.Denomination}
}

type Contact struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

func (a Address) IsZero() bool { return a == Address{} }

// PaymentUpdate is the set of columns the reconciler writes on a transition.
type PaymentUpdate struct {
	OrderID           string
	Status            PaymentStatus
	FulfillmentStatus FulfillmentStatus
	ProviderTxID      string
	SettledAt         *time.Time
}

// StatusView is the cached projection served by GET /api/orders/{number}.
type StatusView struct {
	OrderID           string            `json:"orderId"`
	OrderNumber       string            `json:"orderNumber"`
	PaymentStatus     PaymentStatus     `json:"paymentStatus"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillmentStatus"`
	TotalCents        int64             `json:"totalCents"`
	Currency          string            `json:"currency"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (o Order) View() StatusView {
	return StatusView{
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		PaymentStatus:     o.PaymentStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		TotalCents:        o.TotalCents,
		Currency:          o.Currency,
		UpdatedAt:         o.UpdatedAt,
	}
}
