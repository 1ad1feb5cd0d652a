package orders

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusCancelled  PaymentStatus = "cancelled"
)

var validNext = map[PaymentStatus]map[PaymentStatus]bool{
	StatusPending:    {StatusProcessing: true, StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

func CanTransition(from, to PaymentStatus) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is permitted from s.
func (s PaymentStatus) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

func (s PaymentStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodCryptoCommerce PaymentMethod = "crypto-commerce"
	MethodCryptoTransfer PaymentMethod = "crypto-transfer"
	MethodCashApp        PaymentMethod = "cash-app"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodCryptoCommerce, MethodCryptoTransfer, MethodCashApp:
		return true
	}
	return false
}

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentReady       FulfillmentStatus = "ready"
	// FulfillmentOversold marks a paid order whose stock decrement came up
	// short at settlement; it needs manual review.
	FulfillmentOversold FulfillmentStatus = "oversold"
	FulfillmentVoid     FulfillmentStatus = "void"
)
