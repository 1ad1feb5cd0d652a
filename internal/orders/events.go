package orders

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/storefront-settlement/internal/kafka"
)

const (
	EventOrderPlaced          = "OrderPlaced"
	EventPaymentInitiated     = "PaymentInitiated"
	EventPaymentStatusChanged = "PaymentStatusChanged"
)

const eventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID    string `json:"product_id"`
	Denomination *int   `json:"denomination,omitempty"`
	Qty          int    `json:"qty"`
}

type OrderPlacedPayload struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CartID        string    `json:"cart_id"`
	PaymentMethod string    `json:"payment_method"`
	Items         []ItemQty `json:"items"`
	TotalCents    int64     `json:"total_cents"`
	Currency      string    `json:"currency"`
}

type PaymentInitiatedPayload struct {
	OrderID           string `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	Rail              string `json:"rail"`
	ProviderReference string `json:"provider_reference"`
}

type PaymentStatusChangedPayload struct {
	OrderID           string `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	PaymentStatus     string `json:"payment_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
	Rail              string `json:"rail,omitempty"`
	ProviderTxID      string `json:"provider_tx_id,omitempty"`
	TotalCents        int64  `json:"total_cents"`
	Currency          string `json:"currency"`
	// Actor is set for admin overrides.
	Actor string `json:"actor,omitempty"`
}

// Publisher is the subset of kafka.Producer the domain services need.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

func NewEnvelope(eventType, producer, orderID, traceID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

// Emit publishes env keyed by order id. A nil publisher drops the event.
func Emit(p Publisher, topic string, env Envelope) {
	if p == nil {
		return
	}
	p.Publish(topic, PartitionKey(env.CorrelationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}

func ItemsOf(o Order) []ItemQty {
	out := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, ItemQty{ProductID: it.ProductID, Denomination: it.Denomination.Ptr(), Qty: it.Quantity})
	}
	return out
}
