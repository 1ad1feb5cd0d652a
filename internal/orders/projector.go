package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// ViewStore is the status cache; redisx.JSONStore satisfies it.
type ViewStore interface {
	Get(ctx context.Context, id string, out any) (bool, error)
	Put(ctx context.Context, id string, v any) error
}

// MarkStore remembers consumed event ids.
type MarkStore interface {
	Has(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, id string, v any) error
}

// Projector keeps the order status cache warm from the order event stream so
// status reads rarely reach Postgres. It is installed as a consumer handler.
type Projector struct {
	Views ViewStore
	Marks MarkStore
	Log   zerolog.Logger
}

func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// a poison message would otherwise block the partition
		p.Log.Error().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("undecodable event dropped")
		return nil
	}

	var next StatusView
	switch env.EventType {
	case EventOrderPlaced:
		var pl OrderPlacedPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		next = StatusView{
			OrderID:           pl.OrderID,
			OrderNumber:       pl.OrderNumber,
			PaymentStatus:     StatusPending,
			FulfillmentStatus: FulfillmentUnfulfilled,
			TotalCents:        pl.TotalCents,
			Currency:          pl.Currency,
			UpdatedAt:         env.OccurredAt,
		}
	case EventPaymentStatusChanged:
		var pl PaymentStatusChangedPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
		next = StatusView{
			OrderID:           pl.OrderID,
			OrderNumber:       pl.OrderNumber,
			PaymentStatus:     PaymentStatus(pl.PaymentStatus),
			FulfillmentStatus: FulfillmentStatus(pl.FulfillmentStatus),
			TotalCents:        pl.TotalCents,
			Currency:          pl.Currency,
			UpdatedAt:         env.OccurredAt,
		}
		if next.FulfillmentStatus == FulfillmentOversold {
			p.Log.Warn().Str("order", pl.OrderNumber).Msg("order paid but oversold, needs review")
		}
	default:
		return nil
	}

	log := p.Log.With().Str("event_id", env.EventID).Str("event_type", env.EventType).Str("order", next.OrderNumber).Logger()
	if p.Marks != nil {
		seen, err := p.Marks.Has(ctx, env.EventID)
		if err != nil {
			log.Warn().Err(err).Msg("dedup lookup failed")
		}
		if seen {
			return nil
		}
	}

	var cur StatusView
	found, err := p.Views.Get(ctx, next.OrderNumber, &cur)
	if err != nil {
		return fmt.Errorf("read status view: %w", err)
	}
	if !found || Supersedes(cur, next) {
		if err := p.Views.Put(ctx, next.OrderNumber, next); err != nil {
			return fmt.Errorf("write status view: %w", err)
		}
		log.Debug().Str("status", string(next.PaymentStatus)).Msg("status view updated")
	}

	if p.Marks != nil {
		if err := p.Marks.Put(ctx, env.EventID, 1); err != nil {
			log.Warn().Err(err).Msg("dedup mark failed")
		}
	}
	return nil
}

// Supersedes reports whether next may replace cur. Events can arrive out of
// order across workers, so a view never moves backwards in the status machine.
func Supersedes(cur, next StatusView) bool {
	if cur.PaymentStatus == next.PaymentStatus {
		return !next.UpdatedAt.Before(cur.UpdatedAt)
	}
	return CanTransition(cur.PaymentStatus, next.PaymentStatus)
}
