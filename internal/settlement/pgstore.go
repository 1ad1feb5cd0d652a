package settlement

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/postgres"
)

// PGRunner runs settlements in a Postgres transaction. Orders are locked with
// SELECT ... FOR UPDATE, which serializes callbacks for the same order.
type PGRunner struct{ Pool *pgxpool.Pool }

func (p PGRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return postgres.WithTx(ctx, p.Pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) Orders() OrderStore          { return &orders.Repo{DB: t.tx} }
func (t pgTx) Stock() StockStore           { return &inventory.PGStore{DB: t.tx} }
func (t pgTx) Affiliates() affiliate.Store { return &affiliate.PGStore{DB: t.tx} }
