package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/config"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-settlement/internal/kafka"
	"github.com/ariefcatur/storefront-settlement/internal/logx"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/postgres"
	"github.com/ariefcatur/storefront-settlement/internal/redisx"
	"github.com/ariefcatur/storefront-settlement/internal/settlement"
)

// env is what every command needs: config, a logger and a pool.
type env struct {
	cfg config.Config
	log zerolog.Logger
	db  *pgxpool.Pool
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logx.New(cfg.ServiceName+"-opsctl", cfg.LogLevel, true)
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Database schema migrations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			changed, err := postgres.Migrate(cfg.PostgresDSN)
			if err != nil {
				return err
			}
			if changed {
				fmt.Println("migrations applied")
			} else {
				fmt.Println("schema up to date")
			}
			return nil
		},
	})
	return cmd
}

func holdsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "holds", Short: "Inventory hold maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired holds now",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.db.Close()
			n, err := inventory.NewLedger(&inventory.PGStore{DB: e.db}, e.cfg.Checkout.HoldTTL, e.log).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("released %d expired holds\n", n)
			return nil
		},
	})
	return cmd
}

func affiliatesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "affiliates", Short: "Manage affiliate accounts"}

	var wallet, rate string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register an affiliate wallet with a commission rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("rate %q: %w", rate, err)
			}
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.db.Close()
			acct, err := affiliate.NewService(&affiliate.PGStore{DB: e.db}, e.log).Create(cmd.Context(), wallet, r)
			if err != nil {
				return err
			}
			return printJSON(acct)
		},
	}
	add.Flags().StringVar(&wallet, "wallet", "", "0x-prefixed wallet address")
	add.Flags().StringVar(&rate, "rate", "0", "commission rate between 0 and 1")
	_ = add.MarkFlagRequired("wallet")

	show := &cobra.Command{
		Use:   "show [wallet]",
		Short: "Print an affiliate's running totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.db.Close()
			acct, err := affiliate.NewService(&affiliate.PGStore{DB: e.db}, e.log).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(acct)
		},
	}

	cmd.AddCommand(add, show)
	return cmd
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "orders", Short: "Inspect and repair orders"}

	var number, status, actor string
	override := &cobra.Command{
		Use:   "override",
		Short: "Force an order's payment status after manual review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.db.Close()

			rdb := redisx.New(e.cfg.RedisAddr)
			defer rdb.Close()

			pctx, cancel := context.WithCancel(ctx)
			defer cancel()
			prod := kafkax.NewProducer(e.cfg.KafkaBrokers, 16, e.log)
			prod.Start(pctx)
			defer func() {
				prod.Close()
				prod.WaitClosed()
			}()

			rec := settlement.New(settlement.Deps{
				Adapters:  gateway.NewRegistry(),
				Tx:        settlement.PGRunner{Pool: e.db},
				Cache:     redisx.StatusCache(rdb),
				Publisher: prod,
				Log:       e.log,
				Service:   e.cfg.ServiceName + "-opsctl",
			})
			o, err := rec.Override(ctx, number, orders.PaymentStatus(status), actor)
			if err != nil {
				return err
			}
			return printJSON(o.View())
		},
	}
	override.Flags().StringVar(&number, "number", "", "order number, e.g. ORD-0042")
	override.Flags().StringVar(&status, "status", "", "processing, completed, failed or cancelled")
	override.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "who is making the change")
	_ = override.MarkFlagRequired("number")
	_ = override.MarkFlagRequired("status")

	cmd.AddCommand(override)
	return cmd
}
