package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/affiliate"
	"github.com/ariefcatur/storefront-settlement/internal/checkout"
	"github.com/ariefcatur/storefront-settlement/internal/config"
	"github.com/ariefcatur/storefront-settlement/internal/gateway"
	"github.com/ariefcatur/storefront-settlement/internal/httpx"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-settlement/internal/kafka"
	"github.com/ariefcatur/storefront-settlement/internal/logx"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/postgres"
	"github.com/ariefcatur/storefront-settlement/internal/redisx"
	"github.com/ariefcatur/storefront-settlement/internal/settlement"
	"github.com/ariefcatur/storefront-settlement/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config")
	}
	log := logx.New(cfg.ServiceName, cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing")
	}

	// DB
	if changed, err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	} else if changed {
		log.Info().Msg("database migrated")
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	statusCache := redisx.StatusCache(rdb)

	// Kafka producer; events carry their own topic
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	adapters := buildRegistry(cfg)
	log.Info().Interface("rails", adapters.Rails()).Msg("payment rails configured")

	repo := &orders.Repo{DB: db}
	ledger := inventory.NewLedger(&inventory.PGStore{DB: db}, cfg.Checkout.HoldTTL, log)
	reconciler := settlement.New(settlement.Deps{
		Adapters:  adapters,
		Tx:        settlement.PGRunner{Pool: db},
		Dedup:     redisx.Dedup(rdb, "settlement"),
		Cache:     statusCache,
		Publisher: prod,
		Log:       log,
		Service:   cfg.ServiceName,
	})
	checkoutSvc := checkout.NewService(repo, ledger, adapters, prod, checkout.Settings{
		TaxRateBPS:        cfg.Checkout.TaxRateBPS,
		ShippingFlatCents: cfg.Checkout.ShippingFlatCents,
		Currency:          cfg.Checkout.Currency,
		HoldTTL:           cfg.Checkout.HoldTTL,
		GatewayTimeout:    cfg.Gateways.Timeout,
	}, log, cfg.ServiceName)
	affiliates := affiliate.NewService(&affiliate.PGStore{DB: db}, log)

	router := httpx.NewRouter(log)
	(&httpx.WebhooksHandler{Settler: reconciler, Log: log}).Register(router)
	(&httpx.OrdersHandler{Checkout: checkoutSvc, Orders: repo, Cache: statusCache, Log: log}).Register(router)
	(&httpx.HoldsHandler{Ledger: ledger, Log: log}).Register(router)
	(&httpx.AdminHandler{Token: cfg.AdminToken, Affiliates: affiliates, Orders: reconciler, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // flush queued events
	cancel()
	prod.WaitClosed()
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}

// buildRegistry registers every rail whose API URL is configured.
func buildRegistry(cfg config.Config) *gateway.Registry {
	g := cfg.Gateways
	hc := gateway.NewHTTPClient(g.Timeout)
	var adapters []gateway.Adapter
	if g.CryptoAPIURL != "" {
		adapters = append(adapters, gateway.NewCryptoTransfer(gateway.CryptoTransferConfig{
			APIURL:        g.CryptoAPIURL,
			APIKey:        g.CryptoAPIKey,
			Coin:          g.CryptoCoin,
			PayoutAddress: g.CryptoPayoutAddress,
			ToleranceBPS:  g.CryptoToleranceBPS,
			PublicBaseURL: cfg.PublicBaseURL,
		}, hc))
	}
	if g.CommerceAPIURL != "" {
		adapters = append(adapters, gateway.NewCryptoCommerce(gateway.CryptoCommerceConfig{
			APIURL:        g.CommerceAPIURL,
			APIKey:        g.CommerceAPIKey,
			WebhookSecret: g.CommerceWebhookSecret,
			PublicBaseURL: cfg.PublicBaseURL,
		}, hc))
	}
	if g.CardAPIURL != "" {
		adapters = append(adapters, gateway.NewCard(gateway.CardConfig{
			APIURL:        g.CardAPIURL,
			APIKey:        g.CardAPIKey,
			WebhookSecret: g.CardWebhookSecret,
			PublicBaseURL: cfg.PublicBaseURL,
		}, hc))
	}
	if g.CashAppAPIURL != "" {
		adapters = append(adapters, gateway.NewCashApp(gateway.CashAppConfig{
			APIURL:        g.CashAppAPIURL,
			APIKey:        g.CashAppAPIKey,
			WebhookSecret: g.CashAppWebhookSecret,
			PublicBaseURL: cfg.PublicBaseURL,
		}, hc))
	}
	return gateway.NewRegistry(adapters...)
}
