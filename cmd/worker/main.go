package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/storefront-settlement/internal/config"
	"github.com/ariefcatur/storefront-settlement/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-settlement/internal/kafka"
	"github.com/ariefcatur/storefront-settlement/internal/logx"
	"github.com/ariefcatur/storefront-settlement/internal/orders"
	"github.com/ariefcatur/storefront-settlement/internal/postgres"
	"github.com/ariefcatur/storefront-settlement/internal/redisx"
)

// The worker sweeps expired holds and keeps the order status cache in step
// with the event stream.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config")
	}
	log := logx.New(cfg.ServiceName+"-worker", cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	ledger := inventory.NewLedger(&inventory.PGStore{DB: db}, cfg.Checkout.HoldTTL, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ledger.RunSweeper(ctx, cfg.Worker.SweepInterval)
	}()

	projector := &orders.Projector{
		Views: redisx.StatusCache(rdb),
		Marks: redisx.Dedup(rdb, "projector"),
		Log:   log.With().Str("component", "projector").Logger(),
	}
	topics := []string{orders.TopicOrderPlaced, orders.TopicPaymentStatus}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Worker.Group, topics, cfg.Worker.Concurrency, log)

	go func() {
		log.Info().Str("group", cfg.Worker.Group).Strs("topics", topics).Int("workers", cfg.Worker.Concurrency).Msg("consumer started")
		if err := cons.Start(ctx, projector.Handle); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down worker")
	cancel()
	<-done
}
