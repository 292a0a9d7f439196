package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/openmarketlabs/relay-backend/internal/payments"
	"github.com/openmarketlabs/relay-backend/pkg/backoff"
	"github.com/openmarketlabs/relay-backend/pkg/config"
	"github.com/openmarketlabs/relay-backend/pkg/db"
	"github.com/openmarketlabs/relay-backend/pkg/dispatch"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
	"github.com/openmarketlabs/relay-backend/pkg/metrics"
	"github.com/openmarketlabs/relay-backend/pkg/migrate"
	"github.com/openmarketlabs/relay-backend/pkg/ops"
	"github.com/openmarketlabs/relay-backend/pkg/outbox"
	"github.com/openmarketlabs/relay-backend/pkg/outbox/idempotency"
	"github.com/openmarketlabs/relay-backend/pkg/pubsub"
	"github.com/openmarketlabs/relay-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "payment-consumer"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "payment-consumer"

	logg = logger.New(logger.Options{
		ServiceName: "payment-consumer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	relayMetrics := metrics.NewRelayMetrics(promRegistry)

	paymentsRepo := payments.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	recorder := outbox.NewService(outboxRepo, logg)
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	offsetRepo := dispatch.NewOffsetRepository(dbClient.DB())
	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	handler, err := payments.OrderPlacedHandler(payments.HandlerParams{
		Repo:     paymentsRepo,
		Recorder: recorder,
		Gateway:  payments.ApproveAllGateway(),
		Logger:   logg,
	})
	requireResource(ctx, logg, "order placed handler", err)

	sub := pubsubClient.OrderedSubscription(cfg.PubSub.OrderPlacedSubscription)
	if sub == nil {
		requireResource(ctx, logg, fmt.Sprintf("subscription %s", cfg.PubSub.OrderPlacedSubscription),
			errors.New("subscription not configured"))
	}
	orderPlaced, err := dispatch.NewDispatcher(dispatch.DispatcherParams{
		Topic:        cfg.PubSub.OrderPlacedTopic,
		Group:        cfg.Consumer.Group,
		Subscription: sub,
		DB:           dbClient,
		Handler:      handler,
		Idempotency:  idempotencyManager,
		DeadLetters:  dlqRepo,
		Offsets:      offsetRepo,
		Backoff: backoff.Policy{
			Base:   cfg.Consumer.BaseBackoff(),
			Max:    cfg.Consumer.MaxBackoff(),
			Jitter: cfg.Consumer.BaseBackoff() / 2,
		},
		MaxAttempts: cfg.Consumer.MaxAttempts,
		Metrics:     relayMetrics,
		Logger:      logg,
	})
	requireResource(ctx, logg, fmt.Sprintf("dispatcher %s", cfg.PubSub.OrderPlacedTopic), err)

	service, err := NewService(ServiceParams{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		PubSub:      pubsubClient,
		OrderPlaced: orderPlaced,
	})
	requireResource(ctx, logg, "consumer service", err)

	opsServer, err := ops.NewServer(ops.ServerParams{
		Addr:     cfg.Ops.Addr,
		Env:      cfg.App.Env,
		Registry: promRegistry,
		Logger:   logg,
		Checks: map[string]ops.Checker{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
		},
	})
	requireResource(ctx, logg, "ops server", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind":    cfg.Service.Kind,
		"env":            cfg.App.Env,
		"consumer_group": cfg.Consumer.Group,
	})
	logg.Info(runCtx, "payment consumer ready")

	go func() {
		if err := opsServer.Run(runCtx); err != nil {
			logg.Error(runCtx, "ops server stopped", err)
		}
	}()

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "payment consumer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "payment consumer shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
