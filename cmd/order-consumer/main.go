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

	"github.com/openmarketlabs/relay-backend/internal/orders"
	"github.com/openmarketlabs/relay-backend/pkg/backoff"
	"github.com/openmarketlabs/relay-backend/pkg/config"
	"github.com/openmarketlabs/relay-backend/pkg/db"
	"github.com/openmarketlabs/relay-backend/pkg/dispatch"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
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
	logg := logger.New(logger.Options{ServiceName: "order-consumer"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "order-consumer"

	logg = logger.New(logger.Options{
		ServiceName: "order-consumer",
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

	ordersRepo := orders.NewRepository(dbClient.DB())
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	offsetRepo := dispatch.NewOffsetRepository(dbClient.DB())
	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	retryPolicy := backoff.Policy{
		Base:   cfg.Consumer.BaseBackoff(),
		Max:    cfg.Consumer.MaxBackoff(),
		Jitter: cfg.Consumer.BaseBackoff() / 2,
	}

	newDispatcher := func(topic, subscription string, handler dispatch.HandlerFunc) *dispatch.Dispatcher {
		sub := pubsubClient.OrderedSubscription(subscription)
		if sub == nil {
			requireResource(ctx, logg, fmt.Sprintf("subscription %s", subscription), errors.New("subscription not configured"))
		}
		d, err := dispatch.NewDispatcher(dispatch.DispatcherParams{
			Topic:        topic,
			Group:        cfg.Consumer.Group,
			Subscription: sub,
			DB:           dbClient,
			Handler:      handler,
			Idempotency:  idempotencyManager,
			DeadLetters:  dlqRepo,
			Offsets:      offsetRepo,
			Backoff:      retryPolicy,
			MaxAttempts:  cfg.Consumer.MaxAttempts,
			Metrics:      relayMetrics,
			Logger:       logg,
		})
		requireResource(ctx, logg, fmt.Sprintf("dispatcher %s", topic), err)
		return d
	}

	userRegistration := newDispatcher(
		cfg.PubSub.UserRegistrationTopic,
		cfg.PubSub.UserRegistrationSubscription,
		orders.UserRegistrationHandler(ordersRepo, logg),
	)
	paymentSuccess := newDispatcher(
		cfg.PubSub.PaymentSuccessTopic,
		cfg.PubSub.PaymentSuccessSubscription,
		orders.PaymentOutcomeHandler(ordersRepo, enums.OrderStatusPaid, logg),
	)
	paymentFailure := newDispatcher(
		cfg.PubSub.PaymentFailureTopic,
		cfg.PubSub.PaymentFailureSubscription,
		orders.PaymentOutcomeHandler(ordersRepo, enums.OrderStatusFailed, logg),
	)

	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               dbClient,
		Redis:            redisClient,
		PubSub:           pubsubClient,
		UserRegistration: userRegistration,
		PaymentSuccess:   paymentSuccess,
		PaymentFailure:   paymentFailure,
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
	logg.Info(runCtx, "order consumer ready")

	go func() {
		if err := opsServer.Run(runCtx); err != nil {
			logg.Error(runCtx, "ops server stopped", err)
		}
	}()

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "order consumer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "order consumer shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
