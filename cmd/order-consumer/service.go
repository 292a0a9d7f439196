package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmarketlabs/relay-backend/pkg/config"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type dispatcherRunner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               pinger
	Redis            pinger
	PubSub           pinger
	UserRegistration dispatcherRunner
	PaymentSuccess   dispatcherRunner
	PaymentFailure   dispatcherRunner
}

// Service runs the order-service consumer group: one dispatcher per
// subscription, all sharing the same database, idempotency store and
// dead-letter table. The first dispatcher to stop takes the whole binary
// down so the scheduler can restart it cleanly.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               pinger
	redis            pinger
	pubsub           pinger
	userRegistration dispatcherRunner
	paymentSuccess   dispatcherRunner
	paymentFailure   dispatcherRunner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.UserRegistration == nil {
		return nil, errors.New("user registration dispatcher is required")
	}
	if params.PaymentSuccess == nil {
		return nil, errors.New("payment success dispatcher is required")
	}
	if params.PaymentFailure == nil {
		return nil, errors.New("payment failure dispatcher is required")
	}

	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		redis:            params.Redis,
		pubsub:           params.PubSub,
		userRegistration: params.UserRegistration,
		paymentSuccess:   params.PaymentSuccess,
		paymentFailure:   params.PaymentFailure,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all consumer dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	errCh := make(chan error, 3)
	go func() {
		errCh <- s.userRegistration.Run(ctx)
	}()
	go func() {
		errCh <- s.paymentSuccess.Run(ctx)
	}()
	go func() {
		errCh <- s.paymentFailure.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "order consumer context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "dispatcher stopped unexpectedly", err)
				return err
			}
			return err
		case <-ticker.C:
		}
	}
}
