package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/openmarketlabs/relay-backend/pkg/config"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type failPinger struct{ err error }

func (f failPinger) Ping(context.Context) error { return f.err }

type fakeDispatcher struct {
	err     error
	started chan struct{}
}

func (f *fakeDispatcher) Run(ctx context.Context) error {
	if f.started != nil {
		close(f.started)
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func newConsumerService(t *testing.T, params ServiceParams) *Service {
	t.Helper()
	if params.Config == nil {
		params.Config = &config.Config{}
	}
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "order-consumer-test", Output: io.Discard})
	}
	if params.DB == nil {
		params.DB = okPinger{}
	}
	if params.Redis == nil {
		params.Redis = okPinger{}
	}
	if params.PubSub == nil {
		params.PubSub = okPinger{}
	}
	if params.UserRegistration == nil {
		params.UserRegistration = &fakeDispatcher{}
	}
	if params.PaymentSuccess == nil {
		params.PaymentSuccess = &fakeDispatcher{}
	}
	if params.PaymentFailure == nil {
		params.PaymentFailure = &fakeDispatcher{}
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func TestServiceRunStopsWhenDispatcherFails(t *testing.T) {
	boom := errors.New("subscription lost")
	service := newConsumerService(t, ServiceParams{
		PaymentSuccess: &fakeDispatcher{err: boom},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := service.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected dispatcher error, got %v", err)
	}
}

func TestServiceRunStopsOnContextCancel(t *testing.T) {
	started := make(chan struct{})
	service := newConsumerService(t, ServiceParams{
		UserRegistration: &fakeDispatcher{started: started},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- service.Run(ctx)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never started")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestServiceRunFailsWhenDependencyUnready(t *testing.T) {
	service := newConsumerService(t, ServiceParams{
		Redis: failPinger{err: errors.New("connection refused")},
	})

	if err := service.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	base := func() ServiceParams {
		return ServiceParams{
			Config:           &config.Config{},
			Logger:           logger.New(logger.Options{ServiceName: "order-consumer-test", Output: io.Discard}),
			DB:               okPinger{},
			Redis:            okPinger{},
			PubSub:           okPinger{},
			UserRegistration: &fakeDispatcher{},
			PaymentSuccess:   &fakeDispatcher{},
			PaymentFailure:   &fakeDispatcher{},
		}
	}

	cases := []struct {
		name   string
		mutate func(*ServiceParams)
	}{
		{"missing config", func(p *ServiceParams) { p.Config = nil }},
		{"missing logger", func(p *ServiceParams) { p.Logger = nil }},
		{"missing db", func(p *ServiceParams) { p.DB = nil }},
		{"missing redis", func(p *ServiceParams) { p.Redis = nil }},
		{"missing pubsub", func(p *ServiceParams) { p.PubSub = nil }},
		{"missing user registration dispatcher", func(p *ServiceParams) { p.UserRegistration = nil }},
		{"missing payment success dispatcher", func(p *ServiceParams) { p.PaymentSuccess = nil }},
		{"missing payment failure dispatcher", func(p *ServiceParams) { p.PaymentFailure = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := base()
			tc.mutate(&params)
			if _, err := NewService(params); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
