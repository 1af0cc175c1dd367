package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer consumer
	// MetricsAddr enables the /metrics listener when set.
	MetricsAddr string
}

type dependency struct {
	name string
	pinger
}

// Service runs the customer notification consumer once Postgres, Redis and
// Pub/Sub answer, alongside the optional metrics listener.
type Service struct {
	logg        *logger.Logger
	deps        []dependency
	consumer    consumer
	metricsAddr string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.NotificationConsumer == nil:
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg: params.Logger,
		deps: []dependency{
			{name: "database", pinger: params.DB},
			{name: "redis", pinger: params.Redis},
			{name: "pubsub", pinger: params.PubSub},
		},
		consumer:    params.NotificationConsumer,
		metricsAddr: params.MetricsAddr,
	}, nil
}

// checkDependencies pings every dependency concurrently.
func (s *Service) checkDependencies(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range s.deps {
		g.Go(func() error {
			if err := dep.Ping(gctx); err != nil {
				s.logg.Error(s.logg.WithField(ctx, "dependency", dep.name), "dependency ping failed", err)
				return fmt.Errorf("%s ping failed: %w", dep.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logg.Info(ctx, "worker dependencies ready")
	return nil
}

// Run blocks until ctx is cancelled or the consumer stops. A cancelled
// context is reported as context.Canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.consumer.Run(gctx)
		if err == nil && ctx.Err() == nil {
			return errors.New("notification consumer exited")
		}
		return err
	})
	if s.metricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, s.metricsAddr, s.logg) })
	}

	err := g.Wait()
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	s.logg.Error(ctx, "worker stopped unexpectedly", err)
	return err
}
