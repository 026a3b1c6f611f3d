package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/finance_dashboard/internal/cache"
	"github.com/eddiefleurent/finance_dashboard/internal/config"
	"github.com/eddiefleurent/finance_dashboard/internal/dashboard"
	"github.com/eddiefleurent/finance_dashboard/internal/logging"
	"github.com/eddiefleurent/finance_dashboard/internal/marketdata"
	"github.com/eddiefleurent/finance_dashboard/internal/mock"
	"github.com/eddiefleurent/finance_dashboard/internal/provider"
	"github.com/eddiefleurent/finance_dashboard/internal/recommend"
	"github.com/eddiefleurent/finance_dashboard/internal/signals"
	"github.com/eddiefleurent/finance_dashboard/internal/storage"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg          *config.Config
	logger       *logrus.Logger
	storage      *storage.Storage
	market       *marketdata.Service
	orchestrator *dashboard.Orchestrator
	closers      []io.Closer
}

// loadConfig reads configuration and builds the logger.
func loadConfig(path string, stderr bool) (*config.Config, *logrus.Logger, io.Closer, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	build := logging.New
	if stderr {
		build = logging.NewStderr
	}
	logger, closer, err := build(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.LogWarnings(logger)
	return cfg, logger, closer, nil
}

// newApp wires the cache, provider chain and services from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	p, err := newProvider(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.storage = storage.NewStorage(store)
	a.market = marketdata.NewService(p, store, a.storage, cfg.StrikeCalculator(), logger)
	a.orchestrator = dashboard.NewOrchestrator(
		a.storage,
		a.market,
		signals.NewGenerator(logger),
		recommend.NewService(logger),
		a.market.Clock().IsMarketOpen,
		cfg.Dashboard.Concurrency,
		logger,
	)
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "memory":
		logger.Warn("Using in-memory cache; data is lost on exit")
		return cache.NewMemoryStore(), nil
	default:
		store, err := cache.DialRedis(ctx, cfg.Redis())
		if err != nil {
			return nil, err
		}
		logger.WithField("addr", cfg.Cache.Addr).Info("Connected to redis")
		return store, nil
	}
}

// newProvider builds client -> optional breaker -> retry.
func newProvider(cfg *config.Config, logger *logrus.Logger) (provider.Provider, error) {
	var p provider.Provider
	switch cfg.Provider.Name {
	case "mock":
		logger.Info("Using mock market data provider")
		p = mock.NewDataProvider()
	case "polygon":
		p = provider.NewPolygonClient(cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Timeout, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
	if cfg.Provider.CircuitBreaker.Enabled {
		p = provider.NewCircuitBreakerProvider(p, cfg.Provider.CircuitBreaker.CircuitBreakerSettings, logger)
	}
	return provider.NewRetryingProvider(p, provider.NewRetrier(provider.DefaultRetryPolicy, provider.ContextSleep, logger)), nil
}

// Close releases connections.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
