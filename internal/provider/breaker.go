package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality.
// It is opt-in; the default pipeline only retries.
type CircuitBreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerProvider implements Provider
var _ Provider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        `yaml:"max_requests"`  // Max requests when half-open
	Interval     time.Duration `yaml:"interval"`      // Reset counts interval
	Timeout      time.Duration `yaml:"timeout"`       // Open circuit duration
	MinRequests  uint32        `yaml:"min_requests"`  // Min requests before tripping
	FailureRatio float64       `yaml:"failure_ratio"` // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after 60% failures over at least 5 calls.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with custom settings
func NewCircuitBreakerProvider(inner Provider, settings CircuitBreakerSettings, logger logrus.FieldLogger) *CircuitBreakerProvider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "ProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithField("breaker", name).Warnf("Circuit breaker state changed from %s to %s", from, to)
		},
	}

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for the wrapper methods
func execCircuitBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// State returns the breaker's current state.
func (c *CircuitBreakerProvider) State() gobreaker.State {
	return c.breaker.State()
}

func (c *CircuitBreakerProvider) GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	return execCircuitBreaker(c.breaker, func() ([]models.Bar, error) {
		return c.inner.GetDailyBars(ctx, ticker, from, to)
	})
}

func (c *CircuitBreakerProvider) GetOptionsChainSnapshot(ctx context.Context, q ChainQuery) ([]models.OptionContract, error) {
	return execCircuitBreaker(c.breaker, func() ([]models.OptionContract, error) {
		return c.inner.GetOptionsChainSnapshot(ctx, q)
	})
}

func (c *CircuitBreakerProvider) GetSingleContractSnapshot(ctx context.Context, ticker, optionTicker string) (models.OptionContract, error) {
	return execCircuitBreaker(c.breaker, func() (models.OptionContract, error) {
		return c.inner.GetSingleContractSnapshot(ctx, ticker, optionTicker)
	})
}
