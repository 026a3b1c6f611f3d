package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerProvider_TripsAfterFailures(t *testing.T) {
	inner := &scriptedProvider{failures: 100}
	cb := NewCircuitBreakerProvider(inner, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := cb.GetDailyBars(context.Background(), "AAPL", time.Time{}, time.Time{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.GetOptionsChainSnapshot(context.Background(), ChainQuery{Ticker: "AAPL"})
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 3, inner.calls, "open breaker short-circuits")
}

func TestCircuitBreakerProvider_PassesThroughSuccess(t *testing.T) {
	cb := NewCircuitBreakerProvider(&scriptedProvider{}, DefaultCircuitBreakerSettings, quietLogger())
	c, err := cb.GetSingleContractSnapshot(context.Background(), "AAPL", "O:AAPL260116C00200000")
	require.NoError(t, err)
	assert.Equal(t, "O:AAPL260116C00200000", c.Ticker)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
