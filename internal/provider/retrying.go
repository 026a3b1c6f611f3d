package provider

import (
	"context"
	"time"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// RetryingProvider runs every call of the wrapped Provider under a Retrier.
type RetryingProvider struct {
	inner   Provider
	retrier *Retrier
}

// Ensure RetryingProvider implements Provider
var _ Provider = (*RetryingProvider)(nil)

// NewRetryingProvider wraps inner with the given retrier.
func NewRetryingProvider(inner Provider, retrier *Retrier) *RetryingProvider {
	return &RetryingProvider{inner: inner, retrier: retrier}
}

func (r *RetryingProvider) GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	return retryDo(ctx, r.retrier, "daily_bars", ticker, func(ctx context.Context) ([]models.Bar, error) {
		return r.inner.GetDailyBars(ctx, ticker, from, to)
	})
}

func (r *RetryingProvider) GetOptionsChainSnapshot(ctx context.Context, q ChainQuery) ([]models.OptionContract, error) {
	return retryDo(ctx, r.retrier, "options_chain", q.Ticker, func(ctx context.Context) ([]models.OptionContract, error) {
		return r.inner.GetOptionsChainSnapshot(ctx, q)
	})
}

func (r *RetryingProvider) GetSingleContractSnapshot(ctx context.Context, ticker, optionTicker string) (models.OptionContract, error) {
	return retryDo(ctx, r.retrier, "contract_snapshot", optionTicker, func(ctx context.Context) (models.OptionContract, error) {
		return r.inner.GetSingleContractSnapshot(ctx, ticker, optionTicker)
	})
}
