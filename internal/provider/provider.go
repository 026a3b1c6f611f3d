// Package provider wraps the external market-data API: daily bars, filtered
// options-chain snapshots and single-contract snapshots, each retried on a fixed schedule.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// Provider defines the market-data operations the dashboard depends on.
type Provider interface {
	// GetDailyBars returns chronological (oldest-first) daily bars for [from, to].
	GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error)
	// GetOptionsChainSnapshot returns the contracts matching q. Unparseable contracts are skipped.
	GetOptionsChainSnapshot(ctx context.Context, q ChainQuery) ([]models.OptionContract, error)
	// GetSingleContractSnapshot returns one contract by its option ticker.
	GetSingleContractSnapshot(ctx context.Context, ticker, optionTicker string) (models.OptionContract, error)
}

// ChainQuery filters an options-chain snapshot request.
// Empty ContractType means both; nil strike bounds are omitted from the request.
type ChainQuery struct {
	Ticker        string
	ExpirationGTE time.Time
	ExpirationLTE time.Time
	ContractType  models.OptionType
	StrikeGTE     *float64
	StrikeLTE     *float64
}

// Unfiltered returns a copy of q without strike bounds.
func (q ChainQuery) Unfiltered() ChainQuery {
	q.StrikeGTE = nil
	q.StrikeLTE = nil
	return q
}

// HasStrikeBounds reports whether either strike bound is set.
func (q ChainQuery) HasStrikeBounds() bool {
	return q.StrikeGTE != nil || q.StrikeLTE != nil
}

func (q ChainQuery) String() string {
	s := fmt.Sprintf("%s exp[%s..%s]", q.Ticker, q.ExpirationGTE.Format(models.DateLayout), q.ExpirationLTE.Format(models.DateLayout))
	if q.ContractType != "" {
		s += " " + string(q.ContractType)
	}
	if q.StrikeGTE != nil {
		s += fmt.Sprintf(" strike>=%.2f", *q.StrikeGTE)
	}
	if q.StrikeLTE != nil {
		s += fmt.Sprintf(" strike<=%.2f", *q.StrikeLTE)
	}
	return s
}

// Float returns a pointer to v, for ChainQuery strike bounds.
func Float(v float64) *float64 { return &v }

// ProviderError is returned once every retry of a provider call is exhausted.
type ProviderError struct {
	Op       string
	Ticker   string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s failed after %d attempts: %v", e.Op, e.Ticker, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// PartialParseError describes one contract record that could not be decoded.
type PartialParseError struct {
	ContractID string
	Field      string
	Err        error
}

func (e *PartialParseError) Error() string {
	id := e.ContractID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("contract %s: field %s: %v", id, e.Field, e.Err)
}

func (e *PartialParseError) Unwrap() error { return e.Err }
