package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// PositionType distinguishes share holdings from option contracts.
type PositionType string

const (
	// PositionStock is a share holding
	PositionStock PositionType = "stock"
	// PositionOption is an option contract holding
	PositionOption PositionType = "option"
)

// Position is a user-entered holding.
// Quantity is signed: positive = long, negative = short.
type Position struct {
	ID              string       `json:"id"`
	Type            PositionType `json:"type"`
	Ticker          string       `json:"ticker"`
	TransactionDate Date         `json:"transaction_date"`
	Quantity        float64      `json:"quantity"`
	// EntryPrice is the per-share price for stock or the per-share premium for options.
	EntryPrice float64    `json:"entry_price"`
	OptionType OptionType `json:"option_type,omitempty"`
	Strike     float64    `json:"strike,omitempty"`
	Expiration Date       `json:"expiration,omitempty"`
	// EntryIVPercentile is captured when the position is opened and drives IV-collapse checks.
	EntryIVPercentile *float64  `json:"entry_iv_percentile,omitempty"`
	ThesisBroken      bool      `json:"thesis_broken,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validate checks the fields required for the position's type.
func (p *Position) Validate() error {
	if strings.TrimSpace(p.Ticker) == "" {
		return fmt.Errorf("ticker is required")
	}
	if p.Quantity == 0 {
		return fmt.Errorf("quantity must be non-zero")
	}
	if p.EntryPrice < 0 {
		return fmt.Errorf("entry_price must be >= 0")
	}
	switch p.Type {
	case PositionStock:
		return nil
	case PositionOption:
		if !p.OptionType.Valid() {
			return fmt.Errorf("option_type must be 'call' or 'put'")
		}
		if p.Strike <= 0 {
			return fmt.Errorf("strike must be > 0")
		}
		if p.Expiration.IsZero() {
			return fmt.Errorf("expiration is required for option positions")
		}
		return nil
	default:
		return fmt.Errorf("type must be 'stock' or 'option'")
	}
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool { return p.Quantity > 0 }

// IsShort reports whether the position is short.
func (p *Position) IsShort() bool { return p.Quantity < 0 }

// IsLongCall reports whether the position is a long call (LEAPS rules).
func (p *Position) IsLongCall() bool {
	return p.Type == PositionOption && p.OptionType == OptionTypeCall && p.IsLong()
}

// IsShortCall reports whether the position is a short call.
func (p *Position) IsShortCall() bool {
	return p.Type == PositionOption && p.OptionType == OptionTypeCall && p.IsShort()
}

// IsShortPut reports whether the position is a short put.
func (p *Position) IsShortPut() bool {
	return p.Type == PositionOption && p.OptionType == OptionTypePut && p.IsShort()
}

// Multiplier returns shares per unit of quantity.
func (p *Position) Multiplier() float64 {
	if p.Type == PositionOption {
		return ContractMultiplier
	}
	return 1
}

// CalculateDTE calculates and returns the days to expiration for the position.
func (p *Position) CalculateDTE(now time.Time) int {
	if p.Type != PositionOption {
		return 0
	}
	days := p.Expiration.DaysFrom(now)
	if days < 0 {
		return 0
	}
	return days
}

// CostBasis returns the signed amount paid (positive) or received (negative) at entry.
func (p *Position) CostBasis() float64 {
	return p.Quantity * p.EntryPrice * p.Multiplier()
}

// Valuation is the mark-to-market state of a position.
type Valuation struct {
	CurrentPrice  float64 `json:"current_price"`
	CurrentValue  float64 `json:"current_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
	PriceIsStale  bool    `json:"price_is_stale,omitempty"`
}

// Value marks the position at currentPrice.
// A zero currentPrice means "unknown" and falls back to the entry price.
func (p *Position) Value(currentPrice float64) Valuation {
	v := Valuation{CurrentPrice: currentPrice}
	if currentPrice <= 0 {
		v.CurrentPrice = p.EntryPrice
		v.PriceIsStale = true
	}
	v.CurrentValue = p.Quantity * v.CurrentPrice * p.Multiplier()
	v.UnrealizedPnL = v.CurrentValue - p.CostBasis()
	if denom := math.Abs(p.CostBasis()); denom > 0 {
		v.PnLPercent = v.UnrealizedPnL / denom * 100
	}
	return v
}

// ProfitCaptured returns the fraction of maximum profit captured by a short option
// (premium received minus current cost to close, over premium received).
func (p *Position) ProfitCaptured(currentPremium float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (p.EntryPrice - currentPremium) / p.EntryPrice
}

// FindLEAPS returns the long call on ticker with the latest expiration, the
// leg a PMCC writes short calls against.
func FindLEAPS(positions []Position, ticker string) *Position {
	var best *Position
	for i := range positions {
		p := &positions[i]
		if p.Ticker != ticker || !p.IsLongCall() {
			continue
		}
		if best == nil || p.Expiration.After(best.Expiration.Time) {
			best = p
		}
	}
	return best
}

// StockCostBasis returns the share-weighted average entry price of long stock
// positions on ticker.
func StockCostBasis(positions []Position, ticker string) (float64, bool) {
	var shares, cost float64
	for _, p := range positions {
		if p.Ticker == ticker && p.Type == PositionStock && p.IsLong() {
			shares += p.Quantity
			cost += p.Quantity * p.EntryPrice
		}
	}
	if shares <= 0 {
		return 0, false
	}
	return cost / shares, true
}
