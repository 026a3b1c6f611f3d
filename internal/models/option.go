package models

import (
	"math"
	"sort"
	"strings"
	"time"
)

// ContractMultiplier is the number of shares controlled by one option contract.
const ContractMultiplier = 100.0

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// ParseOptionType normalizes provider spellings ("call", "CALL", "c") into an OptionType.
func ParseOptionType(s string) (OptionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return OptionTypeCall, true
	case "put", "p":
		return OptionTypePut, true
	default:
		return "", false
	}
}

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// Greeks holds the risk sensitivities of a contract.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// OptionContract is an immutable snapshot of one options contract.
type OptionContract struct {
	Ticker            string     `json:"ticker"`
	Underlying        string     `json:"underlying"`
	Type              OptionType `json:"type"`
	Strike            float64    `json:"strike"`
	Expiration        Date       `json:"expiration"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	Mid               float64    `json:"mid"`
	LastClose         float64    `json:"last_close,omitempty"`
	Greeks            Greeks     `json:"greeks"`
	ImpliedVolatility float64    `json:"implied_volatility"`
	OpenInterest      int64      `json:"open_interest,omitempty"`
	// DaysToExpiration is derived; refreshed with WithDaysToExpiration after a cache load.
	DaysToExpiration int `json:"dte"`
}

// DaysToExpirationAt returns expiration - date(now), clamped at zero.
func (c OptionContract) DaysToExpirationAt(now time.Time) int {
	d := c.Expiration.DaysFrom(now)
	if d < 0 {
		return 0
	}
	return d
}

// Premium returns the mid price when available, otherwise whichever side is quoted.
func (c OptionContract) Premium() float64 {
	switch {
	case c.Mid > 0:
		return c.Mid
	case c.Bid > 0 && c.Ask > 0:
		return (c.Bid + c.Ask) / 2
	case c.Bid > 0:
		return c.Bid
	case c.Ask > 0:
		return c.Ask
	default:
		return c.LastClose
	}
}

// AbsDelta returns |delta| so puts and calls can share delta bands.
func (c OptionContract) AbsDelta() float64 {
	return math.Abs(c.Greeks.Delta)
}

// IntrinsicValue returns the per-share intrinsic value at the given underlying price.
func (c OptionContract) IntrinsicValue(underlying float64) float64 {
	if c.Type == OptionTypeCall {
		return math.Max(0, underlying-c.Strike)
	}
	return math.Max(0, c.Strike-underlying)
}

// MaturityBucket partitions an options chain by days to expiration.
type MaturityBucket string

const (
	// BucketShortTerm covers 0-60 DTE
	BucketShortTerm MaturityBucket = "short_term"
	// BucketMediumTerm covers 60 DTE to 12 months
	BucketMediumTerm MaturityBucket = "medium_term"
	// BucketLongTerm covers 12-30 months
	BucketLongTerm MaturityBucket = "long_term"
)

// Bucket boundaries in days.
const (
	ShortTermMaxDTE  = 60
	MediumTermMaxDTE = 365
	LongTermMaxDTE   = 913
)

// BucketForDTE maps days-to-expiration onto a maturity bucket.
func BucketForDTE(dte int) MaturityBucket {
	switch {
	case dte <= ShortTermMaxDTE:
		return BucketShortTerm
	case dte < MediumTermMaxDTE:
		return BucketMediumTerm
	default:
		return BucketLongTerm
	}
}

// OptionsChain is a flat collection of contracts for one underlying.
type OptionsChain struct {
	Ticker    string           `json:"ticker"`
	Contracts []OptionContract `json:"contracts"`
	FetchedAt time.Time        `json:"fetched_at"`
	Filtered  bool             `json:"filtered"`
}

// Len returns the number of contracts in the chain.
func (c *OptionsChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Contracts)
}

// WithDaysToExpiration recomputes every contract's DTE relative to now.
func (c *OptionsChain) WithDaysToExpiration(now time.Time) {
	if c == nil {
		return
	}
	for i := range c.Contracts {
		c.Contracts[i].DaysToExpiration = c.Contracts[i].DaysToExpirationAt(now)
	}
}

// ByBucket returns the contracts that fall in the given maturity bucket.
func (c *OptionsChain) ByBucket(bucket MaturityBucket) []OptionContract {
	if c == nil {
		return nil
	}
	var out []OptionContract
	for _, oc := range c.Contracts {
		if BucketForDTE(oc.DaysToExpiration) == bucket {
			out = append(out, oc)
		}
	}
	return out
}

// ContractFilter selects contracts by type, DTE band and |delta| band.
type ContractFilter struct {
	Type     OptionType
	MinDTE   int
	MaxDTE   int
	MinDelta float64
	MaxDelta float64
	// MinStrike excludes strikes <= MinStrike when positive.
	MinStrike float64
	// MaxStrike excludes strikes >= MaxStrike when positive.
	MaxStrike float64
}

// Match reports whether oc satisfies the filter.
func (f ContractFilter) Match(oc OptionContract) bool {
	if f.Type != "" && oc.Type != f.Type {
		return false
	}
	if oc.DaysToExpiration < f.MinDTE || oc.DaysToExpiration > f.MaxDTE {
		return false
	}
	d := oc.AbsDelta()
	if d < f.MinDelta || d > f.MaxDelta {
		return false
	}
	if f.MinStrike > 0 && oc.Strike <= f.MinStrike {
		return false
	}
	if f.MaxStrike > 0 && oc.Strike >= f.MaxStrike {
		return false
	}
	return true
}

// Filter returns matching contracts sorted by distance from the center of the delta band.
func (c *OptionsChain) Filter(f ContractFilter) []OptionContract {
	if c == nil {
		return nil
	}
	center := (f.MinDelta + f.MaxDelta) / 2
	var out []OptionContract
	for _, oc := range c.Contracts {
		if f.Match(oc) {
			out = append(out, oc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di := math.Abs(out[i].AbsDelta() - center)
		dj := math.Abs(out[j].AbsDelta() - center)
		if di != dj {
			return di < dj
		}
		return out[i].DaysToExpiration < out[j].DaysToExpiration
	})
	return out
}

// Find returns the contract with the given type, strike and expiration.
func (c *OptionsChain) Find(t OptionType, strike float64, exp Date) (OptionContract, bool) {
	if c == nil {
		return OptionContract{}, false
	}
	for _, oc := range c.Contracts {
		if oc.Type == t && math.Abs(oc.Strike-strike) <= 1e-3 && oc.Expiration.Equal(exp.Time) {
			return oc, true
		}
	}
	return OptionContract{}, false
}
