// Package strikes bounds option-chain requests to a band of strikes around the current price.
package strikes

import (
	"fmt"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/util"
)

// Increment is the strike grid the bounds are rounded to.
const Increment = 5.0

// Default range percentages per maturity bucket.
const (
	DefaultShortTermRange  = 0.20
	DefaultMediumTermRange = 0.25
	DefaultLongTermRange   = 0.30
)

// Valid range percentage interval. 1.0 disables filtering for the bucket.
const (
	MinRange = 0.05
	MaxRange = 1.0
)

// Bounds is an inclusive strike window.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether strike lies inside the window.
func (b Bounds) Contains(strike float64) bool {
	return strike >= b.Lower && strike <= b.Upper
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%.2f, %.2f]", b.Lower, b.Upper)
}

// Round5 rounds x to the nearest $5 strike, ties away from zero.
func Round5(x float64) float64 {
	return util.RoundToTick(x, Increment)
}

// Calculate returns (round5(P*(1-r)), round5(P*(1+r))), widened to the
// enclosing $5 grid when rounding would leave P outside the window.
func Calculate(currentPrice, rangePct float64) Bounds {
	if currentPrice <= 0 {
		return Bounds{}
	}
	lower := Round5(currentPrice * (1 - rangePct))
	upper := Round5(currentPrice * (1 + rangePct))
	if lower > currentPrice {
		lower = util.FloorToTick(currentPrice, Increment)
	}
	if upper < currentPrice {
		upper = util.CeilToTick(currentPrice, Increment)
	}
	if lower < 0 {
		lower = 0
	}
	return Bounds{Lower: lower, Upper: upper}
}

// ValidRange reports whether r is an accepted range percentage.
func ValidRange(r float64) bool {
	return r >= MinRange && r <= MaxRange
}

// Ranges holds the configured range percentage for each maturity bucket.
type Ranges struct {
	ShortTerm  float64
	MediumTerm float64
	LongTerm   float64
}

// DefaultRanges returns the recognized defaults.
func DefaultRanges() Ranges {
	return Ranges{
		ShortTerm:  DefaultShortTermRange,
		MediumTerm: DefaultMediumTermRange,
		LongTerm:   DefaultLongTermRange,
	}
}

// For returns the range percentage for a bucket.
func (r Ranges) For(bucket models.MaturityBucket) float64 {
	switch bucket {
	case models.BucketShortTerm:
		return r.ShortTerm
	case models.BucketMediumTerm:
		return r.MediumTerm
	default:
		return r.LongTerm
	}
}

// Calculator computes per-bucket bounds. A disabled calculator returns no bounds at all.
type Calculator struct {
	ranges  Ranges
	enabled bool
}

// NewCalculator creates a Calculator with validated ranges.
func NewCalculator(enabled bool, ranges Ranges) *Calculator {
	return &Calculator{ranges: ranges, enabled: enabled}
}

// Enabled reports whether strike filtering is on.
func (c *Calculator) Enabled() bool {
	return c != nil && c.enabled
}

// Ranges returns the configured range percentages.
func (c *Calculator) Ranges() Ranges {
	return c.ranges
}

// BoundsFor returns the bucket's window around currentPrice.
// ok is false when filtering is disabled globally or the bucket's range is 1.0.
func (c *Calculator) BoundsFor(bucket models.MaturityBucket, currentPrice float64) (b Bounds, ok bool) {
	if !c.Enabled() || currentPrice <= 0 {
		return Bounds{}, false
	}
	r := c.ranges.For(bucket)
	if r >= MaxRange {
		return Bounds{}, false
	}
	return Calculate(currentPrice, r), true
}
