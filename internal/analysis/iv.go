package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/util"
)

// MinIVHistory is the number of daily readings needed before percentile and
// rank are taken from history instead of the chain's IV spread.
const MinIVHistory = 20

// atmMinDTE skips expirations too close to settle for an ATM IV reading.
const atmMinDTE = 7

// ATMImpliedVolatility averages the IV of the call and put struck closest to
// price at the nearest expiration with at least a week left (the nearest
// expiration overall when none has). It returns false when no contract
// carries an IV.
func ATMImpliedVolatility(chain *models.OptionsChain, price float64, now time.Time) (float64, bool) {
	if chain.Len() == 0 || price <= 0 {
		return 0, false
	}
	var candidates []models.OptionContract
	for _, oc := range chain.Contracts {
		if oc.ImpliedVolatility > 0 && !math.IsNaN(oc.ImpliedVolatility) {
			candidates = append(candidates, oc)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	exp, found := models.Date{}, false
	for _, minDTE := range []int{atmMinDTE, 0} {
		for _, oc := range candidates {
			dte := oc.DaysToExpirationAt(now)
			if dte < minDTE {
				continue
			}
			if !found || oc.Expiration.Before(exp.Time) {
				exp, found = oc.Expiration, true
			}
		}
		if found {
			break
		}
	}

	best := math.Inf(1)
	for _, oc := range candidates {
		if oc.Expiration.Equal(exp.Time) {
			best = math.Min(best, math.Abs(oc.Strike-price))
		}
	}
	var total float64
	var n int
	for _, oc := range candidates {
		if oc.Expiration.Equal(exp.Time) && math.Abs(oc.Strike-price) == best {
			total += oc.ImpliedVolatility
			n++
		}
	}
	return total / float64(n), true
}

// IVRank calculates Implied Volatility Rank from historical data:
// (current - period low) / (period high - period low) * 100, clamped to [0, 100].
func IVRank(currentIV float64, historicalIVs []float64) float64 {
	clean := finite(historicalIVs)
	if !isFinite(currentIV) || len(clean) == 0 {
		return 0
	}

	minIV, maxIV := clean[0], clean[0]
	for _, iv := range clean {
		minIV = math.Min(minIV, iv)
		maxIV = math.Max(maxIV, iv)
	}
	if maxIV == minIV {
		return 0
	}
	r := (currentIV - minIV) / (maxIV - minIV) * 100
	return util.Clamp(r, 0, 100)
}

// IVPercentile returns the percentage of historical readings strictly below currentIV.
func IVPercentile(currentIV float64, historicalIVs []float64) float64 {
	clean := finite(historicalIVs)
	if !isFinite(currentIV) || len(clean) == 0 {
		return 0
	}
	below := 0
	for _, iv := range clean {
		if iv < currentIV {
			below++
		}
	}
	return float64(below) / float64(len(clean)) * 100
}

// TrailingYear returns the IV values of readings within 52 weeks of now, oldest first.
func TrailingYear(history []models.IVReading, now time.Time) []float64 {
	cutoff := models.ExchangeDate(now).AddDate(0, 0, -364)
	sorted := append([]models.IVReading(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date.Time) })
	out := make([]float64, 0, len(sorted))
	for _, r := range sorted {
		if !r.Date.Before(cutoff) {
			out = append(out, r.IV)
		}
	}
	return out
}

// ChainIVSpread returns the IVs of short-dated chain contracts, used as a
// stand-in distribution while the stored history is still thin.
func ChainIVSpread(chain *models.OptionsChain, now time.Time) []float64 {
	if chain == nil {
		return nil
	}
	var out []float64
	for _, oc := range chain.Contracts {
		if oc.ImpliedVolatility > 0 && oc.DaysToExpirationAt(now) <= models.ShortTermMaxDTE {
			out = append(out, oc.ImpliedVolatility)
		}
	}
	return out
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
