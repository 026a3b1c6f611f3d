// Package analysis computes technical indicators from daily bars and options
// chains. Every function is pure and returns a defined fallback (0 or empty)
// with ok=false when the input is too short.
package analysis

import (
	"math"
	"sort"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// TradingDaysPerYear annualizes daily volatility and sizes the 52-week window.
const TradingDaysPerYear = 252

// SMA returns the simple mean of the last n closes.
func SMA(closes []float64, n int) (float64, bool) {
	if n <= 0 || len(closes) < n {
		return 0, false
	}
	return mean(closes[len(closes)-n:]), true
}

// RSI returns Wilder's relative strength index over period, seeded with a
// simple average and smoothed across the whole series.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := change(closes[i-1], closes[i])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Subsequent values using Wilder smoothing
	for i := period + 1; i < len(closes); i++ {
		gain, loss := change(closes[i-1], closes[i])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

// HistoricalVolatility returns the annualized sample standard deviation of the
// last n daily log returns, in percent.
func HistoricalVolatility(closes []float64, n int) (float64, bool) {
	if n < 2 || len(closes) < n+1 {
		return 0, false
	}
	window := closes[len(closes)-n-1:]
	returns := make([]float64, 0, n)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 || window[i] <= 0 {
			return 0, false
		}
		returns = append(returns, math.Log(window[i]/window[i-1]))
	}
	m := mean(returns)
	var ss float64
	for _, r := range returns {
		ss += (r - m) * (r - m)
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	return sd * math.Sqrt(TradingDaysPerYear) * 100, true
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(cur, prev models.Bar) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// ATR returns the mean true range over the last n bars.
func ATR(bars []models.Bar, n int) (float64, bool) {
	if n <= 0 || len(bars) < n+1 {
		return 0, false
	}
	var total float64
	for i := len(bars) - n; i < len(bars); i++ {
		total += TrueRange(bars[i], bars[i-1])
	}
	return total / float64(n), true
}

// Extremes returns the max high and min low over the last n bars (all bars if fewer).
func Extremes(bars []models.Bar, n int) (high, low float64, ok bool) {
	if len(bars) == 0 || n <= 0 {
		return 0, 0, false
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low, true
}

// LevelsConfig tunes support/resistance detection.
type LevelsConfig struct {
	Lookback  int     // bars scanned
	Window    int     // bars on each side a pivot must dominate
	MaxLevels int     // per side
	MergePct  float64 // levels closer than this fraction are merged
}

// DefaultLevelsConfig scans 60 bars with a +/-2 bar pivot window.
var DefaultLevelsConfig = LevelsConfig{Lookback: 60, Window: 2, MaxLevels: 3, MergePct: 0.01}

// SupportResistance finds pivot lows below price (support) and pivot highs
// above price (resistance), nearest first.
func SupportResistance(bars []models.Bar, price float64, cfg LevelsConfig) (support, resistance []float64) {
	if len(bars) > cfg.Lookback {
		bars = bars[len(bars)-cfg.Lookback:]
	}
	w := cfg.Window
	if len(bars) < 2*w+1 {
		return []float64{}, []float64{}
	}

	var lows, highs []float64
	for i := w; i < len(bars)-w; i++ {
		isLow, isHigh := true, true
		for j := i - w; j <= i+w; j++ {
			if j == i {
				continue
			}
			if bars[j].Low < bars[i].Low {
				isLow = false
			}
			if bars[j].High > bars[i].High {
				isHigh = false
			}
		}
		if isLow {
			lows = append(lows, bars[i].Low)
		}
		if isHigh {
			highs = append(highs, bars[i].High)
		}
	}

	support = nearestLevels(lows, price, cfg, func(l float64) bool { return l < price })
	resistance = nearestLevels(highs, price, cfg, func(l float64) bool { return l > price })
	return support, resistance
}

func nearestLevels(candidates []float64, price float64, cfg LevelsConfig, keep func(float64) bool) []float64 {
	var filtered []float64
	for _, c := range candidates {
		if keep(c) {
			filtered = append(filtered, c)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return math.Abs(filtered[i]-price) < math.Abs(filtered[j]-price)
	})
	out := make([]float64, 0, cfg.MaxLevels)
	for _, c := range filtered {
		dup := false
		for _, o := range out {
			if math.Abs(c-o) <= o*cfg.MergePct {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
		if len(out) == cfg.MaxLevels {
			break
		}
	}
	return out
}

func closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
