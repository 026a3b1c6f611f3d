package models

import "time"

// Bar is one daily OHLCV bar.
type Bar struct {
	Date   Date    `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// StockIndicatorSet is the computed technical picture for one ticker.
type StockIndicatorSet struct {
	Ticker         string    `json:"ticker"`
	CurrentPrice   float64   `json:"current_price"`
	DailyChange    float64   `json:"daily_change"`
	DailyChangePct float64   `json:"daily_change_pct"`
	High52Week     float64   `json:"high_52w"`
	Low52Week      float64   `json:"low_52w"`
	MA20           float64   `json:"ma_20"`
	MA50           float64   `json:"ma_50"`
	MA200          float64   `json:"ma_200"`
	RSI14          float64   `json:"rsi_14"`
	ATR14          float64   `json:"atr_14"`
	HV20           float64   `json:"hv_20"`
	IVPercentile   float64   `json:"iv_percentile"`
	IVRank         float64   `json:"iv_rank"`
	ATMIV          float64   `json:"atm_iv"`
	EarningsDate   *Date     `json:"earnings_date"`
	DaysToEarnings *int      `json:"days_to_earnings"`
	Support        []float64 `json:"support_levels"`
	Resistance     []float64 `json:"resistance_levels"`
	SwingHigh      float64   `json:"swing_high"`
	SwingLow       float64   `json:"swing_low"`
	ComputedAt     time.Time `json:"computed_at"`
}

// EarningsWithin reports whether the next earnings date falls within [0, days] days.
func (s *StockIndicatorSet) EarningsWithin(days int) bool {
	if s == nil || s.DaysToEarnings == nil {
		return false
	}
	d := *s.DaysToEarnings
	return d >= 0 && d <= days
}

// DaysSinceEarnings returns how many days ago the recorded earnings date passed, if it did.
func (s *StockIndicatorSet) DaysSinceEarnings() (int, bool) {
	if s == nil || s.DaysToEarnings == nil || *s.DaysToEarnings >= 0 {
		return 0, false
	}
	return -*s.DaysToEarnings, true
}

// IVReading is a single at-the-money implied volatility observation.
type IVReading struct {
	Date Date    `json:"date"`
	IV   float64 `json:"iv"` // decimal, 0.20 = 20%
}
