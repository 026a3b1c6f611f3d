package analysis

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/util"
)

// Lookback windows in bars.
const (
	RSIPeriod      = 14
	ATRPeriod      = 14
	HVPeriod       = 20
	SwingLookback  = 20
	HistoryBarDays = 365
)

// Engine turns bars, a chain and IV history into a StockIndicatorSet.
// It performs no I/O; short inputs yield zero values and a warning.
type Engine struct {
	logger logrus.FieldLogger
	levels LevelsConfig
}

// NewEngine creates an Engine. A nil logger discards warnings.
func NewEngine(logger logrus.FieldLogger) *Engine {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Engine{logger: logger, levels: DefaultLevelsConfig}
}

// PriceIndicators computes everything derivable from bars alone, plus the
// days-to-earnings countdown when an earnings date is known.
func (e *Engine) PriceIndicators(ticker string, bars []models.Bar, earnings *models.Date, now time.Time) *models.StockIndicatorSet {
	set := &models.StockIndicatorSet{
		Ticker:     ticker,
		Support:    []float64{},
		Resistance: []float64{},
		ComputedAt: now.UTC(),
	}
	if earnings != nil && !earnings.IsZero() {
		d := *earnings
		days := d.DaysFrom(now)
		set.EarningsDate = &d
		set.DaysToEarnings = &days
	}
	if len(bars) == 0 {
		e.warn(ticker, "price", 0, 1)
		return set
	}

	c := closes(bars)
	last := bars[len(bars)-1]
	set.CurrentPrice = last.Close
	if len(bars) >= 2 {
		prev := bars[len(bars)-2].Close
		set.DailyChange = util.RoundToTick(last.Close-prev, 0.01)
		set.DailyChangePct = util.RoundToTick(util.PercentChange(prev, last.Close), 0.01)
	}

	set.MA20 = e.orZero(ticker, "ma_20", 20, len(c))(SMA(c, 20))
	set.MA50 = e.orZero(ticker, "ma_50", 50, len(c))(SMA(c, 50))
	set.MA200 = e.orZero(ticker, "ma_200", 200, len(c))(SMA(c, 200))
	set.RSI14 = e.orZero(ticker, "rsi_14", RSIPeriod+1, len(c))(RSI(c, RSIPeriod))
	set.HV20 = e.orZero(ticker, "hv_20", HVPeriod+1, len(c))(HistoricalVolatility(c, HVPeriod))
	set.ATR14 = e.orZero(ticker, "atr_14", ATRPeriod+1, len(bars))(ATR(bars, ATRPeriod))

	set.High52Week, set.Low52Week, _ = Extremes(bars, TradingDaysPerYear)
	set.SwingHigh, set.SwingLow, _ = Extremes(bars, SwingLookback)
	set.Support, set.Resistance = SupportResistance(bars, last.Close, e.levels)
	return set
}

// ApplyImpliedVolatility fills ATM IV, IV percentile and IV rank on set from
// the chain and the stored daily history. With fewer than MinIVHistory
// readings in the trailing year the chain's own IV spread stands in for the
// history.
func (e *Engine) ApplyImpliedVolatility(set *models.StockIndicatorSet, chain *models.OptionsChain, history []models.IVReading, now time.Time) {
	if set == nil {
		return
	}
	atm, ok := ATMImpliedVolatility(chain, set.CurrentPrice, now)
	if !ok {
		// Fall back to the most recent stored reading.
		if len(history) == 0 {
			e.logger.WithField("ticker", set.Ticker).Warn("no ATM implied volatility available")
			return
		}
		atm = history[len(history)-1].IV
	}
	set.ATMIV = atm

	reference := TrailingYear(history, now)
	if len(reference) < MinIVHistory {
		e.logger.WithFields(logrus.Fields{
			"ticker":   set.Ticker,
			"readings": len(reference),
		}).Debug("IV history too short, using chain IV spread")
		reference = ChainIVSpread(chain, now)
	}
	set.IVPercentile = util.RoundToTick(IVPercentile(atm, reference), 0.1)
	set.IVRank = util.RoundToTick(IVRank(atm, reference), 0.1)
}

func (e *Engine) orZero(ticker, name string, need, have int) func(float64, bool) float64 {
	return func(v float64, ok bool) float64 {
		if !ok {
			e.warn(ticker, name, have, need)
			return 0
		}
		return v
	}
}

func (e *Engine) warn(ticker, indicator string, have, need int) {
	e.logger.WithFields(logrus.Fields{
		"ticker":    ticker,
		"indicator": indicator,
		"bars":      have,
		"needed":    need,
	}).Warn("insufficient history for indicator")
}
