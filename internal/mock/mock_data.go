// Package mock provides a deterministic offline market-data provider for
// local runs (provider.name: mock) and end-to-end tests.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/provider"
)

// strikeInterval is the spacing of generated strikes.
const strikeInterval = 5.0

// basePrices anchors well-known tickers near realistic levels.
var basePrices = map[string]float64{
	"AAPL":  230,
	"AMZN":  185,
	"GOOGL": 190,
	"META":  560,
	"MSFT":  420,
	"NVDA":  130,
	"QQQ":   480,
	"SPY":   600,
	"TSLA":  250,
}

// DataProvider synthesizes bars and option snapshots from a per-ticker seed,
// so repeated calls for the same ticker return the same data.
type DataProvider struct {
	mu    sync.Mutex
	now   func() time.Time
	calls map[string]int
}

// Ensure DataProvider implements provider.Provider
var _ provider.Provider = (*DataProvider)(nil)

// NewDataProvider creates a mock provider.
func NewDataProvider() *DataProvider {
	return &DataProvider{now: time.Now, calls: make(map[string]int)}
}

// WithClock overrides the clock used for time-to-expiration.
func (m *DataProvider) WithClock(now func() time.Time) *DataProvider {
	m.now = now
	return m
}

// Calls returns how many times op was invoked.
func (m *DataProvider) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *DataProvider) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

// profile is the synthetic character of one ticker.
type profile struct {
	price float64
	iv    float64
	seed  uint64
}

func tickerProfile(ticker string) (profile, bool) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !validSymbol(ticker) {
		return profile{}, false
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	price, ok := basePrices[ticker]
	if !ok {
		price = 20 + rng.Float64()*480
	}
	return profile{
		price: price,
		iv:    0.20 + rng.Float64()*0.30,
		seed:  seed,
	}, true
}

// validSymbol accepts 1-5 uppercase letters; anything else is "unknown".
func validSymbol(s string) bool {
	if len(s) == 0 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// GetDailyBars walks backwards from the ticker's base price so the last bar
// always closes near it.
func (m *DataProvider) GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	m.record("daily_bars")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := tickerProfile(ticker)
	if !ok {
		return []models.Bar{}, nil
	}

	var days []time.Time
	for d := models.NewDate(from).Time; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}

	rng := rand.New(rand.NewPCG(p.seed, 7))
	dailyVol := p.iv / math.Sqrt(252)
	closes := make([]float64, len(days))
	px := p.price
	for i := len(days) - 1; i >= 0; i-- {
		closes[i] = px
		px /= 1 + rng.NormFloat64()*dailyVol
		px = math.Max(px, 1)
	}

	bars := make([]models.Bar, len(days))
	if len(days) == 0 {
		return bars, nil
	}
	prev := closes[0]
	for i, d := range days {
		c := closes[i]
		open := prev
		wick := math.Abs(rng.NormFloat64()) * dailyVol * c * 0.5
		bars[i] = models.Bar{
			Date:   models.NewDate(d),
			Open:   round2(open),
			High:   round2(math.Max(open, c) + wick),
			Low:    round2(math.Max(0.01, math.Min(open, c)-wick)),
			Close:  round2(c),
			Volume: float64(1_000_000 + rng.IntN(50_000_000)),
		}
		prev = c
	}
	return bars, nil
}

// GetOptionsChainSnapshot generates a strike ladder around the current price for
// every expiration in the query window.
func (m *DataProvider) GetOptionsChainSnapshot(ctx context.Context, q provider.ChainQuery) ([]models.OptionContract, error) {
	m.record("options_chain")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := tickerProfile(q.Ticker)
	if !ok {
		return []models.OptionContract{}, nil
	}
	underlying := strings.ToUpper(strings.TrimSpace(q.Ticker))
	now := m.now()

	lo := math.Floor(p.price*0.5/strikeInterval) * strikeInterval
	hi := math.Ceil(p.price*1.5/strikeInterval) * strikeInterval
	if q.StrikeGTE != nil {
		lo = math.Max(lo, *q.StrikeGTE)
	}
	if q.StrikeLTE != nil {
		hi = math.Min(hi, *q.StrikeLTE)
	}

	var out []models.OptionContract
	for _, exp := range expirations(now, q.ExpirationGTE, q.ExpirationLTE) {
		for strike := math.Ceil(lo/strikeInterval) * strikeInterval; strike <= hi; strike += strikeInterval {
			for _, typ := range []models.OptionType{models.OptionTypePut, models.OptionTypeCall} {
				if q.ContractType != "" && q.ContractType != typ {
					continue
				}
				out = append(out, price(underlying, p, now, exp, typ, strike))
			}
		}
	}
	return out, nil
}

// GetSingleContractSnapshot prices one contract from its option ticker.
func (m *DataProvider) GetSingleContractSnapshot(ctx context.Context, ticker, optionTicker string) (models.OptionContract, error) {
	m.record("contract_snapshot")
	if err := ctx.Err(); err != nil {
		return models.OptionContract{}, err
	}
	parsed, err := provider.ParseOptionTicker(optionTicker)
	if err != nil {
		return models.OptionContract{}, err
	}
	p, ok := tickerProfile(parsed.Underlying)
	if !ok {
		return models.OptionContract{}, fmt.Errorf("unknown underlying %q", parsed.Underlying)
	}
	return price(parsed.Underlying, p, m.now(), parsed.Expiration, parsed.Type, parsed.Strike), nil
}

// expirations lists weekly Fridays out to 60 days, then third-Friday monthlies,
// bounded by [gte, lte].
func expirations(now, gte, lte time.Time) []models.Date {
	today := models.ExchangeDate(now).Time
	if gte.IsZero() || gte.Before(today) {
		gte = today
	}
	if lte.IsZero() {
		lte = today.AddDate(0, 0, models.LongTermMaxDTE)
	}
	var out []models.Date
	for d := models.NewDate(gte).Time; !d.After(lte); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Friday {
			continue
		}
		if d.Sub(today) <= 60*24*time.Hour || (d.Day() >= 15 && d.Day() <= 21) {
			out = append(out, models.NewDate(d))
		}
	}
	return out
}

// price applies Black-Scholes (zero rate) with a mild volatility skew.
func price(underlying string, p profile, now time.Time, exp models.Date, typ models.OptionType, strike float64) models.OptionContract {
	dte := exp.DaysFrom(now)
	if dte < 0 {
		dte = 0 // Clamp to minimum 0 to prevent negative time values
	}
	t := math.Max(float64(dte), 0.5) / 365.0
	vol := p.iv * (1 + 0.15*math.Abs(math.Log(strike/p.price)))

	d1 := (math.Log(p.price/strike) + 0.5*vol*vol*t) / (vol * math.Sqrt(t))
	d2 := d1 - vol*math.Sqrt(t)

	var value, delta float64
	if typ == models.OptionTypeCall {
		value = p.price*normCDF(d1) - strike*normCDF(d2)
		delta = normCDF(d1)
	} else {
		value = strike*normCDF(-d2) - p.price*normCDF(-d1)
		delta = normCDF(d1) - 1
	}
	value = math.Max(value, 0.01)
	spread := math.Max(0.02, value*0.04)
	gamma := normPDF(d1) / (p.price * vol * math.Sqrt(t))

	c := models.OptionContract{
		Ticker:     provider.FormatOptionTicker(underlying, exp.Time, typ, strike),
		Underlying: underlying,
		Type:       typ,
		Strike:     strike,
		Expiration: exp,
		Bid:        round2(math.Max(0.01, value-spread/2)),
		Ask:        round2(value + spread/2),
		LastClose:  round2(value),
		Greeks: models.Greeks{
			Delta: math.Round(delta*10000) / 10000,
			Gamma: gamma,
			Theta: -p.price * normPDF(d1) * vol / (2 * math.Sqrt(t)) / 365,
			Vega:  p.price * normPDF(d1) * math.Sqrt(t) / 100,
		},
		ImpliedVolatility: vol,
		OpenInterest:      int64(100 + int(1000*normPDF(d1))),
		DaysToExpiration:  dte,
	}
	c.Mid = provider.ContractPrice(c)
	return c
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
