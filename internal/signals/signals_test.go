package signals

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

var testNow = time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC)

func newTestGenerator() *Generator {
	return NewGenerator(nil).WithClock(func() time.Time { return testNow })
}

func date(s string) models.Date {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func opt(typ models.OptionType, strike float64, exp string, delta, mid float64) models.OptionContract {
	return models.OptionContract{
		Ticker:     "AAPL-" + exp,
		Underlying: "AAPL",
		Type:       typ,
		Strike:     strike,
		Expiration: date(exp),
		Mid:        mid,
		Greeks:     models.Greeks{Delta: delta},
	}
}

func fixtureChain() *models.OptionsChain {
	return &models.OptionsChain{Ticker: "AAPL", Contracts: []models.OptionContract{
		// 31 DTE puts
		opt(models.OptionTypePut, 200, "2026-02-06", -0.15, 2.0),
		opt(models.OptionTypePut, 205, "2026-02-06", -0.21, 2.5),
		opt(models.OptionTypePut, 210, "2026-02-06", -0.25, 3.0),
		opt(models.OptionTypePut, 215, "2026-02-06", -0.29, 3.5),
		opt(models.OptionTypePut, 220, "2026-02-06", -0.36, 4.5),
		// outside the CSP DTE band
		opt(models.OptionTypePut, 210, "2026-01-16", -0.25, 1.2),
		opt(models.OptionTypePut, 210, "2026-03-20", -0.25, 5.0),
		// 24 DTE calls
		opt(models.OptionTypeCall, 235, "2026-01-30", 0.30, 4.0),
		opt(models.OptionTypeCall, 240, "2026-01-30", 0.25, 3.0),
		opt(models.OptionTypeCall, 245, "2026-01-30", 0.21, 2.2),
		opt(models.OptionTypeCall, 250, "2026-01-30", 0.15, 1.5),
		// 710 DTE calls
		opt(models.OptionTypeCall, 180, "2027-12-17", 0.80, 60),
		opt(models.OptionTypeCall, 190, "2027-12-17", 0.75, 50),
		opt(models.OptionTypeCall, 200, "2027-12-17", 0.70, 42),
		opt(models.OptionTypeCall, 220, "2027-12-17", 0.60, 30),
	}}
}

// cspIndicators meets all four CSP conditions.
func cspIndicators() *models.StockIndicatorSet {
	return &models.StockIndicatorSet{
		Ticker:       "AAPL",
		CurrentPrice: 230,
		SwingHigh:    250,
		RSI14:        48,
		IVPercentile: 65,
	}
}

func TestGenerateCSP_EveningKeepsExchangeDTE(t *testing.T) {
	// 21:00 ET, after midnight UTC: the put is still 21 days out on the exchange.
	evening := time.Date(2026, 1, 7, 2, 0, 0, 0, time.UTC)
	g := NewGenerator(nil).WithClock(func() time.Time { return evening })
	chain := &models.OptionsChain{Ticker: "AAPL", Contracts: []models.OptionContract{
		opt(models.OptionTypePut, 210, "2026-01-27", -0.25, 2.0),
	}}

	sig := g.GenerateCSP(cspIndicators(), chain)
	require.Len(t, sig.Strikes, 1)
	assert.Equal(t, 21, sig.Strikes[0].DaysToExpiration)
}

func TestGenerateCSP_Green(t *testing.T) {
	sig := newTestGenerator().GenerateCSP(cspIndicators(), fixtureChain())

	assert.Equal(t, models.StrategyCSP, sig.Strategy)
	assert.Equal(t, models.ScoreGreen, sig.Score)
	require.NotEmpty(t, sig.Strikes)
	assert.Len(t, sig.Reasoning, 4)

	for _, s := range sig.Strikes {
		assert.Equal(t, models.OptionTypePut, s.Type)
		d := -s.Delta
		assert.True(t, d >= 0.20 && d <= 0.30, "delta %.2f", d)
		assert.True(t, s.DaysToExpiration >= 21 && s.DaysToExpiration <= 45, "dte %d", s.DaysToExpiration)
	}

	best := sig.Strikes[0]
	assert.Equal(t, 210.0, best.Strike, "closest to 0.25 delta first")
	assert.Equal(t, 207.0, best.BreakEven)
	assert.Equal(t, 1.43, best.ReturnOnCapital)
	assert.Greater(t, best.AnnualizedReturn, best.ReturnOnCapital)
}

func TestGenerateCSP_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.StockIndicatorSet)
		want   models.Score
	}{
		{"all met", func(*models.StockIndicatorSet) {}, models.ScoreGreen},
		{"three met", func(s *models.StockIndicatorSet) { s.RSI14 = 70 }, models.ScoreYellow},
		{"two met", func(s *models.StockIndicatorSet) { s.RSI14 = 70; s.IVPercentile = 30 }, models.ScoreYellow},
		{"one met", func(s *models.StockIndicatorSet) { s.RSI14 = 70; s.IVPercentile = 30; s.SwingHigh = 231 }, models.ScoreRed},
		{"earnings soon", func(s *models.StockIndicatorSet) { d := 8; s.DaysToEarnings = &d }, models.ScoreYellow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := cspIndicators()
			tt.mutate(ind)
			sig := newTestGenerator().GenerateCSP(ind, fixtureChain())
			assert.Equal(t, tt.want, sig.Score)
			if tt.want == models.ScoreRed {
				assert.Empty(t, sig.Strikes)
			}
		})
	}
}

func TestGenerateCSP_NoData(t *testing.T) {
	sig := newTestGenerator().GenerateCSP(nil, fixtureChain())
	assert.Equal(t, models.ScoreRed, sig.Score)
	assert.Equal(t, "AAPL", sig.Ticker)

	sig = newTestGenerator().GenerateCSP(cspIndicators(), nil)
	assert.Equal(t, models.ScoreGreen, sig.Score)
	assert.Empty(t, sig.Strikes)
	assert.Contains(t, sig.Reasoning, "No options chain available for strike selection")
}

func ccIndicators() *models.StockIndicatorSet {
	return &models.StockIndicatorSet{
		Ticker:       "AAPL",
		CurrentPrice: 238,
		MA20:         230,
		RSI14:        65,
		Resistance:   []float64{243, 260},
		IVPercentile: 45,
	}
}

func TestGenerateCoveredCall(t *testing.T) {
	g := newTestGenerator()

	sig := g.GenerateCoveredCall(ccIndicators(), fixtureChain(), nil)
	assert.Equal(t, models.ScoreGreen, sig.Score)
	require.Len(t, sig.Strikes, 3)
	assert.Equal(t, 240.0, sig.Strikes[0].Strike)

	basis := 242.0
	sig = g.GenerateCoveredCall(ccIndicators(), fixtureChain(), &basis)
	require.Len(t, sig.Strikes, 1, "strikes at or below cost basis excluded")
	assert.Equal(t, 245.0, sig.Strikes[0].Strike)
	assert.Equal(t, 239.8, sig.Strikes[0].BreakEven)

	ind := ccIndicators()
	ind.Resistance = []float64{300}
	ind.RSI14 = 55
	sig = g.GenerateCoveredCall(ind, fixtureChain(), nil)
	assert.Equal(t, models.ScoreYellow, sig.Score)
}

func leapsIndicators() *models.StockIndicatorSet {
	daysAgo := -3
	return &models.StockIndicatorSet{
		Ticker:         "AAPL",
		CurrentPrice:   230,
		High52Week:     270,
		IVPercentile:   60,
		DaysToEarnings: &daysAgo,
		MA50:           215,
		MA200:          200,
	}
}

func TestGenerateLEAPS(t *testing.T) {
	sig := newTestGenerator().GenerateLEAPS(leapsIndicators(), fixtureChain())
	assert.Equal(t, models.ScoreGreen, sig.Score, "post-earnings window satisfies the IV condition")
	require.Len(t, sig.Strikes, 3)

	var s190 *models.RecommendedStrike
	for i := range sig.Strikes {
		assert.NotEqual(t, 220.0, sig.Strikes[i].Strike, "0.60 delta is outside the band")
		if sig.Strikes[i].Strike == 190 {
			s190 = &sig.Strikes[i]
		}
	}
	require.NotNil(t, s190)
	assert.Equal(t, 240.0, s190.BreakEven)
	assert.Equal(t, 3.45, s190.LeverageRatio)
	assert.Equal(t, 10.0, s190.ExtrinsicValue)

	ind := leapsIndicators()
	ind.DaysToEarnings = nil
	sig = newTestGenerator().GenerateLEAPS(ind, fixtureChain())
	assert.Equal(t, models.ScoreYellow, sig.Score)
}

func pmccIndicators() *models.StockIndicatorSet {
	return &models.StockIndicatorSet{Ticker: "AAPL", CurrentPrice: 238, MA20: 230, RSI14: 65, IVPercentile: 45}
}

func leapsPosition(strike float64) *models.Position {
	return &models.Position{
		ID: "leaps", Type: models.PositionOption, Ticker: "AAPL", Quantity: 1,
		OptionType: models.OptionTypeCall, Strike: strike, Expiration: date("2027-12-17"), EntryPrice: 50,
	}
}

func TestGeneratePMCC(t *testing.T) {
	g := newTestGenerator()

	sig := g.GeneratePMCC(pmccIndicators(), fixtureChain(), nil)
	assert.Equal(t, models.ScoreRed, sig.Score)
	assert.Empty(t, sig.Strikes)

	sig = g.GeneratePMCC(pmccIndicators(), fixtureChain(), leapsPosition(240))
	assert.Equal(t, models.ScoreGreen, sig.Score)
	require.Len(t, sig.Strikes, 1)
	assert.Equal(t, 245.0, sig.Strikes[0].Strike, "240 equals the LEAPS strike and is excluded")
	assert.Equal(t, 287.8, sig.Strikes[0].BreakEven)
}

func TestGeneratePMCC_StrikeAboveLEAPS_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	g := newTestGenerator()

	properties.Property("no PMCC short strike at or below the LEAPS strike", prop.ForAll(
		func(leapsStrike float64, strikes []float64, deltas []float64) bool {
			chain := &models.OptionsChain{Ticker: "AAPL"}
			for i := range strikes {
				chain.Contracts = append(chain.Contracts, opt(models.OptionTypeCall, strikes[i], "2026-01-30", deltas[i], 1.0))
			}
			sig := g.GeneratePMCC(pmccIndicators(), chain, leapsPosition(leapsStrike))
			for _, s := range sig.Strikes {
				if s.Strike <= leapsStrike {
					return false
				}
			}
			return true
		},
		gen.Float64Range(50, 300),
		gen.SliceOfN(30, gen.Float64Range(50, 350)),
		gen.SliceOfN(30, gen.Float64Range(0.05, 0.95)),
	))

	properties.TestingRun(t)
}

func TestGenerateAll(t *testing.T) {
	positions := []models.Position{
		{Type: models.PositionStock, Ticker: "AAPL", Quantity: 100, EntryPrice: 242},
		*leapsPosition(240),
	}
	sigs := newTestGenerator().GenerateAll(ccIndicators(), fixtureChain(), positions)
	require.Len(t, sigs, 4)
	assert.Equal(t, models.StrategyCSP, sigs[0].Strategy)
	assert.Equal(t, models.StrategyCoveredCall, sigs[1].Strategy)
	assert.Equal(t, models.StrategyLEAPS, sigs[2].Strategy)
	assert.Equal(t, models.StrategyPMCC, sigs[3].Strategy)

	for _, s := range sigs[1].Strikes {
		assert.Greater(t, s.Strike, 242.0)
	}
	assert.NotEqual(t, models.ScoreRed, sigs[3].Score, "LEAPS found among positions")
}
