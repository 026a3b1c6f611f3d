// Package signals scores entry conditions for CSP, covered-call, LEAPS and
// PMCC trades and proposes strikes from the options chain.
package signals

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/util"
)

// Strike selection limits.
const (
	MinStrikes = 3
	MaxStrikes = 5
)

// EarningsBlackoutDays keeps new short premium away from earnings.
const EarningsBlackoutDays = 10

// PostEarningsDays is how long after earnings IV is assumed to have deflated.
const PostEarningsDays = 5

// Strike filters per strategy.
var (
	CSPFilter = models.ContractFilter{
		Type: models.OptionTypePut, MinDTE: 21, MaxDTE: 45, MinDelta: 0.20, MaxDelta: 0.30,
	}
	CoveredCallFilter = models.ContractFilter{
		Type: models.OptionTypeCall, MinDTE: 14, MaxDTE: 30, MinDelta: 0.20, MaxDelta: 0.30,
	}
	LEAPSFilter = models.ContractFilter{
		Type: models.OptionTypeCall, MinDTE: 548, MaxDTE: 912, MinDelta: 0.70, MaxDelta: 0.85,
	}
	PMCCFilter = models.ContractFilter{
		Type: models.OptionTypeCall, MinDTE: 14, MaxDTE: 45, MinDelta: 0.20, MaxDelta: 0.30,
	}
)

// Generator is the SignalGeneratorService. It performs no I/O.
type Generator struct {
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(logger logrus.FieldLogger) *Generator {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Generator{logger: logger, now: time.Now}
}

// WithClock overrides the clock used for DTE and timestamps.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// condition is one boolean rule with the reasoning line for either outcome.
type condition struct {
	met  bool
	text string
}

func check(met bool, pass, fail string) condition {
	if met {
		return condition{met: true, text: "✓ " + pass}
	}
	return condition{text: "✗ " + fail}
}

// score maps the number of met conditions onto a traffic light.
func score(conds []condition, green, yellow int) (models.Score, []string) {
	met := 0
	reasons := make([]string, 0, len(conds))
	for _, c := range conds {
		if c.met {
			met++
		}
		reasons = append(reasons, c.text)
	}
	switch {
	case met >= green:
		return models.ScoreGreen, reasons
	case met >= yellow:
		return models.ScoreYellow, reasons
	default:
		return models.ScoreRed, reasons
	}
}

func (g *Generator) newSignal(strategy models.Strategy, ticker string) models.Signal {
	return models.Signal{
		Strategy:    strategy,
		Ticker:      ticker,
		Reasoning:   []string{},
		Strikes:     []models.RecommendedStrike{},
		GeneratedAt: g.now().UTC(),
	}
}

// ============ Strategies ============

// GenerateCSP scores a cash-secured put entry.
func (g *Generator) GenerateCSP(ind *models.StockIndicatorSet, chain *models.OptionsChain) models.Signal {
	sig := g.newSignal(models.StrategyCSP, ticker(ind, chain))
	if !usable(ind) {
		return noData(sig)
	}
	price := ind.CurrentPrice
	below := percentBelow(price, ind.SwingHigh)

	conds := []condition{
		check(ind.SwingHigh > 0 && below >= 5 && below <= 15,
			fmt.Sprintf("Price %.1f%% below swing high $%.2f", below, ind.SwingHigh),
			fmt.Sprintf("Price %.1f%% below swing high $%.2f (want 5-15%%)", below, ind.SwingHigh)),
		check(ind.RSI14 >= 40 && ind.RSI14 <= 55,
			fmt.Sprintf("RSI %.1f in 40-55", ind.RSI14),
			fmt.Sprintf("RSI %.1f outside 40-55", ind.RSI14)),
		check(ind.IVPercentile > 50,
			fmt.Sprintf("IV percentile %.0f above 50", ind.IVPercentile),
			fmt.Sprintf("IV percentile %.0f not above 50", ind.IVPercentile)),
		earningsClear(ind),
	}
	sig.Score, sig.Reasoning = score(conds, 4, 2)
	if sig.Score == models.ScoreRed {
		return sig
	}

	sig.Strikes = g.pick(&sig, chain, CSPFilter, func(c models.OptionContract) models.RecommendedStrike {
		rs := recommended(c)
		rs.BreakEven = util.RoundToTick(c.Strike-rs.Premium, 0.01)
		rs.ReturnOnCapital, rs.AnnualizedReturn = returns(rs.Premium, c.Strike, c.DaysToExpiration)
		return rs
	})
	return sig
}

// GenerateCoveredCall scores writing a call against shares. costBasis, when
// known, excludes strikes that would lock in a loss.
func (g *Generator) GenerateCoveredCall(ind *models.StockIndicatorSet, chain *models.OptionsChain, costBasis *float64) models.Signal {
	sig := g.newSignal(models.StrategyCoveredCall, ticker(ind, chain))
	if !usable(ind) {
		return noData(sig)
	}
	price := ind.CurrentPrice
	level, near := nearestWithin(ind.Resistance, price, 0.03)

	conds := []condition{
		check(ind.MA20 > 0 && price > ind.MA20,
			fmt.Sprintf("Price above 20-day MA $%.2f", ind.MA20),
			fmt.Sprintf("Price not above 20-day MA $%.2f", ind.MA20)),
		check(ind.RSI14 > 60,
			fmt.Sprintf("RSI %.1f above 60", ind.RSI14),
			fmt.Sprintf("RSI %.1f not above 60", ind.RSI14)),
		check(near,
			fmt.Sprintf("Price within 3%% of resistance $%.2f", level),
			"Price not within 3% of a resistance level"),
		check(ind.IVPercentile > 40,
			fmt.Sprintf("IV percentile %.0f above 40", ind.IVPercentile),
			fmt.Sprintf("IV percentile %.0f not above 40", ind.IVPercentile)),
		earningsClear(ind),
	}
	sig.Score, sig.Reasoning = score(conds, 5, 3)
	if sig.Score == models.ScoreRed {
		return sig
	}

	filter := CoveredCallFilter
	basis := price
	if costBasis != nil && *costBasis > 0 {
		filter.MinStrike = *costBasis
		basis = *costBasis
	}
	sig.Strikes = g.pick(&sig, chain, filter, func(c models.OptionContract) models.RecommendedStrike {
		rs := recommended(c)
		rs.BreakEven = util.RoundToTick(basis-rs.Premium, 0.01)
		rs.ReturnOnCapital, rs.AnnualizedReturn = returns(rs.Premium, price, c.DaysToExpiration)
		return rs
	})
	return sig
}

// GenerateLEAPS scores buying a long-dated deep in-the-money call.
func (g *Generator) GenerateLEAPS(ind *models.StockIndicatorSet, chain *models.OptionsChain) models.Signal {
	sig := g.newSignal(models.StrategyLEAPS, ticker(ind, chain))
	if !usable(ind) {
		return noData(sig)
	}
	price := ind.CurrentPrice
	below := percentBelow(price, ind.High52Week)
	since, postEarnings := ind.DaysSinceEarnings()
	postEarnings = postEarnings && since <= PostEarningsDays

	ivText := fmt.Sprintf("IV percentile %.0f below 50", ind.IVPercentile)
	if postEarnings && ind.IVPercentile >= 50 {
		ivText = fmt.Sprintf("%d days after earnings", since)
	}
	conds := []condition{
		check(ind.High52Week > 0 && below >= 10 && below <= 25,
			fmt.Sprintf("Price %.1f%% below 52-week high $%.2f", below, ind.High52Week),
			fmt.Sprintf("Price %.1f%% below 52-week high $%.2f (want 10-25%%)", below, ind.High52Week)),
		check(ind.IVPercentile < 50 || postEarnings,
			ivText,
			fmt.Sprintf("IV percentile %.0f not below 50 and not just after earnings", ind.IVPercentile)),
		check(ind.MA200 > 0 && price > ind.MA200,
			fmt.Sprintf("Price above 200-day MA $%.2f", ind.MA200),
			fmt.Sprintf("Price not above 200-day MA $%.2f", ind.MA200)),
		check(ind.MA200 > 0 && ind.MA50 > ind.MA200,
			"50-day MA above 200-day MA",
			"50-day MA not above 200-day MA"),
	}
	sig.Score, sig.Reasoning = score(conds, 4, 2)
	if sig.Score == models.ScoreRed {
		return sig
	}

	sig.Strikes = g.pick(&sig, chain, LEAPSFilter, func(c models.OptionContract) models.RecommendedStrike {
		rs := recommended(c)
		rs.BreakEven = util.RoundToTick(c.Strike+rs.Premium, 0.01)
		if rs.Premium > 0 {
			rs.LeverageRatio = util.RoundToTick(c.AbsDelta()*price/rs.Premium, 0.01)
		}
		rs.ExtrinsicValue = util.RoundToTick(rs.Premium-c.IntrinsicValue(price), 0.01)
		return rs
	})
	return sig
}

// GeneratePMCC scores writing a short call against a held LEAPS. Without a
// LEAPS the signal is RED. Candidates struck at or below the LEAPS strike
// are never proposed.
func (g *Generator) GeneratePMCC(ind *models.StockIndicatorSet, chain *models.OptionsChain, leaps *models.Position) models.Signal {
	sig := g.newSignal(models.StrategyPMCC, ticker(ind, chain))
	if leaps == nil || !leaps.IsLongCall() {
		sig.Score = models.ScoreRed
		sig.Reasoning = []string{"✗ No LEAPS position held"}
		return sig
	}
	if !usable(ind) {
		return noData(sig)
	}
	price := ind.CurrentPrice

	conds := []condition{
		check(ind.MA20 > 0 && price > ind.MA20,
			fmt.Sprintf("Price above 20-day MA $%.2f", ind.MA20),
			fmt.Sprintf("Price not above 20-day MA $%.2f", ind.MA20)),
		check(ind.RSI14 > 60,
			fmt.Sprintf("RSI %.1f above 60", ind.RSI14),
			fmt.Sprintf("RSI %.1f not above 60", ind.RSI14)),
		check(ind.IVPercentile > 40,
			fmt.Sprintf("IV percentile %.0f above 40", ind.IVPercentile),
			fmt.Sprintf("IV percentile %.0f not above 40", ind.IVPercentile)),
	}
	sig.Score, sig.Reasoning = score(conds, 3, 2)
	sig.Reasoning = append([]string{fmt.Sprintf("LEAPS held: $%.2f call expiring %s", leaps.Strike, leaps.Expiration)}, sig.Reasoning...)
	if sig.Score == models.ScoreRed {
		return sig
	}

	filter := PMCCFilter
	filter.MinStrike = leaps.Strike
	sig.Strikes = g.pick(&sig, chain, filter, func(c models.OptionContract) models.RecommendedStrike {
		rs := recommended(c)
		rs.BreakEven = util.RoundToTick(leaps.Strike+leaps.EntryPrice-rs.Premium, 0.01)
		if leaps.EntryPrice > 0 {
			rs.ReturnOnCapital, rs.AnnualizedReturn = returns(rs.Premium, leaps.EntryPrice, c.DaysToExpiration)
		}
		return rs
	})
	return sig
}

// GenerateAll evaluates every strategy for one ticker against the held positions.
func (g *Generator) GenerateAll(ind *models.StockIndicatorSet, chain *models.OptionsChain, positions []models.Position) []models.Signal {
	t := ticker(ind, chain)
	var basis *float64
	if b, ok := models.StockCostBasis(positions, t); ok {
		basis = &b
	}
	return []models.Signal{
		g.GenerateCSP(ind, chain),
		g.GenerateCoveredCall(ind, chain, basis),
		g.GenerateLEAPS(ind, chain),
		g.GeneratePMCC(ind, chain, models.FindLEAPS(positions, t)),
	}
}

// ============ Helpers ============

// pick filters a DTE-refreshed copy of chain and converts up to MaxStrikes matches.
func (g *Generator) pick(sig *models.Signal, chain *models.OptionsChain, f models.ContractFilter, build func(models.OptionContract) models.RecommendedStrike) []models.RecommendedStrike {
	out := []models.RecommendedStrike{}
	if chain.Len() == 0 {
		sig.Reasoning = append(sig.Reasoning, "No options chain available for strike selection")
		return out
	}
	fresh := models.OptionsChain{Ticker: chain.Ticker, Contracts: append([]models.OptionContract(nil), chain.Contracts...)}
	fresh.WithDaysToExpiration(g.now())

	for _, c := range fresh.Filter(f) {
		if c.Premium() <= 0 {
			continue
		}
		out = append(out, build(c))
		if len(out) == MaxStrikes {
			break
		}
	}
	if len(out) < MinStrikes {
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("Only %d contracts match delta %.2f-%.2f, DTE %d-%d",
			len(out), f.MinDelta, f.MaxDelta, f.MinDTE, f.MaxDTE))
		g.logger.WithFields(logrus.Fields{
			"ticker":   chain.Ticker,
			"strategy": sig.Strategy,
			"matches":  len(out),
		}).Debug("few strikes matched")
	}
	return out
}

func recommended(c models.OptionContract) models.RecommendedStrike {
	return models.RecommendedStrike{
		Ticker:           c.Ticker,
		Type:             c.Type,
		Strike:           c.Strike,
		Expiration:       c.Expiration,
		DaysToExpiration: c.DaysToExpiration,
		Premium:          util.RoundToTick(c.Premium(), 0.01),
		Delta:            c.Greeks.Delta,
	}
}

// returns gives premium/capital and its 365-day annualization, both in percent.
func returns(premium, capital float64, dte int) (roc, annualized float64) {
	if capital <= 0 {
		return 0, 0
	}
	roc = premium / capital * 100
	if dte > 0 {
		annualized = roc * 365 / float64(dte)
	}
	return util.RoundToTick(roc, 0.01), util.RoundToTick(annualized, 0.01)
}

func earningsClear(ind *models.StockIndicatorSet) condition {
	if ind.EarningsWithin(EarningsBlackoutDays) {
		return check(false, "", fmt.Sprintf("Earnings in %d days", *ind.DaysToEarnings))
	}
	if ind.DaysToEarnings == nil {
		return check(true, "No earnings date on record", "")
	}
	return check(true, fmt.Sprintf("No earnings within %d days", EarningsBlackoutDays), "")
}

// percentBelow returns how far price sits under ref, in percent of ref.
func percentBelow(price, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	return (ref - price) / ref * 100
}

func nearestWithin(levels []float64, price, frac float64) (float64, bool) {
	best, found := 0.0, false
	for _, l := range levels {
		if price <= 0 || l <= 0 {
			continue
		}
		d := math.Abs(l-price) / price
		if d <= frac && (!found || d < math.Abs(best-price)/price) {
			best, found = l, true
		}
	}
	return best, found
}

func usable(ind *models.StockIndicatorSet) bool {
	return ind != nil && ind.CurrentPrice > 0
}

func noData(sig models.Signal) models.Signal {
	sig.Score = models.ScoreRed
	sig.Reasoning = append(sig.Reasoning, "✗ No price data available")
	return sig
}

func ticker(ind *models.StockIndicatorSet, chain *models.OptionsChain) string {
	if ind != nil && ind.Ticker != "" {
		return ind.Ticker
	}
	if chain != nil {
		return chain.Ticker
	}
	return ""
}
