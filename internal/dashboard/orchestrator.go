package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/provider"
	"github.com/eddiefleurent/finance_dashboard/internal/recommend"
	"github.com/eddiefleurent/finance_dashboard/internal/signals"
	"github.com/eddiefleurent/finance_dashboard/internal/storage"
)

// MarketData is the subset of the market data service the dashboard reads.
type MarketData interface {
	GetStockIndicators(ctx context.Context, ticker string, forceRefresh bool) (*models.StockIndicatorSet, error)
	GetOptionsChain(ctx context.Context, ticker string, forceRefresh bool) (*models.OptionsChain, error)
	GetCurrentContractPrice(ctx context.Context, optionTicker string) float64
	ApplyImpliedVolatility(ctx context.Context, set *models.StockIndicatorSet, chain *models.OptionsChain)
	MediumTermStrikeWarning(pos *models.Position, price float64) string
	ValidateTicker(ctx context.Context, ticker string) bool
}

// TickerView is one ticker's row: indicators and signals, or the reason they are missing.
type TickerView struct {
	Ticker     string                    `json:"ticker"`
	Indicators *models.StockIndicatorSet `json:"indicators,omitempty"`
	Signals    []models.Signal           `json:"signals"`
	Contracts  int                       `json:"contracts"`
	Error      string                    `json:"error,omitempty"`
}

// PositionView is a position marked to market with its recommendation.
type PositionView struct {
	Position       models.Position                `json:"position"`
	OptionTicker   string                         `json:"option_ticker,omitempty"`
	DTE            int                            `json:"dte,omitempty"`
	Valuation      models.Valuation               `json:"valuation"`
	Recommendation *models.PositionRecommendation `json:"recommendation,omitempty"`
}

// Summary aggregates the portfolio.
type Summary struct {
	Positions     int     `json:"positions"`
	TotalValue    float64 `json:"total_value"`
	CostBasis     float64 `json:"cost_basis"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Actionable    int     `json:"actionable"`
	StalePrices   int     `json:"stale_prices"`
}

// Dashboard is the full response of one build.
type Dashboard struct {
	Tickers     []TickerView   `json:"tickers"`
	Positions   []PositionView `json:"positions"`
	Summary     Summary        `json:"summary"`
	MarketOpen  bool           `json:"market_open"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Orchestrator assembles the dashboard from storage and market data.
type Orchestrator struct {
	storage     storage.Interface
	market      MarketData
	signals     *signals.Generator
	recommender *recommend.Service
	marketOpen  func(time.Time) bool
	concurrency int
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewOrchestrator wires an Orchestrator. concurrency bounds parallel ticker pipelines.
func NewOrchestrator(st storage.Interface, md MarketData, gen *signals.Generator, rec *recommend.Service, marketOpen func(time.Time) bool, concurrency int, logger logrus.FieldLogger) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		storage:     st,
		market:      md,
		signals:     gen,
		recommender: rec,
		marketOpen:  marketOpen,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the wall clock.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// tickerData carries one pipeline's results into position valuation.
type tickerData struct {
	indicators *models.StockIndicatorSet
	chain      *models.OptionsChain
}

// Build runs every watched or held ticker through the pipeline, then values
// and scores positions. A ticker that fails is reported in its view without
// failing the build.
func (o *Orchestrator) Build(ctx context.Context, forceRefresh bool) (*Dashboard, error) {
	watchlist, err := o.storage.Watchlist(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading watchlist: %w", err)
	}
	positions, err := o.storage.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}
	tickers := mergeTickers(watchlist, positions)

	views := make([]TickerView, len(tickers))
	data := make([]tickerData, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			views[i], data[i] = o.runTicker(gctx, ticker, forceRefresh, positionsFor(positions, ticker))
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byTicker := make(map[string]tickerData, len(tickers))
	for i, t := range tickers {
		byTicker[t] = data[i]
	}

	posViews := make([]PositionView, len(positions))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range positions {
		g.Go(func() error {
			posViews[i] = o.valuePosition(gctx, &positions[i], positions, byTicker[positions[i].Ticker])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := o.now()
	if err := o.storage.SetLastRefresh(ctx, now); err != nil {
		o.logger.WithError(err).Warn("failed to record last refresh")
	}

	d := &Dashboard{
		Tickers:     views,
		Positions:   posViews,
		Summary:     summarize(posViews),
		GeneratedAt: now.UTC(),
	}
	if o.marketOpen != nil {
		d.MarketOpen = o.marketOpen(now)
	}
	o.logger.WithFields(logrus.Fields{
		"tickers":   len(views),
		"positions": len(posViews),
		"refresh":   forceRefresh,
	}).Info("dashboard built")
	return d, nil
}

// runTicker is one sequential pipeline: indicators, then the chain bounded
// by the price they carry, then signals.
func (o *Orchestrator) runTicker(ctx context.Context, ticker string, force bool, held []models.Position) (TickerView, tickerData) {
	view := TickerView{Ticker: ticker, Signals: []models.Signal{}}
	log := o.logger.WithField("ticker", ticker)

	ind, err := o.market.GetStockIndicators(ctx, ticker, force)
	if err != nil {
		log.WithError(err).Error("indicators unavailable")
		view.Error = err.Error()
		return view, tickerData{}
	}

	chain, err := o.market.GetOptionsChain(ctx, ticker, force)
	if err != nil {
		log.WithError(err).Warn("options chain unavailable, signals will have no strikes")
		chain = nil
	}
	o.market.ApplyImpliedVolatility(ctx, ind, chain)

	view.Indicators = ind
	view.Contracts = chain.Len()
	view.Signals = o.signals.GenerateAll(ind, chain, held)
	return view, tickerData{indicators: ind, chain: chain}
}

func (o *Orchestrator) valuePosition(ctx context.Context, pos *models.Position, all []models.Position, td tickerData) PositionView {
	view := PositionView{Position: *pos}
	var underlying float64
	if td.indicators != nil {
		underlying = td.indicators.CurrentPrice
	}

	if pos.Type == models.PositionStock {
		view.Valuation = pos.Value(underlying)
		rec := o.recommender.Recommend(pos, recommend.Market{Indicators: td.indicators})
		view.Recommendation = &rec
		return view
	}

	view.OptionTicker = provider.PositionOptionTicker(pos)
	view.DTE = pos.CalculateDTE(o.now())
	premium := o.market.GetCurrentContractPrice(ctx, view.OptionTicker)
	view.Valuation = pos.Value(premium)

	mkt := recommend.Market{Indicators: td.indicators, Chain: td.chain, Premium: premium}
	if pos.IsShortCall() {
		mkt.LEAPS = models.FindLEAPS(all, pos.Ticker)
	}
	rec := o.recommender.Recommend(pos, mkt)
	if warning := o.market.MediumTermStrikeWarning(pos, underlying); warning != "" {
		rec.Reasoning = append(rec.Reasoning, warning)
	}
	view.Recommendation = &rec
	return view
}

func summarize(views []PositionView) Summary {
	var s Summary
	for _, v := range views {
		s.Positions++
		s.TotalValue += v.Valuation.CurrentValue
		s.CostBasis += v.Position.CostBasis()
		s.UnrealizedPnL += v.Valuation.UnrealizedPnL
		if v.Valuation.PriceIsStale {
			s.StalePrices++
		}
		if v.Recommendation != nil && v.Recommendation.Action != models.ActionMaintain {
			s.Actionable++
		}
	}
	return s
}

// mergeTickers returns the sorted union of watched and held tickers.
func mergeTickers(watchlist []string, positions []models.Position) []string {
	seen := make(map[string]struct{}, len(watchlist)+len(positions))
	for _, t := range watchlist {
		seen[t] = struct{}{}
	}
	for _, p := range positions {
		seen[p.Ticker] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func positionsFor(positions []models.Position, ticker string) []models.Position {
	var out []models.Position
	for _, p := range positions {
		if p.Ticker == ticker {
			out = append(out, p)
		}
	}
	return out
}
