// Package marketdata serves indicators, options chains and contract prices
// through the cache, falling back to stale copies when the provider fails.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/eddiefleurent/finance_dashboard/internal/analysis"
	"github.com/eddiefleurent/finance_dashboard/internal/cache"
	"github.com/eddiefleurent/finance_dashboard/internal/market"
	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/provider"
	"github.com/eddiefleurent/finance_dashboard/internal/storage"
	"github.com/eddiefleurent/finance_dashboard/internal/strikes"
)

// Fetch windows.
const (
	validationDays   = 7
	longTermMinDays  = 365
	longTermMaxDays  = 900
	minPerExpiration = 10
	lastKnownGoodTTL = time.Duration(market.LastKnownGoodTTL) * time.Second
	optionsChainTTL  = time.Duration(market.OptionsChainTTL) * time.Second
)

// Service is the MarketDataService. It is safe for concurrent use.
type Service struct {
	provider provider.Provider
	store    cache.Store
	storage  storage.Interface
	strikes  *strikes.Calculator
	engine   *analysis.Engine
	clock    *market.Clock
	logger   logrus.FieldLogger
	now      func() time.Time
	flight   singleflight.Group
}

// NewService wires a Service. storage may be nil, in which case earnings
// dates and IV history are not consulted.
func NewService(p provider.Provider, store cache.Store, st storage.Interface, calc *strikes.Calculator, logger logrus.FieldLogger) *Service {
	return &Service{
		provider: p,
		store:    store,
		storage:  st,
		strikes:  calc,
		engine:   analysis.NewEngine(logger),
		clock:    market.NewClock(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Clock returns the market clock used for cache lifetimes.
func (s *Service) Clock() *market.Clock { return s.clock }

// ============ Stock indicators ============

// GetStockIndicators returns the indicator set for ticker, from cache unless
// forceRefresh is set.
func (s *Service) GetStockIndicators(ctx context.Context, ticker string, forceRefresh bool) (*models.StockIndicatorSet, error) {
	key := cache.StockKey(ticker)
	if !forceRefresh {
		var set models.StockIndicatorSet
		if s.readCache(ctx, key, &set) {
			return &set, nil
		}
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.fetchStockIndicators(ctx, ticker)
	})
	if err != nil {
		var stale models.StockIndicatorSet
		if s.staleFallback(ctx, key, ticker, err, &stale) {
			return &stale, nil
		}
		return nil, fmt.Errorf("%w: indicators for %s: %v", ErrFetchFailed, ticker, err)
	}
	return v.(*models.StockIndicatorSet), nil
}

func (s *Service) fetchStockIndicators(ctx context.Context, ticker string) (*models.StockIndicatorSet, error) {
	now := s.now()
	today := s.clock.Today(now)
	bars, err := s.provider.GetDailyBars(ctx, ticker, today.AddDate(0, 0, -analysis.HistoryBarDays), today)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, errNoBars
	}

	earnings := s.earningsDate(ctx, ticker)
	set := s.engine.PriceIndicators(ticker, bars, earnings, now)

	var chain models.OptionsChain
	var chainPtr *models.OptionsChain
	if s.readCache(ctx, cache.OptionsKey(ticker), &chain) {
		chainPtr = &chain
	}
	s.engine.ApplyImpliedVolatility(set, chainPtr, s.ivHistory(ctx, ticker), now)

	s.writeCache(ctx, cache.StockKey(ticker), set, s.clock.CacheTTL(now))
	return set, nil
}

// ApplyImpliedVolatility refreshes the IV fields of set from a freshly fetched chain.
func (s *Service) ApplyImpliedVolatility(ctx context.Context, set *models.StockIndicatorSet, chain *models.OptionsChain) {
	if set == nil {
		return
	}
	s.engine.ApplyImpliedVolatility(set, chain, s.ivHistory(ctx, set.Ticker), s.now())
}

// ============ Options chain ============

// GetOptionsChain returns the two-tier chain for ticker: short-term puts and
// calls plus long-term calls, each bounded by its bucket's strike window.
func (s *Service) GetOptionsChain(ctx context.Context, ticker string, forceRefresh bool) (*models.OptionsChain, error) {
	key := cache.OptionsKey(ticker)
	now := s.now()
	if !forceRefresh {
		var chain models.OptionsChain
		if s.readCache(ctx, key, &chain) {
			chain.WithDaysToExpiration(now)
			return &chain, nil
		}
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.fetchOptionsChain(ctx, ticker)
	})
	if err != nil {
		var stale models.OptionsChain
		if s.staleFallback(ctx, key, ticker, err, &stale) {
			stale.WithDaysToExpiration(now)
			return &stale, nil
		}
		return nil, fmt.Errorf("%w: options chain for %s: %v", ErrFetchFailed, ticker, err)
	}
	return v.(*models.OptionsChain), nil
}

func (s *Service) fetchOptionsChain(ctx context.Context, ticker string) (*models.OptionsChain, error) {
	now := s.now()
	today := s.clock.Today(now)

	var price float64
	if set, err := s.GetStockIndicators(ctx, ticker, false); err == nil {
		price = set.CurrentPrice
	} else {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("current price unavailable, fetching unfiltered chain")
	}

	short := provider.ChainQuery{
		Ticker:        ticker,
		ExpirationGTE: today,
		ExpirationLTE: today.AddDate(0, 0, models.ShortTermMaxDTE),
	}
	long := provider.ChainQuery{
		Ticker:        ticker,
		ExpirationGTE: today.AddDate(0, 0, longTermMinDays),
		ExpirationLTE: today.AddDate(0, 0, longTermMaxDays),
		ContractType:  models.OptionTypeCall,
	}
	filtered := false
	if b, ok := s.strikes.BoundsFor(models.BucketShortTerm, price); ok {
		short.StrikeGTE, short.StrikeLTE = provider.Float(b.Lower), provider.Float(b.Upper)
		filtered = true
	}
	if b, ok := s.strikes.BoundsFor(models.BucketLongTerm, price); ok {
		long.StrikeGTE, long.StrikeLTE = provider.Float(b.Lower), provider.Float(b.Upper)
		filtered = true
	}

	shortContracts, err := s.fetchTier(ctx, short)
	if err != nil {
		return nil, err
	}
	longContracts, err := s.fetchTier(ctx, long)
	if err != nil {
		return nil, err
	}

	chain := &models.OptionsChain{
		Ticker:    ticker,
		Contracts: append(shortContracts, longContracts...),
		FetchedAt: now.UTC(),
		Filtered:  filtered,
	}
	chain.WithDaysToExpiration(now)

	s.logger.WithFields(logrus.Fields{
		"ticker":    ticker,
		"contracts": chain.Len(),
		"filtered":  filtered,
	}).Debug("fetched options chain")

	s.writeCache(ctx, cache.OptionsKey(ticker), chain, optionsChainTTL)
	s.recordIV(ctx, ticker, chain, price, now)
	return chain, nil
}

// fetchTier issues one chain request and, when strike bounds leave the
// result implausibly thin, repeats it without bounds.
func (s *Service) fetchTier(ctx context.Context, q provider.ChainQuery) ([]models.OptionContract, error) {
	contracts, err := s.provider.GetOptionsChainSnapshot(ctx, q)
	if err != nil {
		return nil, err
	}
	if !q.HasStrikeBounds() {
		return contracts, nil
	}
	thin, exp, count := thinnestExpiration(contracts)
	if len(contracts) > 0 && !thin {
		return contracts, nil
	}

	s.logger.WithFields(logrus.Fields{
		"query":      q.String(),
		"contracts":  len(contracts),
		"expiration": exp,
		"count":      count,
	}).Warn("strike filtering returned too few contracts, refetching unfiltered")

	unfiltered, err := s.provider.GetOptionsChainSnapshot(ctx, q.Unfiltered())
	if err != nil {
		return nil, err
	}
	return unfiltered, nil
}

// thinnestExpiration reports whether any expiration has fewer than
// minPerExpiration contracts, and which one has the fewest.
func thinnestExpiration(contracts []models.OptionContract) (thin bool, exp string, count int) {
	counts := make(map[string]int)
	for _, c := range contracts {
		counts[c.Expiration.String()]++
	}
	count = -1
	for e, n := range counts {
		if count < 0 || n < count || (n == count && e < exp) {
			exp, count = e, n
		}
	}
	return count >= 0 && count < minPerExpiration, exp, count
}

func (s *Service) recordIV(ctx context.Context, ticker string, chain *models.OptionsChain, price float64, now time.Time) {
	if s.storage == nil {
		return
	}
	iv, ok := analysis.ATMImpliedVolatility(chain, price, now)
	if !ok {
		return
	}
	reading := models.IVReading{Date: models.NewDate(s.clock.Today(now)), IV: iv}
	if err := s.storage.StoreIVReading(ctx, ticker, reading); err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("failed to record IV reading")
	}
}

// ============ Contract prices ============

// GetCurrentContractPrice returns the selected price of one contract. Zero
// means no price is known; callers fall back to the entry price.
func (s *Service) GetCurrentContractPrice(ctx context.Context, optionTicker string) float64 {
	key := cache.OptionPriceKey(optionTicker)
	var price float64
	if s.readCache(ctx, key, &price) && price > 0 {
		return price
	}

	parsed, err := provider.ParseOptionTicker(optionTicker)
	if err != nil {
		s.logger.WithError(err).WithField("option_ticker", optionTicker).Error("cannot price malformed option ticker")
		return 0
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		c, err := s.provider.GetSingleContractSnapshot(ctx, parsed.Underlying, optionTicker)
		if err != nil {
			return 0.0, err
		}
		p := provider.ContractPrice(c)
		if p <= 0 {
			return 0.0, fmt.Errorf("no bid, ask or close for %s", optionTicker)
		}
		s.writeCache(ctx, key, p, s.clock.CacheTTL(s.now()))
		return p, nil
	})
	if err != nil {
		if s.staleFallback(ctx, key, optionTicker, err, &price) && price > 0 {
			return price
		}
		s.logger.WithError(err).WithField("option_ticker", optionTicker).Error("contract price unavailable")
		return 0
	}
	return v.(float64)
}

// ============ Validation ============

// ValidateTicker reports whether the provider returns any bars for ticker
// over the last week. It never returns an error.
func (s *Service) ValidateTicker(ctx context.Context, ticker string) bool {
	ticker, err := storage.NormalizeTicker(ticker)
	if err != nil {
		return false
	}
	today := s.clock.Today(s.now())
	bars, err := s.provider.GetDailyBars(ctx, ticker, today.AddDate(0, 0, -validationDays), today)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Debug("ticker validation failed")
		return false
	}
	return len(bars) > 0
}

// MediumTermStrikeWarning checks a medium-dated option position's strike
// against the medium-term window around price. It returns "" when the strike
// is inside the window or the check does not apply.
func (s *Service) MediumTermStrikeWarning(pos *models.Position, price float64) string {
	if pos == nil || pos.Type != models.PositionOption {
		return ""
	}
	if models.BucketForDTE(pos.CalculateDTE(s.now())) != models.BucketMediumTerm {
		return ""
	}
	b, ok := s.strikes.BoundsFor(models.BucketMediumTerm, price)
	if !ok || b.Contains(pos.Strike) {
		return ""
	}
	msg := fmt.Sprintf("Strike $%.2f is outside the medium-term window %s around $%.2f", pos.Strike, b, price)
	s.logger.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"ticker":      pos.Ticker,
		"strike":      pos.Strike,
		"bounds":      b.String(),
	}).Warn("position strike outside medium-term window")
	return msg
}

// ============ Cache helpers ============

func (s *Service) readCache(ctx context.Context, key string, v any) bool {
	err := cache.GetJSON(ctx, s.store, key, v)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WithError(err).WithField("key", key).Warn("cache read failed")
	}
	return false
}

// writeCache stores v under key and refreshes its last-known-good copy.
func (s *Service) writeCache(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.SetJSON(ctx, s.store, key, v, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	if err := cache.SetJSON(ctx, s.store, cache.LastKnownGoodKey(key), v, lastKnownGoodTTL); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("last-known-good write failed")
	}
}

// staleFallback loads the primary entry or its last-known-good copy after a
// failed fetch.
func (s *Service) staleFallback(ctx context.Context, key, id string, cause error, v any) bool {
	for _, k := range []string{key, cache.LastKnownGoodKey(key)} {
		if s.readCache(ctx, k, v) {
			s.logger.WithError(cause).WithFields(logrus.Fields{
				"id":  id,
				"key": k,
			}).Warn("provider failed, serving stale cached data")
			return true
		}
	}
	s.logger.WithError(cause).WithField("id", id).Error("provider failed and no cached data exists")
	return false
}

func (s *Service) earningsDate(ctx context.Context, ticker string) *models.Date {
	if s.storage == nil {
		return nil
	}
	d, err := s.storage.GetEarningsDate(ctx, ticker)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("failed to read earnings date")
		return nil
	}
	return d
}

func (s *Service) ivHistory(ctx context.Context, ticker string) []models.IVReading {
	if s.storage == nil {
		return nil
	}
	history, err := s.storage.GetIVReadings(ctx, ticker)
	if err != nil {
		if !errors.Is(err, storage.ErrNoIVReadings) {
			s.logger.WithError(err).WithField("ticker", ticker).Warn("failed to read IV history")
		}
		return nil
	}
	return history
}
