package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/finance_dashboard/internal/cache"
	"github.com/eddiefleurent/finance_dashboard/internal/market"
	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// MaxIVHistory is the number of daily IV readings kept per ticker.
const MaxIVHistory = 365

// Storage persists user data on a cache.Store.
type Storage struct {
	store cache.Store
	now   func() time.Time
	newID func() string
}

// NewStorage creates a Storage on store.
func NewStorage(store cache.Store) *Storage {
	return &Storage{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// WithClock overrides the clock used for timestamps.
func (s *Storage) WithClock(now func() time.Time) *Storage {
	s.now = now
	return s
}

// NormalizeTicker upper-cases t and checks it looks like an equity symbol
// (1-10 characters of A-Z, 0-9, '.', '-').
func NormalizeTicker(t string) (string, error) {
	t = strings.ToUpper(strings.TrimSpace(t))
	if len(t) == 0 || len(t) > 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, t)
	}
	for _, r := range t {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidTicker, t)
		}
	}
	return t, nil
}

// ============ Positions ============

// ListPositions returns every position ordered by transaction date, then id.
// Index entries whose record has disappeared are skipped.
func (s *Storage) ListPositions(ctx context.Context) ([]models.Position, error) {
	ids, err := s.store.SetMembers(ctx, cache.PositionsIndex)
	if err != nil {
		return nil, fmt.Errorf("listing position ids: %w", err)
	}
	positions := make([]models.Position, 0, len(ids))
	for _, id := range ids {
		var p models.Position
		if err := cache.GetJSON(ctx, s.store, cache.PositionKey(id), &p); err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			return nil, fmt.Errorf("loading position %s: %w", id, err)
		}
		positions = append(positions, p)
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if !positions[i].TransactionDate.Equal(positions[j].TransactionDate.Time) {
			return positions[i].TransactionDate.Before(positions[j].TransactionDate.Time)
		}
		return positions[i].ID < positions[j].ID
	})
	return positions, nil
}

// GetPosition loads one position.
func (s *Storage) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	var p models.Position
	if err := cache.GetJSON(ctx, s.store, cache.PositionKey(id), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
		}
		return nil, fmt.Errorf("loading position %s: %w", id, err)
	}
	return &p, nil
}

// CreatePosition validates pos, assigns an id and timestamps, and saves it.
func (s *Storage) CreatePosition(ctx context.Context, pos *models.Position) (*models.Position, error) {
	if pos == nil {
		return nil, fmt.Errorf("%w: position is nil", ErrInvalidPosition)
	}
	p := *pos
	ticker, err := NormalizeTicker(p.Ticker)
	if err != nil {
		return nil, err
	}
	p.Ticker = ticker
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}

	p.ID = s.newID()
	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.TransactionDate.IsZero() {
		p.TransactionDate = models.ExchangeDate(now)
	}

	if err := s.savePosition(ctx, &p); err != nil {
		return nil, err
	}
	if err := s.store.SetAdd(ctx, cache.PositionsIndex, p.ID); err != nil {
		return nil, fmt.Errorf("indexing position %s: %w", p.ID, err)
	}
	return &p, nil
}

// UpdatePosition replaces an existing position, keeping its id and creation time.
func (s *Storage) UpdatePosition(ctx context.Context, pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("%w: position is nil", ErrInvalidPosition)
	}
	existing, err := s.GetPosition(ctx, pos.ID)
	if err != nil {
		return err
	}
	ticker, err := NormalizeTicker(pos.Ticker)
	if err != nil {
		return err
	}
	pos.Ticker = ticker
	if err := pos.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	pos.CreatedAt = existing.CreatedAt
	pos.UpdatedAt = s.now().UTC()
	return s.savePosition(ctx, pos)
}

// DeletePosition removes a position and its index entry.
func (s *Storage) DeletePosition(ctx context.Context, id string) error {
	if _, err := s.GetPosition(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, cache.PositionKey(id)); err != nil {
		return fmt.Errorf("deleting position %s: %w", id, err)
	}
	if err := s.store.SetRemove(ctx, cache.PositionsIndex, id); err != nil {
		return fmt.Errorf("unindexing position %s: %w", id, err)
	}
	return nil
}

func (s *Storage) savePosition(ctx context.Context, p *models.Position) error {
	if err := cache.SetJSON(ctx, s.store, cache.PositionKey(p.ID), p, 0); err != nil {
		return fmt.Errorf("saving position %s: %w", p.ID, err)
	}
	return nil
}

// ============ Watchlist ============

// Watchlist returns the watched tickers in alphabetical order.
func (s *Storage) Watchlist(ctx context.Context) ([]string, error) {
	tickers, err := s.store.SetMembers(ctx, cache.WatchlistKey)
	if err != nil {
		return nil, fmt.Errorf("reading watchlist: %w", err)
	}
	return tickers, nil
}

// AddToWatchlist normalizes and adds tickers.
func (s *Storage) AddToWatchlist(ctx context.Context, tickers ...string) error {
	if len(tickers) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(tickers))
	for _, t := range tickers {
		n, err := NormalizeTicker(t)
		if err != nil {
			return err
		}
		normalized = append(normalized, n)
	}
	if err := s.store.SetAdd(ctx, cache.WatchlistKey, normalized...); err != nil {
		return fmt.Errorf("updating watchlist: %w", err)
	}
	return nil
}

// RemoveFromWatchlist removes ticker; removing an absent ticker is not an error.
func (s *Storage) RemoveFromWatchlist(ctx context.Context, ticker string) error {
	n, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	if err := s.store.SetRemove(ctx, cache.WatchlistKey, n); err != nil {
		return fmt.Errorf("updating watchlist: %w", err)
	}
	return nil
}

// ============ Earnings ============

const earningsDateTTL = time.Duration(market.EarningsDateTTL) * time.Second

// SetEarningsDate records the next earnings date for ticker. The entry
// lives one day and every read before the date renews it, so it lapses
// on its own about a day after the report.
func (s *Storage) SetEarningsDate(ctx context.Context, ticker string, date models.Date) error {
	n, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	if date.IsZero() {
		return s.store.Delete(ctx, cache.EarningsKey(n))
	}
	if err := s.store.Set(ctx, cache.EarningsKey(n), []byte(date.String()), earningsDateTTL); err != nil {
		return fmt.Errorf("saving earnings date for %s: %w", n, err)
	}
	return nil
}

// GetEarningsDate returns the recorded earnings date, or nil when unknown.
// A date that has not passed yet gets its lifetime renewed.
func (s *Storage) GetEarningsDate(ctx context.Context, ticker string) (*models.Date, error) {
	n, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.Get(ctx, cache.EarningsKey(n))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading earnings date for %s: %w", n, err)
	}
	d, err := models.ParseDate(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}
	if !d.Before(models.ExchangeDate(s.now()).Time) {
		// A failed renewal only lets the entry lapse early; the date is still good.
		_ = s.store.Set(ctx, cache.EarningsKey(n), []byte(d.String()), earningsDateTTL)
	}
	return &d, nil
}

// ============ IV history ============

// StoreIVReading records one ATM IV reading, replacing any reading for the same
// date and keeping the newest MaxIVHistory entries.
func (s *Storage) StoreIVReading(ctx context.Context, ticker string, reading models.IVReading) error {
	n, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	if reading.IV <= 0 || reading.Date.IsZero() {
		return fmt.Errorf("IV reading for %s must have a date and positive IV", n)
	}
	history, err := s.GetIVReadings(ctx, n)
	if err != nil && !errors.Is(err, ErrNoIVReadings) {
		return err
	}

	replaced := false
	for i := range history {
		if history[i].Date.Equal(reading.Date.Time) {
			history[i] = reading
			replaced = true
			break
		}
	}
	if !replaced {
		history = append(history, reading)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date.Time) })
	if len(history) > MaxIVHistory {
		history = history[len(history)-MaxIVHistory:]
	}

	if err := cache.SetJSON(ctx, s.store, cache.IVHistoryKey(n), history, 0); err != nil {
		return fmt.Errorf("saving IV history for %s: %w", n, err)
	}
	return nil
}

// GetIVReadings returns the IV history oldest first, or ErrNoIVReadings.
func (s *Storage) GetIVReadings(ctx context.Context, ticker string) ([]models.IVReading, error) {
	n, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	var history []models.IVReading
	if err := cache.GetJSON(ctx, s.store, cache.IVHistoryKey(n), &history); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNoIVReadings
		}
		return nil, fmt.Errorf("reading IV history for %s: %w", n, err)
	}
	if len(history) == 0 {
		return nil, ErrNoIVReadings
	}
	return history, nil
}

// ============ Refresh bookkeeping ============

// SetLastRefresh records when the dashboard was last rebuilt.
func (s *Storage) SetLastRefresh(ctx context.Context, at time.Time) error {
	return s.store.Set(ctx, cache.LastRefreshKey, []byte(at.UTC().Format(time.RFC3339)), 0)
}

// GetLastRefresh returns the last refresh time, or the zero time if never refreshed.
func (s *Storage) GetLastRefresh(ctx context.Context) (time.Time, error) {
	raw, err := s.store.Get(ctx, cache.LastRefreshKey)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, string(raw))
}
