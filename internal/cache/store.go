// Package cache defines the key-value Cache Store every component reads and writes,
// with Redis and in-memory implementations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist or has expired.
var ErrCacheMiss = errors.New("cache miss")

// Store is a key-value store with per-key TTL and string sets.
//
// Implementations must be safe for concurrent use. Single-key operations are
// atomic; no multi-key consistency is provided.
type Store interface {
	// Get returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// Key namespace.
const (
	prefix          = "finance:"
	cachePrefix     = prefix + "cache:"
	WatchlistKey    = prefix + "watchlist"
	PositionsIndex  = prefix + "positions:index"
	LastRefreshKey  = prefix + "last_refresh"
	lastKnownPrefix = cachePrefix + "lkg:"
)

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// StockKey holds a serialized StockIndicatorSet.
func StockKey(ticker string) string { return cachePrefix + "stock:" + normalizeTicker(ticker) }

// OptionsKey holds a serialized OptionsChain.
func OptionsKey(ticker string) string { return cachePrefix + "options:" + normalizeTicker(ticker) }

// OptionPriceKey holds the last selected price of one contract.
func OptionPriceKey(optionTicker string) string {
	return cachePrefix + "option_price:" + strings.TrimSpace(optionTicker)
}

// EarningsKey holds the next earnings date as an ISO date string.
func EarningsKey(ticker string) string { return cachePrefix + "earnings:" + normalizeTicker(ticker) }

// PositionKey holds a serialized Position.
func PositionKey(id string) string { return prefix + "position:" + id }

// IVHistoryKey holds the rolling ATM implied volatility series.
func IVHistoryKey(ticker string) string { return prefix + "iv_history:" + normalizeTicker(ticker) }

// LastKnownGoodKey mirrors a primary cache key with a long TTL for stale fallbacks.
func LastKnownGoodKey(primary string) string {
	return lastKnownPrefix + strings.TrimPrefix(primary, cachePrefix)
}

// GetJSON loads key into v. It returns ErrCacheMiss untouched so callers can errors.Is it.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}
