// Package market models the US equity session calendar and the cache lifetimes derived from it.
package market

import (
	"time"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// Session boundaries in exchange-local time.
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// Cache lifetimes.
const (
	OpenMarketTTL    = 600
	ClosedMarketTTL  = 3600
	OptionsChainTTL  = 86400
	EarningsDateTTL  = 86400
	LastKnownGoodTTL = 7 * 86400
)

// Clock answers session questions for the US equity market.
// Exchange holidays are not modeled.
type Clock struct {
	loc *time.Location
}

// NewClock returns a Clock in America/New_York.
func NewClock() *Clock {
	return &Clock{loc: models.ExchangeLocation}
}

// Location returns the exchange timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

func isTradingDay(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}

func (c *Clock) sessionBounds(t time.Time) (open, close time.Time) {
	y, m, d := t.Date()
	open = time.Date(y, m, d, openHour, openMinute, 0, 0, c.loc)
	close = time.Date(y, m, d, closeHour, closeMinute, 0, 0, c.loc)
	return open, close
}

// IsMarketOpen reports whether now falls inside a Monday-Friday 09:30-16:00 ET session.
// Inclusive open, exclusive close.
func (c *Clock) IsMarketOpen(now time.Time) bool {
	local := now.In(c.loc)
	if !isTradingDay(local) {
		return false
	}
	open, close := c.sessionBounds(local)
	return !local.Before(open) && local.Before(close)
}

// NextOpen returns the start of the next session strictly after now.
// When the market is open it returns the current session's open.
func (c *Clock) NextOpen(now time.Time) time.Time {
	local := now.In(c.loc)
	open, _ := c.sessionBounds(local)
	if c.IsMarketOpen(now) {
		return open
	}
	if isTradingDay(local) && local.Before(open) {
		return open
	}
	next := local
	for {
		next = next.AddDate(0, 0, 1)
		if isTradingDay(next) {
			o, _ := c.sessionBounds(next)
			return o
		}
	}
}

// SecondsUntilOpen returns 0 while the market is open, otherwise the whole seconds until the next open.
func (c *Clock) SecondsUntilOpen(now time.Time) int {
	if c.IsMarketOpen(now) {
		return 0
	}
	d := c.NextOpen(now).Sub(now)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// CacheTTLSeconds is the lifetime for price-sensitive cache entries:
// 10 minutes while open, until the next open when that is under an hour away, otherwise one hour.
func (c *Clock) CacheTTLSeconds(now time.Time) int {
	if c.IsMarketOpen(now) {
		return OpenMarketTTL
	}
	if s := c.SecondsUntilOpen(now); s < ClosedMarketTTL {
		return s
	}
	return ClosedMarketTTL
}

// CacheTTL is CacheTTLSeconds as a duration.
func (c *Clock) CacheTTL(now time.Time) time.Duration {
	return time.Duration(c.CacheTTLSeconds(now)) * time.Second
}

// Today returns the current calendar date in exchange time as midnight UTC.
func (c *Clock) Today(now time.Time) time.Time {
	return models.ExchangeDate(now).Time
}
