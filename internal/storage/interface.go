package storage

import (
	"context"
	"time"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// Interface defines the contract for user data persistence: positions, the
// watchlist, earnings dates and the ATM IV history.
//
// Implementations must be safe for concurrent use. Each key is written
// independently; no cross-key consistency is promised.
type Interface interface {
	// Position management
	ListPositions(ctx context.Context) ([]models.Position, error)
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	CreatePosition(ctx context.Context, pos *models.Position) (*models.Position, error)
	UpdatePosition(ctx context.Context, pos *models.Position) error
	DeletePosition(ctx context.Context, id string) error

	// Watchlist
	Watchlist(ctx context.Context) ([]string, error)
	AddToWatchlist(ctx context.Context, tickers ...string) error
	RemoveFromWatchlist(ctx context.Context, ticker string) error

	// Earnings calendar
	SetEarningsDate(ctx context.Context, ticker string, date models.Date) error
	GetEarningsDate(ctx context.Context, ticker string) (*models.Date, error)

	// IV data storage
	StoreIVReading(ctx context.Context, ticker string, reading models.IVReading) error
	GetIVReadings(ctx context.Context, ticker string) ([]models.IVReading, error)

	// Refresh bookkeeping
	SetLastRefresh(ctx context.Context, at time.Time) error
	GetLastRefresh(ctx context.Context) (time.Time, error)
}

// Ensure Storage implements Interface
var _ Interface = (*Storage)(nil)
