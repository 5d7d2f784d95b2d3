// Package exchange adapts exchange SDKs to the domain types the feed
// consumes. Adapters are read-only: the dashboard never places orders.
package exchange

import (
	"context"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"

	"github.com/shopspring/decimal"
)

// Exchange is the upstream surface the data feed polls. Implementations
// own authentication, signing and transport-level retries.
type Exchange interface {
	// Account returns raw wallet balances per asset plus the available
	// balance.
	Account(ctx context.Context) (domain.AccountState, error)
	// Positions returns all position risk entries, including flat ones.
	Positions(ctx context.Context) ([]domain.Position, error)
	// OpenOrders returns all resting orders across symbols.
	OpenOrders(ctx context.Context) ([]domain.OpenOrder, error)
	// RecentFills returns up to limit most recent executions for symbol.
	RecentFills(ctx context.Context, symbol string, limit int) ([]domain.Fill, error)
	// Klines returns up to limit most recent candles for symbol.
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	// Price returns the last traded price for symbol.
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
