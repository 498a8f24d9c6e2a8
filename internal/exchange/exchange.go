// Package exchange defines the capability interface every venue adapter
// implements, so the lifecycle manager, strategy host, and order book
// replicator depend on one polymorphic surface instead of a concrete venue.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/orderbook"
)

// AccountBalance is one currency's free/locked balance as reported by the
// exchange's account endpoint.
type AccountBalance struct {
	Currency market.Currency
	Free     decimal.Decimal
	Locked   decimal.Decimal
}

// Client is the full capability surface a concrete venue adapter provides.
// It composes smaller interfaces so a test double can implement only the
// slice a given test exercises.
type Client interface {
	MarketDataClient
	AccountClient
	lifecycle.ExchangeClient
	lifecycle.OrderLister
}

// MarketDataClient exposes market discovery and book streaming.
type MarketDataClient interface {
	GetSymbolInfo(ctx context.Context, marketID market.MarketID) (market.Rules, error)
	GetOrderBookSnapshot(ctx context.Context, marketID market.MarketID) (orderbook.Snapshot, error)
	StreamOrderBook(ctx context.Context, marketID market.MarketID, updates chan<- orderbook.Update) error
}

// AccountClient exposes balance and user-data-stream queries.
type AccountClient interface {
	GetBalances(ctx context.Context) ([]AccountBalance, error)
	StreamUserData(ctx context.Context, events chan<- lifecycle.ExchangeEvent) error
	ServerTime(ctx context.Context) (time.Time, error)
}
