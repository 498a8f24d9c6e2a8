// Package strategy defines the pluggable strategy interface and the tick
// host that drives it against live order book and balance state.
package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/ledger"
	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/orderbook"
)

// ActionKind is what a strategy wants the host to do with one desired order.
type ActionKind int

const (
	ActionPlace ActionKind = iota
	ActionCancel
	ActionKeep
)

// Action is one line item of a strategy's tick output: either place a new
// order, cancel an existing one by client_order_id, or keep an existing one
// unchanged.
type Action struct {
	Kind          ActionKind
	Side          lifecycle.Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
	ClientOrderID string // set for Cancel/Keep, referencing an existing order
}

// Context is what a strategy sees for one tick: the current book and its
// own open orders. BaseBalance and QuoteBalance are not filled in by Host
// and are always zero. ATR is the market's current Average True Range, in
// quote-currency price units, or zero if the host has no volatility monitor
// assigned or it has not yet warmed up — a Strategy uses it to widen quotes
// under elevated volatility rather than trading the same fixed spread in
// both calm and turbulent conditions.
type Context struct {
	MarketID     market.MarketID
	BucketID     string
	Rules        market.Rules
	Book         *orderbook.Replica
	OpenOrders   []*lifecycle.Order
	BaseBalance  ledger.Balance
	QuoteBalance ledger.Balance
	ATR          decimal.Decimal
}

// Strategy computes the desired set of orders for one market on one tick.
// Implementations must be pure with respect to Context: all state they need
// must be visible in Context or captured in their own fields, never fetched
// out-of-band, so the host can reason about what each tick actually saw.
type Strategy interface {
	Name() string
	CalculateActions(ctx context.Context, tctx Context) ([]Action, error)
}
