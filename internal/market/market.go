// Package market defines the identity and trading-rule metadata every other
// package references: which exchange, which symbol, and the precision and
// minimum-size constraints the exchange enforces on it.
package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ExchangeID names a configured exchange connection, e.g. "binance-spot-1".
// It identifies a credentialed connection, not a venue: two ExchangeIDs can
// point at the same venue under different API keys.
type ExchangeID string

// Currency is an asset ticker, e.g. "BTC", "USDT". Comparisons are
// case-sensitive; adapters are responsible for normalizing exchange-native
// casing on ingestion.
type Currency string

// Symbol is an exchange-native trading pair identifier, e.g. "BTCUSDT".
type Symbol string

// MarketID uniquely identifies a tradeable market within the engine: the
// exchange connection it lives on plus its symbol. It is the primary key
// threaded through the order book, lifecycle manager, and strategy host.
type MarketID struct {
	Exchange ExchangeID
	Symbol   Symbol
}

func (m MarketID) String() string {
	return fmt.Sprintf("%s:%s", m.Exchange, m.Symbol)
}

// Rules captures the exchange's trading constraints for a market: price and
// quantity precision, tick/step sizes, and minimum order thresholds. The
// lifecycle manager's pre-trade checks (spec boundary: BelowMin rejection)
// are evaluated against this struct.
type Rules struct {
	BaseCurrency   Currency
	QuoteCurrency  Currency
	PriceDecimals  int32
	AmountDecimals int32
	TickSize       decimal.Decimal
	StepSize       decimal.Decimal
	MinAmount      decimal.Decimal
	MinNotional    decimal.Decimal
	MakerFeeRate   decimal.Decimal
	TakerFeeRate   decimal.Decimal
}

// Validate reports whether an order of the given price and amount satisfies
// this market's minimum-size constraints. It does not mutate anything; it is
// a pure boundary check called before an order is ever sent to an exchange.
func (r Rules) Validate(price, amount decimal.Decimal) error {
	if amount.LessThan(r.MinAmount) {
		return fmt.Errorf("%w: amount %s below minimum %s", ErrBelowMinAmount, amount, r.MinAmount)
	}
	notional := price.Mul(amount)
	if notional.LessThan(r.MinNotional) {
		return fmt.Errorf("%w: notional %s below minimum %s", ErrBelowMinNotional, notional, r.MinNotional)
	}
	return nil
}

// Registry holds the Rules for every known market, keyed by MarketID. It is
// populated at startup from exchange metadata (get_symbol_info) and consulted
// read-only thereafter; Set replaces one market's rules at a time, and
// nothing refreshes them on a schedule.
type Registry struct {
	rules map[MarketID]Rules
}

// NewRegistry builds an empty market registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[MarketID]Rules)}
}

// Set installs or replaces the rules for a market.
func (reg *Registry) Set(id MarketID, r Rules) {
	reg.rules[id] = r
}

// Get returns the rules for a market and whether they are known.
func (reg *Registry) Get(id MarketID) (Rules, bool) {
	r, ok := reg.rules[id]
	return r, ok
}

// All returns a snapshot copy of every registered market's rules.
func (reg *Registry) All() map[MarketID]Rules {
	out := make(map[MarketID]Rules, len(reg.rules))
	for k, v := range reg.rules {
		out[k] = v
	}
	return out
}
