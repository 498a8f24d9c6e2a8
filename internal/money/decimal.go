// Package money provides fixed-precision price and amount arithmetic used
// throughout the engine. All trading math routes through this package so
// rounding direction is chosen once, deliberately, in one place.
package money

import (
	"github.com/shopspring/decimal"
)

// Price is a quote-currency price. It is a thin alias over decimal.Decimal
// so call sites stay self-documenting about which quantity they're holding.
type Price = decimal.Decimal

// Amount is a base-currency quantity.
type Amount = decimal.Decimal

// Zero is the canonical zero value, matching decimal.Zero.
var Zero = decimal.Zero

// RoundPriceDown rounds a price down to the given number of decimal places.
// Used when rounding a buy price: never offer to pay more than computed.
func RoundPriceDown(p Price, decimals int32) Price {
	return p.Truncate(decimals)
}

// RoundPriceUp rounds a price up to the given number of decimal places.
// Used when rounding a sell price: never offer to sell for less than computed.
func RoundPriceUp(p Price, decimals int32) Price {
	rounded := p.Truncate(decimals)
	if rounded.Equal(p) {
		return rounded
	}
	step := decimal.New(1, -decimals)
	return rounded.Add(step)
}

// RoundAmountDown rounds a base-currency amount down to the given precision.
// Amounts always round down: an order must never request more than intended,
// and a reservation must never be understated.
func RoundAmountDown(a Amount, decimals int32) Amount {
	return a.Truncate(decimals)
}

// RoundToTick snaps a price to the nearest multiple of tick, rounding in the
// given side's conservative direction (buy: down, sell: up).
func RoundToTick(p Price, tick Price, side Side) Price {
	if tick.IsZero() {
		return p
	}
	steps := p.Div(tick)
	switch side {
	case SideBuy:
		steps = steps.Floor()
	case SideSell:
		steps = steps.Ceil()
	default:
		steps = steps.Round(0)
	}
	return steps.Mul(tick)
}

// Side mirrors lifecycle.Side without importing it, to keep this package
// dependency-free at the bottom of the graph.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// ConservativeRound rounds an amount in the direction that never overstates
// what the engine is willing to pay or able to deliver, per side.
func ConservativeRound(a Amount, decimals int32, side Side) Amount {
	switch side {
	case SideBuy:
		return RoundPriceDown(a, decimals)
	case SideSell:
		return RoundPriceUp(a, decimals)
	default:
		return RoundAmountDown(a, decimals)
	}
}

// Min returns the smaller of two decimals.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of two decimals.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp restricts v to the closed interval [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// BasisPoints converts a basis-points integer into a decimal fraction, e.g.
// BasisPoints(25) == 0.0025.
func BasisPoints(bps int64) decimal.Decimal {
	return decimal.NewFromInt(bps).Div(decimal.NewFromInt(10000))
}

// SkewedMidpoint nudges a midpoint price by a skew fraction of the spread,
// used by strategies to lean quotes away from inventory risk.
func SkewedMidpoint(bid, ask, skew decimal.Decimal) decimal.Decimal {
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	spread := ask.Sub(bid)
	return mid.Add(spread.Mul(skew))
}
