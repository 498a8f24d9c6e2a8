package market

import "errors"

var (
	// ErrBelowMinAmount is returned when a requested order amount is below
	// the exchange's minimum order size for the market.
	ErrBelowMinAmount = errors.New("amount below exchange minimum")
	// ErrBelowMinNotional is returned when price*amount is below the
	// exchange's minimum notional value for the market.
	ErrBelowMinNotional = errors.New("notional below exchange minimum")
	// ErrUnknownMarket is returned when a MarketID has no registered Rules.
	ErrUnknownMarket = errors.New("unknown market")
)
