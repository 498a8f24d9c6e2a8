package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/money"
)

// MVP is the reference pure market-making strategy: quote a fixed amount on
// each side at a configurable spread around the book's midpoint. Each side
// is checked on its own: an existing order is kept while its price is
// within RepriceThreshold of that side's desired price, and is canceled and
// replaced otherwise, to avoid needlessly churning orders whose price is
// still acceptable.
type MVP struct {
	OrderAmount      decimal.Decimal
	SpreadBps        int64
	RepriceThreshold decimal.Decimal // fraction of price; 0 disables hysteresis

	// ATRMultiplier scales Context.ATR into an additional per-side widening
	// applied on top of SpreadBps, so quotes pull back automatically when the
	// host's volatility monitor reports an elevated range. Zero (the default)
	// disables widening, leaving the fixed spread from SpreadBps alone.
	ATRMultiplier decimal.Decimal
}

func (s *MVP) Name() string { return "mvp-mm" }

func (s *MVP) CalculateActions(ctx context.Context, tctx Context) ([]Action, error) {
	mid, ok := tctx.Book.MidPrice()
	if !ok {
		return nil, nil
	}

	spreadFrac := money.BasisPoints(s.SpreadBps)
	widening := tctx.ATR.Mul(s.ATRMultiplier)
	bidPrice := money.RoundToTick(mid.Mul(decimal.NewFromInt(1).Sub(spreadFrac)).Sub(widening), tctx.Rules.TickSize, money.SideBuy)
	askPrice := money.RoundToTick(mid.Mul(decimal.NewFromInt(1).Add(spreadFrac)).Add(widening), tctx.Rules.TickSize, money.SideSell)
	amount := money.RoundAmountDown(s.OrderAmount, tctx.Rules.AmountDecimals)

	var existingBid, existingAsk *lifecycle.Order
	for _, o := range tctx.OpenOrders {
		switch o.Side {
		case lifecycle.SideBuy:
			existingBid = o
		case lifecycle.SideSell:
			existingAsk = o
		}
	}

	var actions []Action
	actions = append(actions, s.sideAction(lifecycle.SideBuy, bidPrice, amount, existingBid)...)
	actions = append(actions, s.sideAction(lifecycle.SideSell, askPrice, amount, existingAsk)...)
	return actions, nil
}

func (s *MVP) sideAction(side lifecycle.Side, desiredPrice, amount decimal.Decimal, existing *lifecycle.Order) []Action {
	if existing == nil {
		return []Action{{Kind: ActionPlace, Side: side, Price: desiredPrice, Amount: amount}}
	}

	if s.withinHysteresis(existing.Price, desiredPrice) {
		return []Action{{Kind: ActionKeep, ClientOrderID: existing.ClientOrderID}}
	}

	return []Action{
		{Kind: ActionCancel, ClientOrderID: existing.ClientOrderID},
		{Kind: ActionPlace, Side: side, Price: desiredPrice, Amount: amount},
	}
}

func (s *MVP) withinHysteresis(current, desired decimal.Decimal) bool {
	if s.RepriceThreshold.IsZero() || current.IsZero() {
		return current.Equal(desired)
	}
	diff := current.Sub(desired).Abs()
	return diff.Div(current).LessThanOrEqual(s.RepriceThreshold)
}
