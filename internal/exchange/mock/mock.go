// Package mock implements exchange.Client entirely in memory, for tests and
// local dry-run strategy development without touching a real venue.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/apperrors"
	"github.com/purefinance/mmb/internal/exchange"
	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/orderbook"
)

// Exchange is an in-memory exchange.Client with no matching engine: an
// accepted order rests until the caller fills it explicitly with Fill.
type Exchange struct {
	mu sync.Mutex

	rules     map[market.MarketID]market.Rules
	balances  map[market.Currency]exchange.AccountBalance
	openOrds  map[string]lifecycle.ExchangeOrderView
	nextOrder int64

	events chan lifecycle.ExchangeEvent
}

var _ exchange.Client = (*Exchange)(nil)

// New builds an empty mock exchange.
func New() *Exchange {
	return &Exchange{
		rules:    make(map[market.MarketID]market.Rules),
		balances: make(map[market.Currency]exchange.AccountBalance),
		openOrds: make(map[string]lifecycle.ExchangeOrderView),
		events:   make(chan lifecycle.ExchangeEvent, 256),
	}
}

// SetRules installs the trading rules the mock reports for GetSymbolInfo.
func (e *Exchange) SetRules(id market.MarketID, r market.Rules) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[id] = r
}

// SetBalance seeds a free balance for a currency.
func (e *Exchange) SetBalance(currency market.Currency, free decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[currency] = exchange.AccountBalance{Currency: currency, Free: free}
}

func (e *Exchange) GetSymbolInfo(ctx context.Context, marketID market.MarketID) (market.Rules, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[marketID]
	if !ok {
		return market.Rules{}, market.ErrUnknownMarket
	}
	return r, nil
}

func (e *Exchange) GetOrderBookSnapshot(ctx context.Context, marketID market.MarketID) (orderbook.Snapshot, error) {
	return orderbook.Snapshot{MarketID: marketID, Timestamp: time.Now()}, nil
}

func (e *Exchange) StreamOrderBook(ctx context.Context, marketID market.MarketID, updates chan<- orderbook.Update) error {
	<-ctx.Done()
	return ctx.Err()
}

func (e *Exchange) GetBalances(ctx context.Context) ([]exchange.AccountBalance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]exchange.AccountBalance, 0, len(e.balances))
	for _, b := range e.balances {
		out = append(out, b)
	}
	return out, nil
}

func (e *Exchange) StreamUserData(ctx context.Context, events chan<- lifecycle.ExchangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			events <- ev
		}
	}
}

func (e *Exchange) ServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

// CreateOrder always accepts, assigning a sequential exchange order id.
func (e *Exchange) CreateOrder(ctx context.Context, req lifecycle.CreateOrderRequest) (lifecycle.ExchangeAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := atomic.AddInt64(&e.nextOrder, 1)
	exchangeOrderID := fmt.Sprintf("mock-%d", id)
	e.openOrds[exchangeOrderID] = lifecycle.ExchangeOrderView{
		ExchangeOrderID: exchangeOrderID,
		ClientOrderID:   req.ClientOrderID,
		MarketID:        req.MarketID,
		State:           lifecycle.StateCreated,
	}
	return lifecycle.ExchangeAck{ExchangeOrderID: exchangeOrderID, Accepted: true}, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error {
	e.mu.Lock()
	view, ok := e.openOrds[exchangeOrderID]
	if ok {
		delete(e.openOrds, exchangeOrderID)
	}
	e.mu.Unlock()
	if !ok {
		return apperrors.ErrOrderNotFound
	}

	cancelled := lifecycle.StateCancelled
	e.events <- lifecycle.ExchangeEvent{
		ExchangeOrderID: view.ExchangeOrderID,
		ClientOrderID:   view.ClientOrderID,
		NewState:        &cancelled,
		Timestamp:       time.Now(),
	}
	return nil
}

func (e *Exchange) GetOpenOrders(ctx context.Context, marketID market.MarketID) ([]lifecycle.ExchangeOrderView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []lifecycle.ExchangeOrderView
	for _, v := range e.openOrds {
		if v.MarketID == marketID {
			out = append(out, v)
		}
	}
	return out, nil
}

// Fill synthetically fills an open order, emitting the corresponding
// exchange event on the user-data stream, for tests driving the full
// create -> fill -> terminal path without a real matching engine.
func (e *Exchange) Fill(exchangeOrderID string, amount, price decimal.Decimal) error {
	e.mu.Lock()
	view, ok := e.openOrds[exchangeOrderID]
	if !ok {
		e.mu.Unlock()
		return apperrors.ErrOrderNotFound
	}
	delete(e.openOrds, exchangeOrderID)
	e.mu.Unlock()

	filled := lifecycle.StateFilled
	e.events <- lifecycle.ExchangeEvent{
		ExchangeOrderID: view.ExchangeOrderID,
		ClientOrderID:   view.ClientOrderID,
		NewState:        &filled,
		Fill: &lifecycle.Fill{
			FillID: fmt.Sprintf("%s-fill", exchangeOrderID),
			Price:  price,
			Amount: amount,
		},
		Timestamp: time.Now(),
	}
	return nil
}
