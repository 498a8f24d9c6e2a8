package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/market"
)

type fakeExchange struct {
	acceptNext   bool
	rejectReason RejectReason
	createCalls  int
	cancelCalls  int
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req CreateOrderRequest) (ExchangeAck, error) {
	f.createCalls++
	if !f.acceptNext {
		return ExchangeAck{Accepted: false, RejectReason: f.rejectReason}, nil
	}
	return ExchangeAck{Accepted: true, ExchangeOrderID: "exch-1"}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error {
	f.cancelCalls++
	return nil
}

func testRules() market.Rules {
	return market.Rules{
		MinAmount:   decimal.RequireFromString("0.0001"),
		MinNotional: decimal.RequireFromString("1"),
	}
}

func testMarket() market.MarketID {
	return market.MarketID{Exchange: "binance-1", Symbol: "BTCUSDT"}
}

func TestRequestCreateAccepted(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)

	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, StateCreated, o.State)
	assert.Equal(t, "exch-1", o.ExchangeOrderID)
}

func TestRequestCreateRejected(t *testing.T) {
	fx := &fakeExchange{acceptNext: false, rejectReason: RejectReasonInsufficientFunds}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)

	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("0.01"))
	require.Error(t, err)
	assert.Equal(t, StateRejected, o.State)
	assert.Equal(t, RejectReasonInsufficientFunds, o.RejectReason)
}

func TestRequestCreateBelowMinRejectedLocally(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)

	_, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("0.00001"))
	require.Error(t, err)
	assert.Equal(t, 0, fx.createCalls)
}

func TestIngestExchangeEventFillTransitionsPartiallyFilled(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)

	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	require.NoError(t, err)

	err = m.IngestExchangeEvent(context.Background(), ExchangeEvent{
		ClientOrderID: o.ClientOrderID,
		Fill: &Fill{
			FillID: "f1",
			Price:  decimal.RequireFromString("100"),
			Amount: decimal.RequireFromString("0.3"),
		},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	snap, ok := m.Snapshot(o.ClientOrderID)
	require.True(t, ok)
	assert.Equal(t, StatePartiallyFilled, snap.State)
	assert.True(t, snap.FilledAmount.Equal(decimal.RequireFromString("0.3")))
}

func TestIngestExchangeEventDuplicateFillIdempotentlyDropped(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)

	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	require.NoError(t, err)

	fill := ExchangeEvent{
		ClientOrderID: o.ClientOrderID,
		Fill:          &Fill{FillID: "f1", Price: decimal.RequireFromString("100"), Amount: decimal.RequireFromString("0.3")},
		Timestamp:     time.Now(),
	}
	require.NoError(t, m.IngestExchangeEvent(context.Background(), fill))
	require.NoError(t, m.IngestExchangeEvent(context.Background(), fill)) // redelivered

	snap, ok := m.Snapshot(o.ClientOrderID)
	require.True(t, ok)
	assert.True(t, snap.FilledAmount.Equal(decimal.RequireFromString("0.3")))
	assert.Len(t, snap.Fills, 1)
}

func TestIngestExchangeEventOverfillDropped(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)

	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	require.NoError(t, err)

	require.NoError(t, m.IngestExchangeEvent(context.Background(), ExchangeEvent{
		ClientOrderID: o.ClientOrderID,
		Fill:          &Fill{FillID: "f1", Amount: decimal.RequireFromString("0.9")},
		Timestamp:     time.Now(),
	}))
	// Would push filled_amount to 1.3, past the order's 1.0 intent.
	require.NoError(t, m.IngestExchangeEvent(context.Background(), ExchangeEvent{
		ClientOrderID: o.ClientOrderID,
		Fill:          &Fill{FillID: "f2", Amount: decimal.RequireFromString("0.4")},
		Timestamp:     time.Now(),
	}))

	snap, ok := m.Snapshot(o.ClientOrderID)
	require.True(t, ok)
	assert.True(t, snap.FilledAmount.Equal(decimal.RequireFromString("0.9")))
	assert.Len(t, snap.Fills, 1)
}

func TestIngestExchangeEventDroppedAfterTerminal(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)

	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	require.NoError(t, err)

	filled := StateFilled
	require.NoError(t, m.IngestExchangeEvent(context.Background(), ExchangeEvent{
		ClientOrderID: o.ClientOrderID,
		NewState:      &filled,
		Timestamp:     time.Now(),
	}))

	// A late fill/cancel event after Filled must not mutate the terminal order.
	cancelled := StateCancelled
	require.NoError(t, m.IngestExchangeEvent(context.Background(), ExchangeEvent{
		ClientOrderID: o.ClientOrderID,
		NewState:      &cancelled,
		Fill:          &Fill{FillID: "late", Amount: decimal.RequireFromString("0.1")},
		Timestamp:     time.Now(),
	}))

	snap, ok := m.Snapshot(o.ClientOrderID)
	require.True(t, ok)
	assert.Equal(t, StateFilled, snap.State)
	assert.True(t, snap.FilledAmount.IsZero())
}

func TestIsValidTransitionRejectsOutOfTableMoves(t *testing.T) {
	assert.True(t, isValidTransition(StateCreating, StateCreated))
	assert.True(t, isValidTransition(StateCreated, StateFilled))
	assert.False(t, isValidTransition(StateFilled, StateActive))
	assert.False(t, isValidTransition(StateCancelled, StateUnknown))
	assert.True(t, isValidTransition(StatePartiallyFilled, StatePartiallyFilled))
}

func TestPruneRemovesOldTerminalOrders(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Millisecond)

	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	require.NoError(t, err)

	filled := StateFilled
	require.NoError(t, m.IngestExchangeEvent(context.Background(), ExchangeEvent{
		ClientOrderID: o.ClientOrderID,
		NewState:      &filled,
		Timestamp:     time.Now().Add(-time.Hour),
	}))

	removed := m.Prune(time.Now())
	assert.Equal(t, 1, removed)
	_, ok := m.Snapshot(o.ClientOrderID)
	assert.False(t, ok)
}

type fakeLister struct {
	open []ExchangeOrderView
}

func (f *fakeLister) GetOpenOrders(ctx context.Context, marketID market.MarketID) ([]ExchangeOrderView, error) {
	return f.open, nil
}

func TestReconcilerCancelsUntrackedExchangeOrder(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)
	lister := &fakeLister{open: []ExchangeOrderView{
		{ExchangeOrderID: "ghost-1", ClientOrderID: "untracked-1", MarketID: testMarket()},
	}}
	canceled := 0
	r := NewReconciler(m, lister, func(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error {
		canceled++
		return nil
	}, logging.Noop{}, time.Second)

	require.NoError(t, r.ReconcileOnce(context.Background(), testMarket()))
	assert.Equal(t, 1, canceled)
}

func TestReconcilerMarksGhostLocalOrderUnknown(t *testing.T) {
	fx := &fakeExchange{acceptNext: true}
	m := NewManager(fx, nil, logging.Noop{}, time.Hour)
	o, err := m.RequestCreate(context.Background(), testRules(), testMarket(), "default", SideBuy,
		decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	require.NoError(t, err)

	lister := &fakeLister{}
	r := NewReconciler(m, lister, func(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error {
		return nil
	}, logging.Noop{}, time.Second)

	require.NoError(t, r.ReconcileOnce(context.Background(), testMarket()))
	snap, ok := m.Snapshot(o.ClientOrderID)
	require.True(t, ok)
	assert.Equal(t, StateUnknown, snap.State)
}
