package mock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/market"
)

func TestCreateThenCancelOrder(t *testing.T) {
	ex := New()
	m := market.MarketID{Exchange: "mock-1", Symbol: "BTCUSDT"}

	ack, err := ex.CreateOrder(context.Background(), lifecycle.CreateOrderRequest{
		ClientOrderID: "c1", MarketID: m, Side: lifecycle.SideBuy,
		Price: decimal.RequireFromString("100"), Amount: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)
	assert.True(t, ack.Accepted)

	open, err := ex.GetOpenOrders(context.Background(), m)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, ex.CancelOrder(context.Background(), m, ack.ExchangeOrderID))

	open, err = ex.GetOpenOrders(context.Background(), m)
	require.NoError(t, err)
	assert.Len(t, open, 0)
}

func TestFillEmitsEvent(t *testing.T) {
	ex := New()
	m := market.MarketID{Exchange: "mock-1", Symbol: "BTCUSDT"}

	ack, err := ex.CreateOrder(context.Background(), lifecycle.CreateOrderRequest{
		ClientOrderID: "c1", MarketID: m, Side: lifecycle.SideBuy,
		Price: decimal.RequireFromString("100"), Amount: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	require.NoError(t, ex.Fill(ack.ExchangeOrderID, decimal.RequireFromString("1"), decimal.RequireFromString("100")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan lifecycle.ExchangeEvent, 1)
	go ex.StreamUserData(ctx, events)

	ev := <-events
	assert.Equal(t, "c1", ev.ClientOrderID)
	require.NotNil(t, ev.Fill)
	assert.True(t, ev.Fill.Amount.Equal(decimal.RequireFromString("1")))
}
