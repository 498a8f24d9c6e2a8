package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/pkg/concurrency"
)

func TestSaveThenDrainDeletesOnSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.db")
	var drained []Row
	sink, err := NewSQLiteSink(path, func(ctx context.Context, rows []Row) error {
		drained = append(drained, rows...)
		return nil
	}, concurrency.NewPool(concurrency.PoolConfig{MaxWorkers: 1, MaxQueued: 4}), logging.Noop{})
	require.NoError(t, err)
	defer sink.Close()

	o := &lifecycle.Order{
		ClientOrderID: "c1",
		MarketID:      market.MarketID{Exchange: "binance-1", Symbol: "BTCUSDT"},
		Amount:        decimal.RequireFromString("1"),
		State:         lifecycle.StateFilled,
	}
	require.NoError(t, sink.SaveOrder(context.Background(), o))

	n, err := sink.DrainOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, drained, 1)

	n, err = sink.DrainOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrainFailureRetainsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.db")
	sink, err := NewSQLiteSink(path, func(ctx context.Context, rows []Row) error {
		return assertErr
	}, concurrency.NewPool(concurrency.PoolConfig{MaxWorkers: 1, MaxQueued: 4}), logging.Noop{})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.SaveOrder(context.Background(), &lifecycle.Order{ClientOrderID: "c1"}))

	_, err = sink.DrainOnce(context.Background(), 10)
	require.Error(t, err)

	n, err := sink.DrainOnce(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	_ = time.Second
}

var assertErr = assertError("drain failed")

type assertError string

func (e assertError) Error() string { return string(e) }
