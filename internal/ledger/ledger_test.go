package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key() Key {
	return Key{Exchange: "binance-1", Currency: "USDT"}
}

func TestReserveAndRelease(t *testing.T) {
	l := New()
	l.SetBalance(key(), decimal.RequireFromString("1000"))

	require.NoError(t, l.Reserve(key(), "bucket-a", decimal.RequireFromString("100")))
	bal := l.Get(key())
	assert.True(t, bal.Free.Equal(decimal.RequireFromString("900")))
	assert.True(t, bal.Reserved.Equal(decimal.RequireFromString("100")))

	require.NoError(t, l.Release(key(), "bucket-a", decimal.RequireFromString("40")))
	bal = l.Get(key())
	assert.True(t, bal.Free.Equal(decimal.RequireFromString("940")))
	assert.True(t, bal.Reserved.Equal(decimal.RequireFromString("60")))
}

func TestReserveInsufficientBalance(t *testing.T) {
	l := New()
	l.SetBalance(key(), decimal.RequireFromString("10"))
	err := l.Reserve(key(), "bucket-a", decimal.RequireFromString("100"))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestSettleConsumesReservation(t *testing.T) {
	l := New()
	l.SetBalance(key(), decimal.RequireFromString("1000"))
	require.NoError(t, l.Reserve(key(), "bucket-a", decimal.RequireFromString("100")))
	require.NoError(t, l.Settle(key(), "bucket-a", decimal.RequireFromString("100")))

	bal := l.Get(key())
	assert.True(t, bal.Reserved.IsZero())
	assert.True(t, bal.Free.Equal(decimal.RequireFromString("900")))
}

func TestTwoBucketsCannotDoubleSpend(t *testing.T) {
	l := New()
	l.SetBalance(key(), decimal.RequireFromString("100"))
	require.NoError(t, l.Reserve(key(), "bucket-a", decimal.RequireFromString("80")))
	err := l.Reserve(key(), "bucket-b", decimal.RequireFromString("30"))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestReserveRejectsPastBucketAllocationEvenWithFreeBalance(t *testing.T) {
	l := New()
	l.SetBalance(key(), decimal.RequireFromString("1000"))
	l.SetAllocation(key(), "bucket-a", decimal.RequireFromString("100"))
	l.SetAllocation(key(), "bucket-b", decimal.RequireFromString("50"))

	require.NoError(t, l.Reserve(key(), "bucket-a", decimal.RequireFromString("100")))

	// Plenty of global free balance remains (900), but bucket-a has already
	// used up its own 100 allocation and must not be able to dip into
	// capital earmarked for bucket-b.
	err := l.Reserve(key(), "bucket-a", decimal.RequireFromString("1"))
	require.ErrorIs(t, err, ErrAllocationExceeded)

	require.NoError(t, l.Reserve(key(), "bucket-b", decimal.RequireFromString("50")))
}

func TestReserveWithoutAllocationOnlyBoundedByFreeBalance(t *testing.T) {
	l := New()
	l.SetBalance(key(), decimal.RequireFromString("100"))
	require.NoError(t, l.Reserve(key(), "bucket-a", decimal.RequireFromString("100")))
	_, ok := l.BucketAllocation(key(), "bucket-a")
	assert.False(t, ok)
}

func TestReserveMultiRollsBackOnPartialFailure(t *testing.T) {
	l := New()
	keyA := Key{Exchange: "binance-1", Currency: "USDT"}
	keyB := Key{Exchange: "binance-1", Currency: "BTC"}
	l.SetBalance(keyA, decimal.RequireFromString("1000"))
	l.SetBalance(keyB, decimal.RequireFromString("0.001"))

	err := l.ReserveMulti("bucket-a", map[Key]decimal.Decimal{
		keyA: decimal.RequireFromString("100"),
		keyB: decimal.RequireFromString("1"),
	})
	require.Error(t, err)

	assert.True(t, l.Get(keyA).Reserved.IsZero())
	assert.True(t, l.Get(keyB).Reserved.IsZero())
}
