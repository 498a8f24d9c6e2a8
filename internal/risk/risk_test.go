package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purefinance/mmb/internal/logging"
)

func TestCircuitBreakerTripsOnConsecutiveLosses(t *testing.T) {
	cb := NewCircuitBreaker("bucket-a", Config{MaxConsecutiveLosses: 3, CooldownPeriod: time.Hour}, logging.Noop{})
	cb.RecordTrade(decimal.RequireFromString("-1"))
	cb.RecordTrade(decimal.RequireFromString("-1"))
	assert.False(t, cb.IsTripped())
	cb.RecordTrade(decimal.RequireFromString("-1"))
	assert.True(t, cb.IsTripped())
}

func TestCircuitBreakerResetsOnWin(t *testing.T) {
	cb := NewCircuitBreaker("bucket-a", Config{MaxConsecutiveLosses: 2, CooldownPeriod: time.Hour}, logging.Noop{})
	cb.RecordTrade(decimal.RequireFromString("-1"))
	cb.RecordTrade(decimal.RequireFromString("1"))
	cb.RecordTrade(decimal.RequireFromString("-1"))
	assert.False(t, cb.IsTripped())
}

func TestCircuitBreakerAutoResetsAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker("bucket-a", Config{MaxConsecutiveLosses: 1, CooldownPeriod: time.Millisecond}, logging.Noop{})
	cb.RecordTrade(decimal.RequireFromString("-1"))
	require.True(t, cb.IsTripped())
	time.Sleep(5 * time.Millisecond)
	assert.False(t, cb.IsTripped())
}

func TestCircuitBreakerDrawdownPercent(t *testing.T) {
	cb := NewCircuitBreaker("bucket-a", Config{MaxDrawdownPercent: decimal.RequireFromString("10"), CooldownPeriod: time.Hour}, logging.Noop{})
	cb.RecordTrade(decimal.RequireFromString("100"))
	cb.RecordTrade(decimal.RequireFromString("-15"))
	assert.True(t, cb.IsTripped())
}

func TestVolatilityMonitorATR(t *testing.T) {
	v := NewVolatilityMonitor(20, 3)
	for i := 0; i < 10; i++ {
		v.Push(Candle{High: 101, Low: 99, Close: 100})
	}
	atr, ok := v.ATR()
	require.True(t, ok)
	assert.True(t, atr.GreaterThanOrEqual(decimal.Zero))
}
