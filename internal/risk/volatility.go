package risk

import (
	"sync"

	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Candle is one OHLC bar used for volatility estimation.
type Candle struct {
	High  float64
	Low   float64
	Close float64
}

// VolatilityMonitor tracks a rolling window of candles per market and
// derives an Average True Range and a standard deviation of returns, used
// by the strategy host to widen quoted spreads when volatility spikes.
type VolatilityMonitor struct {
	mu         sync.Mutex
	window     int
	atrPeriod  int
	candles    []Candle
}

// NewVolatilityMonitor builds a monitor retaining up to window candles and
// computing ATR over atrPeriod bars.
func NewVolatilityMonitor(window, atrPeriod int) *VolatilityMonitor {
	return &VolatilityMonitor{window: window, atrPeriod: atrPeriod}
}

// Push appends one candle, evicting the oldest once the window is full.
func (v *VolatilityMonitor) Push(c Candle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.candles = append(v.candles, c)
	if len(v.candles) > v.window {
		v.candles = v.candles[len(v.candles)-v.window:]
	}
}

// ATR returns the current Average True Range over the retained window, or
// false if fewer than atrPeriod+1 candles have been pushed yet.
func (v *VolatilityMonitor) ATR() (decimal.Decimal, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.candles) <= v.atrPeriod {
		return decimal.Zero, false
	}
	highs := make([]float64, len(v.candles))
	lows := make([]float64, len(v.candles))
	closes := make([]float64, len(v.candles))
	for i, c := range v.candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	atr := talib.Atr(highs, lows, closes, v.atrPeriod)
	last := atr[len(atr)-1]
	return decimal.NewFromFloat(last), true
}

// ReturnStdDev returns the standard deviation of close-to-close simple returns
// over the retained window, a cheap realized-volatility proxy the ATR alone
// does not capture when the high/low range is unusually narrow.
func (v *VolatilityMonitor) ReturnStdDev() (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.candles) < 3 {
		return 0, false
	}
	returns := make([]float64, 0, len(v.candles)-1)
	for i := 1; i < len(v.candles); i++ {
		prev := v.candles[i-1].Close
		cur := v.candles[i].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	if len(returns) < 2 {
		return 0, false
	}
	return stat.StdDev(returns, nil), true
}
