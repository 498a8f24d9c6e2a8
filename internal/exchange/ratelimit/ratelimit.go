// Package ratelimit provides per-endpoint-class token bucket limiting so one
// burst of order placements cannot starve the market-data polling path's
// rate budget on the same exchange connection.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Class distinguishes endpoint categories an exchange rate-limits
// separately, e.g. Binance's order-placement weight vs. general request weight.
type Class string

const (
	ClassOrder      Class = "order"
	ClassMarketData Class = "market_data"
	ClassAccount    Class = "account"
)

// Limiter holds one token bucket per Class for a single exchange connection.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[Class]*rate.Limiter
}

// Budget configures one class's rate and burst.
type Budget struct {
	PerSecond float64
	Burst     int
}

// New builds a Limiter from a per-class budget map.
func New(budgets map[Class]Budget) *Limiter {
	buckets := make(map[Class]*rate.Limiter, len(budgets))
	for class, b := range budgets {
		buckets[class] = rate.NewLimiter(rate.Limit(b.PerSecond), b.Burst)
	}
	return &Limiter{buckets: buckets}
}

// Wait blocks until class has budget for one more request, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, class Class) error {
	l.mu.Lock()
	b, ok := l.buckets[class]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Wait(ctx)
}

// Allow reports whether class currently has budget, without blocking or
// consuming a token if it doesn't.
func (l *Limiter) Allow(class Class) bool {
	l.mu.Lock()
	b, ok := l.buckets[class]
	l.mu.Unlock()
	if !ok {
		return true
	}
	return b.Allow()
}
