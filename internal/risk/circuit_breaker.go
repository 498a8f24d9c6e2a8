// Package risk implements the circuit breaker and volatility monitor that
// can halt a strategy bucket independently of the lifecycle reconciler's
// order-level divergence checks.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/logging"
)

// CircuitState is the breaker's two-state machine: Closed (trading allowed)
// or Open (trading halted until the cooldown elapses).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

func (s CircuitState) String() string {
	if s == CircuitOpen {
		return "open"
	}
	return "closed"
}

// Config bounds what trips the breaker for one bucket.
type Config struct {
	MaxConsecutiveLosses int
	MaxDrawdownAmount    decimal.Decimal
	MaxDrawdownPercent   decimal.Decimal
	CooldownPeriod       time.Duration
}

// Status is a read-only snapshot of a breaker's state, returned to the
// control-plane's /stats endpoint.
type Status struct {
	BucketID          string
	State             CircuitState
	Reason            string
	ConsecutiveLosses int
	Drawdown          decimal.Decimal
	TrippedAt         time.Time
}

// CircuitBreaker halts one strategy bucket's trading after it crosses a
// configured loss or drawdown threshold, and auto-resets to Closed once the
// cooldown period elapses, the same trip/cooldown/reset shape as a standard
// circuit breaker applied to PnL instead of call failures.
type CircuitBreaker struct {
	mu sync.Mutex

	bucketID string
	cfg      Config
	logger   logging.Logger

	state             CircuitState
	reason            string
	consecutiveLosses int
	peakEquity        decimal.Decimal
	currentEquity     decimal.Decimal
	trippedAt         time.Time
}

// NewCircuitBreaker builds a breaker for one strategy bucket.
func NewCircuitBreaker(bucketID string, cfg Config, logger logging.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		bucketID: bucketID,
		cfg:      cfg,
		logger:   logger,
		state:    CircuitClosed,
	}
}

// RecordTrade updates the breaker's loss-streak and drawdown tracking with
// the realized PnL of one closed trade, tripping the breaker if a threshold
// is crossed.
func (cb *CircuitBreaker) RecordTrade(realizedPnL decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.currentEquity = cb.currentEquity.Add(realizedPnL)
	if cb.currentEquity.GreaterThan(cb.peakEquity) {
		cb.peakEquity = cb.currentEquity
	}

	if realizedPnL.IsNegative() {
		cb.consecutiveLosses++
	} else {
		cb.consecutiveLosses = 0
	}

	cb.checkThresholds()
}

func (cb *CircuitBreaker) checkThresholds() {
	if cb.state == CircuitOpen {
		return
	}
	if cb.cfg.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.cfg.MaxConsecutiveLosses {
		cb.trip("max consecutive losses reached")
		return
	}
	drawdown := cb.peakEquity.Sub(cb.currentEquity)
	if cb.cfg.MaxDrawdownAmount.IsPositive() && drawdown.GreaterThanOrEqual(cb.cfg.MaxDrawdownAmount) {
		cb.trip("max drawdown amount reached")
		return
	}
	if cb.cfg.MaxDrawdownPercent.IsPositive() && cb.peakEquity.IsPositive() {
		pct := drawdown.Div(cb.peakEquity).Mul(decimal.NewFromInt(100))
		if pct.GreaterThanOrEqual(cb.cfg.MaxDrawdownPercent) {
			cb.trip("max drawdown percent reached")
		}
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.state = CircuitOpen
	cb.reason = reason
	cb.trippedAt = time.Now()
	cb.logger.Warn("circuit breaker tripped", "bucket_id", cb.bucketID, "reason", reason)
}

// Open trips the breaker directly for an externally-detected reason, e.g. a
// lifecycle reconciler position divergence.
func (cb *CircuitBreaker) Open(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trip(reason)
}

// IsTripped reports whether the breaker is currently open, auto-resetting to
// Closed first if the cooldown period has elapsed.
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && time.Since(cb.trippedAt) >= cb.cfg.CooldownPeriod {
		cb.state = CircuitClosed
		cb.reason = ""
		cb.consecutiveLosses = 0
		cb.logger.Info("circuit breaker cooldown elapsed, reset to closed", "bucket_id", cb.bucketID)
	}
	return cb.state == CircuitOpen
}

// Reset forces the breaker back to Closed, used by an operator's manual
// override through the control plane.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.reason = ""
	cb.consecutiveLosses = 0
}

// GetStatus returns a snapshot for observability.
func (cb *CircuitBreaker) GetStatus() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Status{
		BucketID:          cb.bucketID,
		State:             cb.state,
		Reason:            cb.reason,
		ConsecutiveLosses: cb.consecutiveLosses,
		Drawdown:          cb.peakEquity.Sub(cb.currentEquity),
		TrippedAt:         cb.trippedAt,
	}
}
