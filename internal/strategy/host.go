package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/purefinance/mmb/internal/ledger"
	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/orderbook"
	"github.com/purefinance/mmb/internal/risk"
	"github.com/purefinance/mmb/internal/telemetry"
	"github.com/purefinance/mmb/pkg/concurrency"
)

// MarketAssignment binds one strategy instance to one market and bucket,
// plus the per-bucket circuit breaker that can halt it independently of
// every other assignment on the same exchange.
type MarketAssignment struct {
	MarketID MarketOrBucket
	Strategy Strategy
	Breaker  *risk.CircuitBreaker

	// Volatility and MaxATR are optional: when Volatility is set, the host
	// pushes a synthetic candle sampled from the book's best bid/ask each
	// tick and, once the monitor has warmed up, passes its ATR to the
	// strategy as Context.ATR. When MaxATR is also positive, the host skips
	// placing new orders entirely for any tick where the ATR exceeds it — the same
	// suppress-new-placements-but-keep-existing-orders treatment as a
	// tripped circuit breaker, gated on realized volatility instead of PnL.
	Volatility *risk.VolatilityMonitor
	MaxATR     decimal.Decimal
}

// MarketOrBucket names the market a strategy trades and the bucket it
// reserves balance under. Kept as a small value type rather than reusing
// market.MarketID directly so a future multi-bucket-per-market assignment
// has somewhere to grow without another interface change.
type MarketOrBucket struct {
	Market   market.MarketID
	BucketID string
}

// Host runs every assigned strategy's tick loop on its own interval,
// dispatching each tick's work onto a bounded worker pool so a slow
// strategy computation cannot stall ticks for unrelated markets, and
// diffing the strategy's desired orders against live ones through the
// lifecycle manager.
type Host struct {
	manager *lifecycle.Manager
	books   map[market.MarketID]*orderbook.Replica
	ledger  *ledger.Ledger
	pool    *concurrency.Pool
	logger  logging.Logger

	mu          sync.RWMutex
	assignments []MarketAssignment

	tickLatency metric.Float64Histogram
}

// NewHost builds a Host.
func NewHost(manager *lifecycle.Manager, books map[market.MarketID]*orderbook.Replica, led *ledger.Ledger, pool *concurrency.Pool, logger logging.Logger) *Host {
	meter := telemetry.GetMeter("strategy")
	latency, _ := meter.Float64Histogram(telemetry.MetricStrategyTickLatency)
	return &Host{
		manager:     manager,
		books:       books,
		ledger:      led,
		pool:        pool,
		logger:      logger,
		tickLatency: latency,
	}
}

// Assign adds a strategy assignment that Run will begin ticking.
func (h *Host) Assign(a MarketAssignment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.assignments = append(h.assignments, a)
}

// Run ticks every assignment on its own ticker until ctx is canceled.
// Each tick runs on the worker pool. If a market's tick computation is
// still running when the next interval fires, that interval is skipped
// rather than running two ticks for the same market concurrently, which
// would let two overlapping computations race on the same orders.
func (h *Host) Run(ctx context.Context, tickInterval time.Duration, rulesFor func(market.MarketID) (market.Rules, bool)) error {
	h.mu.RLock()
	assignments := append([]MarketAssignment(nil), h.assignments...)
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, a := range assignments {
		wg.Add(1)
		go func(a MarketAssignment) {
			defer wg.Done()
			h.tickLoop(ctx, a, tickInterval, rulesFor)
		}(a)
	}
	wg.Wait()
	return ctx.Err()
}

func (h *Host) tickLoop(ctx context.Context, a MarketAssignment, interval time.Duration, rulesFor func(market.MarketID) (market.Rules, bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var inFlight sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.Breaker != nil && a.Breaker.IsTripped() {
				continue
			}
			if !inFlight.TryLock() {
				continue // previous tick still computing; skip this interval
			}
			h.pool.Submit(func() {
				defer inFlight.Unlock()
				h.runOneTick(ctx, a, rulesFor)
			})
		}
	}
}

func (h *Host) runOneTick(ctx context.Context, a MarketAssignment, rulesFor func(market.MarketID) (market.Rules, bool)) {
	start := time.Now()
	defer func() {
		h.tickLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("market", a.MarketID.Market.String())))
	}()

	rules, ok := rulesFor(a.MarketID.Market)
	if !ok {
		h.logger.Warn("no rules for market, skipping tick", "market", a.MarketID.Market.String())
		return
	}
	book, ok := h.books[a.MarketID.Market]
	if !ok || book.NeedsResync() {
		return
	}

	var atr decimal.Decimal
	if a.Volatility != nil {
		if bestBid, bestAsk, ok := book.BestBidAsk(); ok {
			bid, ask := bestBid.Price, bestAsk.Price
			mid := bid.Add(ask).Div(decimal.NewFromInt(2))
			bidF, _ := bid.Float64()
			askF, _ := ask.Float64()
			midF, _ := mid.Float64()
			a.Volatility.Push(risk.Candle{High: askF, Low: bidF, Close: midF})
		}
		if reading, ok := a.Volatility.ATR(); ok {
			atr = reading
			if a.MaxATR.IsPositive() && atr.GreaterThan(a.MaxATR) {
				h.logger.Warn("volatility above threshold, skipping tick", "market", a.MarketID.Market.String(), "atr", atr.String())
				return
			}
		}
	}

	tctx := Context{
		MarketID:   a.MarketID.Market,
		BucketID:   a.MarketID.BucketID,
		Rules:      rules,
		Book:       book,
		OpenOrders: h.manager.OpenOrders(a.MarketID.Market),
		ATR:        atr,
	}

	actions, err := a.Strategy.CalculateActions(ctx, tctx)
	if err != nil {
		h.logger.Error("strategy tick failed", "market", a.MarketID.Market.String(), "strategy", a.Strategy.Name(), "error", err)
		return
	}

	for _, act := range actions {
		switch act.Kind {
		case ActionPlace:
			if _, err := h.manager.RequestCreate(ctx, rules, a.MarketID.Market, a.MarketID.BucketID, act.Side, act.Price, act.Amount); err != nil {
				h.logger.Warn("order placement failed", "market", a.MarketID.Market.String(), "error", err)
			}
		case ActionCancel:
			if err := h.manager.RequestCancel(ctx, act.ClientOrderID); err != nil {
				h.logger.Warn("order cancel failed", "client_order_id", act.ClientOrderID, "error", err)
			}
		case ActionKeep:
			// no-op
		}
	}
}
