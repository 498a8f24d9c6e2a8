// Package orderbook maintains a local replica of an exchange's order book
// from a snapshot plus a stream of incremental updates, detecting sequence
// gaps and crossed books and triggering a resync when the replica can no
// longer be trusted.
package orderbook

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/telemetry"
)

// Level is one price level: a price and the aggregate amount resting there.
// An amount of zero means "remove this level" when applied as a delta.
type Level struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Update is one incremental order book message from the exchange stream.
// FirstUpdateID and FinalUpdateID bound the range of internal exchange
// sequence numbers this update represents, used for gap detection exactly
// the way a depth-diff stream documents it.
type Update struct {
	MarketID      market.MarketID
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []Level
	Asks          []Level
	Timestamp     time.Time
}

// Snapshot is a full order book snapshot, used both for the initial seed and
// for resync after a detected gap.
type Snapshot struct {
	MarketID  market.MarketID
	UpdateID  int64
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// side holds one side of the book as a price->amount map plus a cached
// sorted slice, rebuilt lazily on read.
type side struct {
	levels map[string]Level
	sorted []Level
	dirty  bool
	desc   bool // true for bids (best = highest), false for asks (best = lowest)
}

func newSide(desc bool) *side {
	return &side{levels: make(map[string]Level), desc: desc}
}

func (s *side) apply(lv Level) {
	key := lv.Price.String()
	if lv.Amount.IsZero() {
		delete(s.levels, key)
	} else {
		s.levels[key] = lv
	}
	s.dirty = true
}

func (s *side) reset(lvs []Level) {
	s.levels = make(map[string]Level, len(lvs))
	for _, lv := range lvs {
		if !lv.Amount.IsZero() {
			s.levels[lv.Price.String()] = lv
		}
	}
	s.dirty = true
}

func (s *side) rebuild() {
	if !s.dirty {
		return
	}
	s.sorted = s.sorted[:0]
	for _, lv := range s.levels {
		s.sorted = append(s.sorted, lv)
	}
	sort.Slice(s.sorted, func(i, j int) bool {
		if s.desc {
			return s.sorted[i].Price.GreaterThan(s.sorted[j].Price)
		}
		return s.sorted[i].Price.LessThan(s.sorted[j].Price)
	})
	s.dirty = false
}

func (s *side) best() (Level, bool) {
	s.rebuild()
	if len(s.sorted) == 0 {
		return Level{}, false
	}
	return s.sorted[0], true
}

func (s *side) top(n int) []Level {
	s.rebuild()
	if n > len(s.sorted) {
		n = len(s.sorted)
	}
	out := make([]Level, n)
	copy(out, s.sorted[:n])
	return out
}

// Replica is a single market's locally-maintained order book, safe for
// concurrent readers and a single update-applying writer per market.
//
// Gap handling follows the same shape as a depth-diff stream reconciliation:
// an update is only applied once a snapshot has been seeded, updates whose
// range is entirely behind the snapshot's update id are discarded as stale,
// and an update whose FirstUpdateID does not immediately follow the last
// applied FinalUpdateID (+1) opens a gap and marks the replica as needing
// resync rather than silently drifting.
type Replica struct {
	mu sync.RWMutex

	marketID      market.MarketID
	bids          *side
	asks          *side
	lastUpdateID  int64
	seeded        bool
	needsResync   bool
	lastAppliedAt time.Time

	onGap func(marketID market.MarketID, expected, got int64)

	gapsTotal    metric.Int64Counter
	resyncsTotal metric.Int64Counter
}

// New creates an unseeded replica for marketID. onGap, if non-nil, is called
// whenever a sequence gap is detected, before needsResync is set; callers
// typically use it to log the divergence and schedule a resync fetch. Gap and
// resync counts are always recorded as metrics regardless of onGap.
func New(marketID market.MarketID, onGap func(marketID market.MarketID, expected, got int64)) *Replica {
	meter := telemetry.GetMeter("orderbook")
	gaps, _ := meter.Int64Counter(telemetry.MetricOrderBookGapsTotal)
	resyncs, _ := meter.Int64Counter(telemetry.MetricOrderBookResyncsTotal)
	return &Replica{
		marketID:     marketID,
		bids:         newSide(true),
		asks:         newSide(false),
		onGap:        onGap,
		gapsTotal:    gaps,
		resyncsTotal: resyncs,
	}
}

// ApplySnapshot seeds or re-seeds the replica from a full snapshot. This is
// the only path that can clear needsResync.
func (r *Replica) ApplySnapshot(snap Snapshot) {
	r.mu.Lock()
	wasResyncing := r.needsResync
	r.bids.reset(snap.Bids)
	r.asks.reset(snap.Asks)
	r.lastUpdateID = snap.UpdateID
	r.seeded = true
	r.needsResync = false
	r.lastAppliedAt = snap.Timestamp
	r.mu.Unlock()

	if wasResyncing {
		r.resyncsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("market", r.marketID.String())))
	}
}

// ApplyUpdate merges an incremental update into the replica. It returns
// false when the update is stale (entirely behind the current snapshot, and
// in that case never mutates book state), when a sequence gap is detected
// (ditto), or when the merged result leaves the book crossed (top bid at or
// above top ask) — a state no healthy exchange book reaches, and which can
// only be noticed after merging since it depends on the post-merge top of
// book. In every needsResync case the caller should fetch a fresh snapshot
// and call ApplySnapshot before trusting the book again.
func (r *Replica) ApplyUpdate(u Update) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.seeded {
		return false
	}
	if u.FinalUpdateID <= r.lastUpdateID {
		// Entirely stale: the snapshot already covers this range.
		return false
	}
	if r.needsResync {
		return false
	}
	if u.FirstUpdateID > r.lastUpdateID+1 {
		if r.onGap != nil {
			r.onGap(r.marketID, r.lastUpdateID+1, u.FirstUpdateID)
		}
		r.needsResync = true
		r.gapsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("market", r.marketID.String())))
		return false
	}

	for _, lv := range u.Bids {
		r.bids.apply(lv)
	}
	for _, lv := range u.Asks {
		r.asks.apply(lv)
	}
	r.lastUpdateID = u.FinalUpdateID
	r.lastAppliedAt = u.Timestamp

	if bestBid, bok := r.bids.best(); bok {
		if bestAsk, aok := r.asks.best(); aok && bestBid.Price.GreaterThanOrEqual(bestAsk.Price) {
			r.needsResync = true
			r.gapsTotal.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("market", r.marketID.String()),
				attribute.String("reason", "crossed")))
			return false
		}
	}
	return true
}

// NeedsResync reports whether a gap or a crossed book was detected and no
// snapshot has repaired it yet.
func (r *Replica) NeedsResync() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.needsResync
}

// BestBidAsk returns the top of book on both sides. ok is false if either
// side is empty (e.g. immediately after seeding a thin snapshot).
func (r *Replica) BestBidAsk() (bid, ask Level, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, bok := r.bids.best()
	a, aok := r.asks.best()
	return b, a, bok && aok
}

// IsCrossed reports whether the best bid is at or above the best ask, which
// never happens on a healthy exchange order book and always indicates the
// replica has diverged from truth (a missed update, or a resync mid-merge).
func (r *Replica) IsCrossed() bool {
	bid, ask, ok := r.BestBidAsk()
	if !ok {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// MidPrice returns (bid+ask)/2, or false if either side is empty.
func (r *Replica) MidPrice() (decimal.Decimal, bool) {
	bid, ask, ok := r.BestBidAsk()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// TopN returns the top n levels of each side, best-first.
func (r *Replica) TopN(n int) (bids, asks []Level) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bids.top(n), r.asks.top(n)
}

// IsStale reports whether no update has been applied within maxAge.
func (r *Replica) IsStale(maxAge time.Duration, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.seeded {
		return true
	}
	return now.Sub(r.lastAppliedAt) > maxAge
}
