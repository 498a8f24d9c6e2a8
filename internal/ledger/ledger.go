// Package ledger tracks exchange balances and the reservations strategies
// hold against them, so two strategy buckets competing for the same
// currency on the same exchange can never double-spend it.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/market"
)

// Key identifies one (exchange, currency) balance.
type Key struct {
	Exchange market.ExchangeID
	Currency market.Currency
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Exchange, k.Currency)
}

// Balance is one currency's free and reserved amounts on one exchange.
type Balance struct {
	Free     decimal.Decimal
	Reserved decimal.Decimal
}

// Total is Free+Reserved: the free amount last reported by the exchange
// plus what the engine itself holds in reservations.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Reserved)
}

// reservation is one strategy bucket's hold against a balance.
type reservation struct {
	bucketID string
	amount   decimal.Decimal
}

type entry struct {
	mu           sync.Mutex
	balance      Balance
	reservations map[string]decimal.Decimal // bucketID -> amount held
	allocations  map[string]decimal.Decimal // bucketID -> cap; unset = unconstrained by bucket
}

// Ledger is the engine's single source of truth for exchange balances and
// strategy-bucket reservations. Every mutation locks one (exchange,
// currency) entry at a time and never holds two entry locks at once, so two
// strategies reserving across two currencies never deadlock against each
// other.
type Ledger struct {
	mu      sync.RWMutex
	entries map[Key]*entry
}

// New builds an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[Key]*entry)}
}

func (l *Ledger) getOrCreate(key Key) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e
	}
	e = &entry{reservations: make(map[string]decimal.Decimal)}
	l.entries[key] = e
	return e
}

// SetBalance installs the exchange-reported balance for a key, typically
// called after an account snapshot refresh. It does not disturb existing
// reservations; Free is taken as reported, independent of what is reserved,
// since the exchange's free/locked split and the engine's bucket
// reservations are tracked separately and reconciled by the caller.
func (l *Ledger) SetBalance(key Key, free decimal.Decimal) {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance.Free = free
}

// Get returns a snapshot of one key's balance.
func (l *Ledger) Get(key Key) Balance {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// SetAllocation caps how much of key bucketID may reserve at once, isolating
// one strategy's capital from another sharing the same exchange balance.
// Reserve enforces this cap in addition to the global free check; a bucket
// with no allocation set is constrained only by the balance's global free
// amount, same as before allocations existed.
func (l *Ledger) SetAllocation(key Key, bucketID string, amount decimal.Decimal) {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.allocations == nil {
		e.allocations = make(map[string]decimal.Decimal)
	}
	e.allocations[bucketID] = amount
}

// BucketAllocation returns bucketID's configured cap on key, and whether one
// has been set at all.
func (l *Ledger) BucketAllocation(key Key, bucketID string) (decimal.Decimal, bool) {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	alloc, ok := e.allocations[bucketID]
	return alloc, ok
}

// Reserve attempts to hold amount of key's free balance for bucketID. It
// fails without mutating state if the free balance cannot cover it, or if
// bucketID has a configured allocation and this request would push its
// holding past that allocation — the latter keeps one bucket from consuming
// capital another bucket's allocation reserves it, even while both draw on
// the same (exchange, currency) balance.
func (l *Ledger) Reserve(key Key, bucketID string, amount decimal.Decimal) error {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if alloc, ok := e.allocations[bucketID]; ok {
		held := e.reservations[bucketID]
		if held.Add(amount).GreaterThan(alloc) {
			return fmt.Errorf("%w: bucket %s allocation %s, holds %s, requested %s", ErrAllocationExceeded, bucketID, alloc, held, amount)
		}
	}
	if e.balance.Free.LessThan(amount) {
		return fmt.Errorf("%w: key %s free %s < requested %s", ErrInsufficientBalance, key, e.balance.Free, amount)
	}
	e.balance.Free = e.balance.Free.Sub(amount)
	e.balance.Reserved = e.balance.Reserved.Add(amount)
	e.reservations[bucketID] = e.reservations[bucketID].Add(amount)
	return nil
}

// Release returns amount from bucketID's reservation back to the free
// balance, e.g. when an order is canceled or rejected.
func (l *Ledger) Release(key Key, bucketID string, amount decimal.Decimal) error {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	held := e.reservations[bucketID]
	if held.LessThan(amount) {
		return fmt.Errorf("%w: bucket %s holds %s, asked to release %s", ErrOverRelease, bucketID, held, amount)
	}
	e.reservations[bucketID] = held.Sub(amount)
	e.balance.Reserved = e.balance.Reserved.Sub(amount)
	e.balance.Free = e.balance.Free.Add(amount)
	return nil
}

// Settle consumes amount from bucketID's reservation permanently (it left
// the account via a fill or fee) without returning it to free balance.
func (l *Ledger) Settle(key Key, bucketID string, amount decimal.Decimal) error {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	held := e.reservations[bucketID]
	if held.LessThan(amount) {
		return fmt.Errorf("%w: bucket %s holds %s, asked to settle %s", ErrOverRelease, bucketID, held, amount)
	}
	e.reservations[bucketID] = held.Sub(amount)
	e.balance.Reserved = e.balance.Reserved.Sub(amount)
	return nil
}

// ReserveMulti reserves across multiple keys one at a time, in sorted key
// order, releasing the reservations already made if a later key fails. It
// is not atomic: each key is locked only for its own Reserve call, so other
// callers can observe the earlier keys reserved before a later one fails.
func (l *Ledger) ReserveMulti(bucketID string, wants map[Key]decimal.Decimal) error {
	keys := make([]Key, 0, len(wants))
	for k := range wants {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	reserved := make([]Key, 0, len(keys))
	for _, k := range keys {
		if err := l.Reserve(k, bucketID, wants[k]); err != nil {
			for _, rk := range reserved {
				_ = l.Release(rk, bucketID, wants[rk])
			}
			return err
		}
		reserved = append(reserved, k)
	}
	return nil
}

// BucketReservation returns how much of key a given bucket currently holds.
func (l *Ledger) BucketReservation(key Key, bucketID string) decimal.Decimal {
	e := l.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reservations[bucketID]
}
