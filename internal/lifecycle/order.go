// Package lifecycle tracks orders from creation request through terminal
// state, reconciling the engine's local view against the exchange's.
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/market"
)

// Side is which direction an order trades.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// State is a position in the order lifecycle state machine.
//
//	Creating -> Created -> Active -> PartiallyFilled -> Filled
//	Creating -> Rejected
//	Created/Active/PartiallyFilled -> Cancelling -> Cancelled
//	Created/Active/PartiallyFilled -> Expired
//	any non-terminal -> Unknown (reconciliation could not determine state)
//	Unknown -> whatever non-Creating state the next exchange event reports
type State int

const (
	StateCreating State = iota
	StateCreated
	StateActive
	StatePartiallyFilled
	StateFilled
	StateCancelling
	StateCancelled
	StateRejected
	StateExpired
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StatePartiallyFilled:
		return "partially_filled"
	case StateFilled:
		return "filled"
	case StateCancelling:
		return "cancelling"
	case StateCancelled:
		return "cancelled"
	case StateRejected:
		return "rejected"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether this state accepts no further transitions;
// reconciliation never moves a terminal order, since it visits only open ones.
func (s State) IsTerminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected, StateExpired:
		return true
	default:
		return false
	}
}

// validTransitions enumerates every legal (current, next) pair. Beyond the
// diagram above it also admits fills that arrive without an intermediate
// Active (Created -> PartiallyFilled/Filled) and fills or expiry racing a
// cancel (Cancelling -> PartiallyFilled/Filled/Expired). A pair absent from
// this table is invalid and must be logged and dropped rather than applied.
var validTransitions = map[State]map[State]bool{
	StateCreating: {
		StateCreated:  true,
		StateRejected: true,
		StateUnknown:  true,
	},
	StateCreated: {
		StateActive:          true,
		StatePartiallyFilled: true,
		StateFilled:          true,
		StateCancelling:      true,
		StateExpired:         true,
		StateUnknown:         true,
	},
	StateActive: {
		StatePartiallyFilled: true,
		StateFilled:          true,
		StateCancelling:      true,
		StateExpired:         true,
		StateUnknown:         true,
	},
	StatePartiallyFilled: {
		StatePartiallyFilled: true,
		StateFilled:          true,
		StateCancelling:      true,
		StateExpired:         true,
		StateUnknown:         true,
	},
	StateCancelling: {
		StateCancelled:       true,
		StatePartiallyFilled: true,
		StateFilled:          true,
		StateExpired:         true,
		StateUnknown:         true,
	},
	StateUnknown: {
		StateCreated:         true,
		StateActive:          true,
		StatePartiallyFilled: true,
		StateFilled:          true,
		StateCancelling:      true,
		StateCancelled:       true,
		StateRejected:        true,
		StateExpired:         true,
	},
}

// isValidTransition reports whether next is a legal move out of current.
// Terminal states accept nothing further — invariant: exactly one transition
// into a terminal state, no state changes afterward — and re-asserting the
// same state is always allowed as a no-op.
func isValidTransition(current, next State) bool {
	if current.IsTerminal() {
		return false
	}
	if current == next {
		return true
	}
	return validTransitions[current][next]
}

// RejectReason classifies why the exchange refused a create_order request.
type RejectReason int

const (
	RejectReasonNone RejectReason = iota
	RejectReasonBelowMin
	RejectReasonInsufficientFunds
	RejectReasonInvalidParameter
	RejectReasonDuplicateClientID
	RejectReasonExchangeRejected
)

// Fill is one execution against an order.
type Fill struct {
	FillID       string
	Price        decimal.Decimal
	Amount       decimal.Decimal
	FeeCurrency  market.Currency
	FeeAmount    decimal.Decimal
	Timestamp    time.Time
}

// Order is the engine's local record of a single order's lifecycle.
type Order struct {
	ClientOrderID   string
	ExchangeOrderID string
	MarketID        market.MarketID
	BucketID        string
	Side            Side
	Price           decimal.Decimal
	Amount          decimal.Decimal
	FilledAmount    decimal.Decimal
	State           State
	RejectReason    RejectReason
	Fills           []Fill
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TerminalAt      time.Time

	// seenFillIDs dedups trade_id so the same exchange fill event applied
	// twice (a redelivered user-data-stream message, a reconciliation replay)
	// never double-counts FilledAmount. Unset for fills the exchange reports
	// without a trade id, which are never deduped.
	seenFillIDs map[string]struct{}
}

// RemainingAmount is the amount still open for execution.
func (o *Order) RemainingAmount() decimal.Decimal {
	return o.Amount.Sub(o.FilledAmount)
}

// hasFill reports whether fillID has already been applied to this order.
func (o *Order) hasFill(fillID string) bool {
	if fillID == "" {
		return false
	}
	_, ok := o.seenFillIDs[fillID]
	return ok
}

// recordFill marks fillID as applied.
func (o *Order) recordFill(fillID string) {
	if fillID == "" {
		return
	}
	if o.seenFillIDs == nil {
		o.seenFillIDs = make(map[string]struct{})
	}
	o.seenFillIDs[fillID] = struct{}{}
}

// clone returns a deep-enough copy for safe handoff outside the manager's lock.
func (o *Order) clone() *Order {
	cp := *o
	cp.Fills = append([]Fill(nil), o.Fills...)
	return &cp
}
