package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/purefinance/mmb/internal/apperrors"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/telemetry"
)

// ExchangeClient is the subset of the exchange adapter surface the lifecycle
// manager drives. It is defined here, not in internal/exchange, so this
// package does not depend downward on a concrete adapter implementation.
type ExchangeClient interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (ExchangeAck, error)
	CancelOrder(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error
}

// CreateOrderRequest is what the manager sends an exchange adapter.
type CreateOrderRequest struct {
	ClientOrderID string
	MarketID      market.MarketID
	Side          Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
}

// ExchangeAck is the exchange's synchronous response to a create request.
type ExchangeAck struct {
	ExchangeOrderID string
	Accepted        bool
	RejectReason    RejectReason
}

// StateStore receives a snapshot of every order change for archiving. The
// engine never reads these snapshots back, so they do not restore orders
// after a restart. Implementations live in internal/archive.
type StateStore interface {
	SaveOrder(ctx context.Context, o *Order) error
}

// Manager owns every order's lifecycle for the markets it is given,
// serializing all mutation through one manager-wide lock so concurrent strategy
// ticks and exchange event ingestion never race on the same order.
type Manager struct {
	mu      sync.RWMutex
	orders  map[string]*Order // keyed by ClientOrderID
	byExch  map[string]string // ExchangeOrderID -> ClientOrderID
	markets map[market.MarketID][]string

	client ExchangeClient
	store  StateStore
	logger logging.Logger

	retention time.Duration

	tracer        trace.Tracer
	placedCounter metric.Int64Counter
	rejectCounter metric.Int64Counter
	fillCounter   metric.Int64Counter
}

// NewManager builds a Manager. retention controls how long a terminal order
// is kept in memory before Prune removes it.
func NewManager(client ExchangeClient, store StateStore, logger logging.Logger, retention time.Duration) *Manager {
	meter := telemetry.GetMeter("lifecycle")
	placed, _ := meter.Int64Counter(telemetry.MetricOrdersPlacedTotal)
	rejected, _ := meter.Int64Counter(telemetry.MetricOrdersRejectedTotal)
	fills, _ := meter.Int64Counter(telemetry.MetricFillsTotal)

	return &Manager{
		orders:        make(map[string]*Order),
		byExch:        make(map[string]string),
		markets:       make(map[market.MarketID][]string),
		client:        client,
		store:         store,
		logger:        logger,
		retention:     retention,
		tracer:        telemetry.GetTracer("lifecycle"),
		placedCounter: placed,
		rejectCounter: rejected,
		fillCounter:   fills,
	}
}

// RequestCreate submits a new order. It generates a timestamp-prefixed
// client_order_id (so a restart can recognize its own orders by prefix even
// though ids are not persisted across restarts), records the order as
// Creating, and only transitions it to Created/Rejected after the exchange
// acknowledges — mirroring the save-before-mutate discipline the rest of the
// engine uses for crash safety: the pre-ack Creating record is persisted
// first, so a crash mid-request leaves a recoverable trace instead of a
// silently lost intent.
func (m *Manager) RequestCreate(ctx context.Context, rules market.Rules, marketID market.MarketID, bucketID string, side Side, price, amount decimal.Decimal) (*Order, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.RequestCreate")
	defer span.End()

	if err := rules.Validate(price, amount); err != nil {
		return nil, err
	}

	clientOrderID := fmt.Sprintf("mmb-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
	now := time.Now()
	o := &Order{
		ClientOrderID: clientOrderID,
		MarketID:      marketID,
		BucketID:      bucketID,
		Side:          side,
		Price:         price,
		Amount:        amount,
		State:         StateCreating,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	m.mu.Lock()
	m.orders[clientOrderID] = o
	m.markets[marketID] = append(m.markets[marketID], clientOrderID)
	m.mu.Unlock()

	if err := m.persist(ctx, o); err != nil {
		return o.clone(), fmt.Errorf("persist creating order: %w", err)
	}

	ack, err := m.client.CreateOrder(ctx, CreateOrderRequest{
		ClientOrderID: clientOrderID,
		MarketID:      marketID,
		Side:          side,
		Price:         price,
		Amount:        amount,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil || !ack.Accepted {
		o.State = StateRejected
		o.UpdatedAt = time.Now()
		o.TerminalAt = o.UpdatedAt
		if ack.RejectReason != RejectReasonNone {
			o.RejectReason = ack.RejectReason
		} else {
			o.RejectReason = RejectReasonExchangeRejected
		}
		m.rejectCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("market", marketID.String())))
		_ = m.persistLocked(ctx, o)
		if err != nil {
			return o.clone(), err
		}
		return o.clone(), apperrors.ErrOrderRejected
	}

	o.ExchangeOrderID = ack.ExchangeOrderID
	o.State = StateCreated
	o.UpdatedAt = time.Now()
	m.byExch[ack.ExchangeOrderID] = clientOrderID
	m.placedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("market", marketID.String())))
	if err := m.persistLocked(ctx, o); err != nil {
		m.logger.Warn("failed to persist created order", "client_order_id", clientOrderID, "error", err)
	}
	return o.clone(), nil
}

// RequestCancel transitions an order to Cancelling and forwards the cancel
// to the exchange. The terminal Cancelled transition happens when the
// exchange's cancel confirmation arrives via IngestExchangeEvent, not here,
// since the exchange may fill the order before the cancel lands.
func (m *Manager) RequestCancel(ctx context.Context, clientOrderID string) error {
	m.mu.Lock()
	o, ok := m.orders[clientOrderID]
	if !ok {
		m.mu.Unlock()
		return apperrors.ErrOrderNotFound
	}
	if o.State.IsTerminal() {
		m.mu.Unlock()
		return nil
	}
	o.State = StateCancelling
	o.UpdatedAt = time.Now()
	exchOrderID := o.ExchangeOrderID
	marketID := o.MarketID
	m.mu.Unlock()

	if err := m.persist(ctx, o); err != nil {
		return fmt.Errorf("persist cancelling order: %w", err)
	}

	return m.client.CancelOrder(ctx, marketID, exchOrderID)
}

// ExchangeEvent is a normalized update from an exchange's user-data stream:
// an order state change, a fill, or both. NewState is a pointer so an event
// can carry a fill with no state opinion (nil) or explicitly force a state,
// including StateUnknown, without the zero value being ambiguous between
// the two.
type ExchangeEvent struct {
	ExchangeOrderID string
	ClientOrderID   string
	NewState        *State
	Fill            *Fill
	Timestamp       time.Time
}

// IngestExchangeEvent applies an exchange-reported change to the matching
// local order. Unknown order ids (an event for an order this manager never
// created, e.g. post-restart before reconciliation) are logged and dropped
// rather than erroring, since they are expected during the startup window.
func (m *Manager) IngestExchangeEvent(ctx context.Context, ev ExchangeEvent) error {
	m.mu.Lock()
	clientOrderID := ev.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = m.byExch[ev.ExchangeOrderID]
	}
	o, ok := m.orders[clientOrderID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("exchange event for unknown order", "exchange_order_id", ev.ExchangeOrderID)
		return nil
	}

	if o.State.IsTerminal() {
		m.mu.Unlock()
		m.logger.Warn("exchange event for order already in a terminal state, dropping",
			"client_order_id", clientOrderID, "state", o.State.String())
		return nil
	}

	if ev.Fill != nil {
		switch {
		case o.hasFill(ev.Fill.FillID):
			m.logger.Warn("duplicate fill trade_id, dropping",
				"client_order_id", clientOrderID, "fill_id", ev.Fill.FillID)
		case o.FilledAmount.Add(ev.Fill.Amount).GreaterThan(o.Amount):
			m.logger.Warn("fill would overfill order, dropping",
				"client_order_id", clientOrderID, "fill_id", ev.Fill.FillID,
				"filled_amount", o.FilledAmount.String(), "fill_amount", ev.Fill.Amount.String(), "order_amount", o.Amount.String())
		default:
			o.Fills = append(o.Fills, *ev.Fill)
			o.FilledAmount = o.FilledAmount.Add(ev.Fill.Amount)
			o.recordFill(ev.Fill.FillID)
			m.fillCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("market", o.MarketID.String())))
		}
	}

	next := o.State
	switch {
	case ev.NewState != nil:
		next = *ev.NewState
	case o.FilledAmount.GreaterThan(decimal.Zero) && o.FilledAmount.LessThan(o.Amount):
		next = StatePartiallyFilled
	case o.FilledAmount.GreaterThanOrEqual(o.Amount) && o.Amount.GreaterThan(decimal.Zero):
		next = StateFilled
	}
	if next != o.State {
		if !isValidTransition(o.State, next) {
			m.logger.Warn("invalid state transition, dropping",
				"client_order_id", clientOrderID, "from", o.State.String(), "to", next.String())
		} else {
			o.State = next
		}
	}
	o.UpdatedAt = ev.Timestamp
	if o.State.IsTerminal() {
		o.TerminalAt = ev.Timestamp
	}
	snapshot := o.clone()
	m.mu.Unlock()

	return m.persist(ctx, snapshot)
}

// Snapshot returns a copy of one order's current state.
func (m *Manager) Snapshot(clientOrderID string) (*Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[clientOrderID]
	if !ok {
		return nil, false
	}
	return o.clone(), true
}

// OpenOrders returns every non-terminal order for a market.
func (m *Manager) OpenOrders(marketID market.MarketID) []*Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Order
	for _, id := range m.markets[marketID] {
		if o, ok := m.orders[id]; ok && !o.State.IsTerminal() {
			out = append(out, o.clone())
		}
	}
	return out
}

// ActiveOrderCount returns the number of non-terminal orders across every
// market this manager tracks, surfaced on the control-plane's /stats route.
func (m *Manager) ActiveOrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, o := range m.orders {
		if !o.State.IsTerminal() {
			count++
		}
	}
	return count
}

// Prune removes terminal orders older than retention from memory. It does
// not touch archived history; the archive sink already has a durable copy
// of every terminal transition.
func (m *Manager) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, o := range m.orders {
		if o.State.IsTerminal() && now.Sub(o.TerminalAt) > m.retention {
			delete(m.orders, id)
			delete(m.byExch, o.ExchangeOrderID)
			removed++
		}
	}
	return removed
}

func (m *Manager) persist(ctx context.Context, o *Order) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveOrder(ctx, o.clone())
}

// persistLocked is called while m.mu is held; it must not reacquire the lock.
func (m *Manager) persistLocked(ctx context.Context, o *Order) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveOrder(ctx, o.clone())
}
