package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/telemetry"
)

// ExchangeOrderView is the minimal shape the reconciler needs from an
// exchange's "list open orders" response.
type ExchangeOrderView struct {
	ExchangeOrderID string
	ClientOrderID   string
	MarketID        market.MarketID
	State           State
}

// OrderLister is the capability the reconciler needs from an exchange
// adapter: the authoritative list of currently-open orders.
type OrderLister interface {
	GetOpenOrders(ctx context.Context, marketID market.MarketID) ([]ExchangeOrderView, error)
}

// Reconciler periodically compares the manager's local order view against
// the exchange's authoritative one and repairs divergence in both
// directions: a "ghost" order the engine thinks is open but the exchange has
// already terminated is marked Unknown locally (the next exchange event, if
// any, moves it on; absent one, it stays Unknown, and Prune, which removes
// only terminal orders, leaves it in place), and an order the exchange
// shows open that the engine has no record of (most likely a pre-restart
// order) is canceled, since the engine cannot attribute it to any strategy
// or bucket reservation.
type Reconciler struct {
	manager  *Manager
	lister   OrderLister
	cancel   func(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error
	logger   logging.Logger
	interval time.Duration

	divergenceCounter metric.Int64Counter
}

// NewReconciler builds a Reconciler. cancelFn is usually the exchange
// adapter's CancelOrder, injected separately from OrderLister so a test can
// supply a spy without implementing the whole interface.
func NewReconciler(manager *Manager, lister OrderLister, cancelFn func(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error, logger logging.Logger, interval time.Duration) *Reconciler {
	meter := telemetry.GetMeter("lifecycle")
	divergence, _ := meter.Int64Counter(telemetry.MetricReconcileDivergenceTotal)
	return &Reconciler{
		manager:           manager,
		lister:            lister,
		cancel:            cancelFn,
		logger:            logger,
		interval:          interval,
		divergenceCounter: divergence,
	}
}

// ReconcileOnce runs a single reconciliation pass for marketID.
func (r *Reconciler) ReconcileOnce(ctx context.Context, marketID market.MarketID) error {
	exchangeOrders, err := r.lister.GetOpenOrders(ctx, marketID)
	if err != nil {
		return err
	}
	exchangeByClientID := make(map[string]ExchangeOrderView, len(exchangeOrders))
	for _, eo := range exchangeOrders {
		exchangeByClientID[eo.ClientOrderID] = eo
	}

	localOpen := r.manager.OpenOrders(marketID)
	localByClientID := make(map[string]bool, len(localOpen))
	for _, o := range localOpen {
		localByClientID[o.ClientOrderID] = true
		if _, stillOpen := exchangeByClientID[o.ClientOrderID]; !stillOpen {
			r.logger.Warn("ghost order: local open, exchange has no record",
				"client_order_id", o.ClientOrderID, "market", marketID.String())
			r.divergenceCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("market", marketID.String()),
				attribute.String("direction", "local_only")))
			unknown := StateUnknown
			_ = r.manager.IngestExchangeEvent(ctx, ExchangeEvent{
				ClientOrderID: o.ClientOrderID,
				NewState:      &unknown,
				Timestamp:     time.Now(),
			})
		}
	}

	for clientOrderID, eo := range exchangeByClientID {
		if localByClientID[clientOrderID] {
			continue
		}
		r.logger.Warn("untracked exchange order: canceling",
			"client_order_id", clientOrderID, "exchange_order_id", eo.ExchangeOrderID, "market", marketID.String())
		r.divergenceCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("market", marketID.String()),
			attribute.String("direction", "exchange_only")))
		if err := r.cancel(ctx, marketID, eo.ExchangeOrderID); err != nil {
			r.logger.Error("failed to cancel untracked order", "exchange_order_id", eo.ExchangeOrderID, "error", err)
		}
	}

	return nil
}

// Run loops ReconcileOnce for every market in markets until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context, markets []market.MarketID) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, m := range markets {
				if err := r.ReconcileOnce(ctx, m); err != nil {
					r.logger.Error("reconcile failed", "market", m.String(), "error", err)
				}
			}
		}
	}
}
