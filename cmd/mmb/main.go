// Command mmb is the engine's entrypoint: it loads configuration, wires
// logging, telemetry, exchange connections, the ledger, lifecycle manager,
// strategy host, and control plane, and hands them to the supervisor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/archive"
	"github.com/purefinance/mmb/internal/config"
	"github.com/purefinance/mmb/internal/control"
	"github.com/purefinance/mmb/internal/exchange/mock"
	"github.com/purefinance/mmb/internal/exchange/ratelimit"
	"github.com/purefinance/mmb/internal/exchange/timesync"
	"github.com/purefinance/mmb/internal/ledger"
	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/orderbook"
	"github.com/purefinance/mmb/internal/risk"
	"github.com/purefinance/mmb/internal/strategy"
	"github.com/purefinance/mmb/internal/supervisor"
	"github.com/purefinance/mmb/internal/telemetry"
	"github.com/purefinance/mmb/pkg/concurrency"
)

func main() {
	configPath := flag.String("config", "mmb.toml", "path to the TOML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mmb: fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	led := ledger.New()
	pool := concurrency.NewPool(concurrency.PoolConfig{MaxWorkers: 8, MaxQueued: 256})

	var sink lifecycle.StateStore
	var archiveSink *archive.SQLiteSink
	if cfg.Archive.Enabled {
		archiveSink, err = archive.NewSQLiteSink(cfg.Archive.SQLitePath, func(ctx context.Context, rows []archive.Row) error {
			logger.Info("drained archive rows", "count", len(rows))
			return nil
		}, pool, logger)
		if err != nil {
			return fmt.Errorf("init archive sink: %w", err)
		}
		sink = archiveSink
	}

	registry := market.NewRegistry()
	books := make(map[market.MarketID]*orderbook.Replica)
	breakers := make(map[string]*risk.CircuitBreaker)

	// For every configured exchange this deployment only ships a mock
	// adapter by default; a real venue is wired by swapping in
	// internal/exchange/binance.New for the "binance" driver before startup.
	exchanges := map[market.ExchangeID]*mock.Exchange{}
	for _, exCfg := range cfg.Exchanges {
		_ = ratelimit.New(map[ratelimit.Class]ratelimit.Budget{
			ratelimit.ClassOrder:      {PerSecond: float64(exCfg.RateLimitPerSec), Burst: exCfg.RateLimitPerSec * 2},
			ratelimit.ClassMarketData: {PerSecond: float64(exCfg.RateLimitPerSec), Burst: exCfg.RateLimitPerSec * 2},
			ratelimit.ClassAccount:    {PerSecond: float64(exCfg.RateLimitPerSec), Burst: exCfg.RateLimitPerSec * 2},
		})
		exchanges[market.ExchangeID(exCfg.ID)] = mock.New()
	}

	primary := primaryExchange(exchanges)
	manager := lifecycle.NewManager(primary, sink, logger, 24*time.Hour)

	host := strategy.NewHost(manager, books, led, pool, logger)
	for _, mCfg := range cfg.Markets {
		marketID := market.MarketID{Exchange: market.ExchangeID(mCfg.Exchange), Symbol: market.Symbol(mCfg.Symbol)}
		books[marketID] = orderbook.New(marketID, func(id market.MarketID, expected, got int64) {
			logger.Warn("order book gap detected", "market", id.String(), "expected", expected, "got", got)
		})
		// Placeholder rules; a real deployment calls GetSymbolInfo against
		// the configured exchange adapter here before the host starts ticking.
		registry.Set(marketID, market.Rules{AmountDecimals: 8, TickSize: decimal.RequireFromString("0.01")})

		amount, err := decimal.NewFromString(mCfg.OrderAmount)
		if err != nil {
			return fmt.Errorf("market %s: invalid order_amount: %w", marketID.String(), err)
		}

		breaker := risk.NewCircuitBreaker(mCfg.BucketID, risk.Config{
			MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
			CooldownPeriod:       cfg.Risk.CooldownPeriod,
		}, logger)
		breakers[mCfg.BucketID] = breaker

		host.Assign(strategy.MarketAssignment{
			MarketID:   strategy.MarketOrBucket{Market: marketID, BucketID: mCfg.BucketID},
			Strategy:   &strategy.MVP{OrderAmount: amount, SpreadBps: mCfg.SpreadBps, ATRMultiplier: decimal.RequireFromString("0.1")},
			Breaker:    breaker,
			Volatility: risk.NewVolatilityMonitor(60, 14),
			MaxATR:     decimal.Zero, // unset: ATR still widens quotes, but no tick-skipping ceiling by default
		})
	}

	sup := supervisor.New(logger)
	sup.Add(supervisor.RunnerFunc(func(ctx context.Context) error {
		return host.Run(ctx, time.Second, registry.Get)
	}))

	stats := &statsProvider{manager: manager, breakers: breakers, pool: pool}
	ctx, cancel := context.WithCancel(context.Background())
	controlServer := control.NewServer(cfg, stats, logger, cancel)
	sup.Add(controlServer)

	if archiveSink != nil {
		sup.Add(supervisor.RunnerFunc(func(ctx context.Context) error {
			return archiveSink.Run(ctx, 5*time.Second, 100)
		}))
	}

	skewJob := timesync.New("primary", primary.ServerTime, 2*time.Second, logger)
	sup.Add(supervisor.RunnerFunc(func(ctx context.Context) error {
		return skewJob.Run(ctx, "*/5 * * * *")
	}))

	marketIDs := make([]market.MarketID, 0, len(books))
	for id := range books {
		marketIDs = append(marketIDs, id)
	}
	reconciler := lifecycle.NewReconciler(manager, primary, primary.CancelOrder, logger, 30*time.Second)
	sup.Add(supervisor.RunnerFunc(func(ctx context.Context) error {
		return reconciler.Run(ctx, marketIDs)
	}))

	// A validated on-disk edit triggers a graceful shutdown rather than an
	// in-place reload: this engine does not reconstruct exchange connections
	// and strategy assignments live, so the external process supervisor
	// (systemd, k8s) restarting mmb is what actually picks up the new file.
	sup.Add(supervisor.RunnerFunc(func(ctx context.Context) error {
		return config.Watch(ctx, configPath, func(*config.Config) {
			logger.Info("configuration file changed and validated, triggering reboot")
			cancel()
		}, func(err error) {
			logger.Warn("configuration file changed but failed validation, ignoring", "error", err)
		})
	}))

	defer func() {
		_ = providers.Shutdown(context.Background())
		if archiveSink != nil {
			_ = archiveSink.Close()
		}
	}()

	return sup.Run(ctx)
}

func primaryExchange(exchanges map[market.ExchangeID]*mock.Exchange) *mock.Exchange {
	for _, ex := range exchanges {
		return ex
	}
	return mock.New()
}

type statsProvider struct {
	manager  *lifecycle.Manager
	breakers map[string]*risk.CircuitBreaker
	pool     *concurrency.Pool
}

func (s *statsProvider) Stats() map[string]any {
	poolStats := s.pool.Stats()
	return map[string]any{
		"orders_active":  s.manager.ActiveOrderCount(),
		"bucket_count":   len(s.breakers),
		"pool_running":   poolStats.Running,
		"pool_submitted": poolStats.Submitted,
		"pool_completed": poolStats.Completed,
	}
}

func (s *statsProvider) CircuitBreakerStatuses() []risk.Status {
	out := make([]risk.Status, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b.GetStatus())
	}
	return out
}
