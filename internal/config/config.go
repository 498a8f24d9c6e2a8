// Package config loads and validates the engine's TOML configuration:
// exchange connections, markets, strategy assignments, risk limits, and
// ambient concerns (logging, telemetry, control-plane, archive).
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the root configuration document.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Exchanges []ExchangeConfig `mapstructure:"exchanges"`
	Markets   []MarketConfig   `mapstructure:"markets"`
	Risk      RiskConfig       `mapstructure:"risk"`
	Archive   ArchiveConfig    `mapstructure:"archive"`
	Control   ControlConfig    `mapstructure:"control"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

// ExchangeConfig describes one credentialed exchange connection.
type ExchangeConfig struct {
	ID              string `mapstructure:"id"`
	Driver          string `mapstructure:"driver"` // "binance", "mock"
	APIKeyEnv       string `mapstructure:"api_key_env"`
	APISecretEnv    string `mapstructure:"api_secret_env"`
	BaseURL         string `mapstructure:"base_url"`
	WebSocketURL    string `mapstructure:"websocket_url"`
	RateLimitPerSec int    `mapstructure:"rate_limit_per_sec"`
}

// MarketConfig assigns a strategy to a market on an exchange.
type MarketConfig struct {
	Exchange       string `mapstructure:"exchange"`
	Symbol         string `mapstructure:"symbol"`
	Strategy       string `mapstructure:"strategy"`
	BucketID       string `mapstructure:"bucket_id"`
	OrderAmount    string `mapstructure:"order_amount"`
	SpreadBps      int64  `mapstructure:"spread_bps"`
	TickIntervalMs int64  `mapstructure:"tick_interval_ms"`
}

// RiskConfig holds global and per-bucket circuit breaker thresholds.
type RiskConfig struct {
	MaxConsecutiveLosses int           `mapstructure:"max_consecutive_losses"`
	MaxDrawdownPercent   string        `mapstructure:"max_drawdown_percent"`
	CooldownPeriod       time.Duration `mapstructure:"cooldown_period"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval"`
	PositionDivergencePct string       `mapstructure:"position_divergence_pct"`
}

// ArchiveConfig configures the durable outbox sink.
type ArchiveConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DrainWorkers int  `mapstructure:"drain_workers"`
}

// ControlConfig configures the HTTP control-plane adapter.
type ControlConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TelemetryConfig configures tracing/metrics export.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// ValidationError collects every configuration problem found, so operators
// see all mistakes at once instead of fixing one typo per run.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Issues, "; "))
}

// Load reads a TOML config file from path, expanding ${ENV_VAR} references,
// and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	expandConfigEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandConfigEnv expands ${VAR} references in string fields that commonly
// carry environment indirection (URLs, paths), mirroring the style of
// os.Expand-based expansion rather than requiring every field be an env ref.
func expandConfigEnv(cfg *Config) {
	cfg.Archive.SQLitePath = os.Expand(cfg.Archive.SQLitePath, os.Getenv)
	for i := range cfg.Exchanges {
		cfg.Exchanges[i].BaseURL = os.Expand(cfg.Exchanges[i].BaseURL, os.Getenv)
		cfg.Exchanges[i].WebSocketURL = os.Expand(cfg.Exchanges[i].WebSocketURL, os.Getenv)
	}
}

// Watch blocks, re-validating the config file on every on-disk change until
// ctx is canceled. A change that fails validation is logged and ignored, so a
// bad edit never takes effect; a change that validates triggers onReload,
// which the caller wires to a graceful shutdown so an external process
// supervisor (systemd, k8s) restarts the process and picks up the new file
// through the normal Load path — this engine does not attempt to reconstruct
// exchange connections and strategy assignments in place.
func Watch(ctx context.Context, path string, onReload func(*Config), onInvalid func(error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			onInvalid(fmt.Errorf("unmarshal config: %w", err))
			return
		}
		expandConfigEnv(&cfg)
		if err := cfg.Validate(); err != nil {
			onInvalid(err)
			return
		}
		onReload(&cfg)
	})
	v.WatchConfig()

	<-ctx.Done()
	return ctx.Err()
}

// Validate runs every section's validator and aggregates failures.
func (c *Config) Validate() error {
	var issues []string
	issues = append(issues, validateApp(c.App)...)
	issues = append(issues, validateExchanges(c.Exchanges)...)
	issues = append(issues, validateMarkets(c.Markets, c.Exchanges)...)
	issues = append(issues, validateRisk(c.Risk)...)
	issues = append(issues, validateControl(c.Control)...)

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateApp(a AppConfig) []string {
	var issues []string
	if a.Name == "" {
		issues = append(issues, "app.name is required")
	}
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		issues = append(issues, fmt.Sprintf("app.log_level %q is not one of debug/info/warn/error", a.LogLevel))
	}
	return issues
}

func validateExchanges(exs []ExchangeConfig) []string {
	var issues []string
	seen := map[string]bool{}
	for _, ex := range exs {
		if ex.ID == "" {
			issues = append(issues, "exchanges[].id is required")
			continue
		}
		if seen[ex.ID] {
			issues = append(issues, fmt.Sprintf("duplicate exchange id %q", ex.ID))
		}
		seen[ex.ID] = true
		if ex.Driver == "" {
			issues = append(issues, fmt.Sprintf("exchange %q: driver is required", ex.ID))
		}
		if ex.RateLimitPerSec <= 0 {
			issues = append(issues, fmt.Sprintf("exchange %q: rate_limit_per_sec must be positive", ex.ID))
		}
	}
	if len(exs) == 0 {
		issues = append(issues, "at least one exchange must be configured")
	}
	return issues
}

func validateMarkets(markets []MarketConfig, exs []ExchangeConfig) []string {
	var issues []string
	known := map[string]bool{}
	for _, ex := range exs {
		known[ex.ID] = true
	}
	for _, m := range markets {
		if !known[m.Exchange] {
			issues = append(issues, fmt.Sprintf("market %s/%s references unknown exchange %q", m.Exchange, m.Symbol, m.Exchange))
		}
		if m.Symbol == "" {
			issues = append(issues, "markets[].symbol is required")
		}
		if m.Strategy == "" {
			issues = append(issues, fmt.Sprintf("market %s/%s: strategy is required", m.Exchange, m.Symbol))
		}
		if m.TickIntervalMs <= 0 {
			issues = append(issues, fmt.Sprintf("market %s/%s: tick_interval_ms must be positive", m.Exchange, m.Symbol))
		}
	}
	return issues
}

func validateRisk(r RiskConfig) []string {
	var issues []string
	if r.MaxConsecutiveLosses <= 0 {
		issues = append(issues, "risk.max_consecutive_losses must be positive")
	}
	if r.ReconcileInterval <= 0 {
		issues = append(issues, "risk.reconcile_interval must be positive")
	}
	return issues
}

func validateControl(c ControlConfig) []string {
	var issues []string
	if c.ListenAddr == "" {
		issues = append(issues, "control.listen_addr is required")
	}
	return issues
}
