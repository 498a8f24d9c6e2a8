// Package binance is the one illustrative concrete exchange adapter,
// implementing exchange.Client against Binance's spot REST and WebSocket
// APIs via the adshao/go-binance/v2 SDK.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	binancesdk "github.com/adshao/go-binance/v2"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/purefinance/mmb/internal/exchange"
	"github.com/purefinance/mmb/internal/exchange/base"
	"github.com/purefinance/mmb/internal/exchange/ratelimit"
	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/market"
	"github.com/purefinance/mmb/internal/orderbook"
)

// Adapter implements exchange.Client for Binance spot.
type Adapter struct {
	id      market.ExchangeID
	sdk     *binancesdk.Client
	apiKey  string
	secret  string
	logger  logging.Logger
	limiter *ratelimit.Limiter

	// base carries the plumbing the go-binance SDK doesn't cover: the
	// listen-key keepalive endpoint. Everything else goes through the SDK,
	// which signs its own requests.
	base *base.Adapter
}

// New builds a Binance adapter. The SDK client performs order/market-data
// request signing internally, so only the listen-key keepalive endpoint
// (which the SDK does not wrap) goes through internal/exchange/base.
func New(id market.ExchangeID, apiKey, apiSecret string, logger logging.Logger, limiter *ratelimit.Limiter) *Adapter {
	sdk := binancesdk.NewClient(apiKey, apiSecret)
	a := &Adapter{id: id, sdk: sdk, apiKey: apiKey, secret: apiSecret, logger: logger, limiter: limiter}
	a.base = base.New("binance", "https://api.binance.com", logger, limiter,
		func(req *resty.Request) error {
			req.SetHeader("X-MBX-APIKEY", a.apiKey)
			return nil
		},
		func(statusCode int, body []byte) error {
			return fmt.Errorf("binance: status %d: %s", statusCode, string(body))
		},
		mapOrderStatus,
	)
	return a
}

var _ exchange.Client = (*Adapter)(nil)

func (a *Adapter) GetSymbolInfo(ctx context.Context, marketID market.MarketID) (market.Rules, error) {
	if err := a.limiter.Wait(ctx, ratelimit.ClassMarketData); err != nil {
		return market.Rules{}, err
	}
	info, err := a.sdk.NewExchangeInfoService().Symbol(string(marketID.Symbol)).Do(ctx)
	if err != nil {
		return market.Rules{}, err
	}
	if len(info.Symbols) == 0 {
		return market.Rules{}, fmt.Errorf("symbol %s not found", marketID.Symbol)
	}
	sym := info.Symbols[0]

	rules := market.Rules{
		BaseCurrency:  market.Currency(sym.BaseAsset),
		QuoteCurrency: market.Currency(sym.QuoteAsset),
	}
	if f := sym.PriceFilter(); f != nil {
		rules.TickSize = decimal.RequireFromString(f.TickSize)
	}
	if f := sym.LotSizeFilter(); f != nil {
		rules.StepSize = decimal.RequireFromString(f.StepSize)
		rules.MinAmount = decimal.RequireFromString(f.MinQuantity)
	}
	if f := sym.MinNotionalFilter(); f != nil {
		rules.MinNotional = decimal.RequireFromString(f.MinNotional)
	}
	rules.PriceDecimals = int32(sym.QuotePrecision)
	rules.AmountDecimals = int32(sym.BaseAssetPrecision)
	return rules, nil
}

func (a *Adapter) GetOrderBookSnapshot(ctx context.Context, marketID market.MarketID) (orderbook.Snapshot, error) {
	if err := a.limiter.Wait(ctx, ratelimit.ClassMarketData); err != nil {
		return orderbook.Snapshot{}, err
	}
	depth, err := a.sdk.NewDepthService().Symbol(string(marketID.Symbol)).Limit(1000).Do(ctx)
	if err != nil {
		return orderbook.Snapshot{}, err
	}
	snap := orderbook.Snapshot{
		MarketID:  marketID,
		UpdateID:  depth.LastUpdateID,
		Timestamp: time.Now(),
	}
	for _, b := range depth.Bids {
		snap.Bids = append(snap.Bids, orderbook.Level{
			Price:  decimal.RequireFromString(b.Price),
			Amount: decimal.RequireFromString(b.Quantity),
		})
	}
	for _, ask := range depth.Asks {
		snap.Asks = append(snap.Asks, orderbook.Level{
			Price:  decimal.RequireFromString(ask.Price),
			Amount: decimal.RequireFromString(ask.Quantity),
		})
	}
	return snap, nil
}

// StreamOrderBook opens no stream: it blocks until ctx is canceled and
// sends nothing on updates. This adapter does not decode depth-diff frames.
func (a *Adapter) StreamOrderBook(ctx context.Context, marketID market.MarketID, updates chan<- orderbook.Update) error {
	<-ctx.Done()
	return ctx.Err()
}

func (a *Adapter) GetBalances(ctx context.Context) ([]exchange.AccountBalance, error) {
	if err := a.limiter.Wait(ctx, ratelimit.ClassAccount); err != nil {
		return nil, err
	}
	account, err := a.sdk.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.AccountBalance, 0, len(account.Balances))
	for _, b := range account.Balances {
		out = append(out, exchange.AccountBalance{
			Currency: market.Currency(b.Asset),
			Free:     decimal.RequireFromString(b.Free),
			Locked:   decimal.RequireFromString(b.Locked),
		})
	}
	return out, nil
}

// StreamUserData keeps the user-data listen key alive until ctx is
// canceled. It opens no stream and sends nothing on events; it only renews
// the listen key, which the SDK's streaming helpers do not manage.
func (a *Adapter) StreamUserData(ctx context.Context, events chan<- lifecycle.ExchangeEvent) error {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.renewListenKey(ctx); err != nil {
				a.logger.Warn("listen key renewal failed", "exchange", a.id, "error", err)
			}
		}
	}
}

// renewListenKey sends the keepalive PUT Binance's user-data stream requires
// every 30 minutes to avoid the key expiring. This is the one endpoint the
// SDK's streaming helpers don't manage, so it goes through base.Adapter
// directly rather than the SDK.
func (a *Adapter) renewListenKey(ctx context.Context) error {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	payload := "timestamp=" + timestamp
	signature := signPayload(a.secret, payload)

	_, err := a.base.Execute(ctx, ratelimit.ClassAccount, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetQueryParam("timestamp", timestamp).
			SetQueryParam("signature", signature).
			Put("/api/v3/userDataStream")
	})
	return err
}

func (a *Adapter) ServerTime(ctx context.Context) (time.Time, error) {
	ms, err := a.sdk.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (a *Adapter) CreateOrder(ctx context.Context, req lifecycle.CreateOrderRequest) (lifecycle.ExchangeAck, error) {
	if err := a.limiter.Wait(ctx, ratelimit.ClassOrder); err != nil {
		return lifecycle.ExchangeAck{}, err
	}

	side := binancesdk.SideTypeBuy
	if req.Side == lifecycle.SideSell {
		side = binancesdk.SideTypeSell
	}

	order, err := a.sdk.NewCreateOrderService().
		Symbol(string(req.MarketID.Symbol)).
		Side(side).
		Type(binancesdk.OrderTypeLimit).
		TimeInForce(binancesdk.TimeInForceTypeGTC).
		Quantity(req.Amount.String()).
		Price(req.Price.String()).
		NewClientOrderID(req.ClientOrderID).
		Do(ctx)
	if err != nil {
		return classifyCreateError(err), nil
	}

	return lifecycle.ExchangeAck{
		ExchangeOrderID: fmt.Sprintf("%d", order.OrderID),
		Accepted:        true,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, marketID market.MarketID, exchangeOrderID string) error {
	if err := a.limiter.Wait(ctx, ratelimit.ClassOrder); err != nil {
		return err
	}
	orderID, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: invalid exchange order id %q: %w", exchangeOrderID, err)
	}
	_, err = a.sdk.NewCancelOrderService().
		Symbol(string(marketID.Symbol)).
		OrderID(orderID).
		Do(ctx)
	return err
}

func (a *Adapter) GetOpenOrders(ctx context.Context, marketID market.MarketID) ([]lifecycle.ExchangeOrderView, error) {
	if err := a.limiter.Wait(ctx, ratelimit.ClassAccount); err != nil {
		return nil, err
	}
	orders, err := a.sdk.NewListOpenOrdersService().Symbol(string(marketID.Symbol)).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]lifecycle.ExchangeOrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, lifecycle.ExchangeOrderView{
			ExchangeOrderID: fmt.Sprintf("%d", o.OrderID),
			ClientOrderID:   o.ClientOrderID,
			MarketID:        marketID,
			State:           mapOrderStatus(string(o.Status)),
		})
	}
	return out, nil
}

func mapOrderStatus(status string) lifecycle.State {
	switch status {
	case "NEW":
		return lifecycle.StateCreated
	case "PARTIALLY_FILLED":
		return lifecycle.StatePartiallyFilled
	case "FILLED":
		return lifecycle.StateFilled
	case "CANCELED", "PENDING_CANCEL":
		return lifecycle.StateCancelled
	case "REJECTED":
		return lifecycle.StateRejected
	case "EXPIRED":
		return lifecycle.StateExpired
	default:
		return lifecycle.StateUnknown
	}
}

func classifyCreateError(err error) lifecycle.ExchangeAck {
	// The SDK surfaces Binance's numeric error codes on APIError, but they are
	// not inspected here: every create error, including transport failures,
	// is reported as an exchange rejection.
	return lifecycle.ExchangeAck{Accepted: false, RejectReason: lifecycle.RejectReasonExchangeRejected}
}

// signPayload computes the HMAC-SHA256 signature Binance's private REST
// endpoints require over a query string, used for the listen-key keepalive
// request that the SDK's high-level services don't wrap.
func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
