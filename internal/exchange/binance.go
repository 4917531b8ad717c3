// Package exchange implements order gateways for the grid scheduler.
package exchange

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultQuantityPrecision = 5
	defaultPricePrecision    = 2
	defaultOrderRate         = 10
	defaultLockedPoll        = 100 * time.Millisecond
)

var defaultDust = decimal.RequireFromString("0.0003")

// binance error codes
const (
	codeDisconnected     = -1001
	codeTooManyRequests  = -1003
	codeServerBusy       = -1008
	codeTooManyOrders    = -1015
	codeTimestampOutside = -1021
	codeCancelRejected   = -2011
	codeNoSuchOrder      = -2013
)

// BinanceGateway places and cancels cross margin orders for a single pair.
type BinanceGateway struct {
	l                 *zap.Logger
	client            *binance.Client
	pair              domain.Pair
	limiter           *rate.Limiter
	retrier           *retrier.Retrier
	readRetrier       *retrier.Retrier
	quantityPrecision int32
	pricePrecision    int32
	dust              decimal.Decimal
	lockedPoll        time.Duration
}

// BinanceOption configures BinanceGateway.
type BinanceOption func(*BinanceGateway)

// WithPrecision sets the number of decimal places for quantities and prices.
func WithPrecision(quantity, price int32) BinanceOption {
	return func(g *BinanceGateway) {
		g.quantityPrecision = quantity
		g.pricePrecision = price
	}
}

// WithOrderRate limits order requests per second.
func WithOrderRate(perSecond float64) BinanceOption {
	return func(g *BinanceGateway) {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

// WithRetrier replaces the retrier used for order requests.
func WithRetrier(r *retrier.Retrier) BinanceOption {
	return func(g *BinanceGateway) {
		g.retrier = r
		g.readRetrier = r
	}
}

// WithLockedPoll sets how often Liquidate polls for released funds.
func WithLockedPoll(d time.Duration) BinanceOption {
	return func(g *BinanceGateway) {
		g.lockedPoll = d
	}
}

// NewBinanceGateway creates a gateway on top of the binance client.
func NewBinanceGateway(l *zap.Logger, client *binance.Client, pair domain.Pair, opts ...BinanceOption) *BinanceGateway {
	g := &BinanceGateway{
		l:                 l,
		client:            client,
		pair:              pair,
		limiter:           rate.NewLimiter(rate.Limit(defaultOrderRate), defaultOrderRate),
		quantityPrecision: defaultQuantityPrecision,
		pricePrecision:    defaultPricePrecision,
		dust:              defaultDust,
		lockedPoll:        defaultLockedPoll,
	}

	onRetry := func(attempt int, err error, wait time.Duration) {
		l.Warn("binance request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	g.retrier = retrier.New(
		retrier.WithMaxRetries(10),
		retrier.WithInitialInterval(100*time.Millisecond),
		retrier.WithMaxInterval(5*time.Second),
		retrier.WithRetryIf(isRejectedTransient),
		retrier.WithOnRetry(onRetry),
	)
	g.readRetrier = retrier.New(
		retrier.WithMaxRetries(5),
		retrier.WithInitialInterval(250*time.Millisecond),
		retrier.WithRetryIf(isTransient),
		retrier.WithOnRetry(onRetry),
	)

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// CreateOrder places a GTC limit order tagged with the correlation id.
func (g *BinanceGateway) CreateOrder(ctx context.Context, req domain.CreateOrder) (domain.OrderReceipt, error) {
	quantity := req.Quantity.RoundFloor(g.quantityPrecision)
	price := req.Price.Round(g.pricePrecision)
	if !quantity.IsPositive() {
		return domain.OrderReceipt{}, errors.Errorf("order quantity %s rounds to zero", req.Quantity.String())
	}

	g.l.Debug("creating order",
		zap.String("side", req.Side.String()),
		zap.Int("level", req.Level),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
		zap.String("correlation_id", req.CorrelationID))

	resp, err := retrier.DoWithData(g.retrier, ctx, func(ctx context.Context) (*binance.CreateOrderResponse, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return g.client.NewCreateMarginOrderService().
			Symbol(g.pair.Symbol()).
			Side(sideType(req.Side)).
			Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Quantity(quantity.String()).
			Price(price.String()).
			NewClientOrderID(req.CorrelationID).
			NewOrderRespType(binance.NewOrderRespTypeFULL).
			Do(ctx)
	})
	if err != nil {
		return domain.OrderReceipt{}, errors.Wrapf(err, "failed to place %s order at level %d", req.Side, req.Level)
	}

	return domain.OrderReceipt{
		ExchangeID:    resp.OrderID,
		CorrelationID: resp.ClientOrderID,
		Status:        string(resp.Status),
	}, nil
}

// CancelOrder cancels an order by exchange id. Orders the exchange no longer
// knows yield an error wrapping domain.ErrUnknownOrder.
func (g *BinanceGateway) CancelOrder(ctx context.Context, order domain.Order) error {
	if order.ExchangeID == nil {
		return errors.Errorf("order %s has no exchange id", order.CorrelationID)
	}

	g.l.Info("cancelling order",
		zap.String("side", order.Side.String()),
		zap.Int("level", order.Level),
		zap.String("price", order.Price.String()),
		zap.String("correlation_id", order.CorrelationID))

	err := g.retrier.Do(ctx, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := g.client.NewCancelMarginOrderService().
			Symbol(g.pair.Symbol()).
			OrderID(*order.ExchangeID).
			Do(ctx)
		return err
	})
	if err != nil {
		return errors.Wrapf(mapUnknownOrder(err), "failed to cancel order %d", *order.ExchangeID)
	}

	return nil
}

// QueryBalances returns cross margin balances keyed by asset.
func (g *BinanceGateway) QueryBalances(ctx context.Context) (map[string]domain.Balance, error) {
	account, err := retrier.DoWithData(g.readRetrier, ctx, func(ctx context.Context) (*binance.MarginAccount, error) {
		return g.client.NewGetMarginAccountService().Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get binance margin account")
	}

	balances := make(map[string]domain.Balance, len(account.UserAssets))
	for _, asset := range account.UserAssets {
		b, err := domain.ParseBalance(asset.Free, asset.Locked)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s balance", asset.Asset)
		}
		balances[asset.Asset] = b
	}

	return balances, nil
}

// Liquidate cancels every open order of the pair, waits for the exchange to
// release the base it held and market-sells free base above dust.
func (g *BinanceGateway) Liquidate(ctx context.Context) error {
	g.l.Info("liquidating", zap.String("pair", g.pair.String()))

	open, err := retrier.DoWithData(g.readRetrier, ctx, func(ctx context.Context) ([]*binance.Order, error) {
		return g.client.NewListMarginOpenOrdersService().Symbol(g.pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "failed to list open margin orders")
	}

	for _, o := range open {
		if o == nil {
			continue
		}
		_, err := g.client.NewCancelMarginOrderService().Symbol(g.pair.Symbol()).OrderID(o.OrderID).Do(ctx)
		if err != nil && !errors.Is(mapUnknownOrder(err), domain.ErrUnknownOrder) {
			return errors.Wrapf(err, "failed to cancel open order %d", o.OrderID)
		}
	}
	if len(open) > 0 {
		g.l.Info("open orders cancelled", zap.Int("count", len(open)))
	}

	base, err := g.waitBaseReleased(ctx)
	if err != nil {
		return err
	}

	if !base.Free.GreaterThan(g.dust) {
		g.l.Info("not enough base to sell", zap.String("free", base.Free.String()))
		return nil
	}

	quantity := base.Free.RoundFloor(g.quantityPrecision)
	g.l.Info("selling off base", zap.String("quantity", quantity.String()))

	_, err = retrier.DoWithData(g.retrier, ctx, func(ctx context.Context) (*binance.CreateOrderResponse, error) {
		return g.client.NewCreateMarginOrderService().
			Symbol(g.pair.Symbol()).
			Side(binance.SideTypeSell).
			Type(binance.OrderTypeMarket).
			Quantity(quantity.String()).
			NewOrderRespType(binance.NewOrderRespTypeFULL).
			Do(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "failed to sell off base")
	}

	g.l.Info("liquidated")
	return nil
}

func (g *BinanceGateway) waitBaseReleased(ctx context.Context) (domain.Balance, error) {
	for {
		balances, err := g.QueryBalances(ctx)
		if err != nil {
			return domain.Balance{}, err
		}

		base := balances[g.pair.From]
		if !base.Locked.GreaterThan(g.dust) {
			return base, nil
		}

		select {
		case <-ctx.Done():
			return domain.Balance{}, errors.Wrap(ctx.Err(), "waiting for locked base to be released")
		case <-time.After(g.lockedPoll):
		}
	}
}

func sideType(s domain.Side) binance.SideType {
	if s == domain.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func apiErrorCode(err error) (int64, bool) {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return 0, false
}

// isRejectedTransient matches errors where the exchange surely rejected the
// request and a retry cannot duplicate it.
func isRejectedTransient(err error) bool {
	code, ok := apiErrorCode(err)
	if !ok {
		return false
	}
	switch code {
	case codeTimestampOutside, codeTooManyRequests, codeTooManyOrders, codeServerBusy:
		return true
	}
	return false
}

// isTransient additionally retries transport failures, safe for reads only.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code, ok := apiErrorCode(err)
	if !ok {
		return true
	}
	return code == codeDisconnected || isRejectedTransient(err)
}

func mapUnknownOrder(err error) error {
	code, ok := apiErrorCode(err)
	if ok && (code == codeCancelRejected || code == codeNoSuchOrder) {
		return errors.Wrap(domain.ErrUnknownOrder, err.Error())
	}
	return err
}
