package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderBook exposes the sell side of a KIN market.
type OrderBook interface {
	Asks(ctx context.Context) ([]Level, error)
}

// Trader places market buys and reports their fills.
type Trader interface {
	PlaceMarketBuy(ctx context.Context, dollars decimal.Decimal) (string, error)
	OrderFills(ctx context.Context, orderID string) ([]Fill, error)
}

// Oracle prices KIN from an order book and buys it when the reserve runs low.
type Oracle struct {
	book   OrderBook
	trader Trader
	minLot decimal.Decimal
	settle time.Duration
}

func NewOracle(book OrderBook, trader Trader, minBuyOrder decimal.Decimal, settle time.Duration) *Oracle {
	return &Oracle{book: book, trader: trader, minLot: minBuyOrder, settle: settle}
}

// PriceForVolume is the average price of the cheapest asks worth at least
// dollars. A zero amount yields the best ask.
func (o *Oracle) PriceForVolume(ctx context.Context, dollars decimal.Decimal) (decimal.Decimal, error) {
	asks, err := o.book.Asks(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return Walk(asks, UntilDollars(dollars))
}

// MinimumBuyPrice is the average price of the cheapest minimum lot.
func (o *Oracle) MinimumBuyPrice(ctx context.Context) (decimal.Decimal, error) {
	asks, err := o.book.Asks(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return Walk(asks, UntilVolume(o.minLot))
}

// MinimumDollarAmount is the dollar cost of the minimum lot rounded up to a
// tenth of a cent.
func (o *Oracle) MinimumDollarAmount(ctx context.Context) (decimal.Decimal, error) {
	avg, err := o.MinimumBuyPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	thousand := decimal.NewFromInt(1000)
	return o.minLot.Mul(avg).Mul(thousand).Ceil().Div(thousand), nil
}

// MarketBuy places a market buy for dollars, raised to the exchange minimum.
func (o *Oracle) MarketBuy(ctx context.Context, dollars decimal.Decimal) (MarketBuyResult, error) {
	minimum, err := o.MinimumDollarAmount(ctx)
	if err != nil {
		return MarketBuyResult{}, err
	}
	amount := decimal.Max(minimum, dollars)

	orderID, err := o.trader.PlaceMarketBuy(ctx, amount)
	if err != nil {
		return MarketBuyResult{}, err
	}

	zap.L().Info("market buy placed",
		zap.String("order_id", orderID),
		zap.String("amount", amount.String()),
		zap.String("requested", dollars.String()))

	return MarketBuyResult{OrderID: orderID, Amount: amount}, nil
}

// RealizedPrice waits for the order to settle and returns the fee-adjusted
// average price paid.
func (o *Oracle) RealizedPrice(ctx context.Context, orderID string) (decimal.Decimal, error) {
	if o.settle > 0 {
		timer := time.NewTimer(o.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return decimal.Zero, ctx.Err()
		case <-timer.C:
		}
	}

	fills, err := o.trader.OrderFills(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	return RealizedPrice(fills)
}
