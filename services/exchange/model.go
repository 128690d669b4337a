package exchange

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientLiquidity means the order book ran out of asks before
	// the requested size was reached.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity in order book")
	// ErrExchangeAPI wraps transport and protocol failures of the exchange.
	ErrExchangeAPI = errors.New("exchange api error")
	// ErrNotFilled means an order detail reported no net filled quantity.
	ErrNotFilled = errors.New("order not filled")
)

// Level is one resting ask: a unit price and the volume offered at it.
type Level struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// Fill is one execution of an order as reported by the exchange. Fee is
// expressed in the bought asset and is not netted from Quantity.
type Fill struct {
	Quantity decimal.Decimal
	Fee      decimal.Decimal
	Price    decimal.Decimal
}

// MarketBuyResult identifies a submitted market order and the dollar amount
// it was sized at.
type MarketBuyResult struct {
	OrderID string
	Amount  decimal.Decimal
}
