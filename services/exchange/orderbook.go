package exchange

import (
	"github.com/shopspring/decimal"
)

// StopFunc reports whether enough of the book has been consumed.
type StopFunc func(priceSum, volumeSum decimal.Decimal) bool

// Walk consumes asks best first, at least one non-empty level, until stop
// holds, and returns the volume weighted average price of the consumed levels.
func Walk(asks []Level, stop StopFunc) (decimal.Decimal, error) {
	priceSum := decimal.Zero
	volumeSum := decimal.Zero

	for _, ask := range asks {
		volumeSum = volumeSum.Add(ask.Volume)
		priceSum = priceSum.Add(ask.Price.Mul(ask.Volume))
		if !volumeSum.IsPositive() {
			continue
		}
		if stop(priceSum, volumeSum) {
			return priceSum.Div(volumeSum), nil
		}
	}

	return decimal.Zero, ErrInsufficientLiquidity
}

// UntilDollars stops once the consumed levels are worth at least amount.
func UntilDollars(amount decimal.Decimal) StopFunc {
	return func(priceSum, _ decimal.Decimal) bool {
		return priceSum.GreaterThanOrEqual(amount)
	}
}

// UntilVolume stops once at least volume units were consumed.
func UntilVolume(volume decimal.Decimal) StopFunc {
	return func(_, volumeSum decimal.Decimal) bool {
		return volumeSum.GreaterThanOrEqual(volume)
	}
}

// RealizedPrice is the average price actually paid once fees are removed
// from each fill's quantity.
func RealizedPrice(fills []Fill) (decimal.Decimal, error) {
	bought := decimal.Zero
	cost := decimal.Zero
	for _, fill := range fills {
		net := fill.Quantity.Sub(fill.Fee)
		bought = bought.Add(net)
		cost = cost.Add(net.Mul(fill.Price))
	}
	if !bought.IsPositive() {
		return decimal.Zero, ErrNotFilled
	}
	return cost.Div(bought), nil
}
