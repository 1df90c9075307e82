package model

import "github.com/shopspring/decimal"

// Holding is an account's open position in one symbol.
// A Holding stored in an Account always has Quantity > 0.
type Holding struct {
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avgPrice"`

	// Cost is the exact cost basis of the remaining shares. AvgPrice is
	// derived from it once per buy so repeated buys never compound rounding.
	Cost decimal.Decimal `json:"cost"`
}

// CostBasis returns the cost basis, deriving it from AvgPrice for holdings
// loaded without one.
func (h Holding) CostBasis() decimal.Decimal {
	if !h.Cost.IsZero() {
		return h.Cost
	}
	return h.AvgPrice.Mul(decimal.NewFromInt(h.Quantity))
}

// MarketValue returns quantity * price.
func (h Holding) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(h.Quantity))
}

// UnrealizedPnL returns (price - avg) * quantity.
func (h Holding) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(h.AvgPrice).Mul(decimal.NewFromInt(h.Quantity))
}
