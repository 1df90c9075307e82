package model

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DisplayCurrency is the currency all balances and prices are quoted in.
const DisplayCurrency = money.USD

// Round2 rounds a value to the two fraction digits used for display.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatUSD renders d as a currency string, e.g. "$1,234.50".
func FormatUSD(d decimal.Decimal) string {
	cur := money.GetCurrency(DisplayCurrency)
	cents := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(cents, DisplayCurrency).Display()
}
