package model

import "github.com/shopspring/decimal"

// Instrument is a tradable ticker in the dashboard universe.
type Instrument struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	FallbackPrice decimal.Decimal `json:"fallback_price"` // shown until a live quote arrives
}

// DefaultUniverse is the fixed set of symbols users can subscribe to.
var DefaultUniverse = []Instrument{
	{Symbol: "GOOG", Name: "Alphabet Inc.", FallbackPrice: decimal.RequireFromString("150.50")},
	{Symbol: "TSLA", Name: "Tesla, Inc.", FallbackPrice: decimal.RequireFromString("250.75")},
	{Symbol: "AMZN", Name: "Amazon.com, Inc.", FallbackPrice: decimal.RequireFromString("175.25")},
	{Symbol: "META", Name: "Meta Platforms, Inc.", FallbackPrice: decimal.RequireFromString("485.30")},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", FallbackPrice: decimal.RequireFromString("890.45")},
	{Symbol: "AAPL", Name: "Apple Inc.", FallbackPrice: decimal.RequireFromString("180.00")},
	{Symbol: "MSFT", Name: "Microsoft Corporation", FallbackPrice: decimal.RequireFromString("420.00")},
	{Symbol: "NFLX", Name: "Netflix, Inc.", FallbackPrice: decimal.RequireFromString("450.00")},
	{Symbol: "AMD", Name: "Advanced Micro Devices, Inc.", FallbackPrice: decimal.RequireFromString("120.00")},
	{Symbol: "INTC", Name: "Intel Corporation", FallbackPrice: decimal.RequireFromString("45.00")},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", FallbackPrice: decimal.RequireFromString("150.00")},
	{Symbol: "V", Name: "Visa Inc.", FallbackPrice: decimal.RequireFromString("250.00")},
	{Symbol: "MA", Name: "Mastercard Incorporated", FallbackPrice: decimal.RequireFromString("400.00")},
	{Symbol: "DIS", Name: "The Walt Disney Company", FallbackPrice: decimal.RequireFromString("100.00")},
	{Symbol: "NKE", Name: "NIKE, Inc.", FallbackPrice: decimal.RequireFromString("110.00")},
	{Symbol: "WMT", Name: "Walmart Inc.", FallbackPrice: decimal.RequireFromString("160.00")},
	{Symbol: "JNJ", Name: "Johnson & Johnson", FallbackPrice: decimal.RequireFromString("160.00")},
	{Symbol: "PG", Name: "The Procter & Gamble Company", FallbackPrice: decimal.RequireFromString("150.00")},
	{Symbol: "KO", Name: "The Coca-Cola Company", FallbackPrice: decimal.RequireFromString("60.00")},
	{Symbol: "PEP", Name: "PepsiCo, Inc.", FallbackPrice: decimal.RequireFromString("170.00")},
}

// Universe is a lookup over a set of instruments.
type Universe struct {
	list  []Instrument
	index map[string]Instrument
}

// NewUniverse builds a Universe. Later duplicates of a symbol are ignored.
func NewUniverse(instruments []Instrument) *Universe {
	u := &Universe{index: make(map[string]Instrument, len(instruments))}
	for _, in := range instruments {
		if _, dup := u.index[in.Symbol]; dup || in.Symbol == "" {
			continue
		}
		u.index[in.Symbol] = in
		u.list = append(u.list, in)
	}
	return u
}

// Restrict returns a Universe limited to the given symbols, in the given order.
// Symbols unknown to u are added with no name and no fallback price.
func (u *Universe) Restrict(symbols []string) *Universe {
	out := make([]Instrument, 0, len(symbols))
	for _, s := range symbols {
		if in, ok := u.index[s]; ok {
			out = append(out, in)
			continue
		}
		out = append(out, Instrument{Symbol: s})
	}
	return NewUniverse(out)
}

// Contains reports whether symbol is part of the universe.
func (u *Universe) Contains(symbol string) bool {
	_, ok := u.index[symbol]
	return ok
}

// Lookup returns the instrument for symbol.
func (u *Universe) Lookup(symbol string) (Instrument, bool) {
	in, ok := u.index[symbol]
	return in, ok
}

// Instruments returns a copy of the instruments in declaration order.
func (u *Universe) Instruments() []Instrument {
	cp := make([]Instrument, len(u.list))
	copy(cp, u.list)
	return cp
}

// Symbols returns the symbols in declaration order.
func (u *Universe) Symbols() []string {
	out := make([]string, len(u.list))
	for i, in := range u.list {
		out[i] = in.Symbol
	}
	return out
}

// FallbackPrices returns symbol -> fallback price for every instrument that has one.
func (u *Universe) FallbackPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(u.list))
	for _, in := range u.list {
		if in.FallbackPrice.IsPositive() {
			out[in.Symbol] = in.FallbackPrice
		}
	}
	return out
}
