package model

import "github.com/shopspring/decimal"

// Account is a trading account: cash, open holdings, trade history and the
// symbols it watches. Values of this type are snapshots; copy with Clone
// before mutating.
type Account struct {
	ID               string             `json:"id"`
	Name             string             `json:"name,omitempty"`
	Company          string             `json:"company,omitempty"`
	Balance          decimal.Decimal    `json:"balance"`
	Holdings         map[string]Holding `json:"holdings"`
	Transactions     []Transaction      `json:"transactions"` // newest first
	SubscribedStocks []string           `json:"subscribedStocks"`
}

// Clone returns a deep copy of a, with nil collections replaced by empty ones.
func (a Account) Clone() Account {
	cp := a
	cp.Holdings = make(map[string]Holding, len(a.Holdings))
	for sym, h := range a.Holdings {
		cp.Holdings[sym] = h
	}
	cp.Transactions = make([]Transaction, len(a.Transactions))
	copy(cp.Transactions, a.Transactions)
	cp.SubscribedStocks = make([]string, len(a.SubscribedStocks))
	copy(cp.SubscribedStocks, a.SubscribedStocks)
	return cp
}

// IsSubscribed reports whether symbol is in the account's watch list.
func (a Account) IsSubscribed(symbol string) bool {
	for _, s := range a.SubscribedStocks {
		if s == symbol {
			return true
		}
	}
	return false
}
