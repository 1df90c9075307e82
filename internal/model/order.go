package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Transaction is an executed trade. Transactions are immutable once created.
type Transaction struct {
	ID         string           `json:"id"`
	Type       Side             `json:"type"`
	Symbol     string           `json:"symbol"`
	Quantity   int64            `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Total      decimal.Decimal  `json:"total"`                // quantity * price
	ProfitLoss *decimal.Decimal `json:"profitLoss,omitempty"` // SELL only
	Timestamp  time.Time        `json:"timestamp"`
}

// SortTransactions orders txs newest first, keeping input order for ties.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}
