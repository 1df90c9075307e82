package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/model"
)

// HoldingValue is one holding valued at a current price.
type HoldingValue struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	Price         decimal.Decimal `json:"price"`
	Priced        bool            `json:"priced"` // false when no current price was known
	CostBasis     decimal.Decimal `json:"costBasis"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	UnrealizedPct decimal.Decimal `json:"unrealizedPct"`
	MaxBuy        int64           `json:"maxBuyQuantity"` // whole shares the cash balance covers at Price
}

// Summary is a valuation of an account.
type Summary struct {
	AccountID     string          `json:"accountId"`
	Balance       decimal.Decimal `json:"balance"`
	Holdings      []HoldingValue  `json:"holdings"`
	Invested      decimal.Decimal `json:"invested"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	TotalPnL      decimal.Decimal `json:"totalPnl"`
	NetWorth      decimal.Decimal `json:"netWorth"`
	TotalTrades   int             `json:"totalTrades"`
	OpenPositions int             `json:"openPositions"`
	// MaxBuy is the affordable share count per priced watch-list symbol.
	MaxBuy map[string]int64 `json:"maxBuy"`
}

var hundred = decimal.NewFromInt(100)

// Summarize values acct's holdings at prices. A holding whose symbol has no
// price is valued at its average price, so it contributes no unrealized P/L.
func Summarize(acct model.Account, prices map[string]decimal.Decimal) Summary {
	s := Summary{
		AccountID:   acct.ID,
		Balance:     acct.Balance,
		Holdings:    make([]HoldingValue, 0, len(acct.Holdings)),
		TotalTrades: len(acct.Transactions),
		MaxBuy:      make(map[string]int64, len(acct.SubscribedStocks)),
	}

	for sym, h := range acct.Holdings {
		if h.Quantity <= 0 {
			continue
		}
		price, priced := prices[sym]
		if !priced || !price.IsPositive() {
			price, priced = h.AvgPrice, false
		}
		cost := h.CostBasis()
		hv := HoldingValue{
			Symbol:        sym,
			Quantity:      h.Quantity,
			AvgPrice:      h.AvgPrice,
			Price:         price,
			Priced:        priced,
			CostBasis:     cost,
			MarketValue:   h.MarketValue(price),
			UnrealizedPnL: h.UnrealizedPnL(price),
			MaxBuy:        MaxBuyQuantity(acct.Balance, price),
		}
		if cost.IsPositive() {
			hv.UnrealizedPct = model.Round2(hv.UnrealizedPnL.Div(cost).Mul(hundred))
		}
		s.Holdings = append(s.Holdings, hv)
		s.Invested = s.Invested.Add(cost)
		s.MarketValue = s.MarketValue.Add(hv.MarketValue)
		s.UnrealizedPnL = s.UnrealizedPnL.Add(hv.UnrealizedPnL)
	}
	sort.Slice(s.Holdings, func(i, j int) bool { return s.Holdings[i].Symbol < s.Holdings[j].Symbol })

	for _, tx := range acct.Transactions {
		if tx.Type == model.SideSell && tx.ProfitLoss != nil {
			s.RealizedPnL = s.RealizedPnL.Add(*tx.ProfitLoss)
		}
	}

	for _, sym := range acct.SubscribedStocks {
		if p, ok := prices[sym]; ok && p.IsPositive() {
			s.MaxBuy[sym] = MaxBuyQuantity(acct.Balance, p)
		}
	}

	s.OpenPositions = len(s.Holdings)
	s.TotalPnL = s.RealizedPnL.Add(s.UnrealizedPnL)
	s.NetWorth = s.Balance.Add(s.MarketValue)
	return s
}
