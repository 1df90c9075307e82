package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/model"
)

var (
	ErrInsufficientFunds  = fmt.Errorf("insufficient funds")
	ErrInsufficientShares = fmt.Errorf("insufficient shares")
	ErrInvalidQuantity    = fmt.Errorf("quantity must be positive")
	ErrInvalidPrice       = fmt.Errorf("price must be positive")
	ErrUnknownAccount     = fmt.Errorf("unknown account")
	ErrUnknownSymbol      = fmt.Errorf("unknown symbol")
	ErrInvalidSide        = fmt.Errorf("side must be BUY or SELL")
)

// Buy applies a purchase to acct and returns the new account snapshot and the
// recorded transaction. acct itself is never modified. On error the returned
// account is the zero value and nothing was applied.
func Buy(acct model.Account, symbol string, qty int64, price decimal.Decimal, txID string, at time.Time) (model.Account, model.Transaction, error) {
	if err := validate(symbol, qty, price); err != nil {
		return model.Account{}, model.Transaction{}, err
	}
	total := price.Mul(decimal.NewFromInt(qty))
	if acct.Balance.LessThan(total) {
		return model.Account{}, model.Transaction{}, fmt.Errorf("%w: need %s, have %s",
			ErrInsufficientFunds, model.FormatUSD(total), model.FormatUSD(acct.Balance))
	}

	next := acct.Clone()
	h, held := next.Holdings[symbol]
	if !held {
		h = model.Holding{Quantity: qty, AvgPrice: price, Cost: total}
	} else {
		// Weighted average over the exact cost basis, divided once.
		cost := h.CostBasis().Add(total)
		h.Quantity += qty
		h.Cost = cost
		h.AvgPrice = cost.Div(decimal.NewFromInt(h.Quantity))
	}
	next.Holdings[symbol] = h
	next.Balance = next.Balance.Sub(total)

	tx := model.Transaction{
		ID:        txID,
		Type:      model.SideBuy,
		Symbol:    symbol,
		Quantity:  qty,
		Price:     price,
		Total:     total,
		Timestamp: at,
	}
	next.Transactions = prepend(next.Transactions, tx)
	return next, tx, nil
}

// Sell applies a sale to acct. The average price of the remaining shares is
// left unchanged; selling the whole position removes the holding.
func Sell(acct model.Account, symbol string, qty int64, price decimal.Decimal, txID string, at time.Time) (model.Account, model.Transaction, error) {
	if err := validate(symbol, qty, price); err != nil {
		return model.Account{}, model.Transaction{}, err
	}
	h, held := acct.Holdings[symbol]
	if !held || h.Quantity < qty {
		have := int64(0)
		if held {
			have = h.Quantity
		}
		return model.Account{}, model.Transaction{}, fmt.Errorf("%w: %s want %d, have %d",
			ErrInsufficientShares, symbol, qty, have)
	}

	next := acct.Clone()
	total := price.Mul(decimal.NewFromInt(qty))
	pnl := price.Sub(h.AvgPrice).Mul(decimal.NewFromInt(qty))

	if qty == h.Quantity {
		delete(next.Holdings, symbol)
	} else {
		remaining := h.Quantity - qty
		h.Cost = h.CostBasis().Mul(decimal.NewFromInt(remaining)).Div(decimal.NewFromInt(h.Quantity))
		h.Quantity = remaining
		next.Holdings[symbol] = h
	}
	next.Balance = next.Balance.Add(total)

	tx := model.Transaction{
		ID:         txID,
		Type:       model.SideSell,
		Symbol:     symbol,
		Quantity:   qty,
		Price:      price,
		Total:      total,
		ProfitLoss: &pnl,
		Timestamp:  at,
	}
	next.Transactions = prepend(next.Transactions, tx)
	return next, tx, nil
}

// Subscribe adds symbol to the account's watch list. Already-watched symbols
// are a no-op. Holdings and balance are never touched.
func Subscribe(acct model.Account, symbol string) model.Account {
	next := acct.Clone()
	if next.IsSubscribed(symbol) {
		return next
	}
	next.SubscribedStocks = append(next.SubscribedStocks, symbol)
	return next
}

// Unsubscribe removes symbol from the watch list. A held position stays held.
func Unsubscribe(acct model.Account, symbol string) model.Account {
	next := acct.Clone()
	kept := next.SubscribedStocks[:0]
	for _, s := range next.SubscribedStocks {
		if s != symbol {
			kept = append(kept, s)
		}
	}
	next.SubscribedStocks = kept
	return next
}

// MaxBuyQuantity returns how many whole shares balance can pay for at price.
func MaxBuyQuantity(balance, price decimal.Decimal) int64 {
	if !price.IsPositive() || !balance.IsPositive() {
		return 0
	}
	return balance.Div(price).Floor().IntPart()
}

func validate(symbol string, qty int64, price decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrUnknownSymbol)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidPrice, price)
	}
	return nil
}

func prepend(txs []model.Transaction, tx model.Transaction) []model.Transaction {
	out := make([]model.Transaction, 0, len(txs)+1)
	out = append(out, tx)
	return append(out, txs...)
}
