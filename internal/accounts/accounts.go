// Package accounts loads the static companies file that seeds the ledger.
package accounts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stock-dashboard/internal/model"
)

// ErrDataLoad wraps every failure to read or parse the companies file.
var ErrDataLoad = errors.New("account data load failed")

// Company groups accounts.
type Company struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Accounts []model.Account `json:"accounts"`
}

// Directory is the loaded companies file.
type Directory struct {
	Companies []Company `json:"companies"`
}

// Accounts returns every account across companies in file order.
func (d *Directory) Accounts() []model.Account {
	if d == nil {
		return nil
	}
	var out []model.Account
	for _, c := range d.Companies {
		out = append(out, c.Accounts...)
	}
	return out
}

// Load reads a companies file. The format is chosen by extension: .yaml and
// .yml are YAML, anything else is JSON.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataLoad, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDataLoad, path, err)
		}
	}
	d, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// LoadOrEmpty is Load that logs failures and returns an empty directory.
func LoadOrEmpty(path string, logger *slog.Logger) *Directory {
	d, err := Load(path)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("account data unavailable, starting empty", slog.String("path", path), slog.String("error", err.Error()))
		return &Directory{}
	}
	return d
}

// Parse decodes the JSON companies document.
func Parse(raw []byte) (*Directory, error) {
	var f fileDoc
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataLoad, err)
	}

	d := &Directory{Companies: make([]Company, 0, len(f.Companies))}
	seen := make(map[string]bool)
	for ci, fc := range f.Companies {
		c := Company{ID: string(fc.ID), Name: fc.Name}
		for ai, fa := range fc.Accounts {
			if fa.ID == "" {
				return nil, fmt.Errorf("%w: companies[%d].accounts[%d]: missing id", ErrDataLoad, ci, ai)
			}
			if seen[string(fa.ID)] {
				return nil, fmt.Errorf("%w: duplicate account id %q", ErrDataLoad, fa.ID)
			}
			seen[string(fa.ID)] = true
			acct, err := fa.toAccount(fc.Name)
			if err != nil {
				return nil, fmt.Errorf("%w: account %q: %v", ErrDataLoad, fa.ID, err)
			}
			c.Accounts = append(c.Accounts, acct)
		}
		d.Companies = append(d.Companies, c)
	}
	return d, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share one
// decoding path.
func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

type fileDoc struct {
	Companies []fileCompany `json:"companies"`
}

type fileCompany struct {
	ID       flexString    `json:"id"`
	Name     string        `json:"name"`
	Accounts []fileAccount `json:"accounts"`
}

type fileAccount struct {
	ID               flexString             `json:"id"`
	Name             string                 `json:"name"`
	Balance          decimal.Decimal        `json:"balance"`
	SubscribedStocks []string               `json:"subscribedStocks"`
	Holdings         map[string]fileHolding `json:"holdings"`
	Transactions     []fileTransaction      `json:"transactions"`
}

type fileHolding struct {
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
}

type fileTransaction struct {
	ID         flexString       `json:"id"`
	Type       string           `json:"type"`
	Symbol     string           `json:"symbol"`
	Quantity   int64            `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Total      decimal.Decimal  `json:"total"`
	ProfitLoss *decimal.Decimal `json:"profitLoss"`
	Timestamp  time.Time        `json:"timestamp"`
}

func (fa fileAccount) toAccount(company string) (model.Account, error) {
	if fa.Balance.IsNegative() {
		return model.Account{}, fmt.Errorf("negative balance %s", fa.Balance)
	}
	acct := model.Account{
		ID:               string(fa.ID),
		Name:             fa.Name,
		Company:          company,
		Balance:          fa.Balance,
		Holdings:         make(map[string]model.Holding, len(fa.Holdings)),
		Transactions:     make([]model.Transaction, 0, len(fa.Transactions)),
		SubscribedStocks: make([]string, 0, len(fa.SubscribedStocks)),
	}
	for _, s := range fa.SubscribedStocks {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !acct.IsSubscribed(s) {
			acct.SubscribedStocks = append(acct.SubscribedStocks, s)
		}
	}
	for sym, h := range fa.Holdings {
		// empty positions are not holdings
		if h.Quantity <= 0 {
			continue
		}
		if !h.AvgPrice.IsPositive() {
			return model.Account{}, fmt.Errorf("holding %s: avgPrice must be positive", sym)
		}
		acct.Holdings[strings.ToUpper(sym)] = model.Holding{Quantity: h.Quantity, AvgPrice: h.AvgPrice}
	}
	for i, ft := range fa.Transactions {
		side := model.Side(strings.ToUpper(ft.Type))
		if !side.Valid() {
			return model.Account{}, fmt.Errorf("transactions[%d]: unknown type %q", i, ft.Type)
		}
		tx := model.Transaction{
			ID:        string(ft.ID),
			Type:      side,
			Symbol:    strings.ToUpper(ft.Symbol),
			Quantity:  ft.Quantity,
			Price:     ft.Price,
			Total:     ft.Total,
			Timestamp: ft.Timestamp,
		}
		if tx.Total.IsZero() {
			tx.Total = tx.Price.Mul(decimal.NewFromInt(tx.Quantity))
		}
		if side == model.SideSell {
			tx.ProfitLoss = ft.ProfitLoss
		}
		acct.Transactions = append(acct.Transactions, tx)
	}
	model.SortTransactions(acct.Transactions)
	return acct, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
