// Package journal appends executed trades to a SQLite audit log. The ledger
// never reads it back; it exists for audit and the trade history endpoint.
package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stock-dashboard/internal/model"
)

var _ model.TradeJournal = (*Journal)(nil)

// Journal persists trades to SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tx_id       TEXT NOT NULL,
	account_id  TEXT NOT NULL,
	side        TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	qty         INTEGER NOT NULL,
	price       TEXT NOT NULL,
	total       TEXT NOT NULL,
	profit_loss TEXT,
	executed_at TEXT NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
`

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("trade journal opened", slog.String("path", path))
	return &Journal{db: db}, nil
}

// RecordTrade appends one executed transaction.
func (j *Journal) RecordTrade(ctx context.Context, accountID string, tx model.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var pnl sql.NullString
	if tx.ProfitLoss != nil {
		pnl = sql.NullString{String: tx.ProfitLoss.String(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (tx_id, account_id, side, symbol, qty, price, total, profit_loss, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		accountID,
		string(tx.Type),
		tx.Symbol,
		tx.Quantity,
		tx.Price.String(),
		tx.Total.String(),
		pnl,
		tx.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Record is a row from the trades table.
type Record struct {
	ID         int64  `json:"id"`
	TxID       string `json:"txId"`
	AccountID  string `json:"accountId"`
	Side       string `json:"side"`
	Symbol     string `json:"symbol"`
	Qty        int64  `json:"qty"`
	Price      string `json:"price"`
	Total      string `json:"total"`
	ProfitLoss string `json:"profitLoss,omitempty"`
	ExecutedAt string `json:"executedAt"`
}

// Trades returns the last limit trades, newest first. An empty accountID
// returns trades for every account.
func (j *Journal) Trades(ctx context.Context, accountID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, tx_id, account_id, side, symbol, qty, price, total, profit_loss, executed_at
		 FROM trades WHERE (? = '' OR account_id = ?) ORDER BY id DESC LIMIT ?`,
		accountID, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var pnl sql.NullString
		if err := rows.Scan(&r.ID, &r.TxID, &r.AccountID, &r.Side, &r.Symbol,
			&r.Qty, &r.Price, &r.Total, &pnl, &r.ExecutedAt); err != nil {
			return nil, err
		}
		r.ProfitLoss = pnl.String
		trades = append(trades, r)
	}
	return trades, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// PingContext checks the database is reachable.
func (j *Journal) PingContext(ctx context.Context) error {
	return j.db.PingContext(ctx)
}
