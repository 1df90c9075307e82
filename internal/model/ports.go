package model

import "context"

// ── Port Interfaces ──
// These decouple the ledger and gateway from concrete storage (SQLite, Redis).

// TradeJournal records executed trades for audit. The ledger never reads it back.
type TradeJournal interface {
	// RecordTrade appends one executed transaction for an account.
	RecordTrade(ctx context.Context, accountID string, tx Transaction) error

	// Close releases underlying resources.
	Close() error
}

// Quote is a published last-trade price for one symbol.
type Quote struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"` // decimal string, e.g. "180.25"
	TS     int64  `json:"ts"`    // unix millis
}
