package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/ledger"
	"stock-dashboard/internal/markethours"
	"stock-dashboard/internal/model"
	"stock-dashboard/internal/pricefeed"
)

// Client → server command types.
const (
	CmdSubscribe      = "SUBSCRIBE"
	CmdUnsubscribe    = "UNSUBSCRIBE"
	CmdUnsubscribeAll = "UNSUBSCRIBE_ALL"
	CmdBuy            = "BUY"
	CmdSell           = "SELL"
	CmdFetch          = "FETCH"
	CmdAccount        = "ACCOUNT"
	CmdPing           = "PING"
)

// Server → client message types.
const (
	MsgAck     = "ACK"
	MsgError   = "ERROR"
	MsgPrices  = "PRICES"
	MsgAccount = "ACCOUNT"
	MsgQuote   = "QUOTE"
	MsgPong    = "PONG"
)

// Command is a message sent by a WebSocket client.
type Command struct {
	Type     string           `json:"type"`
	ReqID    string           `json:"reqId,omitempty"`
	Symbol   string           `json:"symbol,omitempty"`
	Quantity int64            `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"` // trades default to the feed price
	Ping     int64            `json:"ping,omitempty"`
}

// AckMessage confirms a command. Trades carry the executed transaction.
type AckMessage struct {
	Type        string             `json:"type"`
	ReqID       string             `json:"reqId,omitempty"`
	Command     string             `json:"command"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

// ErrorResponse reports a failed command or request.
type ErrorResponse struct {
	Type  string `json:"type,omitempty"`
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// PricesMessage is pushed after every feed refresh and on connect.
type PricesMessage struct {
	Type      string                     `json:"type"`
	AccountID string                     `json:"accountId"`
	Prices    map[string]decimal.Decimal `json:"prices"`
	Quotes    map[string]pricefeed.Price `json:"quotes,omitempty"`
	Errors    map[string]string          `json:"errors,omitempty"`
	At        time.Time                  `json:"at"`
	Market    markethours.Status         `json:"market"`
}

// AccountMessage carries an account snapshot and its valuation.
type AccountMessage struct {
	Type    string         `json:"type"`
	ReqID   string         `json:"reqId,omitempty"`
	Account model.Account  `json:"account"`
	Summary ledger.Summary `json:"summary"`
}

// QuoteMessage answers FETCH.
type QuoteMessage struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId,omitempty"`
	Quote pricefeed.Price `json:"quote"`
}

// PongMessage answers PING.
type PongMessage struct {
	Type     string `json:"type"`
	ReqID    string `json:"reqId,omitempty"`
	Ping     int64  `json:"ping,omitempty"`
	ServerTS int64  `json:"serverTs"`
}

// OrderRequest is the body of POST /api/accounts/{id}/orders.
type OrderRequest struct {
	Side     model.Side       `json:"side"`
	Symbol   string           `json:"symbol"`
	Quantity int64            `json:"quantity"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// OrderResponse is returned for an executed order.
type OrderResponse struct {
	Account     model.Account     `json:"account"`
	Transaction model.Transaction `json:"transaction"`
}

// PricesResponse is returned by GET /api/prices.
type PricesResponse struct {
	Quotes []pricefeed.Price  `json:"quotes"`
	Market markethours.Status `json:"market"`
}

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("gateway: json marshal", slog.String("error", err.Error()))
		return nil
	}
	return data
}
