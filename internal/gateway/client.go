package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client represents a single WebSocket peer bound to one account.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	accountID string
}

// queue sends data without blocking. Only used before the pumps start or
// from the read pump, which is the sole goroutine that can close send.
func (c *Client) queue(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("client send buffer full, dropping message", slog.String("account", c.accountID))
		if c.hub.OnDrop != nil {
			c.hub.OnDrop(c.accountID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("ws read error", slog.String("account", c.accountID), slog.String("error", err.Error()))
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			c.sendError("", "invalid message: "+err.Error())
			continue
		}
		c.handle(cmd)
	}
}

// handle runs one command. Commands run in order on the read pump.
func (c *Client) handle(cmd Command) {
	cmd.Type = strings.ToUpper(cmd.Type)
	if c.hub.OnCommand != nil {
		c.hub.OnCommand(cmd.Type)
	}
	reqID := cmd.ReqID
	if reqID == "" {
		reqID = logger.NewRequestID("ws", time.Now())
	}
	ctx := logger.WithRequestID(context.Background(), reqID)
	h := c.hub

	switch cmd.Type {
	case CmdSubscribe:
		acct, prices, err := h.subscribe(c.accountID, cmd.Symbol)
		if err != nil {
			c.fail(ctx, cmd, err)
			return
		}
		c.ack(cmd, nil)
		h.publishAccount(acct)
		c.queue(encode(h.pricesMessage(c.accountID, prices, nil, nil, h.now())))

	case CmdUnsubscribe:
		acct, err := h.unsubscribe(c.accountID, cmd.Symbol)
		if err != nil {
			c.fail(ctx, cmd, err)
			return
		}
		c.ack(cmd, nil)
		h.publishAccount(acct)

	case CmdUnsubscribeAll:
		// Pauses pushes for the account; the watch list itself is kept.
		h.feed.UnsubscribeAll(c.accountID)
		c.ack(cmd, nil)

	case CmdBuy, CmdSell:
		acct, tx, err := h.trade(ctx, c.accountID, model.Side(cmd.Type), cmd.Symbol, cmd.Quantity, cmd.Price)
		if err != nil {
			c.fail(ctx, cmd, err)
			return
		}
		c.ack(cmd, &tx)
		h.publishAccount(acct)

	case CmdFetch:
		q, err := h.fetch(ctx, cmd.Symbol)
		if err != nil {
			c.fail(ctx, cmd, err)
			return
		}
		c.queue(encode(QuoteMessage{Type: MsgQuote, ReqID: cmd.ReqID, Quote: q}))

	case CmdAccount:
		acct, ok := h.ledger.Account(c.accountID)
		if !ok {
			c.sendError(cmd.ReqID, "unknown account")
			return
		}
		c.queue(encode(h.accountMessage(acct, cmd.ReqID)))

	case CmdPing:
		c.queue(encode(PongMessage{Type: MsgPong, ReqID: cmd.ReqID, Ping: cmd.Ping, ServerTS: time.Now().UnixMilli()}))

	default:
		c.sendError(cmd.ReqID, "unknown command "+cmd.Type)
	}
}

func (c *Client) ack(cmd Command, tx *model.Transaction) {
	c.queue(encode(AckMessage{Type: MsgAck, ReqID: cmd.ReqID, Command: cmd.Type, Transaction: tx}))
}

func (c *Client) fail(ctx context.Context, cmd Command, err error) {
	c.hub.logger.Info("ws command failed", append(logger.Attrs(ctx),
		slog.String("account", c.accountID),
		slog.String("command", cmd.Type),
		slog.String("error", err.Error()))...)
	c.sendError(cmd.ReqID, err.Error())
}

func (c *Client) sendError(reqID, msg string) {
	c.queue(encode(ErrorResponse{Type: MsgError, ReqID: reqID, Error: msg}))
}
