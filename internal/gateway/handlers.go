package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"stock-dashboard/internal/ledger"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/markethours"
	"stock-dashboard/internal/pricefeed"
	"stock-dashboard/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Token")
}

// RegisterRoutes registers all HTTP routes on the provided mux. health may be nil.
func RegisterRoutes(mux *http.ServeMux, h *Hub, health http.Handler) {
	mux.HandleFunc("GET /ws", h.serveWS)

	mux.HandleFunc("POST /api/session", h.createSession)
	mux.HandleFunc("GET /api/session", h.getSession)
	mux.HandleFunc("DELETE /api/session", h.deleteSession)

	mux.HandleFunc("GET /api/symbols", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.universe.Instruments())
	})
	mux.HandleFunc("GET /api/accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.ledger.Accounts())
	})
	mux.HandleFunc("GET /api/accounts/{id}", h.getAccount)
	mux.HandleFunc("GET /api/accounts/{id}/summary", h.getSummary)
	mux.HandleFunc("POST /api/accounts/{id}/orders", h.placeOrder)
	mux.HandleFunc("POST /api/accounts/{id}/subscriptions", h.addSubscription)
	mux.HandleFunc("DELETE /api/accounts/{id}/subscriptions/{symbol}", h.removeSubscription)

	mux.HandleFunc("GET /api/prices", h.getPrices)
	mux.HandleFunc("POST /api/prices/{symbol}/refresh", h.refreshPrice)
	mux.HandleFunc("GET /api/trades", h.getTrades)

	if health != nil {
		mux.Handle("GET /health", health)
	}
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("account")
	if id == "" {
		writeError(w, fmt.Errorf("%w: account is required", errBadRequest))
		return
	}
	acct, ok := h.ledger.Account(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, id))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade error", slog.String("error", err.Error()))
		return
	}
	h.HandleWSRequest(conn, acct)
}

// ── Session ──

func (h *Hub) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.sessions.Create(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("session created", slog.String("email", s.Email))
	writeJSON(w, http.StatusCreated, s)
}

func (h *Hub) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), sessionToken(r))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Hub) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), sessionToken(r)); err != nil {
		writeError(w, err)
		return
	}
	SetCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func sessionToken(r *http.Request) string {
	if t := r.Header.Get("X-Session-Token"); t != "" {
		return t
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// ── Accounts ──

func (h *Hub) getAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	acct, ok := h.ledger.Account(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, id))
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Hub) getSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	acct, ok := h.ledger.Account(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, id))
		return
	}
	writeJSON(w, http.StatusOK, h.summarize(acct))
}

func (h *Hub) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := logger.WithRequestID(r.Context(), logger.NewRequestID("http", h.now()))
	acct, tx, err := h.trade(ctx, r.PathValue("id"), req.Side, req.Symbol, req.Quantity, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	h.publishAccount(acct)
	writeJSON(w, http.StatusCreated, OrderResponse{Account: acct, Transaction: tx})
}

func (h *Hub) addSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	acct, _, err := h.subscribe(r.PathValue("id"), req.Symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	h.publishAccount(acct)
	writeJSON(w, http.StatusOK, acct)
}

func (h *Hub) removeSubscription(w http.ResponseWriter, r *http.Request) {
	acct, err := h.unsubscribe(r.PathValue("id"), r.PathValue("symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.publishAccount(acct)
	writeJSON(w, http.StatusOK, acct)
}

// ── Prices ──

func (h *Hub) getPrices(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if q := r.URL.Query().Get("symbols"); q != "" {
		for _, s := range strings.Split(q, ",") {
			if s = normalizeSymbol(s); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	quotes := h.feed.Quotes(symbols)
	if quotes == nil {
		quotes = []pricefeed.Price{}
	}
	writeJSON(w, http.StatusOK, PricesResponse{Quotes: quotes, Market: markethours.StatusAt(h.now())})
}

func (h *Hub) refreshPrice(w http.ResponseWriter, r *http.Request) {
	q, err := h.fetch(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ── Trade journal ──

func (h *Hub) getTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}
	if h.trades == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	recs, err := h.trades.Trades(r.Context(), r.URL.Query().Get("account"), limit)
	if err != nil {
		h.logger.Error("trade journal read failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "trade journal unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// ── Helpers ──

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidSide),
		errors.Is(err, ledger.ErrUnknownSymbol),
		errors.Is(err, session.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnknownAccount),
		errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientShares):
		return http.StatusConflict
	case errors.Is(err, pricefeed.ErrNoPrice):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err))
		return false
	}
	return true
}
