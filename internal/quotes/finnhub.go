package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/model"
)

// DefaultFinnhubURL is the quote endpoint.
const DefaultFinnhubURL = "https://finnhub.io/api/v1/quote"

// Finnhub reads the current price from the Finnhub quote API. The "demo"
// token works for a handful of symbols.
type Finnhub struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewFinnhub(token string, client *http.Client) *Finnhub {
	if token == "" {
		token = "demo"
	}
	return &Finnhub{BaseURL: DefaultFinnhubURL, Token: token, Client: newHTTPClient(client)}
}

func (f *Finnhub) Name() string { return "finnhub" }

// finnhubQuote is the /quote response; only c is required.
type finnhubQuote struct {
	Current       decimal.Decimal `json:"c"`
	Change        decimal.Decimal `json:"d"`
	ChangePercent decimal.Decimal `json:"dp"`
	High          decimal.Decimal `json:"h"`
	Low           decimal.Decimal `json:"l"`
	Open          decimal.Decimal `json:"o"`
	PreviousClose decimal.Decimal `json:"pc"`
	Timestamp     int64           `json:"t"`
}

func (f *Finnhub) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", f.Token)

	var body finnhubQuote
	if err := getJSON(ctx, newHTTPClient(f.Client), f.BaseURL+"?"+q.Encode(), &body); err != nil {
		return decimal.Zero, err
	}
	if !body.Current.IsPositive() {
		return decimal.Zero, errors.New("no current price")
	}
	return model.Round2(body.Current), nil
}
