package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/model"
)

// DefaultYahooURL is the chart endpoint base.
const DefaultYahooURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// Yahoo reads the regular market price from the Yahoo Finance chart API.
// No API key is needed.
type Yahoo struct {
	BaseURL string
	Client  *http.Client
}

// NewYahoo creates a Yahoo provider. A nil client uses a 5s timeout client.
func NewYahoo(client *http.Client) *Yahoo {
	return &Yahoo{BaseURL: DefaultYahooURL, Client: newHTTPClient(client)}
}

func (y *Yahoo) Name() string { return "yahoo" }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string          `json:"symbol"`
				Currency           string          `json:"currency"`
				RegularMarketPrice decimal.Decimal `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u := strings.TrimRight(y.BaseURL, "/") + "/" + url.PathEscape(symbol) + "?interval=1d&range=1d"
	var body yahooChart
	if err := getJSON(ctx, newHTTPClient(y.Client), u, &body); err != nil {
		return decimal.Zero, err
	}
	if e := body.Chart.Error; e != nil {
		return decimal.Zero, errors.New(e.Code + ": " + e.Description)
	}
	if len(body.Chart.Result) == 0 {
		return decimal.Zero, errors.New("empty chart result")
	}
	price := body.Chart.Result[0].Meta.RegularMarketPrice
	if !price.IsPositive() {
		return decimal.Zero, errors.New("missing regularMarketPrice")
	}
	return model.Round2(price), nil
}
