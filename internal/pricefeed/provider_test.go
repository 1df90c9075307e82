package pricefeed

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(name, price string) ProviderFunc {
	return ProviderFunc{ID: name, Fn: func(context.Context, string) (decimal.Decimal, error) {
		return decimal.RequireFromString(price), nil
	}}
}

func failing(name string, err error) ProviderFunc {
	return ProviderFunc{ID: name, Fn: func(context.Context, string) (decimal.Decimal, error) {
		return decimal.Zero, err
	}}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	errDown := errors.New("down")
	c := Chain{failing("yahoo", errDown), fixed("finnhub", "101.5"), fixed("sim", "1")}

	price, source, err := c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "finnhub", source)
	assert.True(t, price.Equal(decimal.RequireFromString("101.5")))
}

func TestChain_AccumulatesReasons(t *testing.T) {
	errDown := errors.New("down")
	c := Chain{failing("yahoo", errDown), fixed("zero", "0")}

	_, _, err := c.Quote(context.Background(), "GOOG")
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "GOOG", fe.Symbol)
	require.Len(t, fe.Reasons, 2)
	assert.Equal(t, "yahoo", fe.Reasons[0].Provider)
	assert.Equal(t, "zero", fe.Reasons[1].Provider)
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "yahoo: down")
}

func TestChain_Empty(t *testing.T) {
	_, _, err := Chain{}.Quote(context.Background(), "KO")
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.Equal(t, "KO: no price available", err.Error())
}

func TestChain_StopsOnCancelledContext(t *testing.T) {
	called := false
	p := ProviderFunc{ID: "p", Fn: func(context.Context, string) (decimal.Decimal, error) {
		called = true
		return decimal.NewFromInt(1), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Chain{p}.Quote(ctx, "KO")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
