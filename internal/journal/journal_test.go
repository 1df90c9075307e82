package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-dashboard/internal/model"
)

func TestJournal_RecordAndRead(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	pnl := decimal.RequireFromString("200")
	require.NoError(t, j.RecordTrade(ctx, "A-1", model.Transaction{
		ID: "1-1", Type: model.SideBuy, Symbol: "TSLA", Quantity: 10,
		Price: decimal.NewFromInt(100), Total: decimal.NewFromInt(1000), Timestamp: at,
	}))
	require.NoError(t, j.RecordTrade(ctx, "A-1", model.Transaction{
		ID: "1-2", Type: model.SideSell, Symbol: "TSLA", Quantity: 4,
		Price: decimal.NewFromInt(150), Total: decimal.NewFromInt(600), ProfitLoss: &pnl, Timestamp: at.Add(time.Minute),
	}))
	require.NoError(t, j.RecordTrade(ctx, "B-1", model.Transaction{
		ID: "2-1", Type: model.SideBuy, Symbol: "KO", Quantity: 1,
		Price: decimal.NewFromInt(60), Total: decimal.NewFromInt(60), Timestamp: at,
	}))

	all, err := j.Trades(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2-1", all[0].TxID)

	mine, err := j.Trades(ctx, "A-1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "SELL", mine[0].Side)
	assert.Equal(t, "200", mine[0].ProfitLoss)
	assert.Equal(t, "", mine[1].ProfitLoss)
	assert.Equal(t, "2024-03-01T15:30:00Z", mine[1].ExecutedAt)

	one, err := j.Trades(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
