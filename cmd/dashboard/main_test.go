package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-dashboard/internal/ledger"
)

func TestOpenJournal_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "trades.db")
	j, err := openJournal(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenJournal_BadDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := openJournal(filepath.Join(blocker, "sub", "trades.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create journal dir")
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "insufficient_funds", rejectReason(fmt.Errorf("wrap: %w", ledger.ErrInsufficientFunds)))
	assert.Equal(t, "insufficient_shares", rejectReason(ledger.ErrInsufficientShares))
	assert.Equal(t, "invalid", rejectReason(ledger.ErrInvalidSide))
	assert.Equal(t, "other", rejectReason(fmt.Errorf("boom")))
}
