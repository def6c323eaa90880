package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karlokr/raydium-lp-bot/internal/types"
)

func closedPosition() types.Position {
	return types.Position{
		PoolID:           "pool-alpha",
		PoolName:         "ALPHA/SOL",
		EntryTime:        time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		EntryPrice:       0.002,
		CapitalSOL:       2.0,
		LPMint:           "lp-mint-alpha",
		CurrentValueSOL:  2.3,
		UnrealizedPnLSOL: 0.3,
		PnLPercent:       15,
		ILPercent:        -1.2,
		FeeIncomeSOL:     0.12,
	}
}

func TestBuildRecord(t *testing.T) {
	pos := closedPosition()
	exitTime := pos.EntryTime.Add(26 * time.Hour)

	rec := BuildRecord(pos, types.ExitTakeProfit, exitTime, "sig-123")

	assert.NotEmpty(t, rec.TradeID)
	assert.Equal(t, pos.PoolID, rec.PoolID)
	assert.Equal(t, "26h0m0s", rec.HoldDuration)
	assert.Equal(t, types.ExitTakeProfit, rec.Reason)
	assert.Equal(t, 0.3, rec.PnLSOL)
	assert.Equal(t, 15.0, rec.PnLPercent)
	assert.Equal(t, "sig-123", rec.ExitSignature)

	// Distinct trades get distinct IDs.
	other := BuildRecord(pos, types.ExitTakeProfit, exitTime, "")
	assert.NotEqual(t, rec.TradeID, other.TradeID)
}

func TestHistoryAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.jsonl")
	h := NewHistoryLog(path)

	pos := closedPosition()
	first := BuildRecord(pos, types.ExitTakeProfit, pos.EntryTime.Add(24*time.Hour), "sig-1")
	second := BuildRecord(pos, types.ExitStopLoss, pos.EntryTime.Add(30*time.Hour), "sig-2")

	require.NoError(t, h.Append(first))
	require.NoError(t, h.Append(second))

	records, err := h.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.TradeID, records[0].TradeID)
	assert.Equal(t, types.ExitStopLoss, records[1].Reason)
}

func TestHistorySkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.jsonl")
	h := NewHistoryLog(path)

	pos := closedPosition()
	rec := BuildRecord(pos, types.ExitMaxHold, pos.EntryTime.Add(time.Hour), "")
	require.NoError(t, h.Append(rec))

	// A torn write mid-crash leaves a partial trailing line.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"trade_id": "torn`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := h.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.TradeID, records[0].TradeID)
}

func TestHistoryRejectsInvalidRecord(t *testing.T) {
	h := NewHistoryLog(filepath.Join(t.TempDir(), "trade_history.jsonl"))

	err := h.Append(types.TradeRecord{})
	assert.ErrorIs(t, err, ErrHistoryRecordInvalid)
}

func TestHistoryReadMissingFile(t *testing.T) {
	h := NewHistoryLog(filepath.Join(t.TempDir(), "missing.jsonl"))

	records, err := h.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}
