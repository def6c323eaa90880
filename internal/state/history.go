/*

This file contains the append-only trade history log.

Closed trades are written one JSON object per line. The file is opened
with O_APPEND for every write so a crash mid-run can lose at most the
record being written, never corrupt earlier lines.

*/

package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var historyLogger = logger.GetForComponent("trade_history")

var ErrHistoryRecordInvalid = errors.New("trade record is invalid")

// HistoryLog appends closed-trade records to a JSONL file.
type HistoryLog struct {
	path string
	mu   sync.Mutex
}

// NewHistoryLog builds a history log writing to the given path.
func NewHistoryLog(path string) *HistoryLog {
	return &HistoryLog{path: path}
}

// BuildRecord assembles a trade record from a closed position. The
// trade ID is freshly generated; HoldDuration is a human-readable
// rendering of exit minus entry.
func BuildRecord(pos types.Position, reason types.ExitReason, exitTime time.Time, exitSignature string) types.TradeRecord {
	pnlPct := pos.PnLPercent
	if pnlPct == 0 && pos.CapitalSOL > 0 {
		pnlPct = pos.UnrealizedPnLSOL / pos.CapitalSOL * 100
	}
	return types.TradeRecord{
		TradeID:       uuid.NewString(),
		PoolID:        pos.PoolID,
		PoolName:      pos.PoolName,
		EntryTime:     pos.EntryTime,
		ExitTime:      exitTime,
		HoldDuration:  exitTime.Sub(pos.EntryTime).Round(time.Second).String(),
		Reason:        reason,
		CapitalSOL:    pos.CapitalSOL,
		ExitValueSOL:  pos.CurrentValueSOL,
		PnLSOL:        pos.UnrealizedPnLSOL,
		PnLPercent:    pnlPct,
		ILPercent:     pos.ILPercent,
		FeeIncomeSOL:  pos.FeeIncomeSOL,
		ExitSignature: exitSignature,
	}
}

// Append writes one record as a single JSON line.
func (h *HistoryLog) Append(record types.TradeRecord) error {
	if record.TradeID == "" || record.PoolID == "" {
		return fmt.Errorf("%w: missing trade or pool ID", ErrHistoryRecordInvalid)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling trade record: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening trade history: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending trade record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing trade history: %w", err)
	}

	historyLogger.Info().
		Str("tradeID", record.TradeID).
		Str("pool", string(record.PoolID)).
		Str("reason", string(record.Reason)).
		Float64("pnlSOL", record.PnLSOL).
		Msg("Trade recorded")
	return nil
}

// ReadAll loads every record in the log. Malformed lines are skipped
// with a warning so one bad write never hides the rest of the history.
func (h *HistoryLog) ReadAll() ([]types.TradeRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening trade history: %w", err)
	}
	defer f.Close()

	var records []types.TradeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.TradeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			historyLogger.Warn().Int("line", lineNo).Err(err).Msg("Skipping malformed history line")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("reading trade history: %w", err)
	}
	return records, nil
}
