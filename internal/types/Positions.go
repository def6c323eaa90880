/*

This file contains the types for open LP positions, closed-trade records,
and the cooldown/blacklist bookkeeping attached to them.

A Position is exclusively owned by the position store; the orchestrator
reads and mutates it only through the store's locked API.

*/

package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ExitReason classifies why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitMaxHold    ExitReason = "MAX_HOLD_TIME"
	ExitExcessIL   ExitReason = "EXCESS_IL"
	ExitGhost      ExitReason = "GHOST"
	ExitManual     ExitReason = "MANUAL"
)

// IsLoss reports whether the reason counts as a loss-driven close for
// strike escalation purposes. Ghost closes are treated as losses: the
// capital left the tracked flow without a profit-taking decision.
func (r ExitReason) IsLoss() bool {
	switch r {
	case ExitStopLoss, ExitExcessIL, ExitGhost:
		return true
	}
	return false
}

// Position is the central mutable entity tracking one open LP position.
type Position struct {
	PoolID   PoolID `json:"pool_id"`
	PoolName string `json:"pool_name"`

	// Entry data, immutable after creation.
	EntryTime   time.Time `json:"entry_time"`
	EntryPrice  float64   `json:"entry_price"`  // quote/base ratio at entry
	CapitalSOL  float64   `json:"capital_sol"`  // committed capital, native asset
	BaseAmount  float64   `json:"base_amount"`  // token side deposited
	QuoteAmount float64   `json:"quote_amount"` // native side deposited
	BaseMint    string    `json:"base_mint"`

	// LP receipt data.
	LPMint     string  `json:"lp_mint"`
	LPBalance  uint64  `json:"lp_balance"` // raw receipt amount
	LPDecimals int     `json:"lp_decimals"`
	EntrySig   string  `json:"entry_sig,omitempty"`
	SwapFee    float64 `json:"swap_fee,omitempty"`

	// Live metrics, refreshed every position-check tick.
	CurrentPrice     float64 `json:"current_price"`
	CurrentValueSOL  float64 `json:"current_value_sol"`
	UnrealizedPnLSOL float64 `json:"unrealized_pnl_sol"`
	PnLPercent       float64 `json:"pnl_percent"`
	ILPercent        float64 `json:"il_percent"`
	FeeIncomeSOL     float64 `json:"fee_income_sol"`

	// PendingExit marks a position whose exit is executing; the display
	// loop skips it to avoid reporting a transient double-counted state.
	PendingExit bool `json:"-"`

	// PoolSnapshot is free-form display data captured at entry.
	PoolSnapshot map[string]any `json:"pool_snapshot,omitempty"`
}

// HoldDuration returns how long the position has been open.
func (p Position) HoldDuration() time.Duration {
	return time.Since(p.EntryTime)
}

// Validate checks a position before it is admitted to the store.
func (p Position) Validate() error {
	if p.PoolID == "" {
		return errors.New("position pool ID cannot be empty")
	}
	if p.CapitalSOL <= 0 {
		return fmt.Errorf("position %s has non-positive capital: %f", p.PoolID, p.CapitalSOL)
	}
	if math.IsNaN(p.CapitalSOL) || math.IsInf(p.CapitalSOL, 0) {
		return fmt.Errorf("position %s capital is not finite", p.PoolID)
	}
	if p.EntryPrice < 0 || math.IsNaN(p.EntryPrice) || math.IsInf(p.EntryPrice, 0) {
		return fmt.Errorf("position %s has invalid entry price: %f", p.PoolID, p.EntryPrice)
	}
	if p.LPMint == "" {
		return fmt.Errorf("position %s is missing LP mint", p.PoolID)
	}
	if p.EntryTime.IsZero() {
		return fmt.Errorf("position %s has zero entry time", p.PoolID)
	}
	return nil
}

// TradeRecord is one immutable row of the append-only trade history,
// written exactly once when a position closes.
type TradeRecord struct {
	TradeID       string     `json:"trade_id"`
	PoolID        PoolID     `json:"pool_id"`
	PoolName      string     `json:"pool_name"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      time.Time  `json:"exit_time"`
	HoldDuration  string     `json:"hold_duration"`
	Reason        ExitReason `json:"reason"`
	CapitalSOL    float64    `json:"capital_sol"`
	ExitValueSOL  float64    `json:"exit_value_sol"`
	PnLSOL        float64    `json:"pnl_sol"`
	PnLPercent    float64    `json:"pnl_percent"`
	ILPercent     float64    `json:"il_percent"`
	FeeIncomeSOL  float64    `json:"fee_income_sol"`
	ExitSignature string     `json:"exit_signature,omitempty"`
}

// Cooldown suppresses re-entry into a pool for a fixed duration after a
// loss-driven exit.
type Cooldown struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Expired reports whether the cooldown has elapsed at the given time.
func (c Cooldown) Expired(now time.Time) bool {
	return now.After(c.Start.Add(c.Duration))
}

// Remaining returns how much of the cooldown is left, floored at zero.
func (c Cooldown) Remaining(now time.Time) time.Duration {
	rem := c.Start.Add(c.Duration).Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}
