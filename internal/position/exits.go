/*

This file contains the exit-condition evaluation for open positions.

Conditions are checked in a fixed priority order and the first match
wins: stop-loss, take-profit, max hold time, excess impermanent loss.
Stop-loss outranks take-profit so a corrupt tick that somehow satisfies
both still banks the defensive exit.

*/

package position

import (
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/types"
)

// EvaluateExit reports whether a position should close this tick and
// why. Positions already mid-exit are never re-triggered.
func EvaluateExit(pos types.Position, params types.StrategyParameters) (types.ExitReason, bool) {
	if pos.PendingExit {
		return "", false
	}

	if pos.PnLPercent <= params.StopLossPercent {
		return types.ExitStopLoss, true
	}
	if pos.PnLPercent >= params.TakeProfitPercent {
		return types.ExitTakeProfit, true
	}
	if pos.HoldDuration() >= time.Duration(params.MaxHoldTimeHours*float64(time.Hour)) {
		return types.ExitMaxHold, true
	}
	if pos.ILPercent <= params.MaxImpermanentLoss {
		return types.ExitExcessIL, true
	}
	return "", false
}
