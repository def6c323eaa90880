package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/karlokr/raydium-lp-bot/internal/config"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

func holdingPosition(age time.Duration) types.Position {
	return types.Position{
		PoolID:     "a",
		EntryTime:  time.Now().Add(-age),
		EntryPrice: 1.0,
		CapitalSOL: 1.0,
		LPMint:     "LPMint111",
	}
}

func TestEvaluateExitPriorityOrder(t *testing.T) {
	params := config.DefaultStrategyParameters

	pos := holdingPosition(time.Hour)
	pos.PnLPercent = params.StopLossPercent - 1
	pos.ILPercent = params.MaxImpermanentLoss - 1

	// Stop-loss outranks the simultaneously-true excess-IL condition.
	reason, exit := EvaluateExit(pos, params)
	assert.True(t, exit)
	assert.Equal(t, types.ExitStopLoss, reason)

	pos = holdingPosition(time.Hour)
	pos.PnLPercent = params.TakeProfitPercent + 1
	reason, exit = EvaluateExit(pos, params)
	assert.True(t, exit)
	assert.Equal(t, types.ExitTakeProfit, reason)

	pos = holdingPosition(time.Duration(params.MaxHoldTimeHours+1) * time.Hour)
	reason, exit = EvaluateExit(pos, params)
	assert.True(t, exit)
	assert.Equal(t, types.ExitMaxHold, reason)

	pos = holdingPosition(time.Hour)
	pos.ILPercent = params.MaxImpermanentLoss - 0.5
	reason, exit = EvaluateExit(pos, params)
	assert.True(t, exit)
	assert.Equal(t, types.ExitExcessIL, reason)
}

func TestEvaluateExitHoldsSteadyState(t *testing.T) {
	params := config.DefaultStrategyParameters

	pos := holdingPosition(time.Hour)
	pos.PnLPercent = 2
	pos.ILPercent = -1

	_, exit := EvaluateExit(pos, params)
	assert.False(t, exit)
}

func TestEvaluateExitSkipsPendingExit(t *testing.T) {
	params := config.DefaultStrategyParameters

	pos := holdingPosition(time.Hour)
	pos.PnLPercent = params.StopLossPercent - 5
	pos.PendingExit = true

	_, exit := EvaluateExit(pos, params)
	assert.False(t, exit)
}
