package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karlokr/raydium-lp-bot/internal/config"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

func testPosition(poolID types.PoolID) types.Position {
	return types.Position{
		PoolID:     poolID,
		PoolName:   "TEST/WSOL",
		EntryTime:  time.Now().Add(-time.Hour),
		EntryPrice: 1.0,
		CapitalSOL: 1.5,
		LPMint:     "LPMint111",
		LPBalance:  1_000_000,
		LPDecimals: 9,
	}
}

func TestAddAndCapacity(t *testing.T) {
	store := NewStore(config.DefaultStrategyParameters)

	require.NoError(t, store.Add(testPosition("a")))
	assert.ErrorIs(t, store.Add(testPosition("a")), ErrPositionExists)

	require.NoError(t, store.Add(testPosition("b")))
	require.NoError(t, store.Add(testPosition("c")))
	assert.ErrorIs(t, store.Add(testPosition("d")), ErrStoreFull)
	assert.Equal(t, 0, store.FreeSlots())
}

func TestAddRejectsInvalidPosition(t *testing.T) {
	store := NewStore(config.DefaultStrategyParameters)

	bad := testPosition("a")
	bad.CapitalSOL = 0
	assert.Error(t, store.Add(bad))
}

func TestCooldownEscalationAndBlacklist(t *testing.T) {
	params := config.DefaultStrategyParameters
	store := NewStore(params)
	now := time.Now()
	pool := types.PoolID("a")

	// Strike 1: first cooldown duration.
	require.NoError(t, store.Add(testPosition(pool)))
	_, err := store.RemoveClosed(pool, types.ExitStopLoss, now)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Strikes(pool))

	ok, reason := store.Eligible(pool, now)
	assert.False(t, ok)
	assert.Contains(t, reason, "cooling down")

	// Eligible again once the 24h cooldown lapses.
	ok, _ = store.Eligible(pool, now.Add(params.StopLossCooldowns[0]+time.Minute))
	assert.True(t, ok)

	// Strike 2: escalates to the second duration.
	require.NoError(t, store.Add(testPosition(pool)))
	_, err = store.RemoveClosed(pool, types.ExitExcessIL, now)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Strikes(pool))

	ok, _ = store.Eligible(pool, now.Add(params.StopLossCooldowns[0]+time.Minute))
	assert.False(t, ok, "second strike must use the longer cooldown")

	// Strike 3: permanent blacklist, strikes and cooldowns cleared.
	require.NoError(t, store.Add(testPosition(pool)))
	_, err = store.RemoveClosed(pool, types.ExitStopLoss, now)
	require.NoError(t, err)

	assert.True(t, store.IsBlacklisted(pool))
	assert.Zero(t, store.Strikes(pool))

	ok, reason = store.Eligible(pool, now.Add(1000*time.Hour))
	assert.False(t, ok)
	assert.Equal(t, "permanently blacklisted", reason)
}

func TestProfitExitResetsStrikes(t *testing.T) {
	store := NewStore(config.DefaultStrategyParameters)
	now := time.Now()
	pool := types.PoolID("a")

	require.NoError(t, store.Add(testPosition(pool)))
	_, err := store.RemoveClosed(pool, types.ExitStopLoss, now)
	require.NoError(t, err)
	require.Equal(t, 1, store.Strikes(pool))

	require.NoError(t, store.Add(testPosition(pool)))
	_, err = store.RemoveClosed(pool, types.ExitTakeProfit, now)
	require.NoError(t, err)

	assert.Zero(t, store.Strikes(pool))
	assert.False(t, store.IsBlacklisted(pool))
}

func TestGhostCountsAsLoss(t *testing.T) {
	store := NewStore(config.DefaultStrategyParameters)
	now := time.Now()

	require.NoError(t, store.Add(testPosition("a")))
	_, err := store.RemoveClosed("a", types.ExitGhost, now)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Strikes("a"))
}

func TestEligibilityFilters(t *testing.T) {
	store := NewStore(config.DefaultStrategyParameters)
	now := time.Now()

	require.NoError(t, store.Add(testPosition("active")))
	ok, reason := store.Eligible("active", now)
	assert.False(t, ok)
	assert.Equal(t, "position already open", reason)

	store.MarkFailed("failed")
	ok, reason = store.Eligible("failed", now)
	assert.False(t, ok)
	assert.Equal(t, "entry failed this cycle", reason)

	store.ClearFailed()
	ok, _ = store.Eligible("failed", now)
	assert.True(t, ok)
}

func TestSetPendingExitClaimsOnce(t *testing.T) {
	store := NewStore(config.DefaultStrategyParameters)
	require.NoError(t, store.Add(testPosition("a")))

	assert.True(t, store.SetPendingExit("a", true))
	assert.False(t, store.SetPendingExit("a", true), "second claim must fail")
	assert.True(t, store.SetPendingExit("a", false))
	assert.False(t, store.SetPendingExit("missing", true))
}

func TestExportImportRoundTrip(t *testing.T) {
	params := config.DefaultStrategyParameters
	store := NewStore(params)
	now := time.Now()

	require.NoError(t, store.Add(testPosition("open")))
	require.NoError(t, store.Add(testPosition("loser")))
	_, err := store.RemoveClosed("loser", types.ExitStopLoss, now)
	require.NoError(t, err)

	snap := store.Export()

	restored := NewStore(params)
	restored.Import(snap, now)

	assert.Equal(t, 1, restored.Count())
	assert.Equal(t, 1, restored.Strikes("loser"))
	ok, _ := restored.Eligible("loser", now)
	assert.False(t, ok)
}

func TestImportDropsExpiredCooldowns(t *testing.T) {
	params := config.DefaultStrategyParameters
	store := NewStore(params)
	now := time.Now()

	require.NoError(t, store.Add(testPosition("a")))
	_, err := store.RemoveClosed("a", types.ExitStopLoss, now)
	require.NoError(t, err)

	snap := store.Export()

	restored := NewStore(params)
	restored.Import(snap, now.Add(params.StopLossCooldowns[0]+time.Hour))

	ok, _ := restored.Eligible("a", now.Add(params.StopLossCooldowns[0]+time.Hour))
	assert.True(t, ok, "expired cooldowns are dropped at load time")
}

func TestDeployedCapital(t *testing.T) {
	store := NewStore(config.DefaultStrategyParameters)
	require.NoError(t, store.Add(testPosition("a")))
	require.NoError(t, store.Add(testPosition("b")))

	assert.InDelta(t, 3.0, store.DeployedCapital(), 1e-9)
}
