package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karlokr/raydium-lp-bot/internal/config"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

type fakeOracle struct {
	report TokenReport
	calls  int
}

func (f *fakeOracle) AnalyzeToken(mint string) TokenReport {
	f.calls++
	return f.report
}

type fakeLocks struct {
	report LockReport
	calls  int
}

func (f *fakeLocks) Analyze(ctx context.Context, lpMint string) LockReport {
	f.calls++
	return f.report
}

func cleanOracleReport() TokenReport {
	return TokenReport{
		Available:    true,
		RiskScore:    5,
		RiskLevel:    "low",
		TotalHolders: 2000,
	}
}

func cleanLockReport() LockReport {
	return LockReport{
		Available:         true,
		TotalSupply:       1_000_000,
		BurnedPct:         0,
		ContractLockedPct: 95,
		UnlockedPct:       5,
		SafePct:           95,
		MaxSingleUnlocked: 2,
	}
}

func healthyPool() types.Pool {
	return types.Pool{
		ID:           "pool-1",
		Name:         "DOGE/WSOL",
		BaseMint:     "BaseMint111",
		QuoteMint:    "So11111111111111111111111111111111111111112",
		LPMint:       "LPMint111",
		TvlUSD:       120000,
		BurnPercent:  95,
		Price:        0.5,
		BaseReserve:  100000,
		QuoteReserve: 500,
		Day:          types.PoolWindow{Volume: 200000, APR: 180, FeeAPR: 150},
	}
}

func newTestGate(oracle *fakeOracle, locks *fakeLocks) *Gate {
	return NewGate(oracle, locks, config.DefaultStrategyParameters)
}

func TestEvaluateSafePool(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}
	locks := &fakeLocks{report: cleanLockReport()}
	gate := newTestGate(oracle, locks)

	verdict := gate.Evaluate(context.Background(), healthyPool())

	require.Empty(t, verdict.Risks)
	assert.True(t, verdict.IsSafe)
	assert.Equal(t, types.RiskLow, verdict.RiskLevel)
	assert.Equal(t, types.TierHigh, verdict.LiquidityTier)
	assert.Equal(t, 1, oracle.calls)
	assert.Equal(t, 1, locks.calls)
	// burn 95% plus 95% of the remaining 5% locked: 99.75% effective.
	assert.InDelta(t, 99.75, verdict.EffectiveSafe, 0.01)
}

func TestEvaluateIsSafeMatchesRisks(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}
	locks := &fakeLocks{report: cleanLockReport()}
	gate := newTestGate(oracle, locks)

	pools := []types.Pool{healthyPool()}

	unsafe := healthyPool()
	unsafe.BurnPercent = 10
	pools = append(pools, unsafe)

	for _, pool := range pools {
		verdict := gate.Evaluate(context.Background(), pool)
		assert.Equal(t, len(verdict.Risks) == 0, verdict.IsSafe, "pool %s", pool.ID)
	}
}

func TestLocalRejectionSkipsRemoteChecks(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}
	locks := &fakeLocks{report: cleanLockReport()}
	gate := newTestGate(oracle, locks)

	pool := healthyPool()
	pool.BurnPercent = 10

	verdict := gate.Evaluate(context.Background(), pool)

	assert.False(t, verdict.IsSafe)
	assert.Equal(t, types.RiskHigh, verdict.RiskLevel)
	assert.Equal(t, 0, oracle.calls, "local rejection must not consult the oracle")
	assert.Equal(t, 0, locks.calls, "local rejection must not hit the chain")
}

func TestExtremeAPRRejectedLocally(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}
	locks := &fakeLocks{report: cleanLockReport()}
	gate := newTestGate(oracle, locks)

	pool := healthyPool()
	pool.Day.APR = 1500

	verdict := gate.Evaluate(context.Background(), pool)

	assert.False(t, verdict.IsSafe)
	assert.Equal(t, 0, oracle.calls)
}

func TestRugPatternRequiresBothConditions(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}
	locks := &fakeLocks{report: cleanLockReport()}
	gate := newTestGate(oracle, locks)

	// High APR on a deep pool is a warning, not a rejection.
	deep := healthyPool()
	deep.TvlUSD = 200000
	deep.Day.APR = 600
	verdict := gate.Evaluate(context.Background(), deep)
	assert.True(t, verdict.IsSafe)
	assert.NotEmpty(t, verdict.Warnings)

	// The same APR on a tiny pool is the rug shape.
	tiny := healthyPool()
	tiny.TvlUSD = 4000
	tiny.Day.APR = 600
	verdict = gate.Evaluate(context.Background(), tiny)
	assert.False(t, verdict.IsSafe)
}

func TestOracleUnavailableFailsClosed(t *testing.T) {
	oracle := &fakeOracle{report: TokenReport{Available: false, RiskScore: 100, RiskLevel: "unknown"}}
	locks := &fakeLocks{report: cleanLockReport()}
	gate := newTestGate(oracle, locks)

	verdict := gate.Evaluate(context.Background(), healthyPool())

	require.False(t, verdict.IsSafe)
	assert.Contains(t, verdict.Risks, "Token safety oracle unavailable")
	assert.Equal(t, 0, locks.calls, "oracle rejection must not hit the chain")
}

func TestOracleHardRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TokenReport)
	}{
		{"rugged", func(r *TokenReport) { r.IsRugged = true }},
		{"risk score", func(r *TokenReport) { r.RiskScore = 80 }},
		{"freeze authority", func(r *TokenReport) { r.HasFreezeAuthority = true }},
		{"mint authority", func(r *TokenReport) { r.HasMintAuthority = true }},
		{"mutable metadata", func(r *TokenReport) { r.HasMutableMetadata = true }},
		{"low lp providers", func(r *TokenReport) { r.LowLPProviders = true }},
		{"top10 concentration", func(r *TokenReport) { r.Top10HolderPct = 55 }},
		{"single holder", func(r *TokenReport) { r.MaxSingleHolderPct = 30 }},
		{"holder count", func(r *TokenReport) { r.TotalHolders = 40 }},
		{"oracle danger", func(r *TokenReport) { r.Dangers = []string{"honeypot detected"} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := cleanOracleReport()
			tc.mutate(&report)
			oracle := &fakeOracle{report: report}
			locks := &fakeLocks{report: cleanLockReport()}
			gate := newTestGate(oracle, locks)

			verdict := gate.Evaluate(context.Background(), healthyPool())

			assert.False(t, verdict.IsSafe)
			assert.Equal(t, 0, locks.calls)
		})
	}
}

func TestLockDataUnavailableFailsClosed(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}
	locks := &fakeLocks{report: LockReport{Available: false, UnlockedPct: 100, MaxSingleUnlocked: 100}}
	gate := newTestGate(oracle, locks)

	verdict := gate.Evaluate(context.Background(), healthyPool())

	assert.False(t, verdict.IsSafe)
	assert.Contains(t, verdict.Risks, "LP lock data unavailable")
}

func TestSingleWalletPullableScaledByBurn(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}

	// 60% of circulating supply is one unlocked wallet, but 95% of the
	// original supply is burned, so it can only pull 3% of the pool.
	locks := &fakeLocks{report: LockReport{
		Available:         true,
		TotalSupply:       1_000_000,
		ContractLockedPct: 40,
		UnlockedPct:       60,
		SafePct:           40,
		MaxSingleUnlocked: 60,
	}}
	gate := newTestGate(oracle, locks)

	pool := healthyPool()
	pool.BurnPercent = 95

	verdict := gate.Evaluate(context.Background(), pool)
	assert.True(t, verdict.IsSafe)

	// With only 50% burned the same wallet can pull 30%, over the limit.
	oracle2 := &fakeOracle{report: cleanOracleReport()}
	locks2 := &fakeLocks{report: locks.report}
	gate = newTestGate(oracle2, locks2)
	pool.BurnPercent = 50

	verdict = gate.Evaluate(context.Background(), pool)
	assert.False(t, verdict.IsSafe)
}

func TestEffectiveSafeFloor(t *testing.T) {
	oracle := &fakeOracle{report: cleanOracleReport()}

	// Burn 50%, nothing locked on the remainder: effective safe is 50%.
	locks := &fakeLocks{report: LockReport{
		Available:         true,
		TotalSupply:       1_000_000,
		UnlockedPct:       100,
		SafePct:           0,
		MaxSingleUnlocked: 4,
	}}
	gate := newTestGate(oracle, locks)

	pool := healthyPool()
	pool.BurnPercent = 50

	verdict := gate.Evaluate(context.Background(), pool)

	assert.False(t, verdict.IsSafe)
	assert.InDelta(t, 50.0, verdict.EffectiveSafe, 0.01)
}

func TestLiquidityTiers(t *testing.T) {
	assert.Equal(t, types.TierHigh, liquidityTier(150000))
	assert.Equal(t, types.TierMedium, liquidityTier(75000))
	assert.Equal(t, types.TierLow, liquidityTier(20000))
}
