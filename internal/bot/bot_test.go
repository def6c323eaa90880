package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karlokr/raydium-lp-bot/internal/config"
	"github.com/karlokr/raydium-lp-bot/internal/position"
	"github.com/karlokr/raydium-lp-bot/internal/scorer"
	"github.com/karlokr/raydium-lp-bot/internal/solana"
	"github.com/karlokr/raydium-lp-bot/internal/state"
	"github.com/karlokr/raydium-lp-bot/internal/types"
	"github.com/karlokr/raydium-lp-bot/internal/velocity"
)

type fakeMarket struct {
	pools    []types.Pool
	byMint   map[string]types.Pool
	priceUSD float64
}

func (m *fakeMarket) GetAllPools(bool) ([]types.Pool, error) { return m.pools, nil }

func (m *fakeMarket) GetPoolByID(id types.PoolID) (types.Pool, error) {
	for _, p := range m.pools {
		if p.ID == id {
			return p, nil
		}
	}
	return types.Pool{}, fmt.Errorf("pool %s not found", id)
}

func (m *fakeMarket) FindPoolForMint(mint string) (types.Pool, error) {
	if p, ok := m.byMint[mint]; ok {
		return p, nil
	}
	return types.Pool{}, fmt.Errorf("no pool for mint %s", mint)
}

func (m *fakeMarket) GetFilteredPools(minLiquidity, minRatio, minAPR float64) ([]types.Pool, error) {
	var out []types.Pool
	for _, p := range m.pools {
		if p.TvlUSD >= minLiquidity && p.VolumeTVLRatio() >= minRatio && p.Day.APR >= minAPR {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *fakeMarket) SOLPriceUSD() float64 { return m.priceUSD }

type fakeGate struct {
	mu       sync.Mutex
	rejected map[types.PoolID][]string
	calls    int
}

func (g *fakeGate) Evaluate(_ context.Context, pool types.Pool) types.SafetyVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	v := types.SafetyVerdict{PoolID: pool.ID, BurnPercent: pool.BurnPercent}
	if risks, ok := g.rejected[pool.ID]; ok {
		v.Risks = risks
		v.RiskLevel = types.RiskHigh
		return v
	}
	v.IsSafe = true
	v.RiskLevel = types.RiskLow
	return v
}

type fakeExecutor struct {
	mu            sync.Mutex
	balanceSOL    float64
	tokenAccounts []types.TokenBalance
	lpValues      map[types.PoolID]types.LPValue
	removeCalls   map[types.PoolID]int
	removeGate    chan struct{}
	swaps         []string
	failAdd       bool
	closedKeep    []string
	closedCalls   int
}

func newFakeExecutor(balance float64) *fakeExecutor {
	return &fakeExecutor{
		balanceSOL:  balance,
		lpValues:    make(map[types.PoolID]types.LPValue),
		removeCalls: make(map[types.PoolID]int),
	}
}

func (e *fakeExecutor) GetSOLBalance(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balanceSOL, nil
}

func (e *fakeExecutor) GetTokenBalance(_ context.Context, mint string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, acct := range e.tokenAccounts {
		if acct.Mint == mint {
			return acct.Amount, nil
		}
	}
	return 0, nil
}

func (e *fakeExecutor) UnwrapWSOL(context.Context) (float64, error) { return 0, nil }

func (e *fakeExecutor) Swap(_ context.Context, poolID types.PoolID, amountIn float64, dir solana.SwapDirection) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.swaps = append(e.swaps, fmt.Sprintf("%s:%s:%.4f", poolID, dir, amountIn))
	return "sig-swap", nil
}

func (e *fakeExecutor) AddLiquidity(_ context.Context, poolID types.PoolID, _, _ float64) (solana.AddLiquidityResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAdd {
		return solana.AddLiquidityResult{}, fmt.Errorf("%w: deposit rejected", solana.ErrBridgeFailed)
	}
	return solana.AddLiquidityResult{Signature: "sig-add", LPMint: "lp-" + string(poolID)}, nil
}

func (e *fakeExecutor) RemoveLiquidity(_ context.Context, poolID types.PoolID, _ float64) (string, error) {
	e.mu.Lock()
	e.removeCalls[poolID]++
	gate := e.removeGate
	e.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return "sig-remove", nil
}

func (e *fakeExecutor) GetLPValue(_ context.Context, poolID types.PoolID, _ string) (types.LPValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lpValues[poolID], nil
}

func (e *fakeExecutor) BatchGetLPValues(_ context.Context, queries []solana.LPValueQuery) (map[types.PoolID]types.LPValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[types.PoolID]types.LPValue, len(queries))
	for _, q := range queries {
		out[q.PoolID] = e.lpValues[q.PoolID]
	}
	return out, nil
}

func (e *fakeExecutor) ListTokenAccounts(context.Context) ([]types.TokenBalance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.TokenBalance, len(e.tokenAccounts))
	copy(out, e.tokenAccounts)
	return out, nil
}

func (e *fakeExecutor) CloseEmptyAccounts(_ context.Context, keepMints []string) (solana.CloseAccountsResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closedCalls++
	e.closedKeep = keepMints
	return solana.CloseAccountsResult{}, nil
}

func (e *fakeExecutor) removeCount(poolID types.PoolID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeCalls[poolID]
}

func testPool(id string, tvl, apr, netEdge float64) types.Pool {
	return types.Pool{
		ID:           types.PoolID(id),
		Name:         id + "/SOL",
		BaseMint:     "mint-" + id,
		QuoteMint:    wsolMint,
		LPMint:       "lp-" + id,
		TvlUSD:       tvl,
		SwapFeeRate:  0.0025,
		BurnPercent:  95,
		Price:        0.002,
		BaseReserve:  100_000,
		QuoteReserve: 400,
		Day: types.PoolWindow{
			Volume: tvl * 2, APR: apr, FeeAPR: apr + netEdge, RewardAPR: 0,
			PriceMin: 0.0019, PriceMax: 0.0021,
		},
		Week: types.PoolWindow{
			Volume: tvl * 12, APR: apr, FeeAPR: apr + netEdge,
			PriceMin: 0.0019, PriceMax: 0.0021,
		},
	}
}

func newTestBot(t *testing.T, market *fakeMarket, gate SafetyGate, exec *fakeExecutor) *Bot {
	t.Helper()

	params, err := config.LoadParameters()
	require.NoError(t, err)

	tracker := velocity.NewTracker(velocity.DefaultMaxSamples)
	dir := t.TempDir()

	b, err := New(Config{
		Params:    params,
		Market:    market,
		Gate:      gate,
		Scorer:    scorer.NewScorer(params, tracker),
		Velocity:  tracker,
		Positions: position.NewStore(params),
		Executor:  exec,
		Store:     state.NewStore(filepath.Join(dir, "bot_state.json")),
		History:   state.NewHistoryLog(filepath.Join(dir, "trade_history.jsonl")),
	})
	require.NoError(t, err)
	return b
}

func shortDelays(t *testing.T) {
	t.Helper()
	origConfirm, origRetry := lpConfirmDelays, exitRetryDelays
	lpConfirmDelays = []time.Duration{time.Millisecond}
	exitRetryDelays = []time.Duration{0, time.Millisecond}
	t.Cleanup(func() {
		lpConfirmDelays = origConfirm
		exitRetryDelays = origRetry
	})
}

func quietDisplay(t *testing.T) {
	t.Helper()
	orig := statusOut
	statusOut = io.Discard
	t.Cleanup(func() { statusOut = orig })
}

func TestPlanPositionSize(t *testing.T) {
	exec := newFakeExecutor(20)
	b := newTestBot(t, &fakeMarket{}, &fakeGate{}, exec)
	ctx := context.Background()

	// 20 SOL wallet, 3 slots: the equal split exceeds the per-position
	// ceiling and clamps to it.
	assert.Equal(t, b.params.MaxPositionSOL, b.planPositionSize(ctx, 3))

	assert.Zero(t, b.planPositionSize(ctx, 0))

	// Dust balance yields no entry at all.
	exec.mu.Lock()
	exec.balanceSOL = b.params.ReserveSOL + b.params.MinPositionSOL/2
	exec.mu.Unlock()
	b.balanceAt = time.Time{}
	assert.Zero(t, b.planPositionSize(ctx, 3))

	// Mid-range balance splits equally across slots.
	exec.mu.Lock()
	exec.balanceSOL = 3.05
	exec.mu.Unlock()
	b.balanceAt = time.Time{}
	assert.InDelta(t, 1.0, b.planPositionSize(ctx, 3), 1e-9)
}

func TestScanFiltersGatesAndRanks(t *testing.T) {
	quietDisplay(t)

	// Six candidates: one with emissions-only yield under the fee APR
	// floor, two rejected by the gate, three admitted with distinct net
	// returns.
	emissions := testPool("emissions", 95_000, 180, 100)
	emissions.Day.FeeAPR = 20
	emissions.Week.FeeAPR = 20
	pools := []types.Pool{
		testPool("alpha", 120_000, 180, 120),
		testPool("bravo", 90_000, 180, 40),
		testPool("burned", 80_000, 180, 100),
		testPool("rugged", 70_000, 180, 100),
		testPool("charlie", 100_000, 180, 80),
		emissions,
	}
	market := &fakeMarket{pools: pools}
	gate := &fakeGate{rejected: map[types.PoolID][]string{
		"burned": {"LP burn 40.0% below minimum 50.0%"},
		"rugged": {"Token flagged as rugged"},
	}}
	exec := newFakeExecutor(10)
	b := newTestBot(t, market, gate, exec)

	b.scanOnce(context.Background())

	// Velocity history covers every fetched pool, gated or not. The
	// fee-floor rejection is local and never reaches the gate.
	assert.Equal(t, 6, b.velocity.PoolCount())
	assert.Equal(t, 5, gate.calls)

	scan := b.lastScanCopy()
	require.Len(t, scan, 3)
	assert.Equal(t, types.PoolID("alpha"), scan[0].Pool.ID)
	assert.Equal(t, types.PoolID("charlie"), scan[1].Pool.ID)
	assert.Equal(t, types.PoolID("bravo"), scan[2].Pool.ID)
	for i := 1; i < len(scan); i++ {
		assert.GreaterOrEqual(t,
			scan[i-1].Score.PredictedNetReturnPct,
			scan[i].Score.PredictedNetReturnPct)
	}

	// All three admitted pools fit the free slots and get queued in
	// ranked order.
	require.Len(t, b.entryQueue, 3)
	first := <-b.entryQueue
	assert.Equal(t, types.PoolID("alpha"), first.Pool.ID)
	assert.Greater(t, first.SizeSOL, 0.0)
}

func TestEnterPositionHappyPath(t *testing.T) {
	shortDelays(t)

	pool := testPool("alpha", 120_000, 180, 120)
	exec := newFakeExecutor(10)
	exec.tokenAccounts = []types.TokenBalance{
		{Mint: pool.BaseMint, Amount: 500_000_000, Decimals: 6, UIAmount: 500},
		{Mint: "lp-alpha", Amount: 1_000_000, Decimals: 9, UIAmount: 0.001},
	}
	b := newTestBot(t, &fakeMarket{pools: []types.Pool{pool}}, &fakeGate{}, exec)

	cand := entryCandidate{Pool: pool, SizeSOL: 2.0}
	require.NoError(t, b.enterPosition(context.Background(), cand))

	pos, ok := b.positions.Get(pool.ID)
	require.True(t, ok)
	assert.Equal(t, 2.0, pos.CapitalSOL)
	assert.Equal(t, "lp-alpha", pos.LPMint)
	assert.Equal(t, uint64(1_000_000), pos.LPBalance)
	assert.Equal(t, 9, pos.LPDecimals)
	assert.Equal(t, 500.0, pos.BaseAmount)
	assert.Equal(t, 1.0, pos.QuoteAmount)

	// One buy swap for half the capital, no sells.
	require.Len(t, exec.swaps, 1)
	assert.Equal(t, "alpha:buy:1.0000", exec.swaps[0])

	// Snapshot was written by the entry.
	_, found, err := b.store.Load()
	require.NoError(t, err)
	assert.True(t, found)
}

func TestEnterPositionRollsBackFailedDeposit(t *testing.T) {
	shortDelays(t)

	pool := testPool("alpha", 120_000, 180, 120)
	exec := newFakeExecutor(10)
	exec.failAdd = true
	exec.tokenAccounts = []types.TokenBalance{
		{Mint: pool.BaseMint, Amount: 500_000_000, Decimals: 6, UIAmount: 500},
	}
	b := newTestBot(t, &fakeMarket{pools: []types.Pool{pool}}, &fakeGate{}, exec)

	err := b.enterPosition(context.Background(), entryCandidate{Pool: pool, SizeSOL: 2.0})
	require.Error(t, err)

	_, ok := b.positions.Get(pool.ID)
	assert.False(t, ok)

	// The buy leg is reversed by a sell of the acquired tokens.
	require.Len(t, exec.swaps, 2)
	assert.Equal(t, "alpha:buy:1.0000", exec.swaps[0])
	assert.Equal(t, "alpha:sell:500.0000", exec.swaps[1])
}

func openPosition(t *testing.T, b *Bot, pool types.Pool, capital float64) {
	t.Helper()
	require.NoError(t, b.positions.Add(types.Position{
		PoolID:     pool.ID,
		PoolName:   pool.Name,
		EntryTime:  time.Now().Add(-time.Hour),
		EntryPrice: pool.Price,
		CapitalSOL: capital,
		BaseMint:   pool.BaseMint,
		LPMint:     pool.LPMint,
		LPBalance:  1_000_000,
		LPDecimals: 9,
	}))
}

func TestSimultaneousStopLossesEachClosedOnce(t *testing.T) {
	shortDelays(t)

	alpha := testPool("alpha", 120_000, 180, 120)
	bravo := testPool("bravo", 90_000, 180, 80)
	exec := newFakeExecutor(10)
	b := newTestBot(t, &fakeMarket{pools: []types.Pool{alpha, bravo}}, &fakeGate{}, exec)

	openPosition(t, b, alpha, 2.0)
	openPosition(t, b, bravo, 2.0)
	b.velocity.Record(alpha.ID, alpha.Day.Volume, alpha.TvlUSD, alpha.Price)
	b.velocity.Record(bravo.ID, bravo.Day.Volume, bravo.TvlUSD, bravo.Price)

	// Both valuations are 20% under water, past the stop loss.
	exec.mu.Lock()
	exec.lpValues[alpha.ID] = types.LPValue{ValueSOL: 1.6, PriceRatio: alpha.Price, LPBalance: 1_000_000}
	exec.lpValues[bravo.ID] = types.LPValue{ValueSOL: 1.6, PriceRatio: bravo.Price, LPBalance: 1_000_000}
	exec.mu.Unlock()

	ctx := context.Background()
	// Two ticks back to back: the pending-exit claim must make the
	// second tick a no-op for both positions.
	b.checkPositions(ctx)
	b.checkPositions(ctx)

	// Both trade records are the last write of each exit; waiting on them
	// means both unwinds have fully finished.
	require.Eventually(t, func() bool {
		records, err := b.history.ReadAll()
		return err == nil && len(records) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Zero(t, b.positions.Count())
	assert.Equal(t, 1, exec.removeCount(alpha.ID))
	assert.Equal(t, 1, exec.removeCount(bravo.ID))

	records, err := b.history.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, types.ExitStopLoss, rec.Reason)
	}

	// Loss exits put both pools on cooldown.
	okA, _ := b.positions.Eligible(alpha.ID, time.Now())
	okB, _ := b.positions.Eligible(bravo.ID, time.Now())
	assert.False(t, okA)
	assert.False(t, okB)

	// Closing wipes the pools' momentum history.
	assert.Zero(t, b.velocity.PoolCount())
}

func TestShutdownLetsInFlightExitFinish(t *testing.T) {
	shortDelays(t)

	alpha := testPool("alpha", 120_000, 180, 120)
	exec := newFakeExecutor(10)
	gate := make(chan struct{})
	exec.removeGate = gate
	b := newTestBot(t, &fakeMarket{pools: []types.Pool{alpha}}, &fakeGate{}, exec)

	openPosition(t, b, alpha, 2.0)
	exec.mu.Lock()
	exec.lpValues[alpha.ID] = types.LPValue{ValueSOL: 1.6, PriceRatio: alpha.Price, LPBalance: 1_000_000}
	exec.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	b.checkPositions(ctx)

	// The exit is mid-remove when the shutdown signal lands.
	require.Eventually(t, func() bool {
		return exec.removeCount(alpha.ID) == 1
	}, time.Second, time.Millisecond)
	cancel()
	close(gate)

	done := make(chan struct{})
	go func() {
		b.exitWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight exit was not joined")
	}

	// The cancelled loop context did not abort the unwind.
	assert.Zero(t, b.positions.Count())
	assert.Equal(t, 1, exec.removeCount(alpha.ID))
	records, err := b.history.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ExitStopLoss, records[0].Reason)
}

func TestSessionSummarySkippedWithoutDB(t *testing.T) {
	var buf bytes.Buffer
	orig := statusOut
	statusOut = &buf
	t.Cleanup(func() { statusOut = orig })

	b := newTestBot(t, &fakeMarket{}, &fakeGate{}, newFakeExecutor(10))
	b.printSessionSummary()

	assert.Empty(t, buf.String())
}

func TestRecoveryClosesGhostsAndSweeps(t *testing.T) {
	shortDelays(t)

	alive := testPool("alive", 120_000, 180, 120)
	ghost := testPool("ghost", 90_000, 180, 80)
	stray := testPool("stray", 80_000, 180, 60)

	dir := t.TempDir()
	statePath := filepath.Join(dir, "bot_state.json")

	// Persist two positions, then rebuild the bot as a restart would.
	seed := state.NewStore(statePath)
	require.NoError(t, seed.Save(state.BotState{
		Bookkeeping: position.Snapshot{
			Positions: []types.Position{
				{
					PoolID: alive.ID, PoolName: alive.Name, EntryTime: time.Now().Add(-time.Hour),
					EntryPrice: alive.Price, CapitalSOL: 2, BaseMint: alive.BaseMint,
					LPMint: alive.LPMint, LPBalance: 1, LPDecimals: 9,
				},
				{
					PoolID: ghost.ID, PoolName: ghost.Name, EntryTime: time.Now().Add(-time.Hour),
					EntryPrice: ghost.Price, CapitalSOL: 2, BaseMint: ghost.BaseMint,
					LPMint: ghost.LPMint, LPBalance: 1, LPDecimals: 9,
				},
			},
		},
		Velocity: map[types.PoolID][]types.VelocitySample{
			alive.ID: {{Timestamp: time.Now().Unix(), Volume24h: alive.Day.Volume, TVL: alive.TvlUSD, Price: alive.Price}},
			ghost.ID: {{Timestamp: time.Now().Unix(), Volume24h: ghost.Day.Volume, TVL: ghost.TvlUSD, Price: ghost.Price}},
		},
	}))

	market := &fakeMarket{
		pools:  []types.Pool{alive, ghost, stray},
		byMint: map[string]types.Pool{stray.BaseMint: stray},
	}
	exec := newFakeExecutor(10)
	exec.lpValues[alive.ID] = types.LPValue{ValueSOL: 2.1, PriceRatio: alive.Price, LPBalance: 2_000_000}
	exec.lpValues[ghost.ID] = types.LPValue{}
	exec.tokenAccounts = []types.TokenBalance{
		{Mint: stray.BaseMint, Amount: 42_000_000, Decimals: 6, UIAmount: 42},
	}

	b := newTestBot(t, market, &fakeGate{}, exec)
	b.store = state.NewStore(statePath)

	require.NoError(t, b.Recover(context.Background()))

	// The ghost is gone from the books and recorded in history.
	_, ok := b.positions.Get(ghost.ID)
	assert.False(t, ok)
	records, err := b.history.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ExitGhost, records[0].Reason)

	// The ghost close wiped its restored momentum history; the survivor
	// kept its samples.
	momentum := b.velocity.Export()
	assert.NotContains(t, momentum, ghost.ID)
	assert.Contains(t, momentum, alive.ID)

	// The surviving position picked up its on-chain LP balance.
	pos, ok := b.positions.Get(alive.ID)
	require.True(t, ok)
	assert.Equal(t, uint64(2_000_000), pos.LPBalance)

	// The stray token was sold through its pairing pool.
	exec.mu.Lock()
	swaps := append([]string(nil), exec.swaps...)
	keep := append([]string(nil), exec.closedKeep...)
	exec.mu.Unlock()
	assert.Contains(t, swaps, "stray:sell:42.0000")
	assert.Contains(t, keep, alive.BaseMint)
	assert.Contains(t, keep, alive.LPMint)
}

func scriptPrompt(t *testing.T, answer string) {
	t.Helper()
	orig := promptIn
	promptIn = strings.NewReader(answer)
	t.Cleanup(func() { promptIn = orig })
}

func TestStartupPromptClosesRestoredPositions(t *testing.T) {
	shortDelays(t)
	quietDisplay(t)
	scriptPrompt(t, "y\n")

	alpha := testPool("alpha", 120_000, 180, 120)
	exec := newFakeExecutor(10)
	exec.lpValues[alpha.ID] = types.LPValue{ValueSOL: 2.0, PriceRatio: alpha.Price, LPBalance: 1_000_000}
	b := newTestBot(t, &fakeMarket{pools: []types.Pool{alpha}}, &fakeGate{}, exec)
	b.interactive = true

	openPosition(t, b, alpha, 2.0)
	require.NoError(t, b.store.Save(state.BotState{Bookkeeping: b.positions.Export()}))
	b.positions = position.NewStore(b.params)

	require.NoError(t, b.Recover(context.Background()))

	assert.Zero(t, b.positions.Count())
	assert.Equal(t, 1, exec.removeCount(alpha.ID))
	records, err := b.history.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ExitManual, records[0].Reason)
}

func TestStartupPromptKeepsPositionsOnDecline(t *testing.T) {
	shortDelays(t)
	quietDisplay(t)
	scriptPrompt(t, "n\n")

	alpha := testPool("alpha", 120_000, 180, 120)
	exec := newFakeExecutor(10)
	exec.lpValues[alpha.ID] = types.LPValue{ValueSOL: 2.0, PriceRatio: alpha.Price, LPBalance: 1_000_000}
	b := newTestBot(t, &fakeMarket{pools: []types.Pool{alpha}}, &fakeGate{}, exec)
	b.interactive = true

	openPosition(t, b, alpha, 2.0)
	require.NoError(t, b.store.Save(state.BotState{Bookkeeping: b.positions.Export()}))
	b.positions = position.NewStore(b.params)

	require.NoError(t, b.Recover(context.Background()))

	assert.Equal(t, 1, b.positions.Count())
	assert.Zero(t, exec.removeCount(alpha.ID))
}

func TestCheckPositionsSkipsPendingExit(t *testing.T) {
	shortDelays(t)

	alpha := testPool("alpha", 120_000, 180, 120)
	exec := newFakeExecutor(10)
	b := newTestBot(t, &fakeMarket{pools: []types.Pool{alpha}}, &fakeGate{}, exec)

	openPosition(t, b, alpha, 2.0)
	require.True(t, b.positions.SetPendingExit(alpha.ID, true))

	exec.mu.Lock()
	exec.lpValues[alpha.ID] = types.LPValue{ValueSOL: 1.0, PriceRatio: alpha.Price, LPBalance: 1_000_000}
	exec.mu.Unlock()

	b.checkPositions(context.Background())
	time.Sleep(50 * time.Millisecond)

	// No valuation was applied and no second exit started.
	pos, ok := b.positions.Get(alpha.ID)
	require.True(t, ok)
	assert.Zero(t, pos.CurrentValueSOL)
	assert.Zero(t, exec.removeCount(alpha.ID))
}
