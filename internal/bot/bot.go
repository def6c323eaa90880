/*

This file contains the orchestrator: loop scheduling, shared wiring, and
the throttled wallet-balance view.

Concurrency contract: the position store owns all position bookkeeping
behind its own lock; entries run on a single sequential worker so
capital sizing is never raced; exits run in parallel but each position
is claimed through the pending-exit flag before any transaction is
sent. Every state-changing event is followed by a snapshot save.

*/

package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/position"
	"github.com/karlokr/raydium-lp-bot/internal/solana"
	"github.com/karlokr/raydium-lp-bot/internal/state"
	"github.com/karlokr/raydium-lp-bot/internal/types"
	"github.com/karlokr/raydium-lp-bot/internal/velocity"
)

var botLogger = logger.GetForComponent("bot")

// timeNow is swapped in tests to drive cooldown clocks.
var timeNow = time.Now

// MarketData is the pool feed surface the orchestrator consumes.
type MarketData interface {
	GetAllPools(forceRefresh bool) ([]types.Pool, error)
	GetPoolByID(id types.PoolID) (types.Pool, error)
	FindPoolForMint(mint string) (types.Pool, error)
	GetFilteredPools(minLiquidity, minVolumeTVLRatio, minAPR float64) ([]types.Pool, error)
	SOLPriceUSD() float64
}

// SafetyGate admits or rejects a pool before scoring.
type SafetyGate interface {
	Evaluate(ctx context.Context, pool types.Pool) types.SafetyVerdict
}

// PoolScorer ranks admitted pools by predicted net return.
type PoolScorer interface {
	Score(pool types.Pool, positionSizeSOL float64) (types.ScoreResult, error)
	Admissible(result types.ScoreResult, positionSizeSOL float64) bool
}

// entryCandidate is one queued entry decision, carrying the capital
// plan computed at scan time.
type entryCandidate struct {
	Pool    types.Pool
	Verdict types.SafetyVerdict
	Score   types.ScoreResult
	SizeSOL float64
}

// Config collects the orchestrator's dependencies.
type Config struct {
	Params    types.StrategyParameters
	Market    MarketData
	Gate      SafetyGate
	Scorer    PoolScorer
	Velocity  *velocity.Tracker
	Positions *position.Store
	Executor  solana.Executor
	Store     *state.Store
	History   *state.HistoryLog

	// Interactive enables the startup prompt for restored positions.
	Interactive bool
}

// Bot wires every component and runs the loops.
type Bot struct {
	params      types.StrategyParameters
	market      MarketData
	gate        SafetyGate
	scorer      PoolScorer
	velocity    *velocity.Tracker
	positions   *position.Store
	exec        solana.Executor
	store       *state.Store
	history     *state.HistoryLog
	interactive bool

	entryQueue chan entryCandidate

	// exitWG tracks in-flight exit goroutines so shutdown can join them.
	exitWG sync.WaitGroup

	// balance is the throttled ledger view of the wallet.
	balanceMu sync.Mutex
	balance   float64
	balanceAt time.Time

	// lastScan is kept for the status display and the snapshot.
	scanMu   sync.Mutex
	lastScan []types.RankedPool
}

// New wires a bot from its components.
func New(cfg Config) (*Bot, error) {
	switch {
	case cfg.Market == nil:
		return nil, errors.New("bot config is missing the market-data client")
	case cfg.Gate == nil:
		return nil, errors.New("bot config is missing the safety gate")
	case cfg.Scorer == nil:
		return nil, errors.New("bot config is missing the scorer")
	case cfg.Velocity == nil:
		return nil, errors.New("bot config is missing the velocity tracker")
	case cfg.Positions == nil:
		return nil, errors.New("bot config is missing the position store")
	case cfg.Executor == nil:
		return nil, errors.New("bot config is missing the executor")
	case cfg.Store == nil:
		return nil, errors.New("bot config is missing the state store")
	case cfg.History == nil:
		return nil, errors.New("bot config is missing the trade history")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("bot config parameters: %w", err)
	}

	return &Bot{
		params:      cfg.Params,
		market:      cfg.Market,
		gate:        cfg.Gate,
		scorer:      cfg.Scorer,
		velocity:    cfg.Velocity,
		positions:   cfg.Positions,
		exec:        cfg.Executor,
		store:       cfg.Store,
		history:     cfg.History,
		interactive: cfg.Interactive,
		entryQueue:  make(chan entryCandidate, cfg.Params.MaxConcurrentPositions*2),
	}, nil
}

// Run starts all loops and blocks until ctx is cancelled and every loop
// has drained.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Recover(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	loops := []struct {
		name string
		fn   func(context.Context)
	}{
		{"scan", b.runScanLoop},
		{"entry", b.runEntryWorker},
		{"positions", b.runPositionLoop},
		{"display", b.runDisplayLoop},
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(name string, fn func(context.Context)) {
			defer wg.Done()
			botLogger.Info().Str("loop", name).Msg("Loop started")
			fn(ctx)
			botLogger.Info().Str("loop", name).Msg("Loop stopped")
		}(loop.name, loop.fn)
	}

	wg.Wait()
	b.drainExits()
	b.saveState()
	b.printSessionSummary()
	botLogger.Info().Msg("All loops drained, final state saved")
	return nil
}

// WalletBalance returns the SOL balance, refreshing from the ledger at
// most once per BalanceRefreshMin unless forced.
func (b *Bot) WalletBalance(ctx context.Context, force bool) float64 {
	b.balanceMu.Lock()
	defer b.balanceMu.Unlock()

	if !force && !b.balanceAt.IsZero() && time.Since(b.balanceAt) < b.params.BalanceRefreshMin {
		return b.balance
	}

	bal, err := b.exec.GetSOLBalance(ctx)
	if err != nil {
		botLogger.Warn().Err(err).Msg("Balance refresh failed, using last known value")
		return b.balance
	}
	b.balance = bal
	b.balanceAt = time.Now()
	return bal
}

// availableCapital is the deployable balance after the fee reserve and
// already-deployed capital tracking.
func (b *Bot) availableCapital(ctx context.Context, force bool) float64 {
	avail := b.WalletBalance(ctx, force) - b.params.ReserveSOL
	if avail < 0 {
		return 0
	}
	return avail
}

// saveState writes the full snapshot. Failures are logged, never fatal:
// the in-memory state stays authoritative until the next save succeeds.
func (b *Bot) saveState() {
	b.scanMu.Lock()
	lastScan := b.lastScan
	b.scanMu.Unlock()

	err := b.store.Save(state.BotState{
		Bookkeeping: b.positions.Export(),
		Velocity:    b.velocity.Export(),
		LastScan:    lastScan,
	})
	if err != nil {
		botLogger.Error().Err(err).Msg("State snapshot save failed")
	}
}

// setLastScan records the most recent ranked scan for display.
func (b *Bot) setLastScan(ranked []types.RankedPool) {
	b.scanMu.Lock()
	b.lastScan = ranked
	b.scanMu.Unlock()
}

// lastScanCopy returns the most recent ranked scan.
func (b *Bot) lastScanCopy() []types.RankedPool {
	b.scanMu.Lock()
	defer b.scanMu.Unlock()
	out := make([]types.RankedPool, len(b.lastScan))
	copy(out, b.lastScan)
	return out
}

func (b *Bot) runScanLoop(ctx context.Context) {
	// First scan runs immediately; the ticker paces the rest.
	b.scanOnce(ctx)

	ticker := time.NewTicker(b.params.PoolScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.scanOnce(ctx)
		}
	}
}

func (b *Bot) runPositionLoop(ctx context.Context) {
	ticker := time.NewTicker(b.params.PositionCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.checkPositions(ctx)
		}
	}
}

func (b *Bot) runDisplayLoop(ctx context.Context) {
	ticker := time.NewTicker(b.params.DisplayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.printStatus(ctx)
		}
	}
}
