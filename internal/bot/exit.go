/*

This file contains the position monitor and the exit executor.

Valuations for all open positions are fetched in one batched call per
tick. Exit triggers are evaluated in priority order inside the position
package; this file owns execution: claiming the position through the
pending-exit flag, unwinding liquidity with retries, selling the token
side back, and recording the closed trade.

*/

package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/position"
	"github.com/karlokr/raydium-lp-bot/internal/solana"
	"github.com/karlokr/raydium-lp-bot/internal/state"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

// exitRetryDelays paces remove-liquidity attempts; the first try is
// immediate.
var exitRetryDelays = []time.Duration{0, 3 * time.Second, 5 * time.Second}

// ghostGracePeriod protects freshly opened positions whose LP receipt
// has not settled yet from being misread as ghosts.
const ghostGracePeriod = 2 * time.Minute

// exitExecTimeout bounds a single exit's unwind once it has started.
const exitExecTimeout = 2 * time.Minute

// exitDrainTimeout bounds the shutdown join on in-flight exits.
const exitDrainTimeout = exitExecTimeout + 10*time.Second

func (b *Bot) checkPositions(ctx context.Context) {
	open := b.positions.List()
	if len(open) == 0 {
		return
	}

	queries := make([]solana.LPValueQuery, 0, len(open))
	for _, pos := range open {
		if pos.PendingExit {
			continue
		}
		queries = append(queries, solana.LPValueQuery{PoolID: pos.PoolID, LPMint: pos.LPMint})
	}
	if len(queries) == 0 {
		return
	}

	values, err := b.exec.BatchGetLPValues(ctx, queries)
	if err != nil {
		botLogger.Warn().Err(err).Msg("Batch LP valuation failed, skipping tick")
		return
	}

	for _, pos := range open {
		if pos.PendingExit {
			continue
		}
		value, hasValue := values[pos.PoolID]

		if hasValue && value.LPBalance == 0 && time.Since(pos.EntryTime) > ghostGracePeriod {
			b.startExit(ctx, pos.PoolID, types.ExitGhost)
			continue
		}

		b.positions.Update(pos.PoolID, func(p *types.Position) {
			if hasValue && value.LPBalance > 0 {
				p.LPBalance = value.LPBalance
			}
			position.UpdateLiveMetrics(p, valuePriceRatio(pos, value, hasValue), value.ValueSOL, hasValue)
		})

		current, ok := b.positions.Get(pos.PoolID)
		if !ok {
			continue
		}
		if reason, trigger := position.EvaluateExit(current, b.params); trigger {
			b.startExit(ctx, pos.PoolID, reason)
		}
	}
}

// valuePriceRatio derives the current quote/base price for a position
// from the valuation response, falling back to the last known price.
func valuePriceRatio(pos types.Position, value types.LPValue, hasValue bool) float64 {
	if hasValue && value.PriceRatio > 0 {
		return value.PriceRatio
	}
	return pos.CurrentPrice
}

// startExit claims the position and runs the exit on its own goroutine.
// The claim makes concurrent triggers for the same position a no-op.
func (b *Bot) startExit(ctx context.Context, poolID types.PoolID, reason types.ExitReason) {
	if !b.positions.SetPendingExit(poolID, true) {
		return
	}
	botLogger.Info().Str("pool", string(poolID)).Str("reason", string(reason)).Msg("Exit triggered")

	b.exitWG.Add(1)
	go func() {
		defer b.exitWG.Done()

		// The unwind runs on a context detached from the loops: a
		// shutdown signal must not abort an in-flight transaction. Its
		// own deadline bounds it instead.
		exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exitExecTimeout)
		defer cancel()

		if err := b.executeExit(exitCtx, poolID, reason); err != nil {
			botLogger.Error().Err(err).
				Str("pool", string(poolID)).
				Str("reason", string(reason)).
				Msg("Exit failed, position released for retry")
			b.positions.SetPendingExit(poolID, false)
		}
	}()
}

// executeExit unwinds one position: remove liquidity, sell the token
// side, close the books, and persist.
func (b *Bot) executeExit(ctx context.Context, poolID types.PoolID, reason types.ExitReason) error {
	pos, ok := b.positions.Get(poolID)
	if !ok {
		return fmt.Errorf("position %s vanished before exit", poolID)
	}

	var exitSig string
	if reason != types.ExitGhost && pos.LPBalance > 0 {
		lpUI, err := solana.RawToUI(pos.LPBalance, pos.LPDecimals)
		if err != nil {
			return fmt.Errorf("converting LP balance: %w", err)
		}

		exitSig, err = b.removeWithRetries(ctx, poolID, lpUI)
		if err != nil {
			return err
		}

		// Sell whatever token side came back.
		if tokenBal, err := b.tokenBalanceUI(ctx, pos.BaseMint); err == nil && tokenBal.UIAmount > 0 {
			if _, err := b.exec.Swap(ctx, poolID, tokenBal.UIAmount, solana.SwapSell); err != nil {
				botLogger.Warn().Err(err).
					Str("pool", string(poolID)).
					Str("mint", pos.BaseMint).
					Msg("Exit token sell failed, balance left for recovery sweep")
			}
		}
	}

	closed, err := b.positions.RemoveClosed(poolID, reason, timeNow())
	if err != nil {
		return fmt.Errorf("closing books: %w", err)
	}
	// Stale momentum from the closed position must not feed a re-entry.
	b.velocity.ClearPool(poolID)

	record := state.BuildRecord(closed, reason, timeNow(), exitSig)
	if err := b.history.Append(record); err != nil {
		botLogger.Error().Err(err).Str("pool", string(poolID)).Msg("Trade history append failed")
	}
	state.RecordClosedTrade(record, closed.PoolSnapshot)

	b.saveState()
	b.WalletBalance(ctx, true)

	botLogger.Info().
		Str("pool", string(poolID)).
		Str("reason", string(reason)).
		Float64("pnlSOL", closed.UnrealizedPnLSOL).
		Float64("pnlPercent", closed.PnLPercent).
		Int("strikes", b.positions.Strikes(poolID)).
		Msg("Position closed")
	return nil
}

// drainExits joins in-flight exit goroutines at shutdown with a bounded
// wait.
func (b *Bot) drainExits() {
	done := make(chan struct{})
	go func() {
		b.exitWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(exitDrainTimeout):
		botLogger.Warn().Msg("Timed out waiting for in-flight exits to finish")
	}
}

// removeWithRetries attempts the liquidity removal on the escalating
// retry schedule.
func (b *Bot) removeWithRetries(ctx context.Context, poolID types.PoolID, lpUI float64) (string, error) {
	var lastErr error
	for attempt, delay := range exitRetryDelays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		sig, err := b.exec.RemoveLiquidity(ctx, poolID, lpUI)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		botLogger.Warn().Err(err).
			Str("pool", string(poolID)).
			Int("attempt", attempt+1).
			Msg("Remove liquidity attempt failed")
	}
	return "", fmt.Errorf("remove liquidity exhausted retries: %w", lastErr)
}
