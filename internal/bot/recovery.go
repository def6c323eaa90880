/*

This file contains the startup recovery sequence.

Order matters: positions are restored from the snapshot before any
wallet mutation so the sweep knows which balances are spoken for. Then
wrapped native balance is unwrapped, vanished positions are closed as
ghosts, orphaned LP receipts from a crash mid-entry are unwound, stray
token balances are sold back, and empty accounts are closed for rent.

*/

package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/solana"
	"github.com/karlokr/raydium-lp-bot/internal/state"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

// Recover restores persisted state and reconciles the wallet with it.
func (b *Bot) Recover(ctx context.Context) error {
	snap, found, err := b.store.Load()
	if err != nil {
		return fmt.Errorf("loading state snapshot: %w", err)
	}
	if found {
		b.positions.Import(snap.Bookkeeping, timeNow())
		b.velocity.Import(snap.Velocity)
		b.setLastScan(snap.LastScan)
		botLogger.Info().
			Int("positions", b.positions.Count()).
			Int("velocityPools", b.velocity.PoolCount()).
			Msg("State restored from snapshot")
		if b.interactive && b.positions.Count() > 0 {
			b.promptRestored(ctx)
		}
	} else {
		botLogger.Info().Msg("No snapshot found, starting fresh")
	}

	if unwrapped, err := b.exec.UnwrapWSOL(ctx); err != nil {
		botLogger.Warn().Err(err).Msg("WSOL unwrap failed")
	} else if unwrapped > 0 {
		botLogger.Info().Float64("unwrappedSOL", unwrapped).Msg("Unwrapped wrapped native balance")
	}

	b.cleanupGhosts(ctx)
	b.recoverOrphanedLP(ctx)
	b.sweepStrayTokens(ctx)

	keep := b.keepMints()
	if result, err := b.exec.CloseEmptyAccounts(ctx, keep); err != nil {
		botLogger.Warn().Err(err).Msg("Empty-account close failed")
	} else if result.Closed > 0 {
		botLogger.Info().
			Int("closed", result.Closed).
			Float64("reclaimedSOL", result.ReclaimedSOL).
			Msg("Closed empty token accounts")
	}

	b.WalletBalance(ctx, true)
	b.saveState()
	return nil
}

// promptIn is swapped in tests to script the startup prompt.
var promptIn io.Reader = os.Stdin

// promptRestored lists the restored positions and lets the operator
// close them all before monitoring resumes. Anything but an explicit
// yes keeps them.
func (b *Bot) promptRestored(ctx context.Context) {
	restored := b.positions.List()
	fmt.Fprintf(statusOut, "\nRestored %d open position(s):\n", len(restored))
	for _, pos := range restored {
		fmt.Fprintf(statusOut, "  %-16s capital %.4f SOL, held %s\n",
			pos.PoolName, pos.CapitalSOL, pos.HoldDuration().Round(time.Minute))
	}
	fmt.Fprint(statusOut, "Close all restored positions now? [y/N]: ")

	scanner := bufio.NewScanner(promptIn)
	if !scanner.Scan() {
		fmt.Fprintln(statusOut)
		return
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer != "y" && answer != "yes" {
		return
	}

	for _, pos := range restored {
		if !b.positions.SetPendingExit(pos.PoolID, true) {
			continue
		}
		if err := b.executeExit(ctx, pos.PoolID, types.ExitManual); err != nil {
			botLogger.Error().Err(err).Str("pool", string(pos.PoolID)).Msg("Manual close failed")
			b.positions.SetPendingExit(pos.PoolID, false)
		}
	}
}

// cleanupGhosts closes restored positions whose LP receipts no longer
// exist on chain. Their capital already left the tracked flow.
func (b *Bot) cleanupGhosts(ctx context.Context) {
	for _, pos := range b.positions.List() {
		value, err := b.exec.GetLPValue(ctx, pos.PoolID, pos.LPMint)
		if err != nil {
			botLogger.Warn().Err(err).Str("pool", string(pos.PoolID)).Msg("Ghost check valuation failed, keeping position")
			continue
		}
		if value.LPBalance > 0 {
			b.positions.Update(pos.PoolID, func(p *types.Position) {
				p.LPBalance = value.LPBalance
			})
			continue
		}

		botLogger.Warn().Str("pool", string(pos.PoolID)).Msg("Restored position has no LP receipt, closing as ghost")
		closed, err := b.positions.RemoveClosed(pos.PoolID, types.ExitGhost, timeNow())
		if err != nil {
			continue
		}
		b.velocity.ClearPool(pos.PoolID)
		record := state.BuildRecord(closed, types.ExitGhost, timeNow(), "")
		if err := b.history.Append(record); err != nil {
			botLogger.Error().Err(err).Str("pool", string(pos.PoolID)).Msg("Ghost trade history append failed")
		}
		state.RecordClosedTrade(record, closed.PoolSnapshot)
	}
}

// recoverOrphanedLP unwinds LP receipts in the wallet that belong to no
// tracked position, left behind by a crash between deposit and save.
func (b *Bot) recoverOrphanedLP(ctx context.Context) {
	accounts, err := b.exec.ListTokenAccounts(ctx)
	if err != nil {
		botLogger.Warn().Err(err).Msg("Token account listing failed, skipping orphan recovery")
		return
	}

	pools, err := b.market.GetAllPools(false)
	if err != nil {
		botLogger.Warn().Err(err).Msg("Pool fetch failed, skipping orphan recovery")
		return
	}
	byLPMint := make(map[string]types.Pool, len(pools))
	for _, p := range pools {
		if p.LPMint != "" {
			byLPMint[p.LPMint] = p
		}
	}

	tracked := make(map[string]bool)
	for _, pos := range b.positions.List() {
		tracked[pos.LPMint] = true
	}

	for _, acct := range accounts {
		if acct.Amount == 0 || tracked[acct.Mint] {
			continue
		}
		pool, isLP := byLPMint[acct.Mint]
		if !isLP {
			continue
		}

		botLogger.Warn().
			Str("pool", string(pool.ID)).
			Str("lpMint", acct.Mint).
			Float64("lpAmount", acct.UIAmount).
			Msg("Unwinding orphaned LP receipt")
		if _, err := b.exec.RemoveLiquidity(ctx, pool.ID, acct.UIAmount); err != nil {
			botLogger.Error().Err(err).Str("pool", string(pool.ID)).Msg("Orphan LP removal failed")
			continue
		}
		if tokenBal, err := b.tokenBalanceUI(ctx, pool.BaseMint); err == nil && tokenBal.UIAmount > 0 {
			if _, err := b.exec.Swap(ctx, pool.ID, tokenBal.UIAmount, solana.SwapSell); err != nil {
				botLogger.Warn().Err(err).Str("pool", string(pool.ID)).Msg("Orphan token sell failed")
			}
		}
	}
}

// sweepStrayTokens sells token balances that belong to no open position,
// pairing each against its deepest native-asset pool.
func (b *Bot) sweepStrayTokens(ctx context.Context) {
	accounts, err := b.exec.ListTokenAccounts(ctx)
	if err != nil {
		botLogger.Warn().Err(err).Msg("Token account listing failed, skipping sweep")
		return
	}

	keep := make(map[string]bool)
	for _, pos := range b.positions.List() {
		keep[pos.BaseMint] = true
		keep[pos.LPMint] = true
	}

	for _, acct := range accounts {
		if acct.Amount == 0 || keep[acct.Mint] || acct.Mint == wsolMint {
			continue
		}

		pool, err := b.market.FindPoolForMint(acct.Mint)
		if err != nil {
			botLogger.Debug().Str("mint", acct.Mint).Msg("No pairing pool for stray token, leaving it")
			continue
		}
		botLogger.Info().
			Str("mint", acct.Mint).
			Str("pool", string(pool.ID)).
			Float64("amount", acct.UIAmount).
			Msg("Selling stray token balance")
		if _, err := b.exec.Swap(ctx, pool.ID, acct.UIAmount, solana.SwapSell); err != nil {
			botLogger.Warn().Err(err).Str("mint", acct.Mint).Msg("Stray token sell failed")
		}

		// Keep RPC pressure low; sweeps run once at startup.
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// keepMints lists the mints whose accounts must survive the rent sweep.
func (b *Bot) keepMints() []string {
	var keep []string
	for _, pos := range b.positions.List() {
		keep = append(keep, pos.BaseMint, pos.LPMint)
	}
	return keep
}

const wsolMint = "So11111111111111111111111111111111111111112"
