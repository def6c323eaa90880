/*

This file contains the sequential entry worker.

Entries are deliberately serialized: capital checks, the two-legged
swap-then-deposit, and the LP confirmation all assume no other entry is
mutating the wallet at the same time. A failed deposit rolls the swap
back so no capital is left stranded in a token we decided not to hold.

*/

package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/solana"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

// lpConfirmDelays paces the LP-balance confirmation reads after an add;
// receipt tokens can lag the deposit transaction by a few slots.
var lpConfirmDelays = []time.Duration{2 * time.Second, 3 * time.Second, 5 * time.Second}

func (b *Bot) runEntryWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cand := <-b.entryQueue:
			if err := b.enterPosition(ctx, cand); err != nil {
				botLogger.Error().Err(err).
					Str("pool", string(cand.Pool.ID)).
					Msg("Entry failed")
				b.positions.MarkFailed(cand.Pool.ID)
			}
		}
	}
}

// enterPosition executes one entry end to end: re-validation, the
// SOL-to-token swap, the deposit, and LP confirmation.
func (b *Bot) enterPosition(ctx context.Context, cand entryCandidate) error {
	poolID := cand.Pool.ID

	// The plan was computed at scan time; conditions may have moved.
	if ok, reason := b.positions.Eligible(poolID, timeNow()); !ok {
		botLogger.Debug().Str("pool", string(poolID)).Str("reason", reason).Msg("Entry skipped")
		return nil
	}
	if b.positions.FreeSlots() <= 0 {
		return nil
	}

	size := cand.SizeSOL
	if avail := b.availableCapital(ctx, true); avail < size {
		size = avail
	}
	if size < b.params.MinPositionSOL {
		botLogger.Info().Str("pool", string(poolID)).Float64("sizeSOL", size).Msg("Entry skipped, size below minimum")
		return nil
	}
	if size > b.params.MaxPositionSOL {
		size = b.params.MaxPositionSOL
	}

	botLogger.Info().
		Str("pool", string(poolID)).
		Str("name", cand.Pool.Name).
		Float64("sizeSOL", size).
		Msg("Entering position")

	// Half the capital buys the token side; the other half deposits as
	// native asset.
	halfSOL := size / 2
	swapSig, err := b.exec.Swap(ctx, poolID, halfSOL, solana.SwapBuy)
	if err != nil {
		return fmt.Errorf("entry swap: %w", err)
	}

	tokenBal, err := b.tokenBalanceUI(ctx, cand.Pool.BaseMint)
	if err != nil || tokenBal.UIAmount <= 0 {
		return fmt.Errorf("reading token balance after swap (sig %s): %w", swapSig, err)
	}

	added, err := b.exec.AddLiquidity(ctx, poolID, tokenBal.UIAmount, halfSOL)
	if err != nil {
		b.rollbackEntry(ctx, cand.Pool, tokenBal.UIAmount)
		return fmt.Errorf("add liquidity: %w", err)
	}

	lpMint := added.LPMint
	if lpMint == "" {
		lpMint = cand.Pool.LPMint
	}
	lpBalance, lpDecimals := b.confirmLPBalance(ctx, lpMint)
	if lpBalance == 0 {
		// The deposit may still land; record the position with a zero
		// receipt and let the ghost check resolve it either way.
		botLogger.Warn().Str("pool", string(poolID)).Msg("LP receipt not confirmed yet, recording anyway")
	}

	pos := types.Position{
		PoolID:      poolID,
		PoolName:    cand.Pool.Name,
		EntryTime:   timeNow(),
		EntryPrice:  cand.Pool.Price,
		CapitalSOL:  size,
		BaseAmount:  tokenBal.UIAmount,
		QuoteAmount: halfSOL,
		BaseMint:    cand.Pool.BaseMint,
		LPMint:      lpMint,
		LPBalance:   lpBalance,
		LPDecimals:  lpDecimals,
		EntrySig:    added.Signature,
		SwapFee:     cand.Pool.SwapFeeRate,
		PoolSnapshot: map[string]any{
			"tvl_usd":           cand.Pool.TvlUSD,
			"apr_24h":           cand.Pool.Day.APR,
			"burn_percent":      cand.Pool.BurnPercent,
			"score":             cand.Score.Score,
			"predicted_net_pct": cand.Score.PredictedNetReturnPct,
			"risk_level":        string(cand.Verdict.RiskLevel),
		},
	}
	if err := b.positions.Add(pos); err != nil {
		return fmt.Errorf("recording position: %w", err)
	}

	b.saveState()
	b.WalletBalance(ctx, true)

	botLogger.Info().
		Str("pool", string(poolID)).
		Str("signature", added.Signature).
		Float64("capitalSOL", size).
		Uint64("lpBalance", lpBalance).
		Msg("Position opened")
	return nil
}

// rollbackEntry sells the token half back after a failed deposit.
func (b *Bot) rollbackEntry(ctx context.Context, pool types.Pool, tokenAmount float64) {
	botLogger.Warn().Str("pool", string(pool.ID)).Float64("tokenAmount", tokenAmount).Msg("Rolling back entry swap")
	if _, err := b.exec.Swap(ctx, pool.ID, tokenAmount, solana.SwapSell); err != nil {
		botLogger.Error().Err(err).
			Str("pool", string(pool.ID)).
			Str("mint", pool.BaseMint).
			Msg("Entry rollback failed, token balance left in wallet for recovery sweep")
	}
}

// confirmLPBalance polls the wallet for the LP receipt with escalating
// delays. Returns zero when the receipt never shows.
func (b *Bot) confirmLPBalance(ctx context.Context, lpMint string) (uint64, int) {
	for _, delay := range lpConfirmDelays {
		select {
		case <-ctx.Done():
			return 0, 0
		case <-time.After(delay):
		}

		bal, err := b.tokenBalanceUI(ctx, lpMint)
		if err != nil {
			continue
		}
		if bal.Amount > 0 {
			return bal.Amount, bal.Decimals
		}
	}
	return 0, 0
}

// tokenBalanceUI finds one mint's balance via the token-account listing,
// which carries decimals alongside the raw amount.
func (b *Bot) tokenBalanceUI(ctx context.Context, mint string) (types.TokenBalance, error) {
	accounts, err := b.exec.ListTokenAccounts(ctx)
	if err != nil {
		return types.TokenBalance{}, err
	}
	for _, acct := range accounts {
		if acct.Mint == mint {
			return acct, nil
		}
	}
	return types.TokenBalance{Mint: mint}, nil
}
