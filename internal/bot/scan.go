/*

This file contains the scan pipeline: fetch, velocity recording, safety
gating, scoring, ranking, and entry-candidate selection.

Velocity samples are recorded for every fetched pool, not only the ones
that pass the filters, so a pool building momentum has history by the
time it becomes attractive. Capital sizing uses one balance snapshot
per scan; the entry worker re-validates before spending.

*/

package bot

import (
	"context"

	"github.com/karlokr/raydium-lp-bot/internal/scorer"
	"github.com/karlokr/raydium-lp-bot/internal/state"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

func (b *Bot) scanOnce(ctx context.Context) {
	// Entry failures from the previous cycle get a fresh chance.
	b.positions.ClearFailed()

	pools, err := b.market.GetAllPools(false)
	if err != nil {
		botLogger.Error().Err(err).Msg("Pool scan failed")
		return
	}
	for _, p := range pools {
		b.velocity.Record(p.ID, p.Day.Volume, p.TvlUSD, p.Price)
	}

	candidates, err := b.market.GetFilteredPools(
		b.params.MinLiquidityUSD, b.params.MinVolumeTVLRatio, b.params.MinAPR24h)
	if err != nil {
		botLogger.Error().Err(err).Msg("Pool filtering failed")
		return
	}

	freeSlots := b.positions.FreeSlots()
	plannedSize := b.planPositionSize(ctx, freeSlots)

	ranked := b.evaluatePools(ctx, candidates, plannedSize)
	scorer.RankByNetReturn(ranked)
	b.setLastScan(ranked)
	b.saveState()
	state.RecordScanSnapshot(ranked, len(pools), len(candidates))

	botLogger.Info().
		Int("fetched", len(pools)).
		Int("filtered", len(candidates)).
		Int("admitted", len(ranked)).
		Int("freeSlots", freeSlots).
		Float64("plannedSizeSOL", plannedSize).
		Msg("Scan complete")

	if freeSlots == 0 || plannedSize <= 0 {
		return
	}
	b.enqueueEntries(ranked, freeSlots, plannedSize)
}

// evaluatePools runs every candidate through the safety gate and the
// scorer, returning only pools that pass both.
func (b *Bot) evaluatePools(ctx context.Context, candidates []types.Pool, plannedSize float64) []types.RankedPool {
	var ranked []types.RankedPool
	for _, pool := range candidates {
		if ctx.Err() != nil {
			return ranked
		}

		// Reward emissions can stop overnight; the fee-derived APR must
		// clear its own floor before the pool is worth gating.
		if feeAPR, _ := pool.FeeAPR24h(); feeAPR < b.params.MinFeeAPR {
			botLogger.Debug().
				Str("pool", string(pool.ID)).
				Float64("feeAPR", feeAPR).
				Msg("Pool below fee APR floor")
			continue
		}

		verdict := b.gate.Evaluate(ctx, pool)
		if !verdict.IsSafe {
			botLogger.Debug().
				Str("pool", string(pool.ID)).
				Strs("risks", verdict.Risks).
				Msg("Pool rejected by safety gate")
			continue
		}

		score, err := b.scorer.Score(pool, plannedSize)
		if err != nil {
			botLogger.Debug().Err(err).Str("pool", string(pool.ID)).Msg("Pool not scorable")
			continue
		}
		if !b.scorer.Admissible(score, plannedSize) {
			continue
		}

		ranked = append(ranked, types.RankedPool{Pool: pool, Verdict: verdict, Score: score})
	}
	return ranked
}

// planPositionSize splits the available capital equally across free
// slots, clamped to the per-position bounds. Returns 0 when no entry
// should be attempted.
func (b *Bot) planPositionSize(ctx context.Context, freeSlots int) float64 {
	if freeSlots <= 0 {
		return 0
	}
	avail := b.availableCapital(ctx, false)
	if avail <= 0 {
		return 0
	}

	size := avail / float64(freeSlots)
	if size > b.params.MaxPositionSOL {
		size = b.params.MaxPositionSOL
	}
	if size < b.params.MinPositionSOL {
		return 0
	}
	return size
}

// enqueueEntries hands the top eligible candidates to the entry worker.
func (b *Bot) enqueueEntries(ranked []types.RankedPool, freeSlots int, sizeSOL float64) {
	queued := 0
	for _, rp := range ranked {
		if queued >= freeSlots {
			return
		}
		if ok, reason := b.positions.Eligible(rp.Pool.ID, timeNow()); !ok {
			botLogger.Debug().Str("pool", string(rp.Pool.ID)).Str("reason", reason).Msg("Candidate not eligible")
			continue
		}

		select {
		case b.entryQueue <- entryCandidate{Pool: rp.Pool, Verdict: rp.Verdict, Score: rp.Score, SizeSOL: sizeSOL}:
			queued++
			botLogger.Info().
				Str("pool", string(rp.Pool.ID)).
				Str("name", rp.Pool.Name).
				Float64("predictedNetPct", rp.Score.PredictedNetReturnPct).
				Float64("sizeSOL", sizeSOL).
				Msg("Entry candidate queued")
		default:
			// Queue full; the worker is behind, let the next scan retry.
			return
		}
	}
}
