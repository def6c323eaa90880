/*

This file contains the safety gate that decides whether a pool may be
traded at all.

The gate runs three stages in strictly increasing cost order:

 1. Local checks against data already present in the pool record.
 2. Token-safety oracle lookup for the pool's base mint.
 3. On-chain LP holder distribution analysis.

A stage that produces any risk short-circuits the stages after it, so a
pool that fails cheaply never spends an oracle request or an RPC round
trip. Warnings accumulate across stages but never block on their own.

*/

package safety

import (
	"context"
	"fmt"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var gateLogger = logger.GetForComponent("safety_gate")

// Warning-only thresholds. These flag marginal pools for the operator
// without rejecting them; the hard limits live in StrategyParameters.
const (
	highAPRWarn      = 200.0   // 24h APR above this is suspicious but tradeable
	lowTVLWarn       = 50000.0 // below this depth a large exit hurts
	washTradeRatio   = 10.0    // 24h volume above 10x TVL suggests wash trading
	solidBurnPercent = 80.0    // burn below this is acceptable but noted
	riskScoreWarn    = 30.0
	top10HolderWarn  = 30.0
	singleHolderWarn = 10.0
	holderCountWarn  = 500
)

// TokenOracle is the token-safety lookup the gate consults for the
// pool's base mint.
type TokenOracle interface {
	AnalyzeToken(mint string) TokenReport
}

// LPLockAnalyzer is the on-chain LP distribution analysis the gate runs
// as its final, most expensive stage.
type LPLockAnalyzer interface {
	Analyze(ctx context.Context, lpMint string) LockReport
}

// Gate evaluates pools against the configured safety thresholds.
type Gate struct {
	oracle TokenOracle
	locks  LPLockAnalyzer
	params types.StrategyParameters
}

// NewGate builds a safety gate.
func NewGate(oracle TokenOracle, locks LPLockAnalyzer, params types.StrategyParameters) *Gate {
	return &Gate{oracle: oracle, locks: locks, params: params}
}

// Evaluate runs the staged safety checks for one pool and returns the
// verdict. The verdict is safe exactly when no risk was found.
func (g *Gate) Evaluate(ctx context.Context, pool types.Pool) types.SafetyVerdict {
	verdict := types.SafetyVerdict{
		PoolID:        pool.ID,
		BurnPercent:   pool.BurnPercent,
		LiquidityTier: liquidityTier(pool.TvlUSD),
	}

	g.localChecks(pool, &verdict)
	if len(verdict.Risks) > 0 {
		return finalize(pool, verdict)
	}

	g.oracleChecks(pool, &verdict)
	if len(verdict.Risks) > 0 {
		return finalize(pool, verdict)
	}

	g.lockChecks(ctx, pool, &verdict)
	return finalize(pool, verdict)
}

// localChecks evaluates everything derivable from the pool record alone.
func (g *Gate) localChecks(pool types.Pool, v *types.SafetyVerdict) {
	if pool.BurnPercent < g.params.MinBurnPercent {
		v.Risks = append(v.Risks, fmt.Sprintf(
			"LP burn %.1f%% below required %.0f%%", pool.BurnPercent, g.params.MinBurnPercent))
	} else if pool.BurnPercent < solidBurnPercent {
		v.Warnings = append(v.Warnings, fmt.Sprintf("LP burn only %.1f%%", pool.BurnPercent))
	}

	apr := pool.Day.APR
	if apr > g.params.ExtremeAPRThreshold {
		v.Risks = append(v.Risks, fmt.Sprintf("Extreme APR %.0f%% likely fake or manipulated", apr))
	} else if apr > highAPRWarn {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Very high APR %.0f%%", apr))
	}

	if pool.TvlUSD < lowTVLWarn {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Low liquidity $%.0f", pool.TvlUSD))
	}

	if ratio := pool.VolumeTVLRatio(); ratio > washTradeRatio {
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"Volume %.1fx TVL, possible wash trading", ratio))
	}

	if pool.TvlUSD < g.params.RugPatternTVL && apr > g.params.RugPatternAPR {
		v.Risks = append(v.Risks, fmt.Sprintf(
			"Tiny pool ($%.0f) with %.0f%% APR matches rug pattern", pool.TvlUSD, apr))
	}
}

// oracleChecks evaluates the token-safety oracle's report for the base
// mint. Oracle unavailability is a rejection, not an unknown.
func (g *Gate) oracleChecks(pool types.Pool, v *types.SafetyVerdict) {
	report := g.oracle.AnalyzeToken(pool.BaseMint)

	if !report.Available {
		v.Risks = append(v.Risks, "Token safety oracle unavailable")
		return
	}

	if report.IsRugged {
		v.Risks = append(v.Risks, "Token flagged as rugged")
	}

	if report.RiskScore > g.params.MaxRiskScore {
		v.Risks = append(v.Risks, fmt.Sprintf(
			"Oracle risk score %.0f exceeds limit %.0f", report.RiskScore, g.params.MaxRiskScore))
	} else if report.RiskScore > riskScoreWarn {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Elevated oracle risk score %.0f", report.RiskScore))
	}

	for _, danger := range report.Dangers {
		v.Risks = append(v.Risks, "Oracle danger: "+danger)
	}
	for _, warning := range report.Warnings {
		v.Warnings = append(v.Warnings, "Oracle warning: "+warning)
	}

	if report.HasFreezeAuthority {
		v.Risks = append(v.Risks, "Token has freeze authority")
	}
	if report.HasMintAuthority {
		v.Risks = append(v.Risks, "Token has mint authority")
	}
	if report.HasMutableMetadata {
		v.Risks = append(v.Risks, "Token metadata is mutable")
	}
	if report.LowLPProviders {
		v.Risks = append(v.Risks, "Very few LP providers")
	}

	if report.Top10HolderPct > g.params.MaxTop10HolderPercent {
		v.Risks = append(v.Risks, fmt.Sprintf(
			"Top 10 holders control %.1f%% of supply", report.Top10HolderPct))
	} else if report.Top10HolderPct > top10HolderWarn {
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"Top 10 holders control %.1f%% of supply", report.Top10HolderPct))
	}

	if report.MaxSingleHolderPct > g.params.MaxSingleHolderPercent {
		v.Risks = append(v.Risks, fmt.Sprintf(
			"Single holder controls %.1f%% of supply", report.MaxSingleHolderPct))
	} else if report.MaxSingleHolderPct > singleHolderWarn {
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"Single holder controls %.1f%% of supply", report.MaxSingleHolderPct))
	}

	if report.TotalHolders > 0 {
		if report.TotalHolders < g.params.MinTokenHolders {
			v.Risks = append(v.Risks, fmt.Sprintf("Only %d token holders", report.TotalHolders))
		} else if report.TotalHolders < holderCountWarn {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Low holder count %d", report.TotalHolders))
		}
	}
}

// lockChecks runs the on-chain LP distribution analysis and combines it
// with the feed's burn percentage.
//
// The feed reports burn as a share of the ORIGINAL LP supply, while the
// chain analysis describes the CIRCULATING supply. A holder's real pull
// on the pool is its circulating share scaled by the unburned fraction,
// and the effective safe share is the burn plus the locked share of
// whatever remains.
func (g *Gate) lockChecks(ctx context.Context, pool types.Pool, v *types.SafetyVerdict) {
	report := g.locks.Analyze(ctx, pool.LPMint)

	if !report.Available {
		v.Risks = append(v.Risks, "LP lock data unavailable")
		return
	}

	remainingFrac := (100 - pool.BurnPercent) / 100

	maxPullable := report.MaxSingleUnlocked * remainingFrac
	if maxPullable > g.params.MaxSingleLPHolderPercent {
		v.Risks = append(v.Risks, fmt.Sprintf(
			"Single wallet can pull %.1f%% of pool liquidity", maxPullable))
	}

	effectiveSafe := pool.BurnPercent + report.SafePct*remainingFrac
	if effectiveSafe > 100 {
		effectiveSafe = 100
	}
	v.EffectiveSafe = effectiveSafe

	if effectiveSafe < g.params.MinSafeLPPercent {
		v.Risks = append(v.Risks, fmt.Sprintf(
			"Only %.1f%% of LP supply is burned or locked (need %.0f%%)",
			effectiveSafe, g.params.MinSafeLPPercent))
	}
}

func finalize(pool types.Pool, v types.SafetyVerdict) types.SafetyVerdict {
	v.IsSafe = len(v.Risks) == 0

	switch {
	case len(v.Risks) > 0:
		v.RiskLevel = types.RiskHigh
	case len(v.Warnings) > 0:
		v.RiskLevel = types.RiskMedium
	default:
		v.RiskLevel = types.RiskLow
	}

	if !v.IsSafe {
		gateLogger.Debug().
			Str("pool", string(pool.ID)).
			Str("name", pool.Name).
			Strs("risks", v.Risks).
			Msg("Pool rejected by safety gate")
	}
	return v
}

func liquidityTier(tvlUSD float64) types.LiquidityTier {
	switch {
	case tvlUSD > 100000:
		return types.TierHigh
	case tvlUSD > 50000:
		return types.TierMedium
	default:
		return types.TierLow
	}
}
