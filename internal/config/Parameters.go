/*

This file contains the default strategy parameters for the farming
controller.

These defaults are calibrated for small unattended capital deployed into
volatile long-tail pools. Each value has been chosen to keep the worst
case bounded rather than to maximize headline yield.

*/

package config

import (
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/types"
)

// DefaultStrategyParameters provides the baseline parameter set. A subset
// of the values can be overridden through environment variables by
// LoadParameters.
var DefaultStrategyParameters = types.StrategyParameters{
	// --- Scan Filters ---
	MinLiquidityUSD: 5000, // Pools below $5k TVL cannot absorb even a small exit.
	// Rationale: below this depth a single exit moves the price enough to
	// erase any realistic fee income.

	MinVolumeTVLRatio: 0.5, // Require 24h volume of at least half the TVL.
	// Rationale: fee income comes from volume. A pool turning over less
	// than half its liquidity per day cannot cover volatility cost.

	MinAPR24h: 100, // Minimum 100% APR to bother scoring.
	// Rationale: long-tail LP positions carry high IL risk; anything
	// below triple digits is dominated by that risk.

	MinFeeAPR: 50, // Fee-derived APR floor.
	// Rationale: reward emissions can stop overnight. Fees are the only
	// APR component that survives an incentive cliff.

	// --- Safety Gate ---
	MinBurnPercent: 50, // At least half the LP supply must be burned.
	// Rationale: the single strongest on-chain rug deterrent. Below 50%
	// the deployer retains effective control of the pool.

	ExtremeAPRThreshold: 1000, // APR above 1000% is treated as manipulated.
	RugPatternTVL:       5000, // Paired with RugPatternAPR below: the classic honeypot shape.
	RugPatternAPR:       500,

	MaxRiskScore: 50, // Oracle normalized risk ceiling (0-100, lower = safer).

	MaxTop10HolderPercent:  40,
	MaxSingleHolderPercent: 25,
	MinTokenHolders:        100,
	// Rationale: concentration limits mirror what a manual reviewer
	// would reject at a glance; 100 holders filters out fresh mints.

	MinSafeLPPercent:         90, // burned + locked must cover 90% of LP supply
	MaxSingleLPHolderPercent: 25, // no single wallet may hold >25% of total LP

	// --- Scoring ---
	HoldDays: 7, // The net-return model assumes a one-week hold.
	// Rationale: matches MaxHoldTimeHours; fees and LVR are both scaled
	// to the same horizon so the comparison is apples to apples.

	MinPredictedNetAPR: 30, // Annualized net return must clear 30%.
	DefaultSigmaDaily:  0.15, // 15% daily vol fallback when no range data exists.
	// Rationale: long-tail SOL pairs rarely move less than this; assuming
	// calmer markets without evidence would overstate net return.

	// --- Position Sizing ---
	MaxConcurrentPositions: 3,
	MaxPositionSOL:         5.0,
	MinPositionSOL:         0.05,
	ReserveSOL:             0.05, // Always keep fee/rent headroom in the wallet.
	SlippagePercent:        5,

	// --- Exit Rules ---
	StopLossPercent:    -15,
	TakeProfitPercent:  10,
	MaxHoldTimeHours:   168, // one week
	MaxImpermanentLoss: -5,

	// --- Cooldown / Blacklist ---
	StopLossCooldowns: []time.Duration{24 * time.Hour, 48 * time.Hour},
	// Rationale: one loss may be bad luck; a second within a day of
	// re-entry is evidence, so the suppression doubles.
	BlacklistStrikes: 3,

	// --- Intervals ---
	PoolScanInterval:      180 * time.Second,
	PositionCheckInterval: 1 * time.Second,
	DisplayInterval:       4 * time.Second,
	QuoteCacheTTL:         120 * time.Second,
	BalanceRefreshMin:     60 * time.Second,
}

// LoadParameters returns the strategy parameters, applying environment
// overrides for the knobs operators most commonly tune, and validates
// the result.
func LoadParameters() (types.StrategyParameters, error) {
	params := DefaultStrategyParameters

	var err error
	if params.MaxPositionSOL, err = getEnvAsFloat64Or("MAX_POSITION_SOL", params.MaxPositionSOL); err != nil {
		return params, err
	}
	if params.StopLossPercent, err = getEnvAsFloat64Or("STOP_LOSS_PERCENT", params.StopLossPercent); err != nil {
		return params, err
	}
	if params.TakeProfitPercent, err = getEnvAsFloat64Or("TAKE_PROFIT_PERCENT", params.TakeProfitPercent); err != nil {
		return params, err
	}
	if params.MinPredictedNetAPR, err = getEnvAsFloat64Or("MIN_PREDICTED_NET_APR", params.MinPredictedNetAPR); err != nil {
		return params, err
	}
	if params.MinBurnPercent, err = getEnvAsFloat64Or("MIN_BURN_PERCENT", params.MinBurnPercent); err != nil {
		return params, err
	}

	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}
