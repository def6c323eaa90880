/*

This file contains the types for safety verdicts, score results, and the
tunable strategy parameters that drive gating, scoring, sizing, and exits.

*/

package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// RiskLevel buckets a safety verdict for display and filtering.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// LiquidityTier buckets pool depth for display.
type LiquidityTier string

const (
	TierHigh   LiquidityTier = "HIGH"
	TierMedium LiquidityTier = "MEDIUM"
	TierLow    LiquidityTier = "LOW"
)

// SafetyVerdict is the derived per-pool output of the safety gate.
// It is recomputed every scan and never persisted.
// Invariant: IsSafe is true exactly when Risks is empty.
type SafetyVerdict struct {
	PoolID        PoolID        `json:"pool_id"`
	IsSafe        bool          `json:"is_safe"`
	RiskLevel     RiskLevel     `json:"risk_level"`
	Risks         []string      `json:"risks"`
	Warnings      []string      `json:"warnings"`
	BurnPercent   float64       `json:"burn_percent"`
	EffectiveSafe float64       `json:"effective_safe_percent"`
	LiquidityTier LiquidityTier `json:"liquidity_tier"`
}

// ScoreResult is the derived scoring output for one admitted pool.
// Recomputed every scan, never persisted.
type ScoreResult struct {
	PoolID PoolID `json:"pool_id"`

	// Score is the composite 0-100 ranking score.
	Score float64 `json:"score"`

	// PredictedNetReturnPct is the expected percent return over the
	// configured hold period: yield minus the LVR volatility cost.
	PredictedNetReturnPct float64 `json:"predicted_net_return_pct"`

	// PredictedNetReturnSOL is the percent return applied to the
	// candidate position size, minus round-trip slippage. Zero when no
	// position size was supplied.
	PredictedNetReturnSOL float64 `json:"predicted_net_return_sol"`

	// AnnualizedNetAPR is the predicted net return re-expressed as an
	// annualized rate, gated against MinPredictedNetAPR.
	AnnualizedNetAPR float64 `json:"annualized_net_apr"`

	SigmaDaily       float64 `json:"sigma_daily"`
	LVRCostPct       float64 `json:"lvr_cost_pct"`
	SlippageSOL      float64 `json:"slippage_sol"`
	DepthScore       float64 `json:"depth_score"`
	DataQualityScore float64 `json:"data_quality_score"`
	VelocityBonus    float64 `json:"velocity_bonus"`
}

// RankedPool pairs a pool with its verdict and score for the scan result.
type RankedPool struct {
	Pool    Pool          `json:"pool"`
	Verdict SafetyVerdict `json:"verdict"`
	Score   ScoreResult   `json:"score"`
}

// StrategyParameters holds all tunable thresholds used by the gating,
// scoring, sizing, and exit logic.
//
// IMPORTANT: These defaults are calibrated for small, unattended capital
// on volatile long-tail pools. They prioritize not losing the budget over
// squeezing out the last percent of yield.
type StrategyParameters struct {
	// --- Scan Filters ---
	MinLiquidityUSD   float64 `json:"min_liquidity_usd"`    // Pools below this TVL are never considered.
	MinVolumeTVLRatio float64 `json:"min_volume_tvl_ratio"` // 24h volume / TVL activity floor.
	MinAPR24h         float64 `json:"min_apr_24h"`          // Minimum 24h APR (percent) to bother scoring.
	MinFeeAPR         float64 `json:"min_fee_apr"`          // Minimum fee-derived APR (percent).

	// --- Safety Gate ---
	MinBurnPercent           float64 `json:"min_burn_percent"`             // LP burn floor; below this the pool is rejected locally.
	ExtremeAPRThreshold      float64 `json:"extreme_apr_threshold"`        // APR above this is treated as likely manipulated.
	RugPatternTVL            float64 `json:"rug_pattern_tvl"`              // TVL below this combined with RugPatternAPR is a rug pattern.
	RugPatternAPR            float64 `json:"rug_pattern_apr"`              // APR above this on a sub-RugPatternTVL pool is a rug pattern.
	MaxRiskScore             float64 `json:"max_risk_score"`               // Oracle normalized risk ceiling (lower = safer).
	MaxTop10HolderPercent    float64 `json:"max_top10_holder_percent"`     // Token holder concentration ceiling.
	MaxSingleHolderPercent   float64 `json:"max_single_holder_percent"`    // Single token holder ceiling.
	MinTokenHolders          int     `json:"min_token_holders"`            // Token holder count floor.
	MinSafeLPPercent         float64 `json:"min_safe_lp_percent"`          // Effective-safe LP floor (burned + locked).
	MaxSingleLPHolderPercent float64 `json:"max_single_lp_holder_percent"` // Single unlocked LP holder ceiling, of total supply.

	// --- Scoring ---
	HoldDays           float64 `json:"hold_days"`             // Assumed hold period for the net-return model.
	MinPredictedNetAPR float64 `json:"min_predicted_net_apr"` // Annualized net return floor for admission.
	DefaultSigmaDaily  float64 `json:"default_sigma_daily"`   // Conservative volatility fallback when no range data exists.

	// --- Position Sizing ---
	MaxConcurrentPositions int     `json:"max_concurrent_positions"` // Concurrency ceiling; also the sizing slot count.
	MaxPositionSOL         float64 `json:"max_position_sol"`         // Absolute per-position ceiling.
	MinPositionSOL         float64 `json:"min_position_sol"`         // Entries smaller than this are skipped as dust.
	ReserveSOL             float64 `json:"reserve_sol"`              // Never-deployed native-asset reserve for fees.
	SlippagePercent        float64 `json:"slippage_percent"`         // Tolerance passed to the execution service.

	// --- Exit Rules ---
	StopLossPercent    float64 `json:"stop_loss_percent"`    // P&L floor (negative) that forces an exit.
	TakeProfitPercent  float64 `json:"take_profit_percent"`  // P&L ceiling that banks the win.
	MaxHoldTimeHours   float64 `json:"max_hold_time_hours"`  // Hard time limit per position.
	MaxImpermanentLoss float64 `json:"max_impermanent_loss"` // IL floor (negative percent) that forces an exit.

	// --- Cooldown / Blacklist ---
	StopLossCooldowns []time.Duration `json:"stop_loss_cooldowns"` // Escalating re-entry suppression per consecutive loss.
	BlacklistStrikes  int             `json:"blacklist_strikes"`   // Consecutive losses before a pool is permanently banned.

	// --- Intervals ---
	PoolScanInterval      time.Duration `json:"pool_scan_interval"`
	PositionCheckInterval time.Duration `json:"position_check_interval"`
	DisplayInterval       time.Duration `json:"display_interval"`
	QuoteCacheTTL         time.Duration `json:"quote_cache_ttl"`
	BalanceRefreshMin     time.Duration `json:"balance_refresh_min"` // Minimum spacing between ledger balance reads.
}

// Validate ensures the parameter set is internally consistent before any
// financial decision uses it.
func (p StrategyParameters) Validate() error {
	for _, v := range []struct {
		value float64
		name  string
	}{
		{p.MinLiquidityUSD, "MinLiquidityUSD"},
		{p.MinVolumeTVLRatio, "MinVolumeTVLRatio"},
		{p.MinBurnPercent, "MinBurnPercent"},
		{p.MaxRiskScore, "MaxRiskScore"},
		{p.HoldDays, "HoldDays"},
		{p.MaxPositionSOL, "MaxPositionSOL"},
		{p.MinPositionSOL, "MinPositionSOL"},
		{p.ReserveSOL, "ReserveSOL"},
		{p.DefaultSigmaDaily, "DefaultSigmaDaily"},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return errors.New(v.name + " must be finite")
		}
		if v.value < 0 {
			return errors.New(v.name + " cannot be negative")
		}
	}
	if p.HoldDays <= 0 {
		return errors.New("HoldDays must be positive")
	}
	if p.MinBurnPercent > 100 {
		return errors.New("MinBurnPercent cannot exceed 100")
	}
	if p.MinSafeLPPercent < 0 || p.MinSafeLPPercent > 100 {
		return errors.New("MinSafeLPPercent must be between 0 and 100")
	}
	if p.MaxConcurrentPositions <= 0 {
		return errors.New("MaxConcurrentPositions must be positive")
	}
	if p.MaxPositionSOL < p.MinPositionSOL {
		return fmt.Errorf("MaxPositionSOL (%f) below MinPositionSOL (%f)", p.MaxPositionSOL, p.MinPositionSOL)
	}
	if p.StopLossPercent >= 0 {
		return errors.New("StopLossPercent must be negative")
	}
	if p.TakeProfitPercent <= 0 {
		return errors.New("TakeProfitPercent must be positive")
	}
	if p.MaxImpermanentLoss >= 0 {
		return errors.New("MaxImpermanentLoss must be negative")
	}
	if p.MaxHoldTimeHours <= 0 {
		return errors.New("MaxHoldTimeHours must be positive")
	}
	if len(p.StopLossCooldowns) == 0 {
		return errors.New("StopLossCooldowns cannot be empty")
	}
	for i, d := range p.StopLossCooldowns {
		if d <= 0 {
			return fmt.Errorf("StopLossCooldowns[%d] must be positive", i)
		}
	}
	if p.BlacklistStrikes <= 0 {
		return errors.New("BlacklistStrikes must be positive")
	}
	if p.PoolScanInterval <= 0 || p.PositionCheckInterval <= 0 || p.DisplayInterval <= 0 {
		return errors.New("loop intervals must be positive")
	}
	if p.QuoteCacheTTL <= 0 {
		return errors.New("QuoteCacheTTL must be positive")
	}
	return nil
}
