/*

This file contains the opportunity scorer.

The model treats liquidity provision as yield minus cost: predicted net
return over the hold period is the pool's daily fee and reward yield
scaled to the hold period, minus the loss-versus-rebalancing cost
(sigma_daily^2 / 8 per day, Milionis et al.). A pool whose volatility
cost eats its yield is never worth entering no matter how high the
headline APR reads.

The composite 0-100 score exists only for display and tie-breaking;
ranking and the two admission gates run on the raw predicted net return.

*/

package scorer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var scoreLogger = logger.GetForComponent("scorer")

var ErrInvalidPoolData = errors.New("invalid pool data")

// Composite score component ceilings. Net return carries the majority
// weight; depth and data quality are secondary; the velocity bonus is
// added on top by the tracker.
const (
	netReturnScoreMax   = 60.0
	depthScoreMax       = 20.0
	dataQualityScoreMax = 10.0

	// netReturnFullScale is the hold-period net return (percent) that
	// earns the full net-return component.
	netReturnFullScale = 10.0

	// Depth is log-scaled between the scan floor and a deep pool.
	depthFloorUSD = 5000.0
	depthCeilUSD  = 500000.0
)

// VelocityRater supplies the 0-10 momentum bonus for a pool. Nil-safe:
// the scorer works without one attached.
type VelocityRater interface {
	GetVelocityBonus(poolID types.PoolID) float64
}

// Scorer computes score results for safety-admitted pools.
type Scorer struct {
	params   types.StrategyParameters
	velocity VelocityRater
}

// NewScorer builds a scorer. velocity may be nil.
func NewScorer(params types.StrategyParameters, velocity VelocityRater) *Scorer {
	return &Scorer{params: params, velocity: velocity}
}

// Score computes the score result for one pool. positionSizeSOL is the
// candidate position size used for slippage estimation; pass 0 when no
// size is known yet (scan-time ranking).
func (s *Scorer) Score(pool types.Pool, positionSizeSOL float64) (types.ScoreResult, error) {
	if err := pool.Validate(); err != nil {
		return types.ScoreResult{}, errors.Join(ErrInvalidPoolData, err)
	}
	if positionSizeSOL < 0 || math.IsNaN(positionSizeSOL) || math.IsInf(positionSizeSOL, 0) {
		return types.ScoreResult{}, fmt.Errorf("invalid position size: %f", positionSizeSOL)
	}

	result := types.ScoreResult{PoolID: pool.ID}

	// --- Yield ---
	feeAPR, hasRealFeeAPR := pool.FeeAPR24h()
	weeklyFeeAPR, hasWeeklyAvg := pool.FeeAPRWeekly()
	if hasWeeklyAvg {
		feeAPR = weeklyFeeAPR
	}
	rewardAPR := pool.Day.RewardAPR

	dailyYieldFrac := (feeAPR + rewardAPR) / 100 / 365

	// --- Volatility cost ---
	sigma, sigmaSource := EstimateSigmaDaily(pool, s.params.DefaultSigmaDaily)
	result.SigmaDaily = sigma

	lvrFrac := sigma * sigma / 8 * s.params.HoldDays
	result.LVRCostPct = lvrFrac * 100

	netReturnFrac := dailyYieldFrac*s.params.HoldDays - lvrFrac
	result.PredictedNetReturnPct = netReturnFrac * 100
	result.AnnualizedNetAPR = result.PredictedNetReturnPct / s.params.HoldDays * 365

	// --- Slippage against the candidate size ---
	if positionSizeSOL > 0 {
		slippageFrac, err := roundTripSlippage(pool, positionSizeSOL)
		if err != nil {
			return types.ScoreResult{}, err
		}
		result.SlippageSOL = positionSizeSOL * slippageFrac
		result.PredictedNetReturnSOL = positionSizeSOL*netReturnFrac - result.SlippageSOL
	}

	// --- Composite components ---
	result.DepthScore = depthScore(pool.TvlUSD)
	result.DataQualityScore = dataQualityScore(sigmaSource, hasRealFeeAPR, hasWeeklyAvg)
	if s.velocity != nil {
		result.VelocityBonus = s.velocity.GetVelocityBonus(pool.ID)
	}

	netComponent := netReturnScoreMax * clamp(result.PredictedNetReturnPct/netReturnFullScale, 0, 1)
	result.Score = clamp(netComponent+result.DepthScore+result.DataQualityScore+result.VelocityBonus, 0, 100)

	for _, v := range []struct {
		value float64
		name  string
	}{
		{result.Score, "composite score"},
		{result.PredictedNetReturnPct, "predicted net return"},
		{result.AnnualizedNetAPR, "annualized net APR"},
		{result.PredictedNetReturnSOL, "sized net return"},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return types.ScoreResult{}, fmt.Errorf("pool %s %s is not finite", pool.ID, v.name)
		}
	}

	scoreLogger.Debug().
		Str("pool", string(pool.ID)).
		Str("name", pool.Name).
		Float64("score", result.Score).
		Float64("netReturnPct", result.PredictedNetReturnPct).
		Float64("sigmaDaily", sigma).
		Str("sigmaSource", string(sigmaSource)).
		Float64("lvrCostPct", result.LVRCostPct).
		Msg("Pool scored")

	return result, nil
}

// Admissible applies the two entry gates to a score result: the
// annualized net return must clear the configured floor, and when a
// concrete position size was scored, the sized net return after
// slippage must be strictly positive.
func (s *Scorer) Admissible(result types.ScoreResult, positionSizeSOL float64) bool {
	if result.AnnualizedNetAPR < s.params.MinPredictedNetAPR {
		return false
	}
	if positionSizeSOL > 0 && result.PredictedNetReturnSOL <= 0 {
		return false
	}
	return true
}

// RankByNetReturn sorts ranked pools in place by predicted net return,
// highest first. The composite score breaks ties.
func RankByNetReturn(ranked []types.RankedPool) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Score, ranked[j].Score
		if a.PredictedNetReturnPct != b.PredictedNetReturnPct {
			return a.PredictedNetReturnPct > b.PredictedNetReturnPct
		}
		return a.Score > b.Score
	})
}

// roundTripSlippage models entry plus exit as two legs, each costing
// half the swap fee plus the size's share of one-sided depth.
func roundTripSlippage(pool types.Pool, positionSizeSOL float64) (float64, error) {
	depth := pool.DepthNative()
	if depth <= 0 {
		return 0, fmt.Errorf("pool %s has no native-side depth", pool.ID)
	}
	perLeg := pool.SwapFeeRate/2 + positionSizeSOL/(2*depth)
	return 2 * perLeg, nil
}

func depthScore(tvlUSD float64) float64 {
	if tvlUSD <= depthFloorUSD {
		return 0
	}
	scale := (math.Log10(tvlUSD) - math.Log10(depthFloorUSD)) /
		(math.Log10(depthCeilUSD) - math.Log10(depthFloorUSD))
	return depthScoreMax * clamp(scale, 0, 1)
}

// dataQualityScore rewards pools whose inputs needed no fallbacks:
// independent candles beat a single aggregate range, broken-out fee APR
// beats the total-APR fallback, and a weekly average beats one day.
func dataQualityScore(source SigmaSource, hasRealFeeAPR, hasWeeklyAvg bool) float64 {
	var score float64
	switch source {
	case SigmaFromCandles:
		score += 4
	case SigmaFromWindow:
		score += 2
	}
	if hasRealFeeAPR {
		score += 3
	}
	if hasWeeklyAvg {
		score += 3
	}
	if score > dataQualityScoreMax {
		score = dataQualityScoreMax
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
