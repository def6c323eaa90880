/*

This file contains the rolling per-pool snapshot tracker used for
momentum detection.

The market-data feed only exposes 24h aggregates; by sampling them every
scan cycle the tracker derives the short-term signals the feed cannot
provide: whether volume is accelerating, whether liquidity is draining,
and how tight the price range has been. At the default 3-minute scan
interval the 10-sample window covers roughly half an hour.

*/

package velocity

import (
	"sync"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var velocityLogger = logger.GetForComponent("velocity")

const (
	// DefaultMaxSamples bounds the per-pool ring buffer.
	DefaultMaxSamples = 10

	// minSamplesForBonus is the floor below which no bonus is computed.
	minSamplesForBonus = 3

	maxBonus = 10.0
)

// Sub-score scales. Volume acceleration earns full credit at +20%
// growth between the window halves; TVL is rewarded for stability, not
// growth, because inflows dilute fees while outflows signal a dying
// pool; price earns full credit under 2% max deviation from the mean.
const (
	volumeBonusMax      = 4.0
	volumeFullGrowth    = 0.20
	tvlBonusMax         = 3.0
	tvlStableBand       = 0.05
	tvlGrowthBonus      = 1.5
	tvlDrainCutoff      = 0.15
	priceBonusMax       = 3.0
	priceTightBand      = 0.02
	priceDeviationLimit = 0.10
)

// Summary is the human-readable digest of one pool's recent history.
type Summary struct {
	Samples         int     `json:"samples"`
	WindowMinutes   float64 `json:"window_minutes"`
	VolumeChangePct float64 `json:"volume_change_pct"`
	TVLChangePct    float64 `json:"tvl_change_pct"`
	PriceChangePct  float64 `json:"price_change_pct"`
	VelocityBonus   float64 `json:"velocity_bonus"`
}

// Tracker keeps a bounded sample ring per pool. Safe for concurrent use.
type Tracker struct {
	maxSamples int

	mu      sync.Mutex
	history map[types.PoolID][]types.VelocitySample
}

// NewTracker builds a tracker with the given per-pool capacity;
// non-positive values fall back to DefaultMaxSamples.
func NewTracker(maxSamples int) *Tracker {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Tracker{
		maxSamples: maxSamples,
		history:    make(map[types.PoolID][]types.VelocitySample),
	}
}

// Record appends a sample for a pool, evicting the oldest at capacity.
func (t *Tracker) Record(poolID types.PoolID, volume24h, tvl, price float64) {
	sample := types.VelocitySample{
		Timestamp: time.Now().Unix(),
		Volume24h: volume24h,
		TVL:       tvl,
		Price:     price,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	samples := append(t.history[poolID], sample)
	if len(samples) > t.maxSamples {
		samples = samples[len(samples)-t.maxSamples:]
	}
	t.history[poolID] = samples
}

// GetVelocityBonus computes the 0-10 momentum bonus for a pool.
// Returns 0 until at least three samples exist.
func (t *Tracker) GetVelocityBonus(poolID types.PoolID) float64 {
	t.mu.Lock()
	samples := t.history[poolID]
	t.mu.Unlock()

	if len(samples) < minSamplesForBonus {
		return 0
	}

	bonus := volumeAcceleration(samples) + tvlStability(samples) + priceTightness(samples)
	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus
}

// GetSummary returns the digest for a pool, or nil with fewer than two
// samples.
func (t *Tracker) GetSummary(poolID types.PoolID) *Summary {
	t.mu.Lock()
	samples := t.history[poolID]
	t.mu.Unlock()

	if len(samples) < 2 {
		return nil
	}

	first, last := samples[0], samples[len(samples)-1]
	summary := &Summary{
		Samples:       len(samples),
		WindowMinutes: float64(last.Timestamp-first.Timestamp) / 60,
		VelocityBonus: t.GetVelocityBonus(poolID),
	}
	if first.Volume24h > 0 {
		summary.VolumeChangePct = (last.Volume24h - first.Volume24h) / first.Volume24h * 100
	}
	if first.TVL > 0 {
		summary.TVLChangePct = (last.TVL - first.TVL) / first.TVL * 100
	}
	if first.Price > 0 {
		summary.PriceChangePct = (last.Price - first.Price) / first.Price * 100
	}
	return summary
}

// PoolCount returns the number of pools with history.
func (t *Tracker) PoolCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

// ClearPool drops all samples for a pool. Called after a position on
// that pool closes so stale momentum never feeds a re-entry decision.
func (t *Tracker) ClearPool(poolID types.PoolID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, poolID)
	velocityLogger.Debug().Str("pool", string(poolID)).Msg("Velocity history cleared")
}

// Export copies the full history for persistence.
func (t *Tracker) Export() map[types.PoolID][]types.VelocitySample {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.PoolID][]types.VelocitySample, len(t.history))
	for id, samples := range t.history {
		out[id] = append([]types.VelocitySample(nil), samples...)
	}
	return out
}

// Import replaces the history from a persisted snapshot, trimming each
// ring to capacity.
func (t *Tracker) Import(history map[types.PoolID][]types.VelocitySample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = make(map[types.PoolID][]types.VelocitySample, len(history))
	for id, samples := range history {
		if len(samples) > t.maxSamples {
			samples = samples[len(samples)-t.maxSamples:]
		}
		t.history[id] = append([]types.VelocitySample(nil), samples...)
	}
}

// volumeAcceleration compares the mean 24h volume of the newer half of
// the window against the older half.
func volumeAcceleration(samples []types.VelocitySample) float64 {
	mid := len(samples) / 2
	avgOld := meanVolume(samples[:mid])
	avgNew := meanVolume(samples[mid:])
	if avgOld <= 0 {
		return 0
	}

	growth := (avgNew - avgOld) / avgOld
	score := growth / volumeFullGrowth * volumeBonusMax
	if score < 0 {
		return 0
	}
	if score > volumeBonusMax {
		return volumeBonusMax
	}
	return score
}

func tvlStability(samples []types.VelocitySample) float64 {
	first := samples[0].TVL
	last := samples[len(samples)-1].TVL
	if first <= 0 {
		return 0
	}

	change := (last - first) / first
	switch {
	case change > -tvlStableBand && change < tvlStableBand:
		return tvlBonusMax
	case change >= tvlStableBand:
		return tvlGrowthBonus
	case change > -tvlDrainCutoff:
		score := tvlGrowthBonus * (1 - (-change)/tvlDrainCutoff)
		if score < 0 {
			return 0
		}
		return score
	default:
		return 0
	}
}

// priceTightness rewards a small maximum deviation from the mean price
// across the window. Fees accrue in both directions; only divergence
// hurts.
func priceTightness(samples []types.VelocitySample) float64 {
	prices := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Price > 0 {
			prices = append(prices, s.Price)
		}
	}
	if len(prices) < 2 {
		return 0
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean <= 0 {
		return 0
	}

	var maxDeviation float64
	for _, p := range prices {
		dev := (p - mean) / mean
		if dev < 0 {
			dev = -dev
		}
		if dev > maxDeviation {
			maxDeviation = dev
		}
	}

	switch {
	case maxDeviation <= priceTightBand:
		return priceBonusMax
	case maxDeviation < priceDeviationLimit:
		score := priceBonusMax * (1 - (maxDeviation-priceTightBand)/(priceDeviationLimit-priceTightBand))
		if score < 0 {
			return 0
		}
		return score
	default:
		return 0
	}
}

func meanVolume(samples []types.VelocitySample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Volume24h
	}
	return sum / float64(len(samples))
}
