/*

This file contains the normalized pool record consumed by the safety gate,
the scorer, and the orchestrator.

Pool records come off the market-data feed as loosely shaped JSON with
nested day/week statistic windows. They are normalized exactly once, at
ingestion, into this struct; every fallback (feeApr vs total apr, weekly
vs daily averages) is resolved there and never re-derived downstream.

*/

package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// PoolID is the AMM account address identifying a pool on-chain.
type PoolID string

// PoolWindow holds the trading statistics of one aggregation window
// (24h or 7d) as reported by the market-data feed.
type PoolWindow struct {
	Volume    float64 `json:"volume"`
	VolumeFee float64 `json:"volumeFee"`
	APR       float64 `json:"apr"`
	FeeAPR    float64 `json:"feeApr"`
	RewardAPR float64 `json:"rewardApr"`
	PriceMin  float64 `json:"priceMin"`
	PriceMax  float64 `json:"priceMax"`
}

// Candle is a single daily high/low observation used by the Parkinson
// volatility estimator. Candles are optional; pools without them fall
// back to the window range or a fixed default.
type Candle struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// Pool is the normalized, read-only pool record refreshed on every scan.
type Pool struct {
	ID        PoolID `json:"id"`
	Name      string `json:"name"`
	BaseMint  string `json:"base_mint"`
	QuoteMint string `json:"quote_mint"`
	BaseSym   string `json:"base_symbol"`
	QuoteSym  string `json:"quote_symbol"`
	LPMint    string `json:"lp_mint"`

	// TvlUSD is the pool's total value locked. Invariant: > 0 for any
	// pool that reaches the safety gate.
	TvlUSD float64 `json:"tvl_usd"`

	// SwapFeeRate is the pool's trading fee as a fraction (0.0025 = 25bps).
	SwapFeeRate float64 `json:"swap_fee_rate"`

	// BurnPercent is the fraction of LP receipt supply permanently
	// destroyed, as reported by the feed (0-100).
	BurnPercent float64 `json:"burn_percent"`

	// Price is the quote/base reserve ratio at scan time.
	Price float64 `json:"price"`

	// BaseReserve and QuoteReserve are human-readable reserve amounts.
	// QuoteReserve is denominated in the native asset for WSOL pairs.
	BaseReserve  float64 `json:"base_reserve"`
	QuoteReserve float64 `json:"quote_reserve"`

	Day  PoolWindow `json:"day"`
	Week PoolWindow `json:"week"`

	// DailyCandles holds up to the last 7 daily high/low pairs when the
	// feed provides them. May be empty.
	DailyCandles []Candle `json:"daily_candles,omitempty"`

	AgeDays float64 `json:"age_days"`
}

// FeeAPR24h returns the daily-window fee APR, falling back to the total
// APR when the feed did not break fees out separately. The second return
// reports whether real fee data was available (feeds the data-quality
// bonus in scoring).
func (p Pool) FeeAPR24h() (float64, bool) {
	if p.Day.FeeAPR > 0 {
		return p.Day.FeeAPR, true
	}
	return p.Day.APR, false
}

// FeeAPRWeekly returns the weekly fee APR with the same fallback chain,
// preferring the multi-day average over the single-day figure. The bool
// reports whether a multi-day average was used.
func (p Pool) FeeAPRWeekly() (float64, bool) {
	if p.Week.FeeAPR > 0 {
		return p.Week.FeeAPR, true
	}
	return p.Day.FeeAPR, false
}

// DepthNative approximates the pool's one-sided depth in native-asset
// terms, used for slippage estimation against a candidate position size.
func (p Pool) DepthNative() float64 {
	return p.QuoteReserve
}

// VolumeTVLRatio returns 24h volume over TVL, the basic activity filter.
func (p Pool) VolumeTVLRatio() float64 {
	if p.TvlUSD <= 0 {
		return 0
	}
	return p.Day.Volume / p.TvlUSD
}

// Validate performs strict validation of a normalized pool record before
// it is handed to any financial calculation.
func (p Pool) Validate() error {
	if strings.TrimSpace(string(p.ID)) == "" {
		return errors.New("pool ID cannot be empty")
	}
	if p.TvlUSD <= 0 {
		return fmt.Errorf("pool %s has non-positive TVL: %f", p.ID, p.TvlUSD)
	}
	if math.IsNaN(p.TvlUSD) || math.IsInf(p.TvlUSD, 0) {
		return fmt.Errorf("pool %s TVL is not finite", p.ID)
	}
	if p.BurnPercent < 0 || p.BurnPercent > 100 {
		return fmt.Errorf("pool %s has invalid burn percent: %f", p.ID, p.BurnPercent)
	}
	if p.Price < 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return fmt.Errorf("pool %s has invalid price: %f", p.ID, p.Price)
	}
	for _, v := range []struct {
		value float64
		name  string
	}{
		{p.Day.APR, "24h APR"},
		{p.Day.FeeAPR, "24h fee APR"},
		{p.Day.Volume, "24h volume"},
		{p.Week.APR, "7d APR"},
		{p.Week.Volume, "7d volume"},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("pool %s %s is not finite", p.ID, v.name)
		}
		if v.value < 0 {
			return fmt.Errorf("pool %s %s cannot be negative", p.ID, v.name)
		}
	}
	if p.AgeDays < 0 {
		return fmt.Errorf("pool %s has negative age", p.ID)
	}
	return nil
}
