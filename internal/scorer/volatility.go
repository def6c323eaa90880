/*

This file contains the daily volatility estimation used by the
net-return model.

Estimator preference order:
 1. Multi-sample Parkinson over independent daily high/low candles.
 2. Single-window Parkinson over the 7d (preferred) or 24h price range.
 3. A conservative fixed default.

The Parkinson estimator uses only the high/low range per period, which
is the only price history the market-data feed reliably provides for
long-tail pools.

*/

package scorer

import (
	"errors"
	"math"

	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var ErrInsufficientRangeData = errors.New("insufficient range data to estimate volatility")

// SigmaSource records which estimator produced the volatility figure.
// Feeds the data-quality component of the composite score.
type SigmaSource string

const (
	SigmaFromCandles SigmaSource = "candles"
	SigmaFromWindow  SigmaSource = "window"
	SigmaDefault     SigmaSource = "default"
)

const minCandlesForEstimate = 3

// parkinsonFactor is 4*ln2, the variance normalizer of the Parkinson
// range estimator.
var parkinsonFactor = 4 * math.Ln2

// EstimateSigmaDaily returns the estimated daily volatility for a pool
// as a fraction (0.15 = 15%), together with the estimator that produced
// it. It never fails: pools with no usable range data get defaultSigma.
func EstimateSigmaDaily(pool types.Pool, defaultSigma float64) (float64, SigmaSource) {
	if sigma, err := parkinsonFromCandles(pool.DailyCandles); err == nil {
		return sigma, SigmaFromCandles
	}

	// The 7d range covers more observations than the 24h range, so its
	// estimate is both smoother and preferred.
	if sigma, err := parkinsonFromWindow(pool.Week.PriceMax, pool.Week.PriceMin, 7); err == nil {
		return sigma, SigmaFromWindow
	}
	if sigma, err := parkinsonFromWindow(pool.Day.PriceMax, pool.Day.PriceMin, 1); err == nil {
		return sigma, SigmaFromWindow
	}

	return defaultSigma, SigmaDefault
}

// parkinsonFromCandles computes the multi-sample Parkinson estimate
// over independent daily candles: sigma^2 = mean(ln(H/L)^2) / (4*ln2).
func parkinsonFromCandles(candles []types.Candle) (float64, error) {
	squared := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Low <= 0 || c.High < c.Low {
			continue
		}
		logRange := math.Log(c.High / c.Low)
		squared = append(squared, logRange*logRange)
	}
	if len(squared) < minCandlesForEstimate {
		return 0, ErrInsufficientRangeData
	}

	var sum float64
	for _, sq := range squared {
		sum += sq
	}
	variance := sum / float64(len(squared)) / parkinsonFactor
	sigma := math.Sqrt(variance)

	if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return 0, ErrInsufficientRangeData
	}
	return sigma, nil
}

// parkinsonFromWindow computes the single-window Parkinson estimate
// from an aggregate N-day high/low range:
// sigma = ln(H/L) / (2 * sqrt(N*ln2)).
func parkinsonFromWindow(high, low float64, days float64) (float64, error) {
	if low <= 0 || high < low || days <= 0 {
		return 0, ErrInsufficientRangeData
	}
	if high == low {
		// A degenerate flat range means the feed had no real data for
		// the window, not that the pool traded at zero volatility.
		return 0, ErrInsufficientRangeData
	}

	sigma := math.Log(high/low) / (2 * math.Sqrt(days*math.Ln2))
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma <= 0 {
		return 0, ErrInsufficientRangeData
	}
	return sigma, nil
}
