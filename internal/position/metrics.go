/*

This file contains the per-tick live metric computation for an open
position.

P&L is read from the on-chain LP valuation when one is available; the
API-derived price only feeds the impermanent-loss figure. A valuation
wildly inconsistent with committed capital is discarded as corrupt
rather than applied, and an unavailable valuation retains the previous
known P&L rather than zeroing it.

*/

package position

import (
	"errors"
	"fmt"
	"math"

	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var ErrInvalidPriceRatio = errors.New("invalid price ratio")

// maxValueMultiple bounds a plausible LP valuation relative to committed
// capital. Readings above it are treated as corrupt.
const maxValueMultiple = 5.0

// ImpermanentLossPercent returns the closed-form two-asset divergence
// loss in percent for a 50/50 position, given entry and current price
// ratios. Always <= 0, zero at parity, symmetric under price inversion.
func ImpermanentLossPercent(entryPrice, currentPrice float64) (float64, error) {
	if entryPrice <= 0 || currentPrice <= 0 {
		return 0, fmt.Errorf("%w: entry %f, current %f", ErrInvalidPriceRatio, entryPrice, currentPrice)
	}
	if math.IsNaN(entryPrice) || math.IsInf(entryPrice, 0) ||
		math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) {
		return 0, fmt.Errorf("%w: not finite", ErrInvalidPriceRatio)
	}

	ratio := currentPrice / entryPrice
	il := 2*math.Sqrt(ratio)/(1+ratio) - 1
	return il * 100, nil
}

// UpdateLiveMetrics refreshes a position's live fields from this tick's
// observations. currentPrice may be zero when no price was obtainable;
// hasValue reports whether lpValueSOL is a real on-chain reading.
func UpdateLiveMetrics(pos *types.Position, currentPrice, lpValueSOL float64, hasValue bool) {
	if currentPrice > 0 {
		pos.CurrentPrice = currentPrice
		if il, err := ImpermanentLossPercent(pos.EntryPrice, currentPrice); err == nil {
			pos.ILPercent = il
		}
	}

	if !hasValue || lpValueSOL <= 0 {
		// No reading this tick; the previous P&L stands.
		return
	}
	if lpValueSOL > pos.CapitalSOL*maxValueMultiple {
		// Implausible valuation, discard.
		return
	}

	pos.CurrentValueSOL = lpValueSOL
	pos.UnrealizedPnLSOL = lpValueSOL - pos.CapitalSOL
	pos.PnLPercent = pos.UnrealizedPnLSOL / pos.CapitalSOL * 100

	// What the position would be worth from price movement alone is
	// capital * sqrt(r) for a 50/50 pool; anything above that is
	// accrued fees.
	if pos.EntryPrice > 0 && pos.CurrentPrice > 0 {
		priceOnly := pos.CapitalSOL * math.Sqrt(pos.CurrentPrice/pos.EntryPrice)
		fee := lpValueSOL - priceOnly
		if fee > 0 {
			pos.FeeIncomeSOL = fee
		}
	}
}
