/*

This file contains conversions between raw on-chain token amounts and
human-readable figures, with strict precision handling.

All conversions go through decimal arithmetic. Chaining float64
multiplications against 10^decimals loses lamports, and lamports are
money.

*/

package solana

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDecimals = errors.New("token decimals are invalid")
	ErrAmountNegative  = errors.New("amount is negative")
	ErrNotFinite       = errors.New("value is not finite")
	ErrAmountOverflow  = errors.New("amount overflows raw representation")
)

// SOLDecimals is the native asset's decimal precision (1 SOL = 1e9 lamports).
const SOLDecimals = 9

// LamportsToSOL converts a raw lamport amount to SOL.
func LamportsToSOL(lamports uint64) float64 {
	f, _ := decimal.NewFromUint64(lamports).Shift(-SOLDecimals).Float64()
	return f
}

// SOLToLamports converts a SOL amount to raw lamports, truncating
// sub-lamport dust.
func SOLToLamports(amount float64) (uint64, error) {
	return UIToRaw(amount, SOLDecimals)
}

// RawToUI converts a raw token amount to its human-readable form.
func RawToUI(raw uint64, decimals int) (float64, error) {
	if decimals < 0 || decimals > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	f, _ := decimal.NewFromUint64(raw).Shift(int32(-decimals)).Float64()
	return f, nil
}

// UIToRaw converts a human-readable token amount to its raw form,
// truncating below the token's precision.
func UIToRaw(amount float64, decimals int) (uint64, error) {
	if decimals < 0 || decimals > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return 0, ErrAmountNegative
	}
	if amount == 0 {
		return 0, nil
	}

	raw := decimal.NewFromFloat(amount).Shift(int32(decimals)).Truncate(0)
	bigRaw := raw.BigInt()
	if !bigRaw.IsUint64() {
		return 0, fmt.Errorf("%w: %f at %d decimals", ErrAmountOverflow, amount, decimals)
	}
	return bigRaw.Uint64(), nil
}
