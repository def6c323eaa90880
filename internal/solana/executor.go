/*

This file contains the execution-service interface.

The orchestrator never assumes how transactions are signed or built; it
drives entries, exits, and recovery exclusively through this surface.
The production implementation shells out to the Node bridge; tests
substitute an in-memory fake.

*/

package solana

import (
	"context"
	"errors"

	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var (
	ErrTradingDisabled = errors.New("trading is disabled")
	ErrBridgeFailed    = errors.New("execution bridge call failed")
)

// SwapDirection selects which side of a pool a swap buys.
type SwapDirection string

const (
	SwapBuy  SwapDirection = "buy"  // spend native asset, receive token
	SwapSell SwapDirection = "sell" // spend token, receive native asset
)

// AddLiquidityResult carries the identifiers produced by a successful
// add-liquidity call.
type AddLiquidityResult struct {
	Signature string
	LPMint    string
}

// LPValueQuery addresses one position for batched valuation.
type LPValueQuery struct {
	PoolID types.PoolID `json:"poolId"`
	LPMint string       `json:"lpMint"`
}

// CloseAccountsResult summarizes a close-empty-accounts sweep.
type CloseAccountsResult struct {
	Closed       int
	ReclaimedSOL float64
}

// Executor is the opaque execution service: balances, swaps, liquidity
// management, valuation, and account hygiene. All calls are synchronous
// and bounded by a timeout through ctx.
type Executor interface {
	// GetSOLBalance returns the wallet's native balance in SOL.
	GetSOLBalance(ctx context.Context) (float64, error)

	// GetTokenBalance returns the raw balance for a mint (0 when no
	// account exists).
	GetTokenBalance(ctx context.Context, mint string) (uint64, error)

	// UnwrapWSOL converts any wrapped-native balance back to native
	// form, returning the amount unwrapped in SOL.
	UnwrapWSOL(ctx context.Context) (float64, error)

	// Swap trades through a pool. amountIn is denominated in the spent
	// asset's human-readable units. Returns the transaction signature.
	Swap(ctx context.Context, poolID types.PoolID, amountIn float64, direction SwapDirection) (string, error)

	// AddLiquidity deposits both sides into a pool.
	AddLiquidity(ctx context.Context, poolID types.PoolID, tokenAmount, solAmount float64) (AddLiquidityResult, error)

	// RemoveLiquidity redeems LP receipt tokens (human-readable units).
	RemoveLiquidity(ctx context.Context, poolID types.PoolID, lpAmount float64) (string, error)

	// GetLPValue values one LP holding in SOL terms.
	GetLPValue(ctx context.Context, poolID types.PoolID, lpMint string) (types.LPValue, error)

	// BatchGetLPValues values every queried holding in one round trip.
	BatchGetLPValues(ctx context.Context, queries []LPValueQuery) (map[types.PoolID]types.LPValue, error)

	// ListTokenAccounts returns all non-zero token accounts.
	ListTokenAccounts(ctx context.Context) ([]types.TokenBalance, error)

	// CloseEmptyAccounts reclaims rent from empty token accounts,
	// keeping accounts for the given mints.
	CloseEmptyAccounts(ctx context.Context, keepMints []string) (CloseAccountsResult, error)
}
