/*

This file contains the Node bridge adapter implementing the Executor
interface.

Transaction building against AMM programs lives in a small Node script
(the ecosystem SDKs for this are JavaScript); each call shells out with
a command verb and positional arguments and parses the last JSON line
the script prints. The bridge owns the dry-run and trading-disabled
guards so no caller can accidentally sign a real transaction.

*/

package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var bridgeLogger = logger.GetForComponent("bridge")

const (
	queryTimeout = 20 * time.Second
	txTimeout    = 60 * time.Second
)

var _ Executor = (*BridgeExecutor)(nil)

// BridgeExecutor drives the Node execution bridge.
type BridgeExecutor struct {
	script         string
	walletAddress  string
	rpc            *Client
	tradingEnabled bool
	dryRun         bool
	slippagePct    float64
}

// NewBridgeExecutor builds the bridge adapter. slippagePct is the
// default tolerance passed to every transaction (5 = 5%).
func NewBridgeExecutor(script, walletAddress string, rpc *Client, tradingEnabled, dryRun bool, slippagePct float64) *BridgeExecutor {
	return &BridgeExecutor{
		script:         script,
		walletAddress:  walletAddress,
		rpc:            rpc,
		tradingEnabled: tradingEnabled,
		dryRun:         dryRun,
		slippagePct:    slippagePct,
	}
}

// call runs the bridge script with the given arguments and decodes the
// last JSON line of its stdout into out.
func (b *BridgeExecutor) call(ctx context.Context, timeout time.Duration, out any, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "node", append([]string{b.script}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w (stderr: %s)",
			ErrBridgeFailed, args[0], err, strings.TrimSpace(stderr.String()))
	}

	// The script logs progress lines before the final JSON result.
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return fmt.Errorf("%w: %s produced no output", ErrBridgeFailed, args[0])
	}
	if err := json.Unmarshal([]byte(last), out); err != nil {
		return fmt.Errorf("%w: parsing %s response: %w", ErrBridgeFailed, args[0], err)
	}
	return nil
}

// guardTx applies the trading-mode guards. A synthetic signature is
// returned in dry-run mode.
func (b *BridgeExecutor) guardTx(verb string, poolID types.PoolID) (string, bool, error) {
	if b.dryRun {
		sig := fmt.Sprintf("DRY_RUN_%s_%s", strings.ToUpper(verb), shortID(poolID))
		bridgeLogger.Info().Str("pool", string(poolID)).Str("signature", sig).Msgf("Dry run: skipping %s", verb)
		return sig, true, nil
	}
	if !b.tradingEnabled {
		return "", false, ErrTradingDisabled
	}
	return "", false, nil
}

func (b *BridgeExecutor) GetSOLBalance(ctx context.Context) (float64, error) {
	return b.rpc.GetBalanceSOL(ctx, b.walletAddress)
}

func (b *BridgeExecutor) GetTokenBalance(ctx context.Context, mint string) (uint64, error) {
	var resp struct {
		Success bool        `json:"success"`
		Balance json.Number `json:"balance"`
	}
	if err := b.call(ctx, queryTimeout, &resp, "balance", mint); err != nil {
		return 0, err
	}
	if resp.Balance == "" {
		return 0, nil
	}
	raw, err := strconv.ParseUint(resp.Balance.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid balance %q for %s", ErrBridgeFailed, resp.Balance, mint)
	}
	return raw, nil
}

func (b *BridgeExecutor) UnwrapWSOL(ctx context.Context) (float64, error) {
	var resp struct {
		Success   bool    `json:"success"`
		Unwrapped float64 `json:"unwrapped"`
	}
	if err := b.call(ctx, txTimeout, &resp, "unwrap"); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, nil
	}
	return resp.Unwrapped, nil
}

func (b *BridgeExecutor) Swap(ctx context.Context, poolID types.PoolID, amountIn float64, direction SwapDirection) (string, error) {
	if sig, done, err := b.guardTx("swap", poolID); done || err != nil {
		return sig, err
	}

	var resp struct {
		Success    bool     `json:"success"`
		Signatures []string `json:"signatures"`
		Error      string   `json:"error"`
	}
	err := b.call(ctx, txTimeout, &resp, "swap", string(poolID),
		formatAmount(amountIn), formatAmount(b.slippagePct), string(direction))
	if err != nil {
		return "", err
	}
	if !resp.Success || len(resp.Signatures) == 0 {
		return "", fmt.Errorf("%w: swap on %s: %s", ErrBridgeFailed, poolID, resp.Error)
	}

	bridgeLogger.Info().
		Str("pool", string(poolID)).
		Str("direction", string(direction)).
		Float64("amountIn", amountIn).
		Str("signature", resp.Signatures[0]).
		Msg("Swap executed")
	return resp.Signatures[0], nil
}

func (b *BridgeExecutor) AddLiquidity(ctx context.Context, poolID types.PoolID, tokenAmount, solAmount float64) (AddLiquidityResult, error) {
	if sig, done, err := b.guardTx("add", poolID); done || err != nil {
		return AddLiquidityResult{Signature: sig}, err
	}

	var resp struct {
		Success    bool     `json:"success"`
		Signatures []string `json:"signatures"`
		LPMint     string   `json:"lpMint"`
		Error      string   `json:"error"`
	}
	err := b.call(ctx, txTimeout, &resp, "add", string(poolID),
		formatAmount(tokenAmount), formatAmount(solAmount), formatAmount(b.slippagePct))
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if !resp.Success || len(resp.Signatures) == 0 {
		return AddLiquidityResult{}, fmt.Errorf("%w: add liquidity on %s: %s", ErrBridgeFailed, poolID, resp.Error)
	}

	bridgeLogger.Info().
		Str("pool", string(poolID)).
		Str("signature", resp.Signatures[0]).
		Str("lpMint", resp.LPMint).
		Msg("Liquidity added")
	return AddLiquidityResult{Signature: resp.Signatures[0], LPMint: resp.LPMint}, nil
}

func (b *BridgeExecutor) RemoveLiquidity(ctx context.Context, poolID types.PoolID, lpAmount float64) (string, error) {
	if sig, done, err := b.guardTx("remove", poolID); done || err != nil {
		return sig, err
	}

	var resp struct {
		Success    bool     `json:"success"`
		Signatures []string `json:"signatures"`
		Error      string   `json:"error"`
	}
	err := b.call(ctx, txTimeout, &resp, "remove", string(poolID),
		formatAmount(lpAmount), formatAmount(b.slippagePct))
	if err != nil {
		return "", err
	}
	if !resp.Success || len(resp.Signatures) == 0 {
		return "", fmt.Errorf("%w: remove liquidity on %s: %s", ErrBridgeFailed, poolID, resp.Error)
	}

	bridgeLogger.Info().
		Str("pool", string(poolID)).
		Float64("lpAmount", lpAmount).
		Str("signature", resp.Signatures[0]).
		Msg("Liquidity removed")
	return resp.Signatures[0], nil
}

type lpValueWire struct {
	ValueSOL   float64     `json:"valueSol"`
	PriceRatio float64     `json:"priceRatio"`
	LPBalance  json.Number `json:"lpBalance"`
}

func (w lpValueWire) toLPValue() types.LPValue {
	balance, _ := strconv.ParseUint(w.LPBalance.String(), 10, 64)
	return types.LPValue{ValueSOL: w.ValueSOL, PriceRatio: w.PriceRatio, LPBalance: balance}
}

func (b *BridgeExecutor) GetLPValue(ctx context.Context, poolID types.PoolID, lpMint string) (types.LPValue, error) {
	var resp lpValueWire
	if err := b.call(ctx, queryTimeout, &resp, "lpvalue", string(poolID), lpMint); err != nil {
		return types.LPValue{}, err
	}
	return resp.toLPValue(), nil
}

func (b *BridgeExecutor) BatchGetLPValues(ctx context.Context, queries []LPValueQuery) (map[types.PoolID]types.LPValue, error) {
	if len(queries) == 0 {
		return map[types.PoolID]types.LPValue{}, nil
	}
	payload, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding batch query: %w", ErrBridgeFailed, err)
	}

	var resp struct {
		Results map[types.PoolID]lpValueWire `json:"results"`
	}
	if err := b.call(ctx, queryTimeout, &resp, "batchlpvalue", string(payload)); err != nil {
		return nil, err
	}

	out := make(map[types.PoolID]types.LPValue, len(resp.Results))
	for id, wire := range resp.Results {
		out[id] = wire.toLPValue()
	}
	return out, nil
}

func (b *BridgeExecutor) ListTokenAccounts(ctx context.Context) ([]types.TokenBalance, error) {
	var resp struct {
		Success bool `json:"success"`
		Tokens  []struct {
			Mint     string      `json:"mint"`
			Symbol   string      `json:"symbol"`
			Balance  json.Number `json:"balance"`
			Decimals int         `json:"decimals"`
			UIAmount float64     `json:"uiAmount"`
		} `json:"tokens"`
	}
	if err := b.call(ctx, queryTimeout, &resp, "listtokens"); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, nil
	}

	out := make([]types.TokenBalance, 0, len(resp.Tokens))
	for _, tok := range resp.Tokens {
		raw, _ := strconv.ParseUint(tok.Balance.String(), 10, 64)
		out = append(out, types.TokenBalance{
			Mint:     tok.Mint,
			Symbol:   tok.Symbol,
			Amount:   raw,
			Decimals: tok.Decimals,
			UIAmount: tok.UIAmount,
		})
	}
	return out, nil
}

func (b *BridgeExecutor) CloseEmptyAccounts(ctx context.Context, keepMints []string) (CloseAccountsResult, error) {
	args := []string{"closeaccounts"}
	if len(keepMints) > 0 {
		args = append(args, strings.Join(keepMints, ","))
	}

	var resp struct {
		Closed       int     `json:"closed"`
		ReclaimedSOL float64 `json:"reclaimedSol"`
	}
	if err := b.call(ctx, txTimeout, &resp, args...); err != nil {
		return CloseAccountsResult{}, err
	}
	return CloseAccountsResult{Closed: resp.Closed, ReclaimedSOL: resp.ReclaimedSOL}, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func shortID(poolID types.PoolID) string {
	s := string(poolID)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
