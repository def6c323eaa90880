/*

This file contains the JSON-RPC client for on-chain reads.

Public RPC endpoints rate-limit aggressively, so every call passes
through a client-side token-bucket limiter before it is sent. The
client implements the chain-reader surface the safety package consumes.

*/

package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
)

var rpcLogger = logger.GetForComponent("rpc")

var (
	ErrRPCUnavailable = errors.New("RPC endpoint unavailable")
	ErrRPCResponse    = errors.New("RPC returned an error")
)

const (
	rpcTimeout = 15 * time.Second

	// defaultRequestsPerSecond matches public-endpoint limits with a
	// little headroom for bursts from the lock analyzer.
	defaultRequestsPerSecond = 8
	defaultBurst             = 4
)

// Client is a throttled Solana JSON-RPC client.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	nextID   atomic.Uint64
}

// NewClient builds an RPC client for the given endpoint.
// requestsPerSecond <= 0 uses the default throttle.
func NewClient(endpoint string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: rpcTimeout},
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), defaultBurst),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Error  *rpcError       `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Call performs one JSON-RPC request, honoring the rate limit, and
// unmarshals the result into result (which may be nil to discard it).
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRPCUnavailable, err)
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRPCUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRPCUnavailable, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrRPCUnavailable, method, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %w", ErrRPCUnavailable, method, err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: parsing %s response: %w", ErrRPCResponse, method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: %s: %s (code %d)", ErrRPCResponse, method, envelope.Error.Message, envelope.Error.Code)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%w: decoding %s result: %w", ErrRPCResponse, method, err)
		}
	}

	rpcLogger.Trace().Str("method", method).Msg("RPC call completed")
	return nil
}

// GetBalanceSOL returns an address's native balance in SOL.
func (c *Client) GetBalanceSOL(ctx context.Context, address string) (float64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.Call(ctx, "getBalance", []any{address}, &result); err != nil {
		return 0, err
	}
	return LamportsToSOL(result.Value), nil
}
