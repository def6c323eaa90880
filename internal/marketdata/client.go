/*

This file contains the market-data feed client with its TTL cache.

The feed returns loosely shaped pool JSON; everything downstream consumes
the normalized types.Pool, produced exactly once here. Fetch errors fall
back to the last cached result so a feed blip never blanks a scan.

*/

package marketdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var mdLogger = logger.GetForComponent("marketdata")

var (
	ErrFeedUnavailable = errors.New("market-data feed unavailable")
	ErrPoolNotFound    = errors.New("pool not found")
)

// WSOLMint is the wrapped native asset mint; all tracked pools are
// paired against it.
const WSOLMint = "So11111111111111111111111111111111111111112"

// AMMv4Program is the only pool program the execution bridge supports.
// Pools under other programs have incompatible account layouts.
const AMMv4Program = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

const maxFeedPages = 10

// Client fetches and caches pool records from the market-data feed.
type Client struct {
	baseURL string
	http    *http.Client

	mu       sync.Mutex
	cache    []types.Pool
	cachedAt time.Time
	cacheTTL time.Duration
	sol      *PriceFeed
}

// NewClient builds a feed client with the given cache TTL.
func NewClient(baseURL string, cacheTTL time.Duration, priceFeed *PriceFeed) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("market-data base URL cannot be empty")
	}
	if cacheTTL <= 0 {
		return nil, errors.New("cache TTL must be positive")
	}
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		cacheTTL: cacheTTL,
		sol:      priceFeed,
	}, nil
}

// SOLPriceUSD exposes the native-asset price feed for display.
func (c *Client) SOLPriceUSD() float64 {
	if c.sol == nil {
		return 0
	}
	return c.sol.PriceUSD()
}

// GetAllPools returns the native-asset pool set, served from cache while
// fresh. On fetch failure the stale cache is returned if one exists.
func (c *Client) GetAllPools(forceRefresh bool) ([]types.Pool, error) {
	c.mu.Lock()
	if !forceRefresh && c.cache != nil && time.Since(c.cachedAt) < c.cacheTTL {
		pools := c.cache
		c.mu.Unlock()
		return pools, nil
	}
	c.mu.Unlock()

	pools, err := c.fetchPools()
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.cache != nil {
			mdLogger.Warn().Err(err).Int("stalePools", len(c.cache)).Msg("Feed fetch failed, serving stale cache")
			return c.cache, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	c.mu.Lock()
	c.cache = pools
	c.cachedAt = time.Now()
	c.mu.Unlock()

	mdLogger.Info().Int("poolCount", len(pools)).Msg("Fetched native-asset pools from feed")
	return pools, nil
}

// GetPoolByID looks a pool up in the cache first, then directly from the
// feed for pools outside the native-asset set.
func (c *Client) GetPoolByID(id types.PoolID) (types.Pool, error) {
	pools, err := c.GetAllPools(false)
	if err == nil {
		for _, p := range pools {
			if p.ID == id {
				return p, nil
			}
		}
	}

	url := fmt.Sprintf("%s/pools/info/ids?ids=%s", c.baseURL, id)
	var resp struct {
		Data []feedPool `json:"data"`
	}
	if err := c.getJSON(url, &resp); err != nil {
		return types.Pool{}, fmt.Errorf("direct pool lookup failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return types.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	pool, err := normalizePool(resp.Data[0])
	if err != nil {
		return types.Pool{}, err
	}
	return pool, nil
}

// FindPoolForMint locates a pool pairing the given token mint with the
// native asset, used by the recovery sweep to liquidate stray balances.
func (c *Client) FindPoolForMint(mint string) (types.Pool, error) {
	url := fmt.Sprintf("%s/pools/info/mint?mint1=%s&mint2=%s&poolType=standard&poolSortField=liquidity&sortType=desc&pageSize=10&page=1",
		c.baseURL, mint, WSOLMint)
	var resp struct {
		Data struct {
			Data []feedPool `json:"data"`
		} `json:"data"`
	}
	if err := c.getJSON(url, &resp); err != nil {
		return types.Pool{}, fmt.Errorf("pairing pool lookup failed: %w", err)
	}
	for _, raw := range resp.Data.Data {
		if raw.ProgramID != AMMv4Program {
			continue
		}
		pool, err := normalizePool(raw)
		if err != nil {
			continue
		}
		return pool, nil
	}
	return types.Pool{}, fmt.Errorf("%w: no pairing pool for mint %s", ErrPoolNotFound, mint)
}

// GetFilteredPools applies the basic scan filters to the cached pool set.
func (c *Client) GetFilteredPools(minLiquidity, minVolumeTVLRatio, minAPR float64) ([]types.Pool, error) {
	pools, err := c.GetAllPools(false)
	if err != nil {
		return nil, err
	}

	var filtered []types.Pool
	for _, p := range pools {
		if p.TvlUSD <= 0 {
			continue
		}
		if minLiquidity > 0 && p.TvlUSD < minLiquidity {
			continue
		}
		if minVolumeTVLRatio > 0 && p.VolumeTVLRatio() < minVolumeTVLRatio {
			continue
		}
		if minAPR > 0 && p.Day.APR < minAPR {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}

// fetchPools queries the feed sorted by liquidity and by volume
// separately, then merges and deduplicates. This surfaces both
// deep-liquidity pools and high-activity pools that rank lower by TVL.
func (c *Client) fetchPools() ([]types.Pool, error) {
	seen := make(map[types.PoolID]bool)
	var merged []types.Pool
	var lastErr error

	for _, sortField := range []string{"liquidity", "volume24h"} {
		for page := 1; page <= maxFeedPages; page++ {
			url := fmt.Sprintf("%s/pools/info/mint?mint1=%s&poolType=standard&poolSortField=%s&sortType=desc&pageSize=100&page=%d",
				c.baseURL, WSOLMint, sortField, page)

			var resp struct {
				Data struct {
					Data        []feedPool `json:"data"`
					HasNextPage bool       `json:"hasNextPage"`
				} `json:"data"`
			}
			if err := c.getJSON(url, &resp); err != nil {
				mdLogger.Warn().Err(err).Str("sortField", sortField).Int("page", page).Msg("Feed page fetch failed")
				lastErr = err
				break
			}
			if len(resp.Data.Data) == 0 {
				break
			}

			for _, raw := range resp.Data.Data {
				if raw.ProgramID != "" && raw.ProgramID != AMMv4Program {
					continue
				}
				pool, err := normalizePool(raw)
				if err != nil {
					mdLogger.Debug().Err(err).Str("poolID", raw.ID).Msg("Skipping malformed pool record")
					continue
				}
				if !seen[pool.ID] {
					seen[pool.ID] = true
					merged = append(merged, pool)
				}
			}

			if !resp.Data.HasNextPage {
				break
			}
		}
	}

	if len(merged) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errors.New("feed returned no pools")
	}
	return merged, nil
}

func (c *Client) getJSON(url string, out any) error {
	resp, err := c.http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// feedPool mirrors the feed's wire shape.
type feedPool struct {
	ID        string   `json:"id"`
	ProgramID string   `json:"programId"`
	TVL       float64  `json:"tvl"`
	FeeRate   float64  `json:"feeRate"`
	BurnPct   float64  `json:"burnPercent"`
	OpenTime  string   `json:"openTime"`
	LPMint    feedMint `json:"lpMint"`
	MintA     feedMint `json:"mintA"`
	MintB     feedMint `json:"mintB"`
	AmountA   float64  `json:"mintAmountA"`
	AmountB   float64  `json:"mintAmountB"`
	Day       feedStat `json:"day"`
	Week      feedStat `json:"week"`
}

type feedMint struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type feedStat struct {
	Volume    float64 `json:"volume"`
	VolumeFee float64 `json:"volumeFee"`
	APR       float64 `json:"apr"`
	FeeAPR    float64 `json:"feeApr"`
	RewardAPR float64 `json:"rewardApr"`
	PriceMin  float64 `json:"priceMin"`
	PriceMax  float64 `json:"priceMax"`
}

// normalizePool converts a raw feed record into the strict internal pool
// struct, resolving every field fallback here and nowhere else.
func normalizePool(raw feedPool) (types.Pool, error) {
	if raw.ID == "" {
		return types.Pool{}, errors.New("feed pool has empty ID")
	}

	symA := raw.MintA.Symbol
	symB := raw.MintB.Symbol
	if symA == "" {
		symA = "?"
	}
	if symB == "" {
		symB = "?"
	}

	// Orient the record so the quote side is always the native asset.
	base, quote := raw.MintA, raw.MintB
	baseAmt, quoteAmt := raw.AmountA, raw.AmountB
	if base.Address == WSOLMint && quote.Address != WSOLMint {
		base, quote = quote, base
		baseAmt, quoteAmt = quoteAmt, baseAmt
		symA, symB = symB, symA
	}

	price := 0.0
	if baseAmt > 0 && quoteAmt > 0 {
		price = quoteAmt / baseAmt
	}

	ageDays := 0.0
	if raw.OpenTime != "" {
		if openUnix, err := strconv.ParseInt(raw.OpenTime, 10, 64); err == nil && openUnix > 0 {
			ageDays = time.Since(time.Unix(openUnix, 0)).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
		}
	}

	pool := types.Pool{
		ID:           types.PoolID(raw.ID),
		Name:         symA + "/" + symB,
		BaseMint:     base.Address,
		QuoteMint:    quote.Address,
		BaseSym:      symA,
		QuoteSym:     symB,
		LPMint:       raw.LPMint.Address,
		TvlUSD:       raw.TVL,
		SwapFeeRate:  raw.FeeRate,
		BurnPercent:  raw.BurnPct,
		Price:        price,
		BaseReserve:  baseAmt,
		QuoteReserve: quoteAmt,
		Day:          types.PoolWindow(raw.Day),
		Week:         types.PoolWindow(raw.Week),
		AgeDays:      ageDays,
	}

	if err := pool.Validate(); err != nil {
		return types.Pool{}, err
	}
	return pool, nil
}
