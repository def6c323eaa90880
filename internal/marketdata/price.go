/*

This file contains the native-asset USD price feed with a primary oracle,
a keyless fallback oracle, and a short TTL cache. On total failure the
last known price is returned rather than zero, so display math degrades
instead of breaking.

*/

package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var priceLogger = mdLogger.With().Str("subsystem", "price").Logger()

const priceTTL = 60 * time.Second

// PriceFeed resolves the native asset's USD price.
type PriceFeed struct {
	primaryURL  string
	fallbackURL string
	apiKey      string
	http        *http.Client

	mu        sync.Mutex
	lastPrice float64
	fetchedAt time.Time
}

// NewPriceFeed builds a price feed. The API key is optional; without it
// the fallback oracle is preferred.
func NewPriceFeed(primaryURL, fallbackURL, apiKey string) *PriceFeed {
	return &PriceFeed{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: 5 * time.Second},
	}
}

// PriceUSD returns the current native-asset USD price, cached for one
// minute. Returns the last known price when every oracle fails.
func (f *PriceFeed) PriceUSD() float64 {
	f.mu.Lock()
	if f.lastPrice > 0 && time.Since(f.fetchedAt) < priceTTL {
		price := f.lastPrice
		f.mu.Unlock()
		return price
	}
	f.mu.Unlock()

	var price float64
	if f.apiKey != "" {
		price = f.fetchPrimary()
	}
	if price <= 0 {
		price = f.fetchFallback()
	}
	if price <= 0 && f.apiKey == "" {
		price = f.fetchPrimary()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if price > 0 {
		f.lastPrice = price
		f.fetchedAt = time.Now()
	} else if f.lastPrice > 0 {
		priceLogger.Warn().Float64("lastKnown", f.lastPrice).Msg("All price oracles failed, using last known price")
	}
	return f.lastPrice
}

func (f *PriceFeed) fetchPrimary() float64 {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s?ids=%s", f.primaryURL, WSOLMint), nil)
	if err != nil {
		return 0
	}
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0
	}
	var payload map[string]struct {
		USDPrice float64 `json:"usdPrice"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}
	return payload[WSOLMint].USDPrice
}

func (f *PriceFeed) fetchFallback() float64 {
	resp, err := f.http.Get(f.fallbackURL + "?ids=solana&vs_currencies=usd")
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0
	}
	var payload map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}
	return payload["solana"].USD
}
