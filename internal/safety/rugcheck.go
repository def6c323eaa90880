/*

This file contains the token-safety oracle client.

Oracle scoring notes:
  - score_normalised is 0-100 with LOWER meaning SAFER.
  - The top-level freeze/mint authority fields can be null even when the
    risks array reports the authority exists; the risks array is the
    authoritative source and is always parsed.
  - Oracle unavailability is an unsafe verdict, never an unknown one.

*/

package safety

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
)

var oracleLogger = logger.GetForComponent("safety_oracle")

const oracleCacheTTL = 5 * time.Minute

// TokenReport is the oracle's parsed verdict for one token mint.
type TokenReport struct {
	Available          bool
	RiskScore          float64 // 0-100 normalized, lower = safer
	RiskLevel          string  // low / medium / high / unknown
	IsRugged           bool
	Dangers            []string
	Warnings           []string
	HasFreezeAuthority bool
	HasMintAuthority   bool
	HasMutableMetadata bool
	LowLPProviders     bool
	Top5HolderPct      float64
	Top10HolderPct     float64
	MaxSingleHolderPct float64
	TotalHolders       int
}

// OracleClient queries the token-safety oracle with a short TTL cache.
type OracleClient struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	cache map[string]cachedReport
}

type cachedReport struct {
	report    TokenReport
	fetchedAt time.Time
}

// NewOracleClient builds an oracle client for the given base URL.
func NewOracleClient(baseURL string) *OracleClient {
	return &OracleClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   make(map[string]cachedReport),
	}
}

// AnalyzeToken returns the oracle's verdict for a token mint. Any fetch
// or parse failure yields the fail-closed unavailable report.
func (c *OracleClient) AnalyzeToken(mint string) TokenReport {
	c.mu.Lock()
	if entry, ok := c.cache[mint]; ok && time.Since(entry.fetchedAt) < oracleCacheTTL {
		c.mu.Unlock()
		return entry.report
	}
	c.mu.Unlock()

	report, err := c.fetchReport(mint)
	if err != nil {
		oracleLogger.Warn().Err(err).Str("mint", mint).Msg("Safety oracle unavailable, failing closed")
		return unavailableReport()
	}

	c.mu.Lock()
	c.cache[mint] = cachedReport{report: report, fetchedAt: time.Now()}
	c.mu.Unlock()

	return report
}

func unavailableReport() TokenReport {
	return TokenReport{
		Available: false,
		RiskScore: 100,
		RiskLevel: "unknown",
	}
}

type oracleWire struct {
	ScoreNormalised float64 `json:"score_normalised"`
	Rugged          bool    `json:"rugged"`
	TotalHolders    int     `json:"totalHolders"`
	Risks           []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Level       string `json:"level"`
	} `json:"risks"`
	TopHolders []struct {
		Pct float64 `json:"pct"`
	} `json:"topHolders"`
}

func (c *OracleClient) fetchReport(mint string) (TokenReport, error) {
	url := fmt.Sprintf("%s/tokens/%s/report", c.baseURL, mint)
	resp, err := c.http.Get(url)
	if err != nil {
		return TokenReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return TokenReport{}, fmt.Errorf("oracle returned status %d for %s", resp.StatusCode, mint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return TokenReport{}, err
	}
	var wire oracleWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return TokenReport{}, fmt.Errorf("oracle response parse failed: %w", err)
	}

	report := TokenReport{
		Available:    true,
		RiskScore:    wire.ScoreNormalised,
		IsRugged:     wire.Rugged,
		TotalHolders: wire.TotalHolders,
	}

	for _, risk := range wire.Risks {
		display := risk.Name
		if risk.Description != "" {
			display = risk.Name + ": " + risk.Description
		}
		name := strings.ToLower(risk.Name)

		if strings.Contains(name, "freeze") {
			report.HasFreezeAuthority = true
		}
		if strings.Contains(name, "mint") && strings.Contains(name, "authority") {
			report.HasMintAuthority = true
		}
		if strings.Contains(name, "mutable") && strings.Contains(name, "metadata") {
			report.HasMutableMetadata = true
		}
		if strings.Contains(name, "lp provid") {
			report.LowLPProviders = true
		}

		switch risk.Level {
		case "danger":
			report.Dangers = append(report.Dangers, display)
		case "warn":
			report.Warnings = append(report.Warnings, display)
		}
	}

	switch {
	case report.RiskScore <= 10:
		report.RiskLevel = "low"
	case report.RiskScore <= 40:
		report.RiskLevel = "medium"
	default:
		report.RiskLevel = "high"
	}

	for i, holder := range wire.TopHolders {
		if i < 5 {
			report.Top5HolderPct += holder.Pct
		}
		if i < 10 {
			report.Top10HolderPct += holder.Pct
		}
		if holder.Pct > report.MaxSingleHolderPct {
			report.MaxSingleHolderPct = holder.Pct
		}
	}

	return report, nil
}
