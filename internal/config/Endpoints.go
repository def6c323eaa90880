package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// MarketDataAPI is the base URL of the pool market-data feed.
	MarketDataAPI string
	// SafetyOracleAPI is the base URL of the token-safety oracle.
	SafetyOracleAPI string
	// PricePrimaryAPI is the primary native-asset price oracle.
	PricePrimaryAPI string
	// PriceFallbackAPI is the fallback price oracle (no key required).
	PriceFallbackAPI string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	MarketDataAPI = getEnvOr("MARKET_DATA_API", "https://api-v3.raydium.io")
	SafetyOracleAPI = getEnvOr("SAFETY_ORACLE_API", "https://api.rugcheck.xyz/v1")
	PricePrimaryAPI = getEnvOr("PRICE_PRIMARY_API", "https://api.jup.ag/price/v3")
	PriceFallbackAPI = getEnvOr("PRICE_FALLBACK_API", "https://api.coingecko.com/api/v3/simple/price")

	log.Debug().
		Str("MarketDataAPI", MarketDataAPI).
		Str("SafetyOracleAPI", SafetyOracleAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
