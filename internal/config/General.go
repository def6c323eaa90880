package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// RPCEndpoint is the Solana JSON-RPC endpoint for on-chain reads.
	RPCEndpoint string
	// BridgeScript is the path to the Node.js transaction bridge script.
	BridgeScript string
	// WalletAddress is the public key of the operating wallet (display only;
	// the bridge holds the signing key).
	WalletAddress string

	// TradingEnabled gates all real transactions. When false every
	// execution call is refused before reaching the bridge.
	TradingEnabled bool
	// DryRun makes execution calls log and return synthetic receipts
	// instead of touching the chain.
	DryRun bool
	// StartupPrompt asks the operator whether to keep restored
	// positions before monitoring resumes. Leave off for daemons.
	StartupPrompt bool

	// StateFilePath is where the crash-recovery snapshot is written.
	StateFilePath string
	// HistoryFilePath is the append-only trade history log.
	HistoryFilePath string

	// DatabaseURL enables the optional Postgres analytics sink when set.
	DatabaseURL string

	// PriceAPIKey is the optional key for the primary price oracle.
	PriceAPIKey string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. RPC_ENDPOINT and BRIDGE_SCRIPT are required; the
// rest have safe defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	RPCEndpoint, err = getEnv("RPC_ENDPOINT")
	if err != nil {
		return err
	}

	BridgeScript, err = getEnv("BRIDGE_SCRIPT")
	if err != nil {
		return err
	}

	WalletAddress = getEnvOr("WALLET_ADDRESS", "")

	TradingEnabled, err = getEnvAsBoolOr("TRADING_ENABLED", false)
	if err != nil {
		return err
	}

	DryRun, err = getEnvAsBoolOr("DRY_RUN", true)
	if err != nil {
		return err
	}

	StartupPrompt, err = getEnvAsBoolOr("STARTUP_PROMPT", false)
	if err != nil {
		return err
	}

	StateFilePath = getEnvOr("STATE_FILE", "bot_state.json")
	HistoryFilePath = getEnvOr("HISTORY_FILE", "trade_history.jsonl")
	DatabaseURL = getEnvOr("DATABASE_URL", "")
	PriceAPIKey = getEnvOr("PRICE_API_KEY", "")

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("RPCEndpoint", RPCEndpoint).
		Bool("TradingEnabled", TradingEnabled).
		Bool("DryRun", DryRun).
		Str("StateFilePath", StateFilePath).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a default.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64Or retrieves an optional float64 environment variable.
func getEnvAsFloat64Or(key string, fallback float64) (float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBoolOr retrieves an optional boolean environment variable.
func getEnvAsBoolOr(key string, fallback bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
