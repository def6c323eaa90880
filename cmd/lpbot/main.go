package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/karlokr/raydium-lp-bot/internal/bot"
	"github.com/karlokr/raydium-lp-bot/internal/config"
	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/marketdata"
	"github.com/karlokr/raydium-lp-bot/internal/position"
	"github.com/karlokr/raydium-lp-bot/internal/safety"
	"github.com/karlokr/raydium-lp-bot/internal/scorer"
	"github.com/karlokr/raydium-lp-bot/internal/solana"
	"github.com/karlokr/raydium-lp-bot/internal/state"
	"github.com/karlokr/raydium-lp-bot/internal/velocity"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the LP farming bot.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("LP farming bot starting...")

	params, err := config.LoadParameters()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategy parameters")
	}
	if err := params.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Strategy parameters are inconsistent")
	}

	// Optional analytics sink; the file snapshot and JSONL history are
	// the sources of truth either way.
	if config.DatabaseURL != "" {
		if err := state.InitDB(config.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize analytics database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	} else {
		log.Info().Msg("DATABASE_URL not set, analytics sink disabled")
	}

	// --- 2. Component Wiring ---
	priceFeed := marketdata.NewPriceFeed(config.PricePrimaryAPI, config.PriceFallbackAPI, config.PriceAPIKey)
	market, err := marketdata.NewClient(config.MarketDataAPI, params.QuoteCacheTTL, priceFeed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize market-data client")
	}

	rpc := solana.NewClient(config.RPCEndpoint, 0)
	oracle := safety.NewOracleClient(config.SafetyOracleAPI)
	locks := safety.NewLockAnalyzer(rpc)
	gate := safety.NewGate(oracle, locks, params)

	tracker := velocity.NewTracker(velocity.DefaultMaxSamples)
	poolScorer := scorer.NewScorer(params, tracker)
	positions := position.NewStore(params)

	stateStore := state.NewStore(config.StateFilePath)
	history := state.NewHistoryLog(config.HistoryFilePath)

	executor := solana.NewBridgeExecutor(
		config.BridgeScript, config.WalletAddress, rpc,
		config.TradingEnabled, config.DryRun, params.SlippagePercent)

	if config.DryRun {
		log.Warn().Msg("DRY_RUN is enabled: transactions are simulated, no capital moves")
	} else if !config.TradingEnabled {
		log.Warn().Msg("TRADING_ENABLED is false: all transactions will be refused")
	} else {
		log.Warn().Msg("LIVE trading enabled. Real transactions will be broadcast.")
	}

	lpBot, err := bot.New(bot.Config{
		Params:      params,
		Market:      market,
		Gate:        gate,
		Scorer:      poolScorer,
		Velocity:    tracker,
		Positions:   positions,
		Executor:    executor,
		Store:       stateStore,
		History:     history,
		Interactive: config.StartupPrompt,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot instance")
	}

	// --- 3. Run with Graceful Shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := lpBot.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Bot terminated with error")
	}
	log.Info().Msg("Shutdown complete")
}
