package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"quant-trader/internal/broker/execobs"
	"quant-trader/internal/broker/kis"
	"quant-trader/internal/broker/sim"
	"quant-trader/internal/engine"
	"quant-trader/internal/interfaces"
	"quant-trader/internal/logger"
	"quant-trader/internal/monitoring"
	"quant-trader/internal/screener"
	"quant-trader/internal/server"
	"quant-trader/internal/store"
	"quant-trader/internal/trace"
	"quant-trader/internal/tradelog"

	"github.com/joho/godotenv"
)

// initializeSystem initializes env, logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// configureTradelog points the trade log at the configured directory and
// compresses files past the retention window. TRADER_LOG_DIR wins if set.
func configureTradelog(ctx context.Context, cfg *store.Config) {
	if os.Getenv("TRADER_LOG_DIR") == "" && cfg.Tradelog.Dir != "" {
		_ = os.Setenv("TRADER_LOG_DIR", cfg.Tradelog.Dir)
	}
	if cfg.Tradelog.RetentionDays <= 0 {
		return
	}
	if err := tradelog.CompressOlder(cfg.Tradelog.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeBroker builds the market-data feed and the order executor for the
// configured mode. DRY_RUN runs fully simulated; LIVE talks to KIS.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.MarketDataFeed, interfaces.OrderExecutor, *kis.Executor, error) {
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
		feed := sim.NewFeed(time.Second, 70000)
		return feed, execobs.Wrap(sim.NewExecutor()), nil, nil
	}

	creds, err := kis.CredentialsFromEnv()
	if err != nil {
		return nil, nil, nil, err
	}
	client := kis.NewClient(cfg.Broker.BaseURL, creds)
	feed := kis.NewFeed(client, cfg.Broker.WsURL)
	executor := kis.NewExecutor(client, cfg.Broker.AccountNo, cfg.Broker.ProductCode)

	logger.Info(ctx, "Using LIVE KIS brokerage",
		"base_url", cfg.Broker.BaseURL,
		"account", cfg.Broker.AccountNo)
	return feed, execobs.Wrap(executor), executor, nil
}

func initializeScreener(cfg *store.Config) *screener.Selector {
	return screener.NewSelector(screener.NewNaverSource(cfg.Screener.BaseURL, 10*time.Second))
}

// runStartupScreen replaces the static universe with screener picks when a
// preset is configured. Failures fall back to the configured symbols.
func runStartupScreen(ctx context.Context, cfg *store.Config, selector *screener.Selector, coord *engine.Coordinator) {
	if cfg.Screener.Preset == "" {
		return
	}
	criteria, err := screener.Preset(cfg.Screener.Preset)
	if err != nil {
		logger.Warn(ctx, "Unknown screener preset - keeping static universe", "preset", cfg.Screener.Preset)
		return
	}
	selected, err := selector.Select(ctx, criteria)
	if err != nil || len(selected) == 0 {
		logger.Warn(ctx, "Startup screening failed - keeping static universe",
			"preset", cfg.Screener.Preset, "error", err)
		return
	}
	if err := coord.SetSymbols(screener.Codes(selected)); err != nil {
		logger.Warn(ctx, "Could not apply screened universe", "error", err)
		return
	}
	logger.Info(ctx, "Trading universe selected by screener",
		"preset", cfg.Screener.Preset,
		"symbols", screener.Codes(selected))
}

func initializeServer(cfg *store.Config, coord *engine.Coordinator, hub *server.Hub, selector *screener.Selector, health *monitoring.HealthChecker) *server.Server {
	return server.New(cfg.Server.Addr, coord, hub, selector, health)
}
