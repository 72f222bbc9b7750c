package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quant-trader/internal/engine"
	"quant-trader/internal/logger"
	"quant-trader/internal/monitoring"
	"quant-trader/internal/server"
	"quant-trader/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}

	configureTradelog(ctx, cfg)

	feed, executor, kisExec, err := initializeBroker(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Broker initialization failed", err)
		os.Exit(1)
	}

	hub := server.NewHub()
	health := monitoring.NewHealthChecker()

	coord, err := engine.New(cfg, feed, executor, hub, health)
	if err != nil {
		logger.ErrorWithErr(ctx, "Engine initialization failed", err)
		os.Exit(1)
	}
	if kisExec != nil {
		kisExec.SetSizer(coord.SuggestQuantity)
	}

	selector := initializeScreener(cfg)
	runStartupScreen(ctx, cfg, selector, coord)

	go hub.Run(ctx)

	srv := initializeServer(cfg, coord, hub, selector, health)
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", cfg.Server.Addr, "mode", cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "HTTP server failed", err)
			stop()
		}
	}()

	if err := coord.Start(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Engine start failed", err)
	}

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "HTTP shutdown error", "error", err)
	}
	if err := coord.Stop(shutdownCtx, false); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		logger.Warn(shutdownCtx, "Engine stop error", "error", err)
	}
	if err := feed.Close(); err != nil {
		logger.Warn(shutdownCtx, "Feed close error", "error", err)
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tracer shutdown error", "error", err)
	}
}
