package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridpilot/allocator"
	"gridpilot/api"
	"gridpilot/config"
	"gridpilot/logger"
	"gridpilot/manager"
	"gridpilot/market"
	"gridpilot/pool"
	"gridpilot/risk"
	"gridpilot/store"
	"gridpilot/trader"
)

func main() {
	// Load environment variables from .env if present (local/dev runs).
	// Under Docker Compose the runtime injects them and this is harmless.
	_ = godotenv.Load()

	config.Init()
	cfg := config.Get()

	logger.InitWithSimpleConfig(cfg.LogLevel)

	logger.Info("╔════════════════════════════════════════════╗")
	logger.Info("║   📐 gridpilot — adaptive grid trader      ║")
	logger.Info("╚════════════════════════════════════════════╝")

	logger.Infof("📋 opening database: %s", cfg.DBPath)
	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ failed to open database: %v", err)
	}
	defer st.Close()

	var exch trader.Exchange
	if cfg.BinanceAPIKey == "" || cfg.BinanceSecretKey == "" {
		logger.Warn("⚠️  no Binance credentials, running on the paper venue")
		exch = trader.NewPaperExchange(10_000)
	} else {
		exch = trader.NewBinanceFutures(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.UseTestnet, cfg.BalanceCacheTTL)
		if cfg.UseTestnet {
			logger.Info("🧪 Binance futures testnet")
		}
	}

	provider := market.NewBinanceProvider(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.UseTestnet)

	// live mark prices over websocket, REST as fallback
	streamSymbols := cfg.SymbolsOverride
	if len(streamSymbols) == 0 {
		streamSymbols = pool.DefaultPairs()
	}
	stream := market.NewPriceStream(streamSymbols)
	if err := stream.Connect(); err != nil {
		logger.Warnf("⚠️  price stream unavailable, using REST prices: %v", err)
	} else {
		provider.AttachStream(stream)
		defer stream.Close()
	}

	analyzer := market.NewAnalyzer(provider, "15m", 50, time.Minute)

	riskMode := risk.Mode(cfg.RiskMode)
	if cfg.RiskMode == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		equity, err := exch.GetEquity(ctx)
		cancel()
		if err != nil {
			logger.Fatalf("❌ failed to read account equity: %v", err)
		}
		riskMode = risk.RecommendMode(equity)
		logger.Infof("🛡️ risk mode recommended from %.2f USDT equity: %s", equity, riskMode)
	} else {
		logger.Infof("🛡️ risk mode: %s", riskMode)
	}

	m := manager.New(cfg, exch, provider, analyzer,
		allocator.New(cfg.WorkingCapitalPct, cfg.AllowFallbackPairs),
		risk.NewManager(riskMode),
		pool.New(provider, "data"),
		st)

	server := api.NewServer(m, st, cfg.APIServerPort)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("❌ API server failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		logger.Infof("🛑 received %v, shutting down", s)
		cancel()
	}()

	if err := m.Run(ctx); err != nil {
		logger.Errorf("manager exited with error: %v", err)
	}
	if err := server.Shutdown(); err != nil {
		logger.Warnf("API server shutdown: %v", err)
	}
	logger.Info("👋 bye")
}
