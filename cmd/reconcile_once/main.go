package main

import (
	"context"
	"log"

	"cryptoOrderEngine/config"
	"cryptoOrderEngine/internal/adapters/alert"
	"cryptoOrderEngine/internal/adapters/binanceclient"
	"cryptoOrderEngine/internal/adapters/logger"
	"cryptoOrderEngine/internal/adapters/sqlite"
	"cryptoOrderEngine/internal/reconciler"
)

// Runs a single reconciliation cycle against the configured database and
// exchange, then exits. Useful after an engine crash or before a deploy to
// verify local state matches the exchange without starting the full engine.
func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger.Named("sqlite"),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger.Named("binance"),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	ctx := context.Background()
	if err := binanceClient.SetServerTime(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to synchronize server time")
		log.Fatalf("FATAL: Failed to synchronize server time: %v", err)
	}

	// 5. Run one cycle
	rec, err := reconciler.New(reconciler.Config{
		Interval:        cfg.ReconcileInterval,
		ExchangeTimeout: cfg.ExchangeTimeout,
		SiblingWindow:   cfg.SiblingWindow,
	}, appLogger.Named("reconciler"), binanceClient, repo, alert.NewLogNotifier(appLogger.Named("alerts")))
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize reconciler")
		log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
	}

	cycleCtx, cancel := context.WithTimeout(ctx, cfg.ReconcileInterval)
	defer cancel()
	if err := rec.RunCycle(cycleCtx); err != nil {
		appLogger.Error(ctx, err, "Reconciliation cycle failed")
		log.Fatalf("Reconciliation cycle failed: %v", err)
	}
	appLogger.Info(ctx, "Reconciliation cycle completed")
}
