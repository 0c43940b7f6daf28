package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoOrderEngine/config"
	"cryptoOrderEngine/internal/adapters/alert"
	"cryptoOrderEngine/internal/adapters/binanceclient"
	"cryptoOrderEngine/internal/adapters/logger"
	"cryptoOrderEngine/internal/adapters/signalfeed"
	"cryptoOrderEngine/internal/adapters/sqlite"
	"cryptoOrderEngine/internal/app"
	"cryptoOrderEngine/internal/guardrail"
	"cryptoOrderEngine/internal/leverage"
	"cryptoOrderEngine/internal/orchestrator"
	"cryptoOrderEngine/internal/reconciler"
)

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
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

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
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Initialize Alert Notifier
	notifier := alert.NewLogNotifier(appLogger.Named("alerts"))

	// 6. Initialize Guardrail Evaluator
	guard, err := guardrail.New(guardrail.Limits{
		MaxOpenOrders:   cfg.MaxOpenOrders,
		MaxOrdersPerDay: cfg.MaxOrdersPerDay,
		MaxOrderUSD:     cfg.MaxOrderUSD,
		MinOrderSpacing: cfg.MinOrderSpacing,
		ExposureCeiling: cfg.ExposureCeiling,
	}, repo, repo, repo, appLogger.Named("guardrail"))
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize guardrail evaluator")
		log.Fatalf("FATAL: Failed to initialize guardrail evaluator: %v", err)
	}

	// 7. Initialize Leverage Cache
	levCache, err := leverage.New(leverage.Config{
		Repo:   repo,
		Ladder: cfg.LeverageLadder,
		TTL:    cfg.LeverageCacheTTL,
		Logger: appLogger.Named("leverage"),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize leverage cache")
		log.Fatalf("FATAL: Failed to initialize leverage cache: %v", err)
	}

	// 8. Initialize Order Orchestrator
	orch, err := orchestrator.New(orchestrator.Config{
		QuoteAsset:       cfg.QuoteAsset,
		OrderCooldown:    cfg.OrderCooldown,
		ExchangeTimeout:  cfg.ExchangeTimeout,
		StopLossPct:      cfg.StopLossPct,
		TakeProfitPct:    cfg.TakeProfitPct,
		QuantityDecimals: cfg.QuantityDecimals,
		PriceDecimals:    cfg.PriceDecimals,
	}, appLogger.Named("orchestrator"), binanceClient, repo, repo, guard, levCache, notifier)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize orchestrator")
		log.Fatalf("FATAL: Failed to initialize orchestrator: %v", err)
	}

	// 9. Initialize Reconciler
	rec, err := reconciler.New(reconciler.Config{
		Interval:        cfg.ReconcileInterval,
		ExchangeTimeout: cfg.ExchangeTimeout,
		SiblingWindow:   cfg.SiblingWindow,
	}, appLogger.Named("reconciler"), binanceClient, repo, notifier)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize reconciler")
		log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
	}

	// 10. Initialize Signal Feed
	feed := signalfeed.New(cfg.SignalBuffer, appLogger.Named("signalfeed"))
	defer feed.Close()

	// 11. Initialize Application Service
	engine, err := app.NewEngineService(
		cfg,
		appLogger.Named("app"),
		binanceClient, // Pass the concrete implementation, service expects the interface
		feed,          // Pass the concrete implementation, service expects the interface
		orch,
		rec,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine service")
		log.Fatalf("FATAL: Failed to initialize engine service: %v", err)
	}
	appLogger.Info(context.Background(), "Engine service initialized")

	// 12. Start the Service
	// Use context.Background() as the base context for the application run
	if err := engine.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Engine service exited with error")
		log.Fatalf("FATAL: Engine service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
