package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoOrderEngine/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	QuoteAsset       string  // Quote asset orders are sized in (e.g. USDT)
	StopLossPct      float64 // Stop loss percentage (e.g., 0.0025 for 0.25%)
	TakeProfitPct    float64 // Take profit percentage (e.g., 0.03 for 3%)
	QuantityDecimals int     // Decimal places for order quantities
	PriceDecimals    int     // Decimal places for trigger prices

	// Guardrail Limits
	MaxOpenOrders   int           // Max simultaneously active orders across all symbols
	MaxOrdersPerDay int           // Max submitted orders per symbol per UTC day
	MaxOrderUSD     float64       // Max quote-asset amount per order
	MinOrderSpacing time.Duration // Min spacing between submissions on a symbol
	ExposureCeiling int           // Max active protective orders per symbol per side
	OrderCooldown   time.Duration // Min spacing between submissions on a symbol+side

	// Leverage Ladder
	LeverageLadder   []int         // Ascending margin leverage rungs
	LeverageCacheTTL time.Duration // Staleness window for cached ladder positions

	// Reconciliation
	ReconcileInterval time.Duration // Delay between reconcile cycles
	SiblingWindow     time.Duration // Time window for last-resort OCO sibling matching
	ExchangeTimeout   time.Duration // Per-call exchange request timeout

	// Signal Feed
	SignalBuffer int // Buffered capacity of the in-process signal feed

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Trading Parameters
	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}

	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 0.0025)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1.0 {
		errs = append(errs, "STOP_LOSS_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TakeProfitPct, err = getEnvAsFloatRequired("TAKE_PROFIT_PCT", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PCT: %v", err))
	} else if cfg.TakeProfitPct <= 0 {
		errs = append(errs, "TAKE_PROFIT_PCT must be positive")
	}

	cfg.QuantityDecimals = getEnvAsInt("QUANTITY_DECIMALS", 3)
	cfg.PriceDecimals = getEnvAsInt("PRICE_DECIMALS", 2)
	if cfg.QuantityDecimals < 0 || cfg.PriceDecimals < 0 {
		errs = append(errs, "QUANTITY_DECIMALS and PRICE_DECIMALS cannot be negative")
	}

	// Guardrail Limits
	cfg.MaxOpenOrders, err = getEnvAsIntRequired("MAX_OPEN_ORDERS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_ORDERS: %v", err))
	} else if cfg.MaxOpenOrders <= 0 {
		errs = append(errs, "MAX_OPEN_ORDERS must be positive")
	}

	cfg.MaxOrdersPerDay, err = getEnvAsIntRequired("MAX_ORDERS_PER_DAY", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_ORDERS_PER_DAY: %v", err))
	} else if cfg.MaxOrdersPerDay <= 0 {
		errs = append(errs, "MAX_ORDERS_PER_DAY must be positive")
	}

	cfg.MaxOrderUSD, err = getEnvAsFloatRequired("MAX_ORDER_USD", 500.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_ORDER_USD: %v", err))
	} else if cfg.MaxOrderUSD <= 0 {
		errs = append(errs, "MAX_ORDER_USD must be positive")
	}

	minSpacingSeconds := getEnvAsInt("MIN_ORDER_SPACING_SECONDS", 30)
	if minSpacingSeconds < 0 {
		errs = append(errs, "MIN_ORDER_SPACING_SECONDS cannot be negative")
	}
	cfg.MinOrderSpacing = time.Duration(minSpacingSeconds) * time.Second

	cfg.ExposureCeiling, err = getEnvAsIntRequired("EXPOSURE_CEILING", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXPOSURE_CEILING: %v", err))
	} else if cfg.ExposureCeiling <= 0 {
		errs = append(errs, "EXPOSURE_CEILING must be positive")
	}

	cooldownSeconds := getEnvAsInt("ORDER_COOLDOWN_SECONDS", 300)
	if cooldownSeconds < 0 {
		errs = append(errs, "ORDER_COOLDOWN_SECONDS cannot be negative")
	}
	cfg.OrderCooldown = time.Duration(cooldownSeconds) * time.Second

	// Leverage Ladder
	ladderStr := getEnv("LEVERAGE_LADDER", "2,3,5,10")
	cfg.LeverageLadder, err = parseLadder(ladderStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE_LADDER: %v", err))
	}

	cacheTTLHours := getEnvAsInt("LEVERAGE_CACHE_TTL_HOURS", 24)
	if cacheTTLHours <= 0 {
		errs = append(errs, "LEVERAGE_CACHE_TTL_HOURS must be positive")
	}
	cfg.LeverageCacheTTL = time.Duration(cacheTTLHours) * time.Hour

	// Reconciliation
	reconcileSeconds := getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 10)
	if reconcileSeconds <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	cfg.ReconcileInterval = time.Duration(reconcileSeconds) * time.Second

	siblingMinutes := getEnvAsInt("SIBLING_WINDOW_MINUTES", 10)
	if siblingMinutes <= 0 {
		errs = append(errs, "SIBLING_WINDOW_MINUTES must be positive")
	}
	cfg.SiblingWindow = time.Duration(siblingMinutes) * time.Minute

	exchangeTimeoutSeconds := getEnvAsInt("EXCHANGE_TIMEOUT_SECONDS", 5)
	if exchangeTimeoutSeconds <= 0 {
		errs = append(errs, "EXCHANGE_TIMEOUT_SECONDS must be positive")
	}
	cfg.ExchangeTimeout = time.Duration(exchangeTimeoutSeconds) * time.Second

	// Signal Feed
	cfg.SignalBuffer = getEnvAsInt("SIGNAL_BUFFER", 64)
	if cfg.SignalBuffer <= 0 {
		errs = append(errs, "SIGNAL_BUFFER must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/order_engine.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseLadder parses a comma-separated list of leverage rungs. Rungs must be
// positive and strictly increasing.
func parseLadder(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ladder := make([]int, 0, len(parts))
	prev := 0
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid rung '%s': %w", p, err)
		}
		if v <= prev {
			return nil, fmt.Errorf("rungs must be positive and strictly increasing, got '%s'", s)
		}
		ladder = append(ladder, v)
		prev = v
	}
	if len(ladder) == 0 {
		return nil, fmt.Errorf("ladder is empty")
	}
	return ladder, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
