package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"cryptoOrderEngine/config"
	"cryptoOrderEngine/internal/adapters/logger"
	"cryptoOrderEngine/internal/adapters/sqlite"
)

// Command-line control over the runtime safety switches. The engine reads
// these settings fresh on every guardrail evaluation, so a flip here takes
// effect on the next signal without a restart.
//
// Usage:
//
//	settings -show
//	settings -live=true
//	settings -kill=true
//	settings -disable-trading=true
//	settings -symbol ETHUSDT -enabled=false
//	settings -allowlist ETHUSDT,BTCUSDT
func main() {
	show := flag.Bool("show", false, "print current settings and exit")
	live := flag.String("live", "", "enable/disable live trading (true/false)")
	kill := flag.String("kill", "", "engage/release the kill switch (true/false)")
	disableTrading := flag.String("disable-trading", "", "set the static trading-disabled override (true/false)")
	symbol := flag.String("symbol", "", "symbol for the -enabled flag")
	enabled := flag.String("enabled", "", "enable/disable trading for -symbol (true/false)")
	allowList := flag.String("allowlist", "", "comma-separated symbol allow-list; \"-\" clears it")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger.Named("sqlite"),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	if v, ok := parseBoolFlag(*live, "live"); ok {
		if err := repo.SetLiveTradingEnabled(ctx, v); err != nil {
			log.Fatalf("Failed to set live trading: %v", err)
		}
		fmt.Printf("live trading enabled: %v\n", v)
	}
	if v, ok := parseBoolFlag(*kill, "kill"); ok {
		if err := repo.SetKillSwitchEnabled(ctx, v); err != nil {
			log.Fatalf("Failed to set kill switch: %v", err)
		}
		fmt.Printf("kill switch engaged: %v\n", v)
	}
	if v, ok := parseBoolFlag(*disableTrading, "disable-trading"); ok {
		if err := repo.SetTradingDisabled(ctx, v); err != nil {
			log.Fatalf("Failed to set trading-disabled override: %v", err)
		}
		fmt.Printf("trading disabled override: %v\n", v)
	}
	if *symbol != "" {
		v, ok := parseBoolFlag(*enabled, "enabled")
		if !ok {
			log.Fatalf("-symbol requires -enabled=true|false")
		}
		if err := repo.SetSymbolTradeEnabled(ctx, *symbol, v); err != nil {
			log.Fatalf("Failed to set symbol flag: %v", err)
		}
		fmt.Printf("%s trade enabled: %v\n", *symbol, v)
	}
	if *allowList != "" {
		var symbols []string
		if *allowList != "-" {
			for _, s := range strings.Split(*allowList, ",") {
				if s = strings.TrimSpace(s); s != "" {
					symbols = append(symbols, s)
				}
			}
		}
		if err := repo.SetSymbolAllowList(ctx, symbols); err != nil {
			log.Fatalf("Failed to set allow-list: %v", err)
		}
		fmt.Printf("allow-list: %v\n", symbols)
	}

	if *show || flag.NFlag() == 0 {
		printSettings(ctx, repo)
	}
}

func parseBoolFlag(value, name string) (bool, bool) {
	switch strings.ToLower(value) {
	case "":
		return false, false
	case "true", "1", "on", "yes":
		return true, true
	case "false", "0", "off", "no":
		return false, true
	default:
		log.Fatalf("invalid value %q for -%s (want true/false)", value, name)
		return false, false
	}
}

func printSettings(ctx context.Context, repo *sqlite.Repository) {
	liveOn, err := repo.IsLiveTradingEnabled(ctx)
	if err != nil {
		log.Fatalf("Failed to read settings: %v", err)
	}
	killOn, err := repo.IsKillSwitchEnabled(ctx)
	if err != nil {
		log.Fatalf("Failed to read settings: %v", err)
	}
	disabled, err := repo.IsTradingDisabled(ctx)
	if err != nil {
		log.Fatalf("Failed to read settings: %v", err)
	}
	allowed, err := repo.SymbolAllowList(ctx)
	if err != nil {
		log.Fatalf("Failed to read settings: %v", err)
	}

	fmt.Printf("live trading enabled:      %v\n", liveOn)
	fmt.Printf("kill switch engaged:       %v\n", killOn)
	fmt.Printf("trading disabled override: %v\n", disabled)
	if len(allowed) == 0 {
		fmt.Printf("symbol allow-list:         (unrestricted)\n")
	} else {
		fmt.Printf("symbol allow-list:         %s\n", strings.Join(allowed, ", "))
	}
}
