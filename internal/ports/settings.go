package ports

import "context"

// SettingsStore exposes the persisted trading settings the dashboard and
// Telegram subsystems mutate. The kill switch and live toggle are
// safety-critical: implementations must read the backing store on every
// call, never cache across evaluations, so every orchestrator instance
// observes the latest write.
type SettingsStore interface {
	IsLiveTradingEnabled(ctx context.Context) (bool, error)
	IsKillSwitchEnabled(ctx context.Context) (bool, error)
	IsSymbolTradeEnabled(ctx context.Context, symbol string) (bool, error)
	// IsTradingDisabled is the static override: when true nothing can
	// re-enable trading; when false it imposes no restriction.
	IsTradingDisabled(ctx context.Context) (bool, error)
	// SymbolAllowList returns the configured allow-list. An empty list
	// imposes no restriction.
	SymbolAllowList(ctx context.Context) ([]string, error)
}
