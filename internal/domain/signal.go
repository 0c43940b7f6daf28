package domain

import "fmt"

// Signal is the trading signal produced by the external strategy subsystem.
// It is consumed by the orchestrator and never persisted.
type Signal struct {
	Symbol             string
	Side               OrderSide
	SignalID           int64
	StrategyKey        string
	SuggestedUSDAmount float64
}

// IdempotencyKey derives the deterministic key under which a signal is
// deduplicated. It depends only on the signal identity and side, never on
// wall-clock time, so a replayed signal is skipped no matter how much later
// it arrives.
func IdempotencyKey(signalID int64, side OrderSide) string {
	return fmt.Sprintf("sig-%d-%s", signalID, side)
}

// Key is a convenience wrapper over IdempotencyKey.
func (s Signal) Key() string {
	return IdempotencyKey(s.SignalID, s.Side)
}
