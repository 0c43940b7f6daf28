package domain

import "time"

// LeverageCacheEntry is the persisted per-symbol state of the leverage
// learning ladder. It survives restarts so the ladder position is not lost.
type LeverageCacheEntry struct {
	Symbol                 string
	LastSuccessfulLeverage int
	LastAttemptedLeverage  int
	ConsecutiveFailures    int
	LastVerifiedAt         time.Time
}

// IsStale reports whether the entry has gone unverified longer than ttl and
// should be reset to the conservative floor before the next attempt.
func (e *LeverageCacheEntry) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.LastVerifiedAt) > ttl
}
