package leverage

import (
	"context"
	"fmt"
	"time"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"
)

// DefaultLadder is the conservative-to-aggressive rung sequence tried for a
// symbol. The first rung is the floor every unseen or stale symbol starts at.
var DefaultLadder = []int{2, 3, 5, 10}

// DefaultTTL is how long a cache entry stays trusted without verification.
// After this the ladder resets to the floor, tolerating exchange-side
// margin-policy changes.
const DefaultTTL = 24 * time.Hour

// Cache learns a safe margin leverage per symbol. NextLeverage proposes the
// rung for the next attempt; RecordOutcome persists the result; StepDown is
// the synchronous within-attempt retry step.
type Cache struct {
	repo   ports.LeverageCacheRepository
	ladder []int
	ttl    time.Duration
	logger ports.Logger
	now    func() time.Time
}

// Config holds cache construction parameters.
type Config struct {
	Repo   ports.LeverageCacheRepository
	Ladder []int         // defaults to DefaultLadder
	TTL    time.Duration // defaults to DefaultTTL
	Logger ports.Logger
}

// New creates a leverage cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Repo == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for leverage cache")
	}
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	for i := 1; i < len(ladder); i++ {
		if ladder[i] <= ladder[i-1] {
			return nil, fmt.Errorf("leverage ladder must be strictly increasing, got %v", ladder)
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		repo:   cfg.Repo,
		ladder: ladder,
		ttl:    ttl,
		logger: cfg.Logger,
		now:    time.Now,
	}, nil
}

// Floor returns the most conservative rung.
func (c *Cache) Floor() int {
	return c.ladder[0]
}

// NextLeverage returns the rung to try first for the symbol's next
// placement attempt.
func (c *Cache) NextLeverage(ctx context.Context, symbol string) (int, error) {
	entry, err := c.repo.Get(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("leverage cache: load %s: %w", symbol, err)
	}
	rung := nextRung(c.ladder, entry, c.now(), c.ttl)
	c.logger.Debug(ctx, "Leverage selected", map[string]interface{}{"symbol": symbol, "leverage": rung})
	return rung, nil
}

// StepDown returns the next lower rung after a failed attempt at the given
// leverage. ok is false when the attempt was already at (or below) the
// floor, meaning margin trading should be abandoned for this attempt.
func (c *Cache) StepDown(leverage int) (lower int, ok bool) {
	idx := rungIndex(c.ladder, leverage)
	if idx <= 0 {
		return 0, false
	}
	return c.ladder[idx-1], true
}

// RecordOutcome persists the result of an attempt at the given leverage.
// Success remembers the rung and refreshes verification; failure bumps the
// failure streak so the next attempt starts lower.
func (c *Cache) RecordOutcome(ctx context.Context, symbol string, leverage int, success bool) error {
	entry, err := c.repo.Get(ctx, symbol)
	if err != nil {
		return fmt.Errorf("leverage cache: load %s: %w", symbol, err)
	}
	if entry == nil {
		entry = &domain.LeverageCacheEntry{Symbol: symbol}
	}
	entry.LastAttemptedLeverage = leverage
	if success {
		entry.LastSuccessfulLeverage = leverage
		entry.ConsecutiveFailures = 0
		entry.LastVerifiedAt = c.now()
	} else {
		entry.ConsecutiveFailures++
	}
	if err := c.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("leverage cache: persist %s: %w", symbol, err)
	}
	c.logger.Debug(ctx, "Leverage outcome recorded", map[string]interface{}{
		"symbol": symbol, "leverage": leverage, "success": success, "failures": entry.ConsecutiveFailures,
	})
	return nil
}

// nextRung is the pure transition function of the ladder state machine.
//
// Unseen or stale symbols start at the floor. After a failure streak the
// next attempt starts one rung below the last attempted leverage. After a
// success the next attempt steps one rung above the last successful
// leverage, never a jump to the exchange maximum, so consecutive
// successes climb the ladder one rung at a time and never select a rung
// below the last success.
func nextRung(ladder []int, entry *domain.LeverageCacheEntry, now time.Time, ttl time.Duration) int {
	floor := ladder[0]
	if entry == nil || entry.IsStale(now, ttl) {
		return floor
	}
	if entry.ConsecutiveFailures > 0 {
		idx := rungIndex(ladder, entry.LastAttemptedLeverage)
		if idx <= 0 {
			return floor
		}
		return ladder[idx-1]
	}
	if entry.LastSuccessfulLeverage > 0 {
		idx := rungIndex(ladder, entry.LastSuccessfulLeverage)
		if idx < 0 {
			return floor
		}
		if idx+1 < len(ladder) {
			return ladder[idx+1]
		}
		return ladder[len(ladder)-1]
	}
	return floor
}

// rungIndex returns the ladder index of the given leverage, or the index of
// the highest rung not above it when the value sits between rungs (-1 when
// below the floor).
func rungIndex(ladder []int, leverage int) int {
	idx := -1
	for i, l := range ladder {
		if l <= leverage {
			idx = i
		}
	}
	return idx
}
