package ports

import (
	"context"
	"time"

	"cryptoOrderEngine/internal/domain"
)

// OrderIntentRepository stores order intents. The UNIQUE constraint on
// idempotency_key is the single serialization point for duplicate signals;
// no in-process locking backs it up.
type OrderIntentRepository interface {
	// Create inserts a new intent and returns its assigned ID. A key
	// collision returns ErrDuplicateEntry without side effects: this is the
	// race-free check-and-insert, not a read-then-write.
	Create(ctx context.Context, intent *domain.OrderIntent) (int64, error)
	// Resolve moves an intent from PENDING to a terminal status. Resolving an
	// already-resolved intent returns ErrUpdateFailed, so terminal
	// transitions are exactly-once.
	Resolve(ctx context.Context, idempotencyKey string, status domain.IntentStatus) error
	// FindByKey retrieves an intent by idempotency key. Returns nil, nil if absent.
	FindByKey(ctx context.Context, idempotencyKey string) (*domain.OrderIntent, error)
	// CountSubmittedTodayBySymbol counts SUBMITTED intents for the symbol today.
	CountSubmittedTodayBySymbol(ctx context.Context, symbol string) (int, error)
	// LastSubmittedAt returns the creation time of the symbol's most recent
	// SUBMITTED intent, optionally narrowed to one side. Zero time if none.
	LastSubmittedAt(ctx context.Context, symbol string, side domain.OrderSide) (time.Time, error)
}

// ExchangeOrderRepository stores the local mirror of exchange orders.
// The orchestrator writes rows; the reconciler updates them.
type ExchangeOrderRepository interface {
	// CreateOrder saves a new exchange order mirror and returns its assigned ID.
	CreateOrder(ctx context.Context, order *domain.ExchangeOrder) (int64, error)
	// UpdateStatus sets the status and exchange update time for an order,
	// keyed by the exchange-assigned ID.
	UpdateStatus(ctx context.Context, exchangeOrderID int64, status domain.OrderStatus, updateTime time.Time) error
	// FindByExchangeOrderID retrieves an order by the exchange-assigned ID.
	// Returns nil, nil if absent.
	FindByExchangeOrderID(ctx context.Context, exchangeOrderID int64) (*domain.ExchangeOrder, error)
	// FindActive lists all orders in an active status.
	FindActive(ctx context.Context) ([]*domain.ExchangeOrder, error)
	// CountActive counts all orders in an active status.
	CountActive(ctx context.Context) (int, error)
	// CountActiveByRole counts the symbol's active orders carrying the role.
	// This is the exposure count the guardrail evaluates per side.
	CountActiveByRole(ctx context.Context, symbol string, role domain.OrderRole) (int, error)
	// FindActiveByOCOGroup lists active orders sharing an OCO group.
	FindActiveByOCOGroup(ctx context.Context, ocoGroupID string) ([]*domain.ExchangeOrder, error)
	// FindActiveByParent lists active orders referencing the parent with the role.
	FindActiveByParent(ctx context.Context, parentOrderID int64, role domain.OrderRole) ([]*domain.ExchangeOrder, error)
	// FindActiveProtectiveInWindow lists the symbol's active orders with the
	// role created within [from, to]. Last-resort sibling matching.
	FindActiveProtectiveInWindow(ctx context.Context, symbol string, role domain.OrderRole, from, to time.Time) ([]*domain.ExchangeOrder, error)
}

// LeverageCacheRepository persists the leverage ladder position per symbol.
type LeverageCacheRepository interface {
	// Get retrieves the entry for a symbol. Returns nil, nil if the symbol
	// has never been attempted.
	Get(ctx context.Context, symbol string) (*domain.LeverageCacheEntry, error)
	// Upsert inserts or replaces the entry for its symbol.
	Upsert(ctx context.Context, entry *domain.LeverageCacheEntry) error
}
