package domain

import "time"

// OrderIntent records the decision to place (or skip, or refuse) an order for
// a signal. For a fixed idempotency key at most one intent row ever exists,
// and at most one intent ever reaches SUBMITTED.
type OrderIntent struct {
	ID                 int64
	IdempotencyKey     string
	Status             IntentStatus
	Symbol             string
	Side               OrderSide
	RequestedUSDAmount float64
	CreatedAt          time.Time
}

// ExchangeOrder mirrors an order that reached the exchange. The orchestrator
// writes rows; the reconciliation loop updates their status from exchange
// state.
type ExchangeOrder struct {
	ID                 int64
	ExchangeOrderID    int64  // exchange-assigned, unique
	Symbol             string
	Side               OrderSide
	OrderType          OrderType
	OrderRole          OrderRole
	ParentOrderID      *int64 // weak back-reference to the entry leg's exchange order ID
	OCOGroupID         string // groups a SL/TP protective pair; empty for entries without one
	Status             OrderStatus
	Price              float64
	Quantity           float64
	CreatedAt          time.Time
	ExchangeUpdateTime time.Time
}

// IsProtective reports whether the order is a protective exit leg.
func (o *ExchangeOrder) IsProtective() bool {
	return o.OrderRole == RoleStopLoss || o.OrderRole == RoleTakeProfit
}

// SiblingRole returns the complementary protective role, or RoleEntry when
// the order is not protective.
func (o *ExchangeOrder) SiblingRole() OrderRole {
	switch o.OrderRole {
	case RoleStopLoss:
		return RoleTakeProfit
	case RoleTakeProfit:
		return RoleStopLoss
	}
	return RoleEntry
}

// OrderResult is what Execute returns to its caller. Status is always one of
// SUBMITTED, DEDUP_SKIPPED or FAILED; Reason is set when guardrails denied.
type OrderResult struct {
	Status             IntentStatus
	Reason             DenyReason
	Intent             *OrderIntent
	EntryOrder         *ExchangeOrder
	AttemptedLeverages []int
	SpotFallback       bool
}
