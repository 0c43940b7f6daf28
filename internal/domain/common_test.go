package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyKey_StableAndSideScoped(t *testing.T) {
	assert.Equal(t, "sig-777666-BUY", IdempotencyKey(777666, Buy))
	assert.Equal(t, "sig-777666-SELL", IdempotencyKey(777666, Sell))

	s := Signal{SignalID: 42, Side: Buy}
	assert.Equal(t, IdempotencyKey(42, Buy), s.Key())
}

func TestExitRoleFor(t *testing.T) {
	assert.Equal(t, RoleTakeProfit, ExitRoleFor(Buy))
	assert.Equal(t, RoleStopLoss, ExitRoleFor(Sell))
}

func TestOrderSide_Opposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestStatusFromExchange(t *testing.T) {
	tests := []struct {
		raw  string
		want OrderStatus
	}{
		{"NEW", OrderStatusNew},
		{"PARTIALLY_FILLED", OrderStatusPartiallyFilled},
		{"FILLED", OrderStatusFilled},
		{"CANCELED", OrderStatusCancelled},
		{"CANCELLED", OrderStatusCancelled},
		{"PENDING_CANCEL", OrderStatusCancelled},
		{"REJECTED", OrderStatusRejected},
		{"EXPIRED", OrderStatusExpired},
		{"EXPIRED_IN_MATCH", OrderStatusExpired},
		// Unknown statuses stay active so reconciliation keeps watching.
		{"SOMETHING_NEW", OrderStatusNew},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFromExchange(tt.raw), tt.raw)
	}
}

func TestOrderStatus_ActiveAndTerminalArePartition(t *testing.T) {
	all := []OrderStatus{
		OrderStatusNew, OrderStatusOpen, OrderStatusActive, OrderStatusPartiallyFilled,
		OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired,
	}
	for _, s := range all {
		assert.NotEqual(t, s.IsActive(), s.IsTerminal(), string(s))
	}
}
