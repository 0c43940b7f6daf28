package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType represents the exchange order type.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

// OrderRole distinguishes the entry leg from its protective legs.
type OrderRole string

const (
	RoleEntry      OrderRole = "ENTRY"
	RoleStopLoss   OrderRole = "STOP_LOSS"
	RoleTakeProfit OrderRole = "TAKE_PROFIT"
)

// ExitRoleFor returns the protective role that counts as exposure against a
// new order on the given side: a BUY competes with active take-profits, a
// SELL with active stop-losses. The two sides never look at each other's
// counts.
func ExitRoleFor(side OrderSide) OrderRole {
	if side == Buy {
		return RoleTakeProfit
	}
	return RoleStopLoss
}

// OrderStatus represents the exchange-side status of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusActive          OrderStatus = "ACTIVE"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsActive reports whether the order still occupies exposure on the exchange.
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderStatusNew, OrderStatusOpen, OrderStatusActive, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// IsTerminal reports whether the order can no longer change on the exchange.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// StatusFromExchange maps a raw exchange status string onto the local
// status set. Unknown strings map to NEW, the most conservative active
// status, so the reconciler keeps watching rather than dropping the order.
func StatusFromExchange(raw string) OrderStatus {
	switch raw {
	case "NEW":
		return OrderStatusNew
	case "OPEN":
		return OrderStatusOpen
	case "ACTIVE":
		return OrderStatusActive
	case "PARTIALLY_FILLED":
		return OrderStatusPartiallyFilled
	case "FILLED":
		return OrderStatusFilled
	case "CANCELED", "CANCELLED", "PENDING_CANCEL":
		return OrderStatusCancelled
	case "REJECTED":
		return OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return OrderStatusExpired
	default:
		return OrderStatusNew
	}
}

// IntentStatus represents the lifecycle of an order intent.
// An intent is terminal once it leaves PENDING and never changes again.
type IntentStatus string

const (
	IntentPending      IntentStatus = "PENDING"
	IntentSubmitted    IntentStatus = "SUBMITTED"
	IntentDedupSkipped IntentStatus = "DEDUP_SKIPPED"
	IntentFailed       IntentStatus = "FAILED"
)

// DenyReason is the machine-readable reason code carried by every guardrail
// denial and emitted in decision traces.
type DenyReason string

const (
	DenyNone            DenyReason = ""
	DenyLiveOff         DenyReason = "LIVE_OFF"
	DenyKillSwitch      DenyReason = "KILL_SWITCH"
	DenySymbolDisabled  DenyReason = "SYMBOL_DISABLED"
	DenyTradingDisabled DenyReason = "TRADING_DISABLED"
	DenyNotAllowlisted  DenyReason = "NOT_ALLOWLISTED"
	DenyMaxOpenOrders   DenyReason = "MAX_OPEN_ORDERS"
	DenyDailyLimit      DenyReason = "DAILY_LIMIT"
	DenyAmountLimit     DenyReason = "AMOUNT_LIMIT"
	DenyOrderSpacing    DenyReason = "ORDER_SPACING"
	DenyExposureLimit   DenyReason = "EXPOSURE_LIMIT"
	DenyCooldown        DenyReason = "COOLDOWN"
)
