package ports

import (
	"context"
	"time"

	"cryptoOrderEngine/internal/domain"
)

// OrderResponse represents the essential details returned by the exchange
// for a placed, queried or cancelled order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (might be 0 for market orders initially)
	AvgPrice      float64   // Average filled price
	StopPrice     float64   // Trigger price for stop/take-profit orders
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Raw exchange status (e.g. NEW, FILLED, CANCELED)
	Type          string    // Raw exchange order type
	Side          string    // Order side (BUY, SELL)
	UpdateTime    time.Time // Last exchange-side update time
}

// PositionRisk represents the risk details for an open position.
type PositionRisk struct {
	Symbol           string
	PositionAmt      float64 // Positive for long, negative for short
	EntryPrice       float64
	MarkPrice        float64
	UnRealizedProfit float64
	Leverage         int
}

// ExchangeClient defines the interface for interacting with the exchange.
// All calls are synchronous, blocking network requests; callers bound them
// with context timeouts.
type ExchangeClient interface {
	// SetServerTime synchronizes the client's clock offset with the exchange.
	SetServerTime(ctx context.Context) error

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetTickerPrice retrieves the last ticker price for a symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetAccountBalance retrieves the available spot balance for an asset
	// (e.g. "USDT"), used by the spot fallback.
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the margin leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarginMarketOrder places a leveraged market order on the margin
	// (futures) side. Insufficient margin for the current leverage surfaces
	// as ErrInsufficientFunds.
	PlaceMarginMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceSpotMarketOrder places a spot market order spending the given
	// quote-asset amount. Used as the fallback when every margin rung fails.
	PlaceSpotMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quoteAmount string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a protective stop-market order.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// PlaceTakeProfitMarketOrder places a protective take-profit-market order.
	PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// GetOpenOrders lists the currently open orders for a symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]*OrderResponse, error)

	// GetOrder retrieves a single order by ID. This is the confirming point
	// query the reconciler issues before flipping a local order's status.
	// Returns ErrOrderNotFound if the exchange no longer knows the order.
	GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// GetOrderHistory retrieves the most recent orders for a symbol.
	GetOrderHistory(ctx context.Context, symbol string, limit int) ([]*OrderResponse, error)

	// CancelOrder cancels an open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// GetPositionRisk retrieves the open position for a symbol, or nil if
	// there is none. Used for orphan detection.
	GetPositionRisk(ctx context.Context, symbol string) (*PositionRisk, error)

	// OutboundIP reports the local address exchange requests originate from,
	// for IP-whitelist diagnostics on authentication failures.
	OutboundIP(ctx context.Context) (string, error)
}
