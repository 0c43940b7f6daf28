package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	futuresURLProduction = "https://fapi.binance.com"
	futuresURLTestnet    = "https://testnet.binancefuture.com"
	spotURLProduction    = "https://api.binance.com"
	spotURLTestnet       = "https://testnet.binance.vision"
)

// Client implements ports.ExchangeClient using the go-binance library.
// Leveraged entries and protective orders go through the futures client;
// the spot client serves the spot fallback and quote-asset balance reads.
type Client struct {
	futuresClient *futures.Client
	spotClient    *binance.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	futuresClient := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	spotClient := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	if cfg.UseTestnet {
		futuresClient.BaseURL = futuresURLTestnet
		spotClient.BaseURL = spotURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet")
	} else {
		futuresClient.BaseURL = futuresURLProduction
		spotClient.BaseURL = spotURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production")
	}

	return &Client{
		futuresClient: futuresClient,
		spotClient:    spotClient,
		logger:        cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports
// errors. Authentication, IP whitelist, insufficient balance and generic
// rejection must stay distinguishable; the orchestrator and leverage cache
// branch on them.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014: // API-key format invalid
			mappedErr = ports.ErrAuthenticationFailed
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrIPNotAllowed
		case -2019: // Margin is insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		case -3041: // Balance is not enough
			mappedErr = ports.ErrInsufficientFunds
		case -4003: // Qty not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4014: // Price not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4015: // Leverage is not valid
			mappedErr = ports.ErrInvalidRequest
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		case -4047: // Exceeded max position at current leverage
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time offset with the exchange.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	return nil
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetAccountBalance retrieves the free spot balance for an asset.
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAccountBalance"
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Balances {
		if bal.Asset == asset {
			balance, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}
	// Asset absent from the account means zero free balance.
	return 0, nil
}

// SetLeverage sets the margin leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// PlaceMarginMarketOrder places a leveraged market order.
func (c *Client) PlaceMarginMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarginMarketOrder"

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateFuturesCreateResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})
	return resp, nil
}

// PlaceSpotMarketOrder places a spot market order spending the given
// quote-asset amount.
func (c *Client) PlaceSpotMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quoteAmount string) (*ports.OrderResponse, error) {
	op := "PlaceSpotMarketOrder"

	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateSpotCreateResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quoteAmount": quoteAmount, "orderID": resp.OrderID})
	return resp, nil
}

// PlaceStopMarketOrder places a protective stop-market order.
func (c *Client) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	op := "PlaceStopMarketOrder"

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeStopMarket).
		Quantity(quantity).
		StopPrice(stopPrice).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateFuturesCreateResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "stopPrice": stopPrice, "orderID": resp.OrderID})
	return resp, nil
}

// PlaceTakeProfitMarketOrder places a protective take-profit-market order.
func (c *Client) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	op := "PlaceTakeProfitMarketOrder"

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeTakeProfitMarket).
		Quantity(quantity).
		StopPrice(stopPrice).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateFuturesCreateResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "stopPrice": stopPrice, "orderID": resp.OrderID})
	return resp, nil
}

// GetOpenOrders lists the currently open orders for a symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]*ports.OrderResponse, error) {
	op := "GetOpenOrders"
	orders, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resps := make([]*ports.OrderResponse, 0, len(orders))
	for _, o := range orders {
		resps = append(resps, translateFuturesOrder(o))
	}
	return resps, nil
}

// GetOrder retrieves a single order by ID, the reconciler's confirming
// point query.
func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "GetOrder"
	order, err := c.futuresClient.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateFuturesOrder(order), nil
}

// GetOrderHistory retrieves the most recent orders for a symbol.
func (c *Client) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]*ports.OrderResponse, error) {
	op := "GetOrderHistory"
	orders, err := c.futuresClient.NewListOrdersService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resps := make([]*ports.OrderResponse, 0, len(orders))
	for _, o := range orders {
		resps = append(resps, translateFuturesOrder(o))
	}
	return resps, nil
}

// CancelOrder cancels an existing open order by its ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	order, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         parseFloat(order.Price),
		OrigQuantity:  parseFloat(order.OrigQuantity),
		ExecutedQty:   parseFloat(order.ExecutedQuantity),
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	return resp, nil
}

// GetPositionRisk retrieves the open position for a symbol, or nil if none.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	op := "GetPositionRisk"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	pos := positions[0]
	qty := parseFloat(pos.PositionAmt)
	if qty == 0 {
		return nil, nil
	}

	leverage, _ := strconv.Atoi(pos.Leverage)
	return &ports.PositionRisk{
		Symbol:           pos.Symbol,
		PositionAmt:      qty,
		EntryPrice:       parseFloat(pos.EntryPrice),
		MarkPrice:        parseFloat(pos.MarkPrice),
		UnRealizedProfit: parseFloat(pos.UnRealizedProfit),
		Leverage:         leverage,
	}, nil
}

// OutboundIP reports the local address outbound requests originate from.
// The UDP dial never sends traffic; it only resolves the route.
func (c *Client) OutboundIP(ctx context.Context) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to resolve outbound IP: %w", err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// --- Translation Helpers ---

func translateFuturesCreateResponse(o *futures.CreateOrderResponse) *ports.OrderResponse {
	return &ports.OrderResponse{
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		ClientOrderID: o.ClientOrderID,
		Price:         parseFloat(o.Price),
		AvgPrice:      parseFloat(o.AvgPrice),
		StopPrice:     parseFloat(o.StopPrice),
		OrigQuantity:  parseFloat(o.OrigQuantity),
		ExecutedQty:   parseFloat(o.ExecutedQuantity),
		Status:        string(o.Status),
		Type:          string(o.Type),
		Side:          string(o.Side),
		UpdateTime:    time.UnixMilli(o.UpdateTime),
	}
}

func translateFuturesOrder(o *futures.Order) *ports.OrderResponse {
	return &ports.OrderResponse{
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		ClientOrderID: o.ClientOrderID,
		Price:         parseFloat(o.Price),
		AvgPrice:      parseFloat(o.AvgPrice),
		StopPrice:     parseFloat(o.StopPrice),
		OrigQuantity:  parseFloat(o.OrigQuantity),
		ExecutedQty:   parseFloat(o.ExecutedQuantity),
		Status:        string(o.Status),
		Type:          string(o.Type),
		Side:          string(o.Side),
		UpdateTime:    time.UnixMilli(o.UpdateTime),
	}
}

func translateSpotCreateResponse(o *binance.CreateOrderResponse) *ports.OrderResponse {
	executed := parseFloat(o.ExecutedQuantity)
	avg := 0.0
	if executed > 0 {
		avg = parseFloat(o.CummulativeQuoteQuantity) / executed
	}
	return &ports.OrderResponse{
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		ClientOrderID: o.ClientOrderID,
		Price:         parseFloat(o.Price),
		AvgPrice:      avg,
		OrigQuantity:  parseFloat(o.OrigQuantity),
		ExecutedQty:   executed,
		Status:        string(o.Status),
		Type:          string(o.Type),
		Side:          string(o.Side),
		UpdateTime:    time.UnixMilli(o.TransactTime),
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
