package reconciler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"
)

// Mock implementations

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockOrderStore struct {
	orders map[int64]*domain.ExchangeOrder
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{orders: make(map[int64]*domain.ExchangeOrder)}
}

func (m *mockOrderStore) add(order *domain.ExchangeOrder) {
	copy := *order
	m.orders[order.ExchangeOrderID] = &copy
}

func (m *mockOrderStore) CreateOrder(ctx context.Context, order *domain.ExchangeOrder) (int64, error) {
	m.add(order)
	return order.ExchangeOrderID, nil
}

func (m *mockOrderStore) UpdateStatus(ctx context.Context, exchangeOrderID int64, status domain.OrderStatus, updateTime time.Time) error {
	if o, ok := m.orders[exchangeOrderID]; ok {
		o.Status = status
		o.ExchangeUpdateTime = updateTime
	}
	return nil
}

func (m *mockOrderStore) FindByExchangeOrderID(ctx context.Context, exchangeOrderID int64) (*domain.ExchangeOrder, error) {
	if o, ok := m.orders[exchangeOrderID]; ok {
		copy := *o
		return &copy, nil
	}
	return nil, nil
}

func (m *mockOrderStore) FindActive(ctx context.Context) ([]*domain.ExchangeOrder, error) {
	var active []*domain.ExchangeOrder
	for _, o := range m.orders {
		if o.Status.IsActive() {
			copy := *o
			active = append(active, &copy)
		}
	}
	return active, nil
}

func (m *mockOrderStore) CountActive(ctx context.Context) (int, error) {
	active, _ := m.FindActive(ctx)
	return len(active), nil
}

func (m *mockOrderStore) CountActiveByRole(ctx context.Context, symbol string, role domain.OrderRole) (int, error) {
	count := 0
	for _, o := range m.orders {
		if o.Status.IsActive() && o.Symbol == symbol && o.OrderRole == role {
			count++
		}
	}
	return count, nil
}

func (m *mockOrderStore) FindActiveByOCOGroup(ctx context.Context, ocoGroupID string) ([]*domain.ExchangeOrder, error) {
	var out []*domain.ExchangeOrder
	for _, o := range m.orders {
		if o.Status.IsActive() && o.OCOGroupID == ocoGroupID {
			copy := *o
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *mockOrderStore) FindActiveByParent(ctx context.Context, parentOrderID int64, role domain.OrderRole) ([]*domain.ExchangeOrder, error) {
	var out []*domain.ExchangeOrder
	for _, o := range m.orders {
		if o.Status.IsActive() && o.ParentOrderID != nil && *o.ParentOrderID == parentOrderID && o.OrderRole == role {
			copy := *o
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *mockOrderStore) FindActiveProtectiveInWindow(ctx context.Context, symbol string, role domain.OrderRole, from, to time.Time) ([]*domain.ExchangeOrder, error) {
	var out []*domain.ExchangeOrder
	for _, o := range m.orders {
		if o.Status.IsActive() && o.Symbol == symbol && o.OrderRole == role &&
			!o.CreatedAt.Before(from) && !o.CreatedAt.After(to) {
			copy := *o
			out = append(out, &copy)
		}
	}
	return out, nil
}

type mockExchange struct {
	open      map[string][]*ports.OrderResponse // by symbol
	byID      map[int64]*ports.OrderResponse    // point-query results
	history   map[string][]*ports.OrderResponse // recent orders by symbol
	cancelErr map[int64]error
	cancelled []int64
	position  *ports.PositionRisk
	posErr    error
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		open:      make(map[string][]*ports.OrderResponse),
		byID:      make(map[int64]*ports.OrderResponse),
		history:   make(map[string][]*ports.OrderResponse),
		cancelErr: make(map[int64]error),
	}
}

func (m *mockExchange) SetServerTime(ctx context.Context) error { return nil }
func (m *mockExchange) Ping(ctx context.Context) error          { return nil }
func (m *mockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}
func (m *mockExchange) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	return 0, nil
}
func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (m *mockExchange) PlaceMarginMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	return nil, nil
}
func (m *mockExchange) PlaceSpotMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quoteAmount string) (*ports.OrderResponse, error) {
	return nil, nil
}
func (m *mockExchange) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return nil, nil
}
func (m *mockExchange) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return nil, nil
}

func (m *mockExchange) GetOpenOrders(ctx context.Context, symbol string) ([]*ports.OrderResponse, error) {
	return m.open[symbol], nil
}

func (m *mockExchange) GetOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	if resp, ok := m.byID[orderID]; ok {
		return resp, nil
	}
	return nil, ports.ErrOrderNotFound
}

func (m *mockExchange) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]*ports.OrderResponse, error) {
	return m.history[symbol], nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	if err, ok := m.cancelErr[orderID]; ok {
		return nil, err
	}
	m.cancelled = append(m.cancelled, orderID)
	return &ports.OrderResponse{OrderID: orderID}, nil
}

func (m *mockExchange) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	return m.position, m.posErr
}

func (m *mockExchange) OutboundIP(ctx context.Context) (string, error) { return "", nil }

type mockAlerts struct {
	notifications []string
}

func (m *mockAlerts) EmitDecisionTrace(ctx context.Context, kind string, symbol string, side domain.OrderSide, reason domain.DenyReason, fields map[string]interface{}) {
}

func (m *mockAlerts) EmitNotification(ctx context.Context, text string, severity ports.AlertSeverity) {
	m.notifications = append(m.notifications, text)
}

// Fixtures

func intPtr(v int64) *int64 { return &v }

func newTestService(t *testing.T, store *mockOrderStore, exchange *mockExchange, alerts *mockAlerts) *Service {
	t.Helper()
	s, err := New(Config{SiblingWindow: 10 * time.Minute}, &mockLogger{}, exchange, store, alerts)
	require.NoError(t, err)
	return s
}

// entryWithPair seeds a filled entry plus its active SL/TP pair and returns
// the three exchange order IDs.
func entryWithPair(store *mockOrderStore, symbol string, base int64, withGroup, withParent bool) (entry, sl, tp int64) {
	entry, sl, tp = base, base+1, base+2
	now := time.Now().UTC()
	group := ""
	if withGroup {
		group = "oco-" + symbol
	}
	var parent *int64
	if withParent {
		parent = intPtr(entry)
	}

	store.add(&domain.ExchangeOrder{
		ExchangeOrderID: entry, Symbol: symbol, Side: domain.Buy,
		OrderType: domain.OrderTypeMarket, OrderRole: domain.RoleEntry,
		Status: domain.OrderStatusFilled, Price: 2000, Quantity: 0.05, CreatedAt: now,
	})
	store.add(&domain.ExchangeOrder{
		ExchangeOrderID: sl, Symbol: symbol, Side: domain.Sell,
		OrderType: domain.OrderTypeStopLoss, OrderRole: domain.RoleStopLoss,
		ParentOrderID: parent, OCOGroupID: group,
		Status: domain.OrderStatusNew, Price: 1980, Quantity: 0.05, CreatedAt: now,
	})
	store.add(&domain.ExchangeOrder{
		ExchangeOrderID: tp, Symbol: symbol, Side: domain.Sell,
		OrderType: domain.OrderTypeTakeProfit, OrderRole: domain.RoleTakeProfit,
		ParentOrderID: parent, OCOGroupID: group,
		Status: domain.OrderStatusNew, Price: 2040, Quantity: 0.05, CreatedAt: now,
	})
	return entry, sl, tp
}

// keepAlive registers orders as still open on the exchange so the reconciler
// leaves them untouched.
func keepAlive(exchange *mockExchange, symbol string, ids ...int64) {
	for _, id := range ids {
		resp := &ports.OrderResponse{OrderID: id, Symbol: symbol, Status: "NEW"}
		exchange.open[symbol] = append(exchange.open[symbol], resp)
		exchange.byID[id] = resp
	}
}

// Tests

func TestRunCycle_NoActiveOrdersIsANoop(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Empty(t, alerts.notifications)
}

func TestRunCycle_FilledTPCancelsSiblingViaGroup(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	_, sl, tp := entryWithPair(store, "ETHUSDT", 100, true, true)
	// TP filled: absent from the open set, point query confirms FILLED.
	keepAlive(exchange, "ETHUSDT", sl)
	exchange.byID[tp] = &ports.OrderResponse{OrderID: tp, Status: "FILLED", AvgPrice: 2040, UpdateTime: time.Now()}
	exchange.position = &ports.PositionRisk{Symbol: "ETHUSDT", PositionAmt: 0.05}

	require.NoError(t, s.RunCycle(context.Background()))

	assert.Contains(t, exchange.cancelled, sl)
	assert.Equal(t, domain.OrderStatusFilled, store.orders[tp].Status)
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[sl].Status)

	// One batched flush mentioning the fill and the P/L.
	require.Len(t, alerts.notifications, 1)
	assert.Contains(t, alerts.notifications[0], "TAKE_PROFIT filled")
	assert.Contains(t, alerts.notifications[0], "cancelled sibling")
}

func TestRunCycle_SiblingResolvedViaParentWhenNoGroup(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	_, sl, tp := entryWithPair(store, "ETHUSDT", 200, false, true)
	keepAlive(exchange, "ETHUSDT", tp)
	exchange.byID[sl] = &ports.OrderResponse{OrderID: sl, Status: "FILLED", AvgPrice: 1980, UpdateTime: time.Now()}

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Contains(t, exchange.cancelled, tp)
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[tp].Status)
}

func TestRunCycle_SiblingResolvedViaWindowAsLastResort(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	// No group, no parent link: only symbol + opposite role + time window.
	_, sl, tp := entryWithPair(store, "ETHUSDT", 300, false, false)
	keepAlive(exchange, "ETHUSDT", tp)
	exchange.byID[sl] = &ports.OrderResponse{OrderID: sl, Status: "FILLED", AvgPrice: 1980, UpdateTime: time.Now()}

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Contains(t, exchange.cancelled, tp)
}

func TestRunCycle_AmbiguousWindowCancelsNothing(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	// Two unlinked pairs on the same symbol in the same window: the window
	// strategy sees two TP candidates and must refuse to guess.
	_, sl1, tp1 := entryWithPair(store, "ETHUSDT", 400, false, false)
	_, sl2, tp2 := entryWithPair(store, "ETHUSDT", 500, false, false)
	keepAlive(exchange, "ETHUSDT", tp1, sl2, tp2)
	exchange.byID[sl1] = &ports.OrderResponse{OrderID: sl1, Status: "FILLED", AvgPrice: 1980, UpdateTime: time.Now()}

	require.NoError(t, s.RunCycle(context.Background()))
	assert.NotContains(t, exchange.cancelled, tp1)
	assert.NotContains(t, exchange.cancelled, tp2)
}

func TestRunCycle_SiblingAlreadyGoneIsInformational(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	_, sl, tp := entryWithPair(store, "ETHUSDT", 600, true, true)
	keepAlive(exchange, "ETHUSDT", sl)
	exchange.byID[tp] = &ports.OrderResponse{OrderID: tp, Status: "FILLED", AvgPrice: 2040, UpdateTime: time.Now()}
	// The exchange already dropped the SL (its own OCO linkage fired).
	exchange.cancelErr[sl] = ports.ErrOrderNotFound
	exchange.position = &ports.PositionRisk{Symbol: "ETHUSDT", PositionAmt: 0.05}

	require.NoError(t, s.RunCycle(context.Background()))

	// Local mirror still flips to cancelled, and the note says "already".
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[sl].Status)
	require.Len(t, alerts.notifications, 1)
	assert.Contains(t, strings.ToLower(alerts.notifications[0]), "already cancelled")
}

func TestRunCycle_AbsentButAliveOrderIsLeftAlone(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	_, sl, tp := entryWithPair(store, "ETHUSDT", 700, true, true)
	// Both legs missing from the open listing (transient page), but point
	// queries say they are still alive.
	exchange.byID[sl] = &ports.OrderResponse{OrderID: sl, Status: "NEW"}
	exchange.byID[tp] = &ports.OrderResponse{OrderID: tp, Status: "NEW"}
	exchange.position = &ports.PositionRisk{Symbol: "ETHUSDT", PositionAmt: 0.05}

	require.NoError(t, s.RunCycle(context.Background()))

	assert.Equal(t, domain.OrderStatusNew, store.orders[sl].Status)
	assert.Equal(t, domain.OrderStatusNew, store.orders[tp].Status)
	assert.Empty(t, exchange.cancelled)
}

func TestRunCycle_UnknownOrderConfirmedCancelled(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	store.add(&domain.ExchangeOrder{
		ExchangeOrderID: 800, Symbol: "ETHUSDT", Side: domain.Buy,
		OrderType: domain.OrderTypeMarket, OrderRole: domain.RoleEntry,
		Status: domain.OrderStatusNew, CreatedAt: time.Now().UTC(),
	})
	// Not open, and the point query returns not-found.

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[800].Status)
}

func TestRunCycle_ForgottenOrderFoundFilledInHistory(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	// The point query has forgotten the TP, but recent history still shows
	// the fill: the fill must win over the cancelled assumption and the
	// sibling still gets cancelled.
	_, sl, tp := entryWithPair(store, "ETHUSDT", 850, true, true)
	keepAlive(exchange, "ETHUSDT", sl)
	exchange.history["ETHUSDT"] = []*ports.OrderResponse{
		{OrderID: tp, Symbol: "ETHUSDT", Status: "FILLED", AvgPrice: 2040, UpdateTime: time.Now()},
	}
	exchange.position = &ports.PositionRisk{Symbol: "ETHUSDT", PositionAmt: 0.05}

	require.NoError(t, s.RunCycle(context.Background()))

	assert.Equal(t, domain.OrderStatusFilled, store.orders[tp].Status)
	assert.Contains(t, exchange.cancelled, sl)
}

func TestRunCycle_RejectedTakeProfitIsCancelled(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	_, sl, tp := entryWithPair(store, "ETHUSDT", 900, true, true)
	keepAlive(exchange, "ETHUSDT", sl)
	// TP shows up in the open listing as REJECTED.
	resp := &ports.OrderResponse{OrderID: tp, Symbol: "ETHUSDT", Status: "REJECTED", UpdateTime: time.Now()}
	exchange.open["ETHUSDT"] = append(exchange.open["ETHUSDT"], resp)
	exchange.byID[tp] = resp
	exchange.position = &ports.PositionRisk{Symbol: "ETHUSDT", PositionAmt: 0.05}

	require.NoError(t, s.RunCycle(context.Background()))

	assert.Contains(t, exchange.cancelled, tp)
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[tp].Status)
}

func TestRunCycle_OrphanWithClosedParentIsCancelled(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	// Entry cancelled, SL still active: a protective leg guarding nothing.
	now := time.Now().UTC()
	store.add(&domain.ExchangeOrder{
		ExchangeOrderID: 1000, Symbol: "ETHUSDT", Side: domain.Buy,
		OrderType: domain.OrderTypeMarket, OrderRole: domain.RoleEntry,
		Status: domain.OrderStatusCancelled, CreatedAt: now,
	})
	store.add(&domain.ExchangeOrder{
		ExchangeOrderID: 1001, Symbol: "ETHUSDT", Side: domain.Sell,
		OrderType: domain.OrderTypeStopLoss, OrderRole: domain.RoleStopLoss,
		ParentOrderID: intPtr(1000), Status: domain.OrderStatusNew, CreatedAt: now,
	})
	keepAlive(exchange, "ETHUSDT", 1001)

	require.NoError(t, s.RunCycle(context.Background()))

	assert.Contains(t, exchange.cancelled, int64(1001))
	assert.Equal(t, domain.OrderStatusCancelled, store.orders[1001].Status)
	require.Len(t, alerts.notifications, 1)
	assert.Contains(t, alerts.notifications[0], "orphaned")
}

func TestRunCycle_ProtectedPositionIsNotAnOrphan(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	// Filled parent + live position: the normal protected state.
	_, sl, tp := entryWithPair(store, "ETHUSDT", 1100, true, true)
	keepAlive(exchange, "ETHUSDT", sl, tp)
	exchange.position = &ports.PositionRisk{Symbol: "ETHUSDT", PositionAmt: 0.05}

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Empty(t, exchange.cancelled)
}

func TestRunCycle_FilledParentWithoutPositionIsAnOrphan(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	_, sl, tp := entryWithPair(store, "ETHUSDT", 1200, true, true)
	keepAlive(exchange, "ETHUSDT", sl, tp)
	exchange.position = nil // position closed out of band

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Contains(t, exchange.cancelled, sl)
	assert.Contains(t, exchange.cancelled, tp)
}

func TestRunCycle_InconclusivePositionReadCancelsNothing(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	alerts := &mockAlerts{}
	s := newTestService(t, store, exchange, alerts)

	_, sl, tp := entryWithPair(store, "ETHUSDT", 1300, true, true)
	keepAlive(exchange, "ETHUSDT", sl, tp)
	exchange.position = nil
	exchange.posErr = ports.ErrTimeout

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Empty(t, exchange.cancelled, "bad position data must not cancel protection")
}

func TestRealizedPL(t *testing.T) {
	store := newMockOrderStore()
	exchange := newMockExchange()
	s := newTestService(t, store, exchange, &mockAlerts{})

	store.add(&domain.ExchangeOrder{
		ExchangeOrderID: 1400, Symbol: "ETHUSDT", Side: domain.Buy,
		OrderRole: domain.RoleEntry, Status: domain.OrderStatusFilled,
		Price: 2000, Quantity: 0.05,
	})

	// Long entry at 2000, TP exit (SELL) at 2040: profit.
	pl := s.realizedPL(context.Background(), &domain.ExchangeOrder{
		ExchangeOrderID: 1401, Side: domain.Sell, OrderRole: domain.RoleTakeProfit,
		ParentOrderID: intPtr(1400), Price: 2040, Quantity: 0.05,
	})
	assert.InDelta(t, 2.0, pl, 0.001)

	// SL exit (SELL) at 1980: loss.
	pl = s.realizedPL(context.Background(), &domain.ExchangeOrder{
		ExchangeOrderID: 1402, Side: domain.Sell, OrderRole: domain.RoleStopLoss,
		ParentOrderID: intPtr(1400), Price: 1980, Quantity: 0.05,
	})
	assert.InDelta(t, -1.0, pl, 0.001)
}
