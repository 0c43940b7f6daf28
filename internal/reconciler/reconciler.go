package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"
)

// historyLookback bounds the recent-order scan used when a point query no
// longer returns an order.
const historyLookback = 50

// Config holds reconciler parameters.
type Config struct {
	Interval        time.Duration // gap between cycles
	CycleTimeout    time.Duration // bound on one full cycle
	ExchangeTimeout time.Duration // bound on each individual exchange call
	SiblingWindow   time.Duration // creation-time window for last-resort sibling matching
}

// Service reconciles local order state against the exchange on a timer.
// It runs as a single periodic task: a cycle always finishes (or times out)
// before the next one starts, so cycles never overlap within an instance.
//
// Per cycle it pulls open orders, confirms closures with point queries,
// cancels the surviving leg of a filled OCO pair, flags and cancels
// orphaned protective orders, and cleans up rejected take-profits.
type Service struct {
	cfg      Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	orders   ports.ExchangeOrderRepository
	alerts   ports.AlertNotifier
	now      func() time.Time
}

// New creates a reconciliation service.
func New(cfg Config, logger ports.Logger, exchange ports.ExchangeClient,
	orders ports.ExchangeOrderRepository, alerts ports.AlertNotifier) (*Service, error) {

	if logger == nil || exchange == nil || orders == nil || alerts == nil {
		return nil, fmt.Errorf("missing required dependencies for reconciler")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = cfg.Interval
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 5 * time.Second
	}
	if cfg.SiblingWindow <= 0 {
		cfg.SiblingWindow = 10 * time.Minute
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		orders:   orders,
		alerts:   alerts,
		now:      time.Now,
	}, nil
}

// Run executes cycles until the context is cancelled. The ticker fires only
// after the previous cycle returns, so a slow cycle delays the next instead
// of overlapping it.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info(ctx, "Reconciler started", map[string]interface{}{"interval": s.cfg.Interval.String()})
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Reconciler stopped")
			return
		case <-ticker.C:
			cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
			if err := s.RunCycle(cycleCtx); err != nil {
				// Mismatches are retried next cycle; nothing is force-closed
				// on a failed read.
				s.logger.Error(ctx, err, "Reconciliation cycle failed, retrying next cycle")
			}
			cancel()
		}
	}
}

// cycleState accumulates one cycle's notifications so many simultaneous
// closures produce a single flush instead of a notification storm.
type cycleState struct {
	notes []string
	// filled protective orders observed this cycle, pending OCO resolution
	filledProtective []*domain.ExchangeOrder
}

func (c *cycleState) note(line string) {
	c.notes = append(c.notes, line)
}

// RunCycle performs one reconciliation pass.
func (s *Service) RunCycle(ctx context.Context) error {
	local, err := s.orders.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load active orders: %w", err)
	}
	if len(local) == 0 {
		return nil
	}

	openByID, err := s.fetchOpenOrders(ctx, symbolsOf(local))
	if err != nil {
		return err
	}

	state := &cycleState{}

	for _, order := range local {
		if resp, ok := openByID[order.ExchangeOrderID]; ok {
			s.syncOpenOrder(ctx, state, order, resp)
			continue
		}
		// Absent from the open set. Absence on a transient empty page must
		// not be read as cancellation; confirm with a point query before
		// flipping anything.
		s.confirmClosure(ctx, state, order)
	}

	for _, filled := range state.filledProtective {
		s.cancelOCOSibling(ctx, state, filled)
	}

	s.cleanupOrphans(ctx, state)

	if len(state.notes) > 0 {
		s.alerts.EmitNotification(ctx, strings.Join(state.notes, "\n"), ports.SeverityInfo)
	}
	return nil
}

// fetchOpenOrders lists open orders for every symbol with local active
// state, keyed by exchange order ID. Listing gets a single bounded retry on
// timeout; it is a read.
func (s *Service) fetchOpenOrders(ctx context.Context, symbols []string) (map[int64]*ports.OrderResponse, error) {
	open := make(map[int64]*ports.OrderResponse)
	for _, symbol := range symbols {
		resps, err := s.listOpenOrders(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("reconcile: open orders for %s: %w", symbol, err)
		}
		for _, r := range resps {
			open[r.OrderID] = r
		}
	}
	return open, nil
}

func (s *Service) listOpenOrders(ctx context.Context, symbol string) ([]*ports.OrderResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	resps, err := s.exchange.GetOpenOrders(callCtx, symbol)
	cancel()
	if err != nil && errors.Is(err, ports.ErrTimeout) {
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
		resps, err = s.exchange.GetOpenOrders(callCtx, symbol)
		cancel()
	}
	return resps, err
}

// syncOpenOrder refreshes a local order that is still open on the exchange.
// A rejected take-profit reported here is actively cancelled so it cannot
// linger and be double-counted by the exposure guardrail.
func (s *Service) syncOpenOrder(ctx context.Context, state *cycleState, order *domain.ExchangeOrder, resp *ports.OrderResponse) {
	status := domain.StatusFromExchange(resp.Status)
	if status == order.Status {
		return
	}
	s.applyStatus(ctx, state, order, status, resp.UpdateTime, resp.AvgPrice)
}

// confirmClosure point-queries an order missing from the open set and only
// then flips local state.
func (s *Service) confirmClosure(ctx context.Context, state *cycleState, order *domain.ExchangeOrder) {
	resp, err := s.getOrder(ctx, order.Symbol, order.ExchangeOrderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			// The point query has forgotten the order. An order that filled
			// would still show up in recent history; check there before
			// concluding it was cancelled.
			if resp := s.findInHistory(ctx, order.Symbol, order.ExchangeOrderID); resp != nil {
				if status := domain.StatusFromExchange(resp.Status); status.IsTerminal() {
					s.applyStatus(ctx, state, order, status, resp.UpdateTime, resp.AvgPrice)
					return
				}
			}
			s.applyStatus(ctx, state, order, domain.OrderStatusCancelled, s.now().UTC(), 0)
			return
		}
		s.logger.Warn(ctx, "Reconcile: point query failed, deferring to next cycle", map[string]interface{}{
			"exchangeOrderID": order.ExchangeOrderID, "error": err.Error(),
		})
		return
	}

	status := domain.StatusFromExchange(resp.Status)
	if !status.IsTerminal() {
		// Open-order listing missed it but the point query says alive:
		// transient page, leave it untouched.
		return
	}
	s.applyStatus(ctx, state, order, status, resp.UpdateTime, resp.AvgPrice)
}

// findInHistory scans the symbol's recent order history for an order the
// point query no longer returns. Best effort: any error means not found.
func (s *Service) findInHistory(ctx context.Context, symbol string, orderID int64) *ports.OrderResponse {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()
	resps, err := s.exchange.GetOrderHistory(callCtx, symbol, historyLookback)
	if err != nil {
		s.logger.Warn(ctx, "Reconcile: history lookup failed", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return nil
	}
	for _, r := range resps {
		if r.OrderID == orderID {
			return r
		}
	}
	return nil
}

func (s *Service) getOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	resp, err := s.exchange.GetOrder(callCtx, symbol, orderID)
	cancel()
	if err != nil && errors.Is(err, ports.ErrTimeout) {
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
		resp, err = s.exchange.GetOrder(callCtx, symbol, orderID)
		cancel()
	}
	return resp, err
}

// applyStatus commits a confirmed status change and queues the follow-up
// work it implies.
func (s *Service) applyStatus(ctx context.Context, state *cycleState, order *domain.ExchangeOrder, status domain.OrderStatus, updateTime time.Time, avgPrice float64) {
	if err := s.orders.UpdateStatus(ctx, order.ExchangeOrderID, status, updateTime); err != nil {
		s.logger.Error(ctx, err, "Reconcile: status update failed", map[string]interface{}{"exchangeOrderID": order.ExchangeOrderID})
		return
	}
	s.logger.Info(ctx, "Reconcile: order status updated", map[string]interface{}{
		"exchangeOrderID": order.ExchangeOrderID, "symbol": order.Symbol,
		"from": order.Status, "to": status,
	})

	if status == domain.OrderStatusFilled && order.IsProtective() {
		filled := *order
		filled.Status = status
		if avgPrice > 0 {
			filled.Price = avgPrice
		}
		state.filledProtective = append(state.filledProtective, &filled)
	}

	if status == domain.OrderStatusRejected && order.OrderRole == domain.RoleTakeProfit {
		// Rejected take-profits are cancelled on the exchange rather than
		// left dangling.
		s.cancelOrder(ctx, state, order, "rejected take-profit cleanup")
	}

	order.Status = status
}

// cancelOCOSibling cancels the surviving leg of a protective pair after the
// other leg filled. Resolution strategies in priority order: shared OCO
// group, shared parent with the complementary role, then same symbol +
// opposite role created within the sibling window. The first strategy
// yielding exactly one active candidate wins; zero or many falls through.
func (s *Service) cancelOCOSibling(ctx context.Context, state *cycleState, filled *domain.ExchangeOrder) {
	sibling, err := s.resolveSibling(ctx, filled)
	if err != nil {
		s.logger.Error(ctx, err, "Reconcile: OCO sibling lookup failed", map[string]interface{}{"exchangeOrderID": filled.ExchangeOrderID})
		return
	}
	if sibling == nil {
		// The exchange's own OCO linkage (or an earlier cycle) beat us to it.
		state.note(fmt.Sprintf("OCO sibling of %s order %d (%s) already cancelled",
			filled.OrderRole, filled.ExchangeOrderID, filled.Symbol))
		return
	}

	pl := s.realizedPL(ctx, filled)
	if s.cancelOrder(ctx, state, sibling, "") {
		state.note(fmt.Sprintf("%s filled for %s at %.4f (P/L %+.2f), cancelled sibling %s order %d",
			filled.OrderRole, filled.Symbol, filled.Price, pl, sibling.OrderRole, sibling.ExchangeOrderID))
	}
}

func (s *Service) resolveSibling(ctx context.Context, filled *domain.ExchangeOrder) (*domain.ExchangeOrder, error) {
	if filled.OCOGroupID != "" {
		candidates, err := s.orders.FindActiveByOCOGroup(ctx, filled.OCOGroupID)
		if err != nil {
			return nil, err
		}
		if one := exactlyOne(candidates, filled.ExchangeOrderID); one != nil {
			return one, nil
		}
	}

	if filled.ParentOrderID != nil {
		candidates, err := s.orders.FindActiveByParent(ctx, *filled.ParentOrderID, filled.SiblingRole())
		if err != nil {
			return nil, err
		}
		if one := exactlyOne(candidates, filled.ExchangeOrderID); one != nil {
			return one, nil
		}
	}

	from := filled.CreatedAt.Add(-s.cfg.SiblingWindow)
	to := filled.CreatedAt.Add(s.cfg.SiblingWindow)
	candidates, err := s.orders.FindActiveProtectiveInWindow(ctx, filled.Symbol, filled.SiblingRole(), from, to)
	if err != nil {
		return nil, err
	}
	return exactlyOne(candidates, filled.ExchangeOrderID), nil
}

// cleanupOrphans cancels active protective orders whose parent entry is
// closed or unknown and whose symbol carries no open position.
func (s *Service) cleanupOrphans(ctx context.Context, state *cycleState) {
	active, err := s.orders.FindActive(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Reconcile: orphan scan failed")
		return
	}

	checkedPositions := make(map[string]bool) // symbol -> has position

	for _, order := range active {
		if !order.IsProtective() || order.ParentOrderID == nil {
			continue
		}
		parent, err := s.orders.FindByExchangeOrderID(ctx, *order.ParentOrderID)
		if err != nil {
			s.logger.Error(ctx, err, "Reconcile: parent lookup failed", map[string]interface{}{"parentOrderID": *order.ParentOrderID})
			continue
		}
		if parent != nil && !parent.Status.IsTerminal() {
			continue
		}
		if parent != nil && parent.Status == domain.OrderStatusFilled {
			// A filled parent with a live position is the normal protected
			// state; only a missing position makes the leg an orphan.
			hasPos, ok := checkedPositions[order.Symbol]
			if !ok {
				hasPos = s.hasOpenPosition(ctx, order.Symbol)
				checkedPositions[order.Symbol] = hasPos
			}
			if hasPos {
				continue
			}
		}
		if s.cancelOrder(ctx, state, order, "") {
			state.note(fmt.Sprintf("orphaned %s order %d cancelled for %s (parent entry closed, no position)",
				order.OrderRole, order.ExchangeOrderID, order.Symbol))
		}
	}
}

func (s *Service) hasOpenPosition(ctx context.Context, symbol string) bool {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	pos, err := s.exchange.GetPositionRisk(callCtx, symbol)
	cancel()
	if err != nil {
		// Inconclusive read: assume a position exists rather than cancel
		// protection on bad data.
		s.logger.Warn(ctx, "Reconcile: position query failed, assuming position exists", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return true
	}
	return pos != nil && pos.PositionAmt != 0
}

// cancelOrder cancels an order on the exchange and marks it locally.
// Returns true when a cancellation actually happened; an already-gone order
// is marked locally and noted as informational.
func (s *Service) cancelOrder(ctx context.Context, state *cycleState, order *domain.ExchangeOrder, cause string) bool {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	_, err := s.exchange.CancelOrder(callCtx, order.Symbol, order.ExchangeOrderID)
	cancel()
	if err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		s.logger.Error(ctx, err, "Reconcile: cancel failed", map[string]interface{}{"exchangeOrderID": order.ExchangeOrderID})
		return false
	}
	alreadyGone := errors.Is(err, ports.ErrOrderNotFound)

	if uerr := s.orders.UpdateStatus(ctx, order.ExchangeOrderID, domain.OrderStatusCancelled, s.now().UTC()); uerr != nil {
		s.logger.Error(ctx, uerr, "Reconcile: local cancel mark failed", map[string]interface{}{"exchangeOrderID": order.ExchangeOrderID})
	}
	order.Status = domain.OrderStatusCancelled

	if alreadyGone {
		state.note(fmt.Sprintf("%s order %d for %s was already cancelled on the exchange",
			order.OrderRole, order.ExchangeOrderID, order.Symbol))
		return false
	}
	if cause != "" {
		state.note(fmt.Sprintf("%s order %d for %s cancelled: %s",
			order.OrderRole, order.ExchangeOrderID, order.Symbol, cause))
	}
	return true
}

// realizedPL estimates the profit realized by a filled protective order
// against its parent entry fill. Zero when the parent is unknown.
func (s *Service) realizedPL(ctx context.Context, filled *domain.ExchangeOrder) float64 {
	if filled.ParentOrderID == nil {
		return 0
	}
	parent, err := s.orders.FindByExchangeOrderID(ctx, *filled.ParentOrderID)
	if err != nil || parent == nil || parent.Price <= 0 {
		return 0
	}
	// filled.Side is the exit side; a SELL exit realizes against a long entry.
	if filled.Side == domain.Sell {
		return (filled.Price - parent.Price) * filled.Quantity
	}
	return (parent.Price - filled.Price) * filled.Quantity
}

func symbolsOf(orders []*domain.ExchangeOrder) []string {
	seen := make(map[string]struct{}, len(orders))
	symbols := make([]string, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.Symbol]; !ok {
			seen[o.Symbol] = struct{}{}
			symbols = append(symbols, o.Symbol)
		}
	}
	return symbols
}

// exactlyOne returns the single active candidate that is not the filled
// order itself, or nil when there are zero or several.
func exactlyOne(candidates []*domain.ExchangeOrder, excludeID int64) *domain.ExchangeOrder {
	var match *domain.ExchangeOrder
	for _, c := range candidates {
		if c.ExchangeOrderID == excludeID || !c.Status.IsActive() {
			continue
		}
		if match != nil {
			return nil
		}
		match = c
	}
	return match
}
