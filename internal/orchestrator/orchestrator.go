package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/guardrail"
	"cryptoOrderEngine/internal/leverage"
	"cryptoOrderEngine/internal/ports"
)

// Config holds orchestrator parameters.
type Config struct {
	QuoteAsset       string        // balance asset for the spot fallback, e.g. "USDT"
	OrderCooldown    time.Duration // minimum gap between SUBMITTED intents per symbol+side
	ExchangeTimeout  time.Duration // bound on every individual exchange call
	StopLossPct      float64       // protective stop distance, e.g. 0.01
	TakeProfitPct    float64       // protective take-profit distance, e.g. 0.02
	QuantityDecimals int           // precision for base-asset quantities
	PriceDecimals    int           // precision for prices
}

// Orchestrator turns a Signal into at most one exchange order. The
// idempotency_key uniqueness constraint in the intent store is the only
// serialization point; Execute is safe under concurrent invocation of the
// same signal across goroutines and processes.
type Orchestrator struct {
	cfg      Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	intents  ports.OrderIntentRepository
	orders   ports.ExchangeOrderRepository
	guard    *guardrail.Evaluator
	leverage *leverage.Cache
	alerts   ports.AlertNotifier
	now      func() time.Time
}

// New creates an orchestrator.
func New(cfg Config, logger ports.Logger, exchange ports.ExchangeClient,
	intents ports.OrderIntentRepository, orders ports.ExchangeOrderRepository,
	guard *guardrail.Evaluator, lev *leverage.Cache, alerts ports.AlertNotifier) (*Orchestrator, error) {

	if logger == nil || exchange == nil || intents == nil || orders == nil || guard == nil || lev == nil || alerts == nil {
		return nil, fmt.Errorf("missing required dependencies for orchestrator")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.OrderCooldown <= 0 {
		cfg.OrderCooldown = 5 * time.Minute
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 5 * time.Second
	}
	if cfg.QuantityDecimals <= 0 {
		cfg.QuantityDecimals = 3
	}
	if cfg.PriceDecimals <= 0 {
		cfg.PriceDecimals = 2
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		intents:  intents,
		orders:   orders,
		guard:    guard,
		leverage: lev,
		alerts:   alerts,
		now:      time.Now,
	}, nil
}

// Execute attempts exactly-once order placement for a signal. Every path
// resolves the intent to SUBMITTED, DEDUP_SKIPPED or FAILED; a PENDING
// intent never survives Execute.
func (o *Orchestrator) Execute(ctx context.Context, sig domain.Signal) (*domain.OrderResult, error) {
	op := "Execute"
	key := sig.Key()

	intent := &domain.OrderIntent{
		IdempotencyKey:     key,
		Status:             domain.IntentPending,
		Symbol:             sig.Symbol,
		Side:               sig.Side,
		RequestedUSDAmount: sig.SuggestedUSDAmount,
		CreatedAt:          o.now().UTC(),
	}

	// Atomic check-and-insert: the UNIQUE constraint decides who wins a race
	// on the same signal. The loser sees ErrDuplicateEntry and skips with no
	// side effects.
	id, err := o.intents.Create(ctx, intent)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			o.logger.Info(ctx, op+": duplicate signal skipped", map[string]interface{}{"key": key, "symbol": sig.Symbol, "side": sig.Side})
			o.alerts.EmitDecisionTrace(ctx, ports.TraceOrderDeduped, sig.Symbol, sig.Side, domain.DenyNone, map[string]interface{}{
				"signalID": sig.SignalID, "key": key,
			})
			return &domain.OrderResult{Status: domain.IntentDedupSkipped}, nil
		}
		return nil, fmt.Errorf("%s: create intent: %w", op, err)
	}
	intent.ID = id

	result, err := o.execute(ctx, sig, intent)
	if err != nil {
		// Failed attempts still terminate the intent; a PENDING row left
		// behind would block nothing but would misreport state forever.
		if rerr := o.intents.Resolve(ctx, key, domain.IntentFailed); rerr != nil {
			o.logger.Error(ctx, rerr, op+": failed to mark intent FAILED", map[string]interface{}{"key": key})
		}
		return &domain.OrderResult{Status: domain.IntentFailed, Intent: intent}, err
	}
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, sig domain.Signal, intent *domain.OrderIntent) (*domain.OrderResult, error) {
	op := "Execute"
	key := intent.IdempotencyKey

	// Per symbol+side cooldown, independent of the idempotency key. Rapidly
	// repeating signals with fresh IDs must not produce order storms.
	last, err := o.intents.LastSubmittedAt(ctx, sig.Symbol, sig.Side)
	if err != nil {
		return nil, fmt.Errorf("%s: cooldown lookup: %w", op, err)
	}
	if !last.IsZero() && o.now().Sub(last) < o.cfg.OrderCooldown {
		return o.failDenied(ctx, sig, key, domain.DenyCooldown,
			fmt.Sprintf("last %s %s order %s ago (cooldown %s)", sig.Symbol, sig.Side, o.now().Sub(last).Round(time.Second), o.cfg.OrderCooldown))
	}

	decision, err := o.guard.CanPlaceOrder(ctx, sig.Symbol, sig.Side, sig.SuggestedUSDAmount)
	if err != nil {
		return nil, fmt.Errorf("%s: guardrail evaluation: %w", op, err)
	}
	if !decision.Allowed {
		return o.failDenied(ctx, sig, key, decision.Reason, decision.Detail)
	}

	price, err := o.tickerPrice(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: ticker price for %s: %w", op, sig.Symbol, err)
	}
	quantity := sig.SuggestedUSDAmount / price
	quantityStr := formatDecimal(quantity, o.cfg.QuantityDecimals)

	entry, attempted, spot, placeErr := o.placeEntry(ctx, sig, quantityStr, price)
	if placeErr != nil {
		o.alerts.EmitNotification(ctx, fmt.Sprintf(
			"order placement failed for %s %s: requested %.2f USD, attempted leverages %v, final error: %v",
			sig.Symbol, sig.Side, sig.SuggestedUSDAmount, attempted, placeErr), ports.SeverityCritical)
		o.alerts.EmitDecisionTrace(ctx, ports.TraceOrderFailed, sig.Symbol, sig.Side, domain.DenyNone, map[string]interface{}{
			"signalID": sig.SignalID, "requestedUSD": sig.SuggestedUSDAmount,
			"attemptedLeverages": attempted, "error": placeErr.Error(),
		})
		return nil, fmt.Errorf("%s: placement: %w", op, placeErr)
	}

	if err := o.intents.Resolve(ctx, key, domain.IntentSubmitted); err != nil {
		// The exchange order exists; the reconciler will keep tracking it
		// even though the intent transition failed.
		o.logger.Error(ctx, err, op+": failed to mark intent SUBMITTED", map[string]interface{}{"key": key, "exchangeOrderID": entry.ExchangeOrderID})
		return nil, fmt.Errorf("%s: resolve intent: %w", op, err)
	}
	intent.Status = domain.IntentSubmitted

	o.alerts.EmitDecisionTrace(ctx, ports.TraceOrderSubmitted, sig.Symbol, sig.Side, domain.DenyNone, map[string]interface{}{
		"signalID": sig.SignalID, "exchangeOrderID": entry.ExchangeOrderID,
		"quantity": entry.Quantity, "price": entry.Price,
		"attemptedLeverages": attempted, "spotFallback": spot,
	})

	return &domain.OrderResult{
		Status:             domain.IntentSubmitted,
		Intent:             intent,
		EntryOrder:         entry,
		AttemptedLeverages: attempted,
		SpotFallback:       spot,
	}, nil
}

// failDenied terminates the intent for a guardrail (or cooldown) denial and
// emits the decision trace. Denials are never retried; the signal's window
// has passed.
func (o *Orchestrator) failDenied(ctx context.Context, sig domain.Signal, key string, reason domain.DenyReason, detail string) (*domain.OrderResult, error) {
	if err := o.intents.Resolve(ctx, key, domain.IntentFailed); err != nil {
		o.logger.Error(ctx, err, "Execute: failed to mark denied intent FAILED", map[string]interface{}{"key": key})
	}
	o.logger.Info(ctx, "Execute: order denied", map[string]interface{}{
		"symbol": sig.Symbol, "side": sig.Side, "reason": reason, "detail": detail,
	})
	o.alerts.EmitDecisionTrace(ctx, ports.TraceOrderDenied, sig.Symbol, sig.Side, reason, map[string]interface{}{
		"signalID": sig.SignalID, "detail": detail,
	})
	return &domain.OrderResult{Status: domain.IntentFailed, Reason: reason}, nil
}

// placeEntry walks the leverage ladder and falls back to spot. It returns
// the persisted entry order, the leverages attempted, and whether the spot
// fallback was used. markPrice is the ticker price read before placement;
// it stands in for the fill price when the exchange acknowledges without
// one.
func (o *Orchestrator) placeEntry(ctx context.Context, sig domain.Signal, quantityStr string, markPrice float64) (*domain.ExchangeOrder, []int, bool, error) {
	op := "placeEntry"
	attempted := make([]int, 0, 4)

	lev, err := o.leverage.NextLeverage(ctx, sig.Symbol)
	if err != nil {
		return nil, attempted, false, err
	}

	for {
		attempted = append(attempted, lev)

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
		err = o.exchange.SetLeverage(callCtx, sig.Symbol, lev)
		cancel()
		if err != nil && !errors.Is(err, ports.ErrInsufficientFunds) {
			// The exchange keeps its current leverage setting on refusal.
			// Proceed with the placement; an actual margin shortfall surfaces
			// as ErrInsufficientFunds below and walks the ladder down.
			o.logger.Warn(ctx, op+": SetLeverage refused, continuing at current leverage", map[string]interface{}{"symbol": sig.Symbol, "leverage": lev, "error": err.Error()})
		}

		callCtx, cancel = context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
		resp, err := o.exchange.PlaceMarginMarketOrder(callCtx, sig.Symbol, sig.Side, quantityStr)
		cancel()
		if err == nil {
			if rerr := o.leverage.RecordOutcome(ctx, sig.Symbol, lev, true); rerr != nil {
				o.logger.Error(ctx, rerr, op+": failed to record leverage success", map[string]interface{}{"symbol": sig.Symbol})
			}
			entry, perr := o.persistEntry(ctx, sig, resp, domain.OrderTypeMarket, markPrice)
			if perr != nil {
				return nil, attempted, false, perr
			}
			o.placeProtectivePair(ctx, sig, entry, quantityStr)
			return entry, attempted, false, nil
		}

		switch {
		case errors.Is(err, ports.ErrInsufficientFunds):
			// Insufficient margin at this rung: remember the failure, step
			// down, and retry synchronously within this placement attempt.
			if rerr := o.leverage.RecordOutcome(ctx, sig.Symbol, lev, false); rerr != nil {
				o.logger.Error(ctx, rerr, op+": failed to record leverage failure", map[string]interface{}{"symbol": sig.Symbol})
			}
			lower, ok := o.leverage.StepDown(lev)
			if !ok {
				o.logger.Warn(ctx, op+": leverage floor exhausted, falling back to spot", map[string]interface{}{
					"symbol": sig.Symbol, "attempted": attempted,
				})
				entry, serr := o.spotFallback(ctx, sig, markPrice)
				if serr != nil {
					return nil, attempted, true, fmt.Errorf("margin exhausted at floor and spot fallback failed: %w", serr)
				}
				return entry, attempted, true, nil
			}
			lev = lower

		case errors.Is(err, ports.ErrAuthenticationFailed), errors.Is(err, ports.ErrIPNotAllowed):
			ip := o.outboundIP(ctx)
			return nil, attempted, false, fmt.Errorf("authentication failure placing %s %s (outbound IP %s, check API whitelist): %w",
				sig.Symbol, sig.Side, ip, err)

		case errors.Is(err, ports.ErrTimeout):
			// A timed-out submit may have landed on the exchange. Never
			// re-submit blindly; fail the attempt and let reconciliation
			// pick up whatever state exists.
			return nil, attempted, false, fmt.Errorf("exchange timeout placing %s %s, not re-submitting: %w", sig.Symbol, sig.Side, err)

		default:
			return nil, attempted, false, err
		}
	}
}

// spotFallback places a plain spot market order funded by the available
// quote balance once every margin rung has failed.
func (o *Orchestrator) spotFallback(ctx context.Context, sig domain.Signal, markPrice float64) (*domain.ExchangeOrder, error) {
	op := "spotFallback"

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
	balance, err := o.exchange.GetAccountBalance(callCtx, o.cfg.QuoteAsset)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%s: balance lookup: %w", op, err)
	}

	spend := sig.SuggestedUSDAmount
	if balance < spend {
		spend = balance
	}
	if spend <= 0 {
		return nil, fmt.Errorf("%s: no %s balance available: %w", op, o.cfg.QuoteAsset, ports.ErrInsufficientFunds)
	}
	spendStr := formatDecimal(spend, o.cfg.PriceDecimals)

	callCtx, cancel = context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
	resp, err := o.exchange.PlaceSpotMarketOrder(callCtx, sig.Symbol, sig.Side, spendStr)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%s: spot order: %w", op, err)
	}

	o.logger.Info(ctx, op+": spot fallback filled", map[string]interface{}{
		"symbol": sig.Symbol, "side": sig.Side, "quoteSpent": spendStr, "orderID": resp.OrderID,
	})
	o.alerts.EmitNotification(ctx, fmt.Sprintf(
		"spot fallback used for %s %s: spent %s %s after margin rungs were exhausted",
		sig.Symbol, sig.Side, spendStr, o.cfg.QuoteAsset), ports.SeverityWarning)

	return o.persistEntry(ctx, sig, resp, domain.OrderTypeMarket, markPrice)
}

func (o *Orchestrator) persistEntry(ctx context.Context, sig domain.Signal, resp *ports.OrderResponse, orderType domain.OrderType, markPrice float64) (*domain.ExchangeOrder, error) {
	entry := &domain.ExchangeOrder{
		ExchangeOrderID:    resp.OrderID,
		Symbol:             sig.Symbol,
		Side:               sig.Side,
		OrderType:          orderType,
		OrderRole:          domain.RoleEntry,
		Status:             domain.StatusFromExchange(resp.Status),
		Price:              fillPrice(resp, markPrice),
		Quantity:           resp.OrigQuantity,
		CreatedAt:          o.now().UTC(),
		ExchangeUpdateTime: resp.UpdateTime,
	}
	if _, err := o.orders.CreateOrder(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist entry order %d: %w", resp.OrderID, err)
	}
	return entry, nil
}

// placeProtectivePair creates the SL/TP one-cancels-the-other pair once the
// entry fill is confirmed. Failure of either leg triggers the emergency
// path: cancel the placed sibling, market-close the exposure, and raise a
// critical alert. Protective failures never fail the already-submitted
// intent.
func (o *Orchestrator) placeProtectivePair(ctx context.Context, sig domain.Signal, entry *domain.ExchangeOrder, quantityStr string) {
	op := "placeProtectivePair"
	if entry.Price <= 0 {
		// Cannot happen while the mark-price fallback holds; if it ever does,
		// the position is live and unprotected, which warrants more than a log
		// line.
		o.logger.Error(ctx, nil, op+": no usable price for protective orders", map[string]interface{}{"orderID": entry.ExchangeOrderID})
		o.alerts.EmitNotification(ctx, fmt.Sprintf(
			"no usable price to anchor SL/TP for %s %s (entry order %d), position is unprotected",
			sig.Symbol, sig.Side, entry.ExchangeOrderID), ports.SeverityCritical)
		return
	}

	exitSide := sig.Side.Opposite()
	slPrice, tpPrice := protectivePrices(sig.Side, entry.Price, o.cfg.StopLossPct, o.cfg.TakeProfitPct)
	slStr := formatDecimal(slPrice, o.cfg.PriceDecimals)
	tpStr := formatDecimal(tpPrice, o.cfg.PriceDecimals)
	ocoGroup := fmt.Sprintf("oco-%d", entry.ExchangeOrderID)

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
	slResp, err := o.exchange.PlaceStopMarketOrder(callCtx, sig.Symbol, exitSide, quantityStr, slStr)
	cancel()
	if err != nil {
		o.logger.Error(ctx, err, op+": stop loss placement failed", map[string]interface{}{"entryOrderID": entry.ExchangeOrderID})
		o.emergencyClose(ctx, sig, quantityStr, "stop loss placement failed")
		return
	}
	o.persistProtective(ctx, sig, entry, slResp, domain.OrderTypeStopLoss, domain.RoleStopLoss, ocoGroup, slPrice)

	callCtx, cancel = context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
	tpResp, err := o.exchange.PlaceTakeProfitMarketOrder(callCtx, sig.Symbol, exitSide, quantityStr, tpStr)
	cancel()
	if err != nil {
		o.logger.Error(ctx, err, op+": take profit placement failed", map[string]interface{}{"entryOrderID": entry.ExchangeOrderID})
		o.cancelOrderWarn(ctx, sig.Symbol, slResp.OrderID, "SL")
		o.emergencyClose(ctx, sig, quantityStr, "take profit placement failed")
		return
	}
	o.persistProtective(ctx, sig, entry, tpResp, domain.OrderTypeTakeProfit, domain.RoleTakeProfit, ocoGroup, tpPrice)
}

func (o *Orchestrator) persistProtective(ctx context.Context, sig domain.Signal, parent *domain.ExchangeOrder,
	resp *ports.OrderResponse, orderType domain.OrderType, role domain.OrderRole, ocoGroup string, price float64) {

	parentID := parent.ExchangeOrderID
	order := &domain.ExchangeOrder{
		ExchangeOrderID:    resp.OrderID,
		Symbol:             sig.Symbol,
		Side:               sig.Side.Opposite(),
		OrderType:          orderType,
		OrderRole:          role,
		ParentOrderID:      &parentID,
		OCOGroupID:         ocoGroup,
		Status:             domain.StatusFromExchange(resp.Status),
		Price:              price,
		Quantity:           resp.OrigQuantity,
		CreatedAt:          o.now().UTC(),
		ExchangeUpdateTime: resp.UpdateTime,
	}
	if _, err := o.orders.CreateOrder(ctx, order); err != nil {
		o.logger.Error(ctx, err, "failed to persist protective order", map[string]interface{}{
			"exchangeOrderID": resp.OrderID, "role": role,
		})
	}
}

// emergencyClose market-closes exposure left unprotected by a failed
// SL/TP placement. Exchange-side safety only; no local rows are touched.
func (o *Orchestrator) emergencyClose(ctx context.Context, sig domain.Signal, quantityStr string, cause string) {
	op := "emergencyClose"
	closeSide := sig.Side.Opposite()
	o.logger.Warn(ctx, op+": closing unprotected exposure", map[string]interface{}{
		"symbol": sig.Symbol, "side": closeSide, "quantity": quantityStr, "cause": cause,
	})

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
	_, err := o.exchange.PlaceMarginMarketOrder(callCtx, sig.Symbol, closeSide, quantityStr)
	cancel()
	if err != nil {
		o.logger.Error(ctx, err, op+": EMERGENCY CLOSE FAILED", map[string]interface{}{"symbol": sig.Symbol})
		o.alerts.EmitNotification(ctx, fmt.Sprintf(
			"EMERGENCY CLOSE FAILED for %s %s after %s, manual intervention required: %v",
			sig.Symbol, sig.Side, cause, err), ports.SeverityCritical)
		return
	}
	o.alerts.EmitNotification(ctx, fmt.Sprintf(
		"emergency close executed for %s %s after %s", sig.Symbol, sig.Side, cause), ports.SeverityCritical)
}

// cancelOrderWarn cancels an order, tolerating orders already gone.
func (o *Orchestrator) cancelOrderWarn(ctx context.Context, symbol string, orderID int64, label string) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
	_, err := o.exchange.CancelOrder(callCtx, symbol, orderID)
	cancel()
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			o.logger.Warn(ctx, "cancelOrderWarn: order already gone", map[string]interface{}{"orderID": orderID, "type": label})
			return
		}
		o.logger.Error(ctx, err, "cancelOrderWarn: cancel failed", map[string]interface{}{"orderID": orderID, "type": label})
	}
}

// tickerPrice reads the last price with a single bounded retry on timeout.
// Reads are safe to retry; placements are not.
func (o *Orchestrator) tickerPrice(ctx context.Context, symbol string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
	price, err := o.exchange.GetTickerPrice(callCtx, symbol)
	cancel()
	if err != nil && errors.Is(err, ports.ErrTimeout) {
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.ExchangeTimeout)
		price, err = o.exchange.GetTickerPrice(callCtx, symbol)
		cancel()
	}
	return price, err
}

func (o *Orchestrator) outboundIP(ctx context.Context) string {
	ip, err := o.exchange.OutboundIP(ctx)
	if err != nil {
		return "unknown"
	}
	return ip
}

// protectivePrices computes the SL/TP trigger prices around the entry fill.
func protectivePrices(entrySide domain.OrderSide, fill, slPct, tpPct float64) (sl, tp float64) {
	if entrySide == domain.Buy {
		return fill * (1 - slPct), fill * (1 + tpPct)
	}
	return fill * (1 + slPct), fill * (1 - tpPct)
}

// fillPrice extracts a usable price from a placement response. Market orders
// acknowledged without a fill report both avgPrice and price as zero; the
// mark price read before placement stands in so protective orders can still
// be anchored.
func fillPrice(resp *ports.OrderResponse, markPrice float64) float64 {
	if resp.AvgPrice > 0 {
		return resp.AvgPrice
	}
	if resp.Price > 0 {
		return resp.Price
	}
	return markPrice
}

func formatDecimal(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
