package guardrail

import (
	"context"
	"fmt"
	"time"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"
)

// Limits holds the configurable risk ceilings the evaluator enforces.
type Limits struct {
	MaxOpenOrders    int           // total active orders across all symbols
	MaxOrdersPerDay  int           // SUBMITTED intents per symbol per day
	MaxOrderUSD      float64       // per-order notional ceiling
	MinOrderSpacing  time.Duration // minimum gap since the symbol's last order
	ExposureCeiling  int           // active exit orders per side per symbol
}

// Decision is the outcome of a guardrail evaluation. Denials always carry a
// reason code; Detail is free-form context for the decision trace.
type Decision struct {
	Allowed bool
	Reason  domain.DenyReason
	Detail  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason domain.DenyReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Evaluator decides whether an order may be placed. It performs only reads:
// settings are fetched fresh on every call and counts are computed at
// evaluation time, so the kill switch and live toggle take effect
// immediately across every orchestrator instance.
type Evaluator struct {
	limits   Limits
	settings ports.SettingsStore
	orders   ports.ExchangeOrderRepository
	intents  ports.OrderIntentRepository
	logger   ports.Logger
	now      func() time.Time
}

// New creates a guardrail evaluator.
func New(limits Limits, settings ports.SettingsStore, orders ports.ExchangeOrderRepository, intents ports.OrderIntentRepository, logger ports.Logger) (*Evaluator, error) {
	if settings == nil || orders == nil || intents == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for guardrail evaluator")
	}
	if limits.ExposureCeiling <= 0 {
		limits.ExposureCeiling = 3
	}
	return &Evaluator{
		limits:   limits,
		settings: settings,
		orders:   orders,
		intents:  intents,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// CanPlaceOrder runs the checks in fixed order, short-circuiting on the
// first failure:
//  1. live trading toggle
//  2. kill switch
//  3. per-symbol trade-enabled flag
//  4. static trading-disabled override (nothing can override it back on)
//  5. symbol allow-list (empty list imposes no restriction)
//  6. risk ceilings: total open orders, per-symbol daily count, per-order
//     USD amount, minimum spacing since the symbol's last order
//  7. per-side exposure ceiling on active exit orders; BUY only ever counts
//     TAKE_PROFIT orders and SELL only ever counts STOP_LOSS orders
func (e *Evaluator) CanPlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, requestedUSD float64) (Decision, error) {
	live, err := e.settings.IsLiveTradingEnabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("guardrail: read live toggle: %w", err)
	}
	if !live {
		return deny(domain.DenyLiveOff, "live trading is disabled"), nil
	}

	killed, err := e.settings.IsKillSwitchEnabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("guardrail: read kill switch: %w", err)
	}
	if killed {
		return deny(domain.DenyKillSwitch, "kill switch is engaged"), nil
	}

	enabled, err := e.settings.IsSymbolTradeEnabled(ctx, symbol)
	if err != nil {
		return Decision{}, fmt.Errorf("guardrail: read symbol flag for %s: %w", symbol, err)
	}
	if !enabled {
		return deny(domain.DenySymbolDisabled, fmt.Sprintf("trading disabled for %s", symbol)), nil
	}

	disabled, err := e.settings.IsTradingDisabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("guardrail: read trading-disabled override: %w", err)
	}
	if disabled {
		return deny(domain.DenyTradingDisabled, "static trading-disabled override is set"), nil
	}

	allowList, err := e.settings.SymbolAllowList(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("guardrail: read allow-list: %w", err)
	}
	if len(allowList) > 0 && !contains(allowList, symbol) {
		return deny(domain.DenyNotAllowlisted, fmt.Sprintf("%s is not on the allow-list", symbol)), nil
	}

	if d, err := e.checkRiskLimits(ctx, symbol, requestedUSD); err != nil || !d.Allowed {
		return d, err
	}

	// Exposure count, independent per side. A BUY competes only with active
	// take-profits, a SELL only with active stop-losses.
	exitRole := domain.ExitRoleFor(side)
	count, err := e.orders.CountActiveByRole(ctx, symbol, exitRole)
	if err != nil {
		return Decision{}, fmt.Errorf("guardrail: count active %s orders for %s: %w", exitRole, symbol, err)
	}
	if count >= e.limits.ExposureCeiling {
		return deny(domain.DenyExposureLimit,
			fmt.Sprintf("%d active %s orders for %s (ceiling %d)", count, exitRole, symbol, e.limits.ExposureCeiling)), nil
	}

	return allow(), nil
}

func (e *Evaluator) checkRiskLimits(ctx context.Context, symbol string, requestedUSD float64) (Decision, error) {
	if e.limits.MaxOpenOrders > 0 {
		open, err := e.orders.CountActive(ctx)
		if err != nil {
			return Decision{}, fmt.Errorf("guardrail: count open orders: %w", err)
		}
		if open >= e.limits.MaxOpenOrders {
			return deny(domain.DenyMaxOpenOrders, fmt.Sprintf("%d open orders (ceiling %d)", open, e.limits.MaxOpenOrders)), nil
		}
	}

	if e.limits.MaxOrdersPerDay > 0 {
		today, err := e.intents.CountSubmittedTodayBySymbol(ctx, symbol)
		if err != nil {
			return Decision{}, fmt.Errorf("guardrail: count today's orders for %s: %w", symbol, err)
		}
		if today >= e.limits.MaxOrdersPerDay {
			return deny(domain.DenyDailyLimit, fmt.Sprintf("%d orders for %s today (ceiling %d)", today, symbol, e.limits.MaxOrdersPerDay)), nil
		}
	}

	if e.limits.MaxOrderUSD > 0 && requestedUSD > e.limits.MaxOrderUSD {
		return deny(domain.DenyAmountLimit, fmt.Sprintf("requested %.2f USD exceeds per-order ceiling %.2f", requestedUSD, e.limits.MaxOrderUSD)), nil
	}

	if e.limits.MinOrderSpacing > 0 {
		last, err := e.intents.LastSubmittedAt(ctx, symbol, "")
		if err != nil {
			return Decision{}, fmt.Errorf("guardrail: last order time for %s: %w", symbol, err)
		}
		if !last.IsZero() {
			elapsed := e.now().Sub(last)
			if elapsed < e.limits.MinOrderSpacing {
				return deny(domain.DenyOrderSpacing,
					fmt.Sprintf("only %s since last %s order (minimum %s)", elapsed.Round(time.Second), symbol, e.limits.MinOrderSpacing)), nil
			}
		}
	}

	return allow(), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
