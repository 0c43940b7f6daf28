package ports

import (
	"context"

	"cryptoOrderEngine/internal/domain"
)

// AlertSeverity classifies notifications for the alert collaborator.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Decision trace kinds emitted by the engine.
const (
	TraceOrderDenied    = "order_denied"
	TraceOrderDeduped   = "order_deduped"
	TraceOrderSubmitted = "order_submitted"
	TraceOrderFailed    = "order_failed"
)

// AlertNotifier is the engine's outbound seam to the Telegram/alerting
// subsystem. The engine only ships structured fields and short text;
// user-facing formatting is the collaborator's responsibility.
type AlertNotifier interface {
	// EmitDecisionTrace records why an order was or was not placed.
	EmitDecisionTrace(ctx context.Context, kind string, symbol string, side domain.OrderSide, reason domain.DenyReason, fields map[string]interface{})
	// EmitNotification ships a user-visible alert at the given severity.
	EmitNotification(ctx context.Context, text string, severity AlertSeverity)
}
