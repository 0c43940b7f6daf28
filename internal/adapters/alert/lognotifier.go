package alert

import (
	"context"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"
)

// LogNotifier is an AlertNotifier that writes traces and notifications to
// the structured logger. It stands in for the Telegram collaborator when no
// bot token is configured, and doubles as the local audit trail.
type LogNotifier struct {
	logger ports.Logger
}

func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) EmitDecisionTrace(ctx context.Context, kind string, symbol string, side domain.OrderSide, reason domain.DenyReason, fields map[string]interface{}) {
	traceFields := map[string]interface{}{
		"trace":  kind,
		"symbol": symbol,
		"side":   side,
	}
	if reason != domain.DenyNone {
		traceFields["reason"] = reason
	}
	for k, v := range fields {
		traceFields[k] = v
	}
	n.logger.Info(ctx, "decision trace", traceFields)
}

func (n *LogNotifier) EmitNotification(ctx context.Context, text string, severity ports.AlertSeverity) {
	fields := map[string]interface{}{"severity": severity}
	switch severity {
	case ports.SeverityCritical:
		n.logger.Error(ctx, nil, text, fields)
	case ports.SeverityWarning:
		n.logger.Warn(ctx, text, fields)
	default:
		n.logger.Info(ctx, text, fields)
	}
}
