package ports

import "context"

// Logger is the structured logging interface used across the engine.
// Implementations decide formatting; callers pass optional field maps.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs a message with an associated error.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
