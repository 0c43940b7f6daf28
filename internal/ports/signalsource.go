package ports

import "cryptoOrderEngine/internal/domain"

// SignalSource is the inbound seam from the external signal generator.
// The engine consumes signals; it never produces them.
type SignalSource interface {
	// Signals returns the channel new signals arrive on. The channel is
	// closed when the source shuts down.
	Signals() <-chan domain.Signal
}
