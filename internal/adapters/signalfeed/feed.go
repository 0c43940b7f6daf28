package signalfeed

import (
	"context"
	"sync"

	"cryptoOrderEngine/internal/domain"
	"cryptoOrderEngine/internal/ports"
)

const defaultBuffer = 64

// Feed is a buffered in-process SignalSource. The signal generator pushes
// into it; the engine's dispatch loop consumes from Signals(). Pushing never
// blocks the producer: when the engine falls behind, the newest signal is
// dropped and reported, since a stale trade signal is worse than no signal.
type Feed struct {
	ch     chan domain.Signal
	logger ports.Logger

	mu     sync.Mutex
	closed bool
}

func New(buffer int, logger ports.Logger) *Feed {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Feed{
		ch:     make(chan domain.Signal, buffer),
		logger: logger,
	}
}

// Signals returns the channel signals arrive on. Closed after Close.
func (f *Feed) Signals() <-chan domain.Signal {
	return f.ch
}

// Push offers a signal to the feed. Returns false if the signal was dropped
// because the buffer is full or the feed is closed.
func (f *Feed) Push(ctx context.Context, sig domain.Signal) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.logger.Warn(ctx, "signal dropped: feed closed", map[string]interface{}{"symbol": sig.Symbol, "signalID": sig.SignalID})
		return false
	}
	select {
	case f.ch <- sig:
		return true
	default:
		f.logger.Warn(ctx, "signal dropped: feed buffer full", map[string]interface{}{"symbol": sig.Symbol, "signalID": sig.SignalID})
		return false
	}
}

// Close shuts the feed down. The Signals channel is closed once all pushed
// signals have been handed to the consumer. Safe to call more than once.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
