package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"cryptoOrderEngine/config"
	"cryptoOrderEngine/internal/orchestrator"
	"cryptoOrderEngine/internal/ports"
	"cryptoOrderEngine/internal/reconciler"
)

// EngineService wires the signal feed, orchestrator and reconciler into one
// long-running process. Signals are dispatched sequentially in arrival
// order; the reconciler runs on its own timer alongside.
type EngineService struct {
	cfg        *config.Config
	logger     ports.Logger
	exchange   ports.ExchangeClient
	signals    ports.SignalSource
	orch       *orchestrator.Orchestrator
	reconciler *reconciler.Service
}

// NewEngineService creates a new application service instance.
func NewEngineService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	signals ports.SignalSource,
	orch *orchestrator.Orchestrator,
	rec *reconciler.Service,
) (*EngineService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || signals == nil || orch == nil || rec == nil {
		return nil, fmt.Errorf("missing required dependencies for EngineService")
	}

	return &EngineService{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		signals:    signals,
		orch:       orch,
		reconciler: rec,
	}, nil
}

// Start begins the engine's main loop. It blocks until the context is
// cancelled, a shutdown signal arrives, or the signal feed closes.
func (s *EngineService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Order Engine...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Set server time (important for signed API calls)
	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	// 2. Verify connectivity before accepting signals
	if err := s.exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Exchange ping failed")
		return fmt.Errorf("exchange unreachable: %w", err)
	}

	// --- Background Reconciler ---
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.reconciler.Run(ctx)
	}()

	// --- Main Dispatch Loop ---
	// Signals are handled one at a time. The orchestrator is safe under
	// concurrent Execute, but sequential dispatch keeps ordering predictable
	// and the exchange rate limits comfortable.
	err := s.dispatchLoop(ctx)

	cancel()
	wg.Wait()
	s.logger.Info(context.Background(), "Order Engine stopped.")
	return err
}

func (s *EngineService) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			return nil
		case sig, ok := <-s.signals.Signals():
			if !ok {
				s.logger.Info(ctx, "Signal feed closed, initiating shutdown...")
				return nil
			}
			result, err := s.orch.Execute(ctx, sig)
			if err != nil {
				// Execute already resolved the intent and emitted traces;
				// the loop just logs and moves to the next signal.
				s.logger.Error(ctx, err, "Signal execution failed", map[string]interface{}{
					"symbol": sig.Symbol, "side": sig.Side, "signalID": sig.SignalID,
				})
				continue
			}
			s.logger.Info(ctx, "Signal handled", map[string]interface{}{
				"symbol": sig.Symbol, "side": sig.Side, "signalID": sig.SignalID, "status": result.Status,
			})
		}
	}
}
