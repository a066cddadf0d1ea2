package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/cart"
	"github.com/seatwise/seatwise/internal/ledger"
	"github.com/seatwise/seatwise/internal/logger"
)

// LockSweepWorkerConfig contains configuration for the lock sweep worker
type LockSweepWorkerConfig struct {
	// SweepInterval is the time between sweep passes
	SweepInterval time.Duration
	// BatchSize caps the rows reclaimed per pass
	BatchSize int
}

// DefaultLockSweepWorkerConfig returns default configuration
func DefaultLockSweepWorkerConfig() *LockSweepWorkerConfig {
	return &LockSweepWorkerConfig{
		SweepInterval: 5 * time.Second,
		BatchSize:     200,
	}
}

// LockSweepWorker reclaims lapsed seat locks and expired carts. Correctness
// never depends on it: readers apply lazy expiry on access. The sweep keeps
// rows and metrics tidy for everything that looks at storage directly.
type LockSweepWorker struct {
	ledger  *ledger.Service
	carts   *cart.Manager
	config  *LockSweepWorkerConfig
	log     *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewLockSweepWorker creates a new lock sweep worker
func NewLockSweepWorker(ledgerSvc *ledger.Service, carts *cart.Manager, config *LockSweepWorkerConfig) *LockSweepWorker {
	if config == nil {
		config = DefaultLockSweepWorkerConfig()
	}
	return &LockSweepWorker{
		ledger: ledgerSvc,
		carts:  carts,
		config: config,
		log:    logger.Get(),
		stopCh: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *LockSweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("lock sweep worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting lock sweep worker",
		zap.Duration("interval", w.config.SweepInterval),
		zap.Int("batch_size", w.config.BatchSize))

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop stops the worker and waits for the current pass to finish
func (w *LockSweepWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Lock sweep worker stopped")
}

func (w *LockSweepWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *LockSweepWorker) sweep(ctx context.Context) {
	carts, err := w.carts.SweepExpired(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("cart sweep failed", zap.Error(err))
	}

	seats, err := w.ledger.SweepExpired(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("seat lock sweep failed", zap.Error(err))
	}

	if carts > 0 || seats > 0 {
		w.log.Info("sweep pass complete",
			zap.Int("carts_expired", carts),
			zap.Int("locks_released", seats))
	}
}
