package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/queue"
)

// QueueTickWorkerConfig contains configuration for the queue tick worker
type QueueTickWorkerConfig struct {
	// TickInterval is the time between promotion cycles
	TickInterval time.Duration
}

// DefaultQueueTickWorkerConfig returns default configuration
func DefaultQueueTickWorkerConfig() *QueueTickWorkerConfig {
	return &QueueTickWorkerConfig{
		TickInterval: time.Second,
	}
}

// QueueTickWorker drives queue promotion: every interval it runs one tick
// across all events with queue activity, expiring lapsed processing windows
// and promoting the next batch.
type QueueTickWorker struct {
	controller *queue.Controller
	config     *QueueTickWorkerConfig
	log        *logger.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueueTickWorker creates a new queue tick worker
func NewQueueTickWorker(controller *queue.Controller, config *QueueTickWorkerConfig) *QueueTickWorker {
	if config == nil {
		config = DefaultQueueTickWorkerConfig()
	}
	return &QueueTickWorker{
		controller: controller,
		config:     config,
		log:        logger.Get(),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *QueueTickWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("queue tick worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting queue tick worker",
		zap.Duration("interval", w.config.TickInterval))

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop stops the worker and waits for the current tick to finish
func (w *QueueTickWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Queue tick worker stopped")
}

func (w *QueueTickWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.controller.TickAll(ctx); err != nil {
				w.log.Error("queue tick cycle failed", zap.Error(err))
			}
		}
	}
}
