// internal/dispatch/scheduler.go
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"donor-dispatch/internal/common/config"
	"donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/common/metrics"
	"donor-dispatch/internal/common/observability"
	"donor-dispatch/internal/models"
)

// Dispatcher runs one dispatch to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *models.BloodRequest) Result
}

// ResultHandler observes finished dispatches. It runs on a scheduler worker.
type ResultHandler func(Result)

type Option func(*Scheduler)

func WithGuard(g Guard) Option {
	return func(s *Scheduler) { s.guard = g }
}

func WithResultHandler(h ResultHandler) Option {
	return func(s *Scheduler) { s.onResult = h }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Scheduler) { s.obs = o }
}

// Scheduler runs dispatches on a fixed pool of goroutines fed by a bounded queue.
// Schedule only enqueues; outcomes are delivered to the ResultHandler.
type Scheduler struct {
	engine   Dispatcher
	guard    Guard
	onResult ResultHandler
	obs      *observability.Observability
	logger   logger.Logger

	workers int
	timeout time.Duration
	queue   chan *models.BloodRequest

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewScheduler(engine Dispatcher, cfg config.DispatchConfig, log logger.Logger, opts ...Option) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	s := &Scheduler{
		engine:  engine,
		logger:  log,
		workers: workers,
		timeout: config.GetDuration(cfg.Timeout),
		queue:   make(chan *models.BloodRequest, size),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker goroutines. Dispatches run under ctx, not under
// the context passed to Schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.run(ctx, i)
	}
	s.logger.Info("Dispatch scheduler started", map[string]interface{}{
		"workers":   s.workers,
		"queueSize": cap(s.queue),
	})
}

// Schedule admits the request through the guard and enqueues it.
// A full queue fails fast with QueueFull and releases the guard.
func (s *Scheduler) Schedule(ctx context.Context, req *models.BloodRequest) error {
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, req.ID)
		switch {
		case err != nil:
			// an unreachable guard must not block dispatch
			s.logger.Warn("Dispatch guard unavailable, scheduling without it", map[string]interface{}{
				"requestId": req.ID,
				"error":     err,
			})
		case !ok:
			return errors.NewAlreadyScheduledError(req.ID)
		}
	}

	snapshot := *req

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.release(ctx, req.ID)
		return fmt.Errorf("dispatch scheduler stopped")
	}

	select {
	case s.queue <- &snapshot:
		metrics.DispatchQueueDepth.Set(float64(len(s.queue)))
		return nil
	default:
		s.release(ctx, req.ID)
		return errors.NewQueueFullError(cap(s.queue))
	}
}

// Stop closes the queue and waits for queued dispatches to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, id int) {
	defer s.wg.Done()
	for req := range s.queue {
		metrics.DispatchQueueDepth.Set(float64(len(s.queue)))
		s.execute(ctx, req, id)
	}
}

func (s *Scheduler) execute(ctx context.Context, req *models.BloodRequest, workerID int) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result := s.safeDispatch(runCtx, req)

	status := "success"
	if result.Err != nil {
		status = "failed"
		// nothing was written, so the request may be dispatched again
		if result.NotificationsCreated == 0 {
			s.release(ctx, req.ID)
		}
		s.logger.Error("Dispatch failed", map[string]interface{}{
			"requestId": req.ID,
			"worker":    workerID,
			"created":   result.NotificationsCreated,
			"attempted": result.Attempted,
			"error":     result.Err,
		})
	}
	s.obs.RecordDispatch(ctx, result.NotificationsCreated, result.Duration, status)

	if s.onResult != nil {
		s.onResult(result)
	}
}

func (s *Scheduler) safeDispatch(ctx context.Context, req *models.BloodRequest) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{RequestID: req.ID, Err: fmt.Errorf("dispatch panic: %v", r)}
		}
	}()
	return s.engine.Dispatch(ctx, req)
}

func (s *Scheduler) release(ctx context.Context, requestID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, requestID); err != nil {
		s.logger.Warn("Failed to release dispatch guard", map[string]interface{}{
			"requestId": requestID,
			"error":     err,
		})
	}
}
