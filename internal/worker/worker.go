package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolStopped is returned when work is submitted to a pool that is not running
var ErrPoolStopped = errors.New("worker pool stopped")

// Job is a unit of CPU-bound work executed by a pool goroutine
type Job func() error

type request struct {
	job    Job
	result chan error
}

// Pool runs jobs on a fixed number of goroutines.
// It bounds how much CPU-heavy work (password hashing) runs at once
// so request goroutines block instead of oversubscribing the host.
type Pool struct {
	logger *slog.Logger

	// Configuration
	concurrency int
	queueSize   int

	// Internal state
	mu       sync.RWMutex
	running  bool
	requests chan request
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// PoolConfig holds configuration for the pool.
type PoolConfig struct {
	Logger      *slog.Logger
	Concurrency int // Number of concurrent job processors
	QueueSize   int // Pending jobs buffered before Do blocks
}

// NewPool creates a new worker pool.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	return &Pool{
		logger:      logger,
		concurrency: concurrency,
		queueSize:   queueSize,
	}
}

// Start launches the pool goroutines.
// They run until Stop is called or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	requests := make(chan request, p.queueSize)
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	p.requests, p.stopCh, p.doneCh = requests, stopCh, doneCh
	p.mu.Unlock()

	p.logger.Info("worker pool starting",
		"concurrency", p.concurrency,
		"queue_size", p.queueSize,
	)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.processLoop(ctx, workerID, requests, stopCh)
		}(i)
	}

	go func() {
		wg.Wait()
		// Workers also exit when ctx ends; stop accepting work then too.
		p.mu.Lock()
		if p.doneCh == doneCh {
			p.running = false
		}
		p.mu.Unlock()
		close(doneCh)
	}()

	return nil
}

// Stop signals the goroutines to exit and waits for in-flight jobs.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
	p.logger.Info("worker pool stopped")
}

// Running reports whether the pool accepts work
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Do submits job and waits for its result.
// It returns ctx.Err() if ctx ends first; the job may still run to completion.
func (p *Pool) Do(ctx context.Context, job Job) error {
	p.mu.RLock()
	if !p.running {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	requests, stopCh, doneCh := p.requests, p.stopCh, p.doneCh
	p.mu.RUnlock()

	req := request{job: job, result: make(chan error, 1)}

	select {
	case requests <- req:
	case <-stopCh:
		return ErrPoolStopped
	case <-doneCh:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-doneCh:
		// Queued but never picked up before shutdown
		select {
		case err := <-req.result:
			return err
		default:
			return ErrPoolStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processLoop is the main loop for a pool goroutine.
func (p *Pool) processLoop(ctx context.Context, workerID int, requests <-chan request, stopCh <-chan struct{}) {
	logger := p.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker context cancelled")
			return
		case <-stopCh:
			logger.Debug("worker stop signal received")
			return
		case req := <-requests:
			req.result <- p.run(req.job, logger)
		}
	}
}

// run executes a job, converting a panic into an error.
func (p *Pool) run(job Job, logger *slog.Logger) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
		if d := time.Since(start); d > time.Second {
			logger.Warn("slow job", "duration", d)
		}
	}()
	return job()
}

// Health reports pool state.
type Health struct {
	Running     bool `json:"running"`
	Concurrency int  `json:"concurrency"`
	Queued      int  `json:"queued"`
}

// Health returns the health status of the pool.
func (p *Pool) Health() Health {
	p.mu.RLock()
	defer p.mu.RUnlock()

	health := Health{
		Running:     p.running,
		Concurrency: p.concurrency,
	}
	if p.requests != nil {
		health.Queued = len(p.requests)
	}
	return health
}

// Ping reports ErrPoolStopped once the pool no longer accepts work
func (p *Pool) Ping(ctx context.Context) error {
	if !p.Health().Running {
		return ErrPoolStopped
	}
	return nil
}
