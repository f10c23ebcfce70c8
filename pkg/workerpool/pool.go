// Package workerpool provides a bounded pool for detached background work,
// used to keep best-effort calls off the request path.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background work. The task name appears in logs only.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// TaskTimeout bounds the execution of a single task
	TaskTimeout time.Duration
	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for best-effort notification dispatch.
func DefaultConfig() Config {
	return Config{
		Workers:                 4,
		QueueSize:               256,
		TaskTimeout:             5 * time.Second,
		GracefulShutdownTimeout: 10 * time.Second,
	}
}

// ErrQueueFull is returned when the task queue is at capacity. Callers that
// dispatch best-effort work treat this as a dropped task, not a failure.
var ErrQueueFull = errors.New("task queue is full")

// Pool runs submitted tasks on a fixed set of workers. Task failures are
// logged and never reported back to the submitter.
type Pool struct {
	config Config
	logger *zap.Logger

	taskChan chan *Task
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	tasksDropped   int64
}

// New creates a new worker pool
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:   cfg,
		logger:   logger,
		taskChan: make(chan *Task, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task without blocking. Returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("pool is shutting down")
	default:
	}

	select {
	case p.taskChan <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		return nil
	default:
		atomic.AddInt64(&p.tasksDropped, 1)
		return ErrQueueFull
	}
}

// Stop drains queued tasks and shuts the pool down.
func (p *Pool) Stop() {
	p.logger.Info("stopping worker pool")

	p.cancel()
	close(p.taskChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		p.runTask(id, task)
	}
}

func (p *Pool) runTask(workerID int, task *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.TaskTimeout)
	defer cancel()

	if err := task.Run(ctx); err != nil {
		atomic.AddInt64(&p.tasksFailed, 1)
		p.logger.Warn("background task failed",
			zap.String("task", task.Name),
			zap.Int("worker_id", workerID),
			zap.Error(err))
		return
	}
	atomic.AddInt64(&p.tasksCompleted, 1)
}

// Stats holds pool counters.
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksDropped   int64
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		TasksDropped:   atomic.LoadInt64(&p.tasksDropped),
	}
}
