// Package worker runs fire-and-forget work after an HTTP response has been sent.
//
// Tasks run on a fixed set of goroutines with a pool-owned context, so a
// cancelled request context never aborts work that was already acknowledged.
// Failures and panics are reported to a callback rather than to any caller.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrStopped is returned by Submit after Shutdown has been called.
	ErrStopped = errors.New("worker pool is stopped")
)

// Result classifies how a task finished.
type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
	ResultPanicked  Result = "panicked"
)

// Task is one unit of background work.
type Task struct {
	Name string
	ID   string
	Fn   func(ctx context.Context) error
}

// NewTask returns a task with a fresh id.
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return Task{Name: name, ID: uuid.NewString(), Fn: fn}
}

// Outcome is reported once per finished task.
type Outcome struct {
	Task     string        `json:"task"`
	ID       string        `json:"id"`
	Result   Result        `json:"result"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Config sizes the pool.
type Config struct {
	Size      int
	QueueSize int
}

// Option configures a Pool.
type Option func(*Pool)

// WithReporter registers a callback invoked for every finished task.
func WithReporter(fn func(Outcome)) Option {
	return func(p *Pool) { p.reporters = append(p.reporters, fn) }
}

// WithLogger overrides the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// Pool is a fixed-size worker pool over a bounded queue.
type Pool struct {
	tasks     chan Task
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
	reporters []func(Outcome)

	mu      sync.RWMutex
	stopped bool
}

// New starts cfg.Size workers reading from a queue of cfg.QueueSize slots.
func New(cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("worker pool size must be at least 1")
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("worker queue size must be at least 1")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := range cfg.Size {
		p.wg.Add(1)
		go p.run(i)
	}
	return p, nil
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(t Task) error {
	if t.Fn == nil {
		return fmt.Errorf("task %q has no function", t.Name)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of queued tasks not yet picked up.
func (p *Pool) Depth() int {
	return len(p.tasks)
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// If ctx expires first, the task context is cancelled and ctx.Err() is returned
// once the workers exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run(workerID int) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.execute(workerID, t)
	}
}

func (p *Pool) execute(workerID int, t Task) {
	start := time.Now()
	outcome := Outcome{Task: t.Name, ID: t.ID, Result: ResultSucceeded}

	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome.Result = ResultPanicked
				outcome.Error = fmt.Sprint(r)
				p.logger.Error("PANIC in background task",
					slog.String("task", t.Name),
					slog.String("task_id", t.ID),
					slog.Int("worker", workerID),
					slog.Any("panic", r),
					slog.String("stack_trace", string(debug.Stack())))
			}
		}()

		if err := t.Fn(p.ctx); err != nil {
			outcome.Result = ResultFailed
			outcome.Error = err.Error()
			p.logger.Error("background task failed",
				slog.String("task", t.Name),
				slog.String("task_id", t.ID),
				slog.Any("error", err))
		}
	}()

	outcome.Duration = time.Since(start)
	for _, report := range p.reporters {
		report(outcome)
	}
}
