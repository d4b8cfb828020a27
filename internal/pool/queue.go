// Package pool provides a bounded background work queue with a supervised
// failure channel, plus reusable slice buffers.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

// Task represents a unit of background work.
type Task func(ctx context.Context) error

// Failure describes a task that returned an error or panicked.
type Failure struct {
	Name string
	Err  error
	At   time.Time
}

// QueueConfig configures the queue.
type QueueConfig struct {
	Workers       int           `json:"workers"`
	QueueSize     int           `json:"queue_size"`
	TaskTimeout   time.Duration `json:"task_timeout"`
	FailureBuffer int           `json:"failure_buffer"`
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:       4,
		QueueSize:     1024,
		TaskTimeout:   10 * time.Second,
		FailureBuffer: 256,
	}
}

type job struct {
	name string
	task Task
}

// Queue runs submitted tasks on a fixed set of workers. Submit never blocks;
// a full buffer rejects the task. Task errors are reported on Failures().
type Queue struct {
	cfg      QueueConfig
	jobs     chan job
	failures chan Failure
	logger   *zap.Logger

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup

	pendingMu sync.Mutex
	pending   int
	waiters   []chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	dropped   atomic.Int64
}

// NewQueue creates a queue and starts its workers.
func NewQueue(cfg QueueConfig, logger *zap.Logger) *Queue {
	defaults := DefaultQueueConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.FailureBuffer <= 0 {
		cfg.FailureBuffer = defaults.FailureBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		cfg:      cfg,
		jobs:     make(chan job, cfg.QueueSize),
		failures: make(chan Failure, cfg.FailureBuffer),
		logger:   logger.With(zap.String("component", "work_queue")),
	}
	for i := 0; i < cfg.Workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a task without blocking.
func (q *Queue) Submit(name string, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.rejected.Add(1)
		return ErrQueueClosed
	}

	q.pendingMu.Lock()
	q.pending++
	q.pendingMu.Unlock()

	select {
	case q.jobs <- job{name: name, task: task}:
		q.submitted.Add(1)
		return nil
	default:
		q.done()
		q.rejected.Add(1)
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.workers.Done()

	for j := range q.jobs {
		err := q.run(j)
		if err != nil {
			q.failed.Add(1)
			q.report(Failure{Name: j.name, Err: err, At: time.Now()})
		} else {
			q.completed.Add(1)
		}
		q.done()
	}
}

func (q *Queue) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", j.name, r)
		}
	}()

	ctx := context.Background()
	if q.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.TaskTimeout)
		defer cancel()
	}
	return j.task(ctx)
}

// report delivers a failure without blocking; when nobody drains the channel
// the failure is counted as dropped.
func (q *Queue) report(f Failure) {
	select {
	case q.failures <- f:
	default:
		q.dropped.Add(1)
		q.logger.Warn("failure channel full, dropping failure",
			zap.String("task", f.Name),
			zap.Error(f.Err),
		)
	}
}

func (q *Queue) done() {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	q.pending--
	if q.pending == 0 {
		for _, w := range q.waiters {
			close(w)
		}
		q.waiters = nil
	}
}

// Failures returns the channel on which task failures are reported. It is
// closed once Close has drained all workers.
func (q *Queue) Failures() <-chan Failure {
	return q.failures
}

// Wait blocks until every accepted task has finished or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.pendingMu.Lock()
	if q.pending == 0 {
		q.pendingMu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.pendingMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, drains the queue and waits for the workers.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		close(q.failures)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns queue statistics.
func (q *Queue) Stats() QueueStats {
	q.pendingMu.Lock()
	pending := q.pending
	q.pendingMu.Unlock()

	return QueueStats{
		Workers:   q.cfg.Workers,
		Pending:   pending,
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Rejected:  q.rejected.Load(),
		Dropped:   q.dropped.Load(),
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Workers   int   `json:"workers"`
	Pending   int   `json:"pending"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Dropped   int64 `json:"dropped"`
}
