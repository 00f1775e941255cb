// Package tasks runs named background jobs on a fixed pool of workers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBuffer    = 256
	DefaultTimeout   = 10 * time.Minute
	DefaultDedupeTTL = 5 * time.Minute
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrQueueClosed = errors.New("task queue is shut down")
	ErrQueueFull   = errors.New("task queue is full")
)

// Handler runs one task. Its context is cancelled after the queue timeout.
type Handler func(ctx context.Context, args ...string) error

// Locker is a SETNX style lock store used to drop duplicate enqueues
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

type job struct {
	name string
	args []string
}

type Queue struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	jobs     chan job
	closed   bool
	wg       sync.WaitGroup

	locker    Locker
	dedupeTTL time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

type Option func(*Queue)

// WithDeduplication drops an enqueue when the same task and arguments were
// enqueued within ttl
func WithDeduplication(l Locker, ttl time.Duration) Option {
	return func(q *Queue) {
		q.locker = l
		if ttl > 0 {
			q.dedupeTTL = ttl
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithBuffer(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.jobs = make(chan job, n)
		}
	}
}

// NewQueue starts workers goroutines that pull from the queue
func NewQueue(workers int, logger *zap.Logger, opts ...Option) *Queue {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		handlers:  make(map[string]Handler),
		jobs:      make(chan job, DefaultBuffer),
		dedupeTTL: DefaultDedupeTTL,
		timeout:   DefaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(q)
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *Queue) Register(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// Enqueue schedules a task and returns without waiting for it
func (q *Queue) Enqueue(name string, args ...string) error {
	q.mu.RLock()
	_, known := q.handlers[name]
	closed := q.closed
	q.mu.RUnlock()

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if closed {
		return ErrQueueClosed
	}

	locked := false
	if q.locker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := q.locker.SetNX(ctx, dedupeKey(name, args), "1", q.dedupeTTL)
		cancel()
		if err != nil {
			q.logger.Warn("Task dedupe lock failed, enqueuing anyway", zap.String("task", name), zap.Error(err))
		} else if !ok {
			q.logger.Debug("Duplicate task dropped", zap.String("task", name), zap.Strings("args", args))
			return nil
		}
		locked = err == nil
	}

	err := q.send(job{name: name, args: args})
	if err != nil && locked {
		// the task never ran, so a retry must not be dropped as a duplicate
		q.unlock(name, args)
	}
	return err
}

func (q *Queue) send(j job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- j:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, j.name)
	}
}

func (q *Queue) unlock(name string, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.locker.Delete(ctx, dedupeKey(name, args)); err != nil {
		q.logger.Warn("Failed to release task dedupe lock", zap.String("task", name), zap.Error(err))
	}
}

func dedupeKey(name string, args []string) string {
	return "tasks:" + name + ":" + strings.Join(args, ":")
}

func (q *Queue) work() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(j)
	}
}

func (q *Queue) run(j job) {
	log := q.logger.With(zap.String("task", j.name), zap.Strings("args", j.args))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panicked", zap.Any("panic", r))
		}
	}()

	q.mu.RLock()
	h := q.handlers[j.name]
	q.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	if err := h(ctx, j.args...); err != nil {
		log.Error("Task failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	log.Debug("Task completed", zap.Duration("duration", time.Since(start)))
}

// Shutdown stops accepting tasks and waits for queued ones to finish
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
