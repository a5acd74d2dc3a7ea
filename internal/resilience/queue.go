package resilience

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Task is a unit of queued work.
type Task func(ctx context.Context) (any, error)

// Result carries a task's outcome to the enqueuer.
type Result struct {
	Value any
	Err   error
}

type queuedTask struct {
	ctx  context.Context
	run  Task
	done chan Result
}

// RequestQueue is a bounded-concurrency FIFO executor: tasks are admitted
// in enqueue order and at most maxConcurrent run at once. Completion order
// is not guaranteed.
type RequestQueue struct {
	maxConcurrent int
	logger        *zap.Logger

	mu      sync.Mutex
	pending []*queuedTask
	active  int
}

// NewRequestQueue creates a queue running at most maxConcurrent tasks.
func NewRequestQueue(maxConcurrent int, logger *zap.Logger) *RequestQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestQueue{maxConcurrent: maxConcurrent, logger: logger}
}

// Enqueue appends the task and triggers draining. The returned channel
// receives exactly one Result.
func (q *RequestQueue) Enqueue(ctx context.Context, fn Task) <-chan Result {
	t := &queuedTask{ctx: ctx, run: fn, done: make(chan Result, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, t)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	q.drain()
	return t.done
}

// Clear rejects all pending tasks with domain.ErrQueueCleared and empties
// the queue. In-flight tasks are unaffected.
func (q *RequestQueue) Clear() {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	for _, t := range cleared {
		t.done <- Result{Err: domain.ErrQueueCleared}
	}
	if len(cleared) > 0 {
		q.logger.Info("Request queue cleared", zap.Int("rejected", len(cleared)))
	}
}

// Pending returns the number of tasks waiting for a slot.
func (q *RequestQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Active returns the number of tasks currently executing.
func (q *RequestQueue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// drain starts pending tasks while concurrency allows. It runs again after
// every task completion, so the queue empties or saturates.
func (q *RequestQueue) drain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.active < q.maxConcurrent && len(q.pending) > 0 {
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.active++
		metrics.QueueDepth.Set(float64(len(q.pending)))
		metrics.QueueActive.Set(float64(q.active))

		go q.execute(t)
	}
}

func (q *RequestQueue) execute(t *queuedTask) {
	value, err := t.run(t.ctx)
	t.done <- Result{Value: value, Err: err}

	q.mu.Lock()
	q.active--
	metrics.QueueActive.Set(float64(q.active))
	q.mu.Unlock()

	q.drain()
}
