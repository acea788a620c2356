// Package queue serializes storage operations against the underlying
// persisted store. Arbitrary concurrent callers submit typed operations; a
// single worker drains them strictly one at a time, so at most one call
// against the store is in flight at any instant.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/prefstore/prefstore/internal/storage"
)

// OpType names one of the four operations the queue knows how to execute.
type OpType string

const (
	// OpGet reads values from an area.
	OpGet OpType = "get"
	// OpSet writes values to an area.
	OpSet OpType = "set"
	// OpClear removes every value from an area.
	OpClear OpType = "clear"
	// OpGetBytesInUse queries the storage footprint of an area.
	OpGetBytesInUse OpType = "getBytesInUse"
)

// Priority orders queued-but-not-started operations. Elevated submissions
// are inserted ahead of queued same-or-lower-priority operations, never
// ahead of the one already executing.
type Priority int

const (
	// PriorityNormal appends to the queue tail.
	PriorityNormal Priority = iota
	// PriorityHigh pre-empts queued normal-priority operations.
	PriorityHigh
)

// Operation is one ephemeral storage request.
type Operation struct {
	Type   OpType
	Area   storage.AreaName
	Keys   []string                   // get / getBytesInUse
	Values map[string]json.RawMessage // set
}

// Result carries the outcome of a completed operation.
type Result struct {
	Values     map[string]json.RawMessage // get
	BytesInUse int64                      // getBytesInUse
}

var (
	// ErrQueueClosed is returned for operations submitted to, or still
	// queued in, a destroyed queue.
	ErrQueueClosed = errors.New("operation queue closed")
	// ErrUnknownOperation is returned for an unrecognized operation type.
	ErrUnknownOperation = errors.New("unknown operation type")
)

type outcome struct {
	result Result
	err    error
}

type task struct {
	op       Operation
	priority Priority
	reply    chan outcome
}

// Queue executes storage operations in submission order, one at a time.
type Queue struct {
	provider storage.Provider
	metrics  *metrics

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*task
	closed  bool
	done    chan struct{}
}

// New creates a queue over the given provider and starts its worker.
func New(provider storage.Provider) *Queue {
	q := &Queue{
		provider: provider,
		metrics:  newMetrics(),
		done:     make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.worker()

	return q
}

// Do submits op and blocks until it settles. The returned error, if any,
// wraps a classified storage error. A context cancellation abandons the
// wait but never an operation already handed to the store.
func (q *Queue) Do(ctx context.Context, op Operation, priority Priority) (Result, error) {
	t := &task{op: op, priority: priority, reply: make(chan outcome, 1)}

	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return Result{}, ErrQueueClosed
	}

	q.enqueueLocked(t)
	q.cond.Signal()
	q.mu.Unlock()

	select {
	case out := <-t.reply:
		return out.result, out.err
	case <-ctx.Done():
		return Result{}, errors.Wrapf(ctx.Err(), "abandoned %s operation on area %s", op.Type, op.Area)
	}
}

// enqueueLocked appends normal-priority tasks and inserts elevated tasks
// ahead of queued same-or-lower-priority tasks.
func (q *Queue) enqueueLocked(t *task) {
	if t.priority <= PriorityNormal {
		q.pending = append(q.pending, t)
		return
	}

	idx := len(q.pending)

	for i, queued := range q.pending {
		if queued.priority <= t.priority {
			idx = i
			break
		}
	}

	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = t
}

// Metrics returns a snapshot of the queue's running counters.
func (q *Queue) Metrics() MetricsSnapshot {
	return q.metrics.snapshot()
}

// Len reports the number of queued-not-started operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Destroy rejects all queued operations, stops the worker after the
// in-flight operation (if any) settles, and waits for it to exit.
func (q *Queue) Destroy() {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return
	}

	q.closed = true

	for _, t := range q.pending {
		t.reply <- outcome{err: ErrQueueClosed}
	}

	q.pending = nil

	q.cond.Signal()
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) worker() {
	defer close(q.done)

	for {
		q.mu.Lock()

		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}

		if q.closed {
			q.mu.Unlock()
			return
		}

		t := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		started := time.Now()
		result, err := q.execute(t.op)
		q.metrics.observe(t.op.Type, err, time.Since(started))

		if err != nil {
			log.Debug().
				Err(err).
				Str("op", string(t.op.Type)).
				Str("area", string(t.op.Area)).
				Str("class", string(storage.Classify(err))).
				Msg("storage operation failed")
		}

		t.reply <- outcome{result: result, err: err}
	}
}

// execute maps an operation to exactly one provider call and wraps any
// failure with its classification. A failed operation never blocks the
// drain; the worker simply reports it and moves on.
func (q *Queue) execute(op Operation) (Result, error) {
	ctx := context.Background()

	area, err := q.provider.Area(op.Area)
	if err != nil {
		return Result{}, wrapOpError(err, op)
	}

	switch op.Type {
	case OpGet:
		values, err := area.Get(ctx, op.Keys)
		if err != nil {
			return Result{}, wrapOpError(err, op)
		}

		return Result{Values: values}, nil
	case OpSet:
		if err := area.Set(ctx, op.Values); err != nil {
			return Result{}, wrapOpError(err, op)
		}

		return Result{}, nil
	case OpClear:
		if err := area.Clear(ctx); err != nil {
			return Result{}, wrapOpError(err, op)
		}

		return Result{}, nil
	case OpGetBytesInUse:
		n, err := area.BytesInUse(ctx, op.Keys)
		if err != nil {
			return Result{}, wrapOpError(err, op)
		}

		return Result{BytesInUse: n}, nil
	default:
		return Result{}, errors.Wrapf(ErrUnknownOperation, "%q", op.Type)
	}
}

func wrapOpError(err error, op Operation) error {
	return errors.Wrapf(err, "%s operation on area %s failed (%s)",
		op.Type, op.Area, storage.Classify(err))
}
