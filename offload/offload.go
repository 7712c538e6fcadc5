// Package offload carries frame copies to a secondary consumer (analysis
// workers) without touching the write path's critical section. The queue is
// bounded and enqueue is best-effort: a full queue drops the frame for
// analysis purposes rather than stalling acquisition.
package offload

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/sequence"
)

// DefaultCapacity is the queue depth used when none is configured.
const DefaultCapacity = 16

// Item is one queued frame/event pair. The frame is a clone; the consumer
// owns it outright.
type Item struct {
	Frame *core.Frame
	Event *sequence.AcquisitionEvent
}

// Consumer runs the offloaded computation. Process errors are logged and
// swallowed; the consumer never writes into the run's backing stores.
type Consumer interface {
	Process(ctx context.Context, frame *core.Frame, event *sequence.AcquisitionEvent) error
}

// Predicate decides which frames are worth offloading.
type Predicate func(frame *core.Frame, event *sequence.AcquisitionEvent) bool

// FirstTimepoint selects frames from the first timepoint of the run (or
// frames with no time axis at all). This matches the usual pattern of
// segmenting each position once at t=0.
func FirstTimepoint(_ *core.Frame, event *sequence.AcquisitionEvent) bool {
	t, ok := event.Index[sequence.AxisTime]
	return !ok || t == 0
}

// Stats is a snapshot of the queue's counters.
type Stats struct {
	Enqueued uint64 // frames accepted into the queue
	Dropped  uint64 // frames lost to a full queue
	Skipped  uint64 // frames the predicate filtered out
}

// Queue is the bounded hand-off between the stream writer and the offload
// consumer. TryEnqueue is non-blocking; Run drives the consumer on its own
// goroutine.
type Queue struct {
	pred   Predicate
	logger *slog.Logger

	mu     sync.RWMutex
	ch     chan Item
	closed bool

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	skipped  atomic.Uint64
}

// NewQueue creates a queue with the given capacity (<= 0 selects
// DefaultCapacity). A nil predicate offloads every frame.
func NewQueue(capacity int, pred Predicate, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Queue{
		pred:   pred,
		logger: logger.With("component", "OffloadQueue"),
		ch:     make(chan Item, capacity),
	}
}

// TryEnqueue offers a frame to the queue. It clones the frame only after
// the predicate matches and space is known to matter; it never blocks. The
// return value reports whether the frame was accepted.
func (q *Queue) TryEnqueue(frame *core.Frame, event *sequence.AcquisitionEvent) bool {
	if q.pred != nil && !q.pred(frame, event) {
		q.skipped.Add(1)
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.ch <- Item{Frame: frame.Clone(), Event: event}:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Run consumes the queue until it is closed and drained or ctx is
// cancelled. Intended to run on its own goroutine (or a separate process
// boundary behind a Consumer adapter).
func (q *Queue) Run(ctx context.Context, consumer Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-q.ch:
			if !ok {
				return nil
			}
			if err := consumer.Process(ctx, item.Frame, item.Event); err != nil {
				q.logger.Warn("offload consumer failed", "event", item.Event, "error", err)
			}
		}
	}
}

// Close stops the queue. Pending items remain consumable by Run; further
// TryEnqueue calls return false. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued: q.enqueued.Load(),
		Dropped:  q.dropped.Load(),
		Skipped:  q.skipped.Load(),
	}
}
