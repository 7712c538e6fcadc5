package offload

import (
	"context"

	"github.com/imagingkit/acqstream/hooks"
)

// Listener attaches a Queue to the hook manager: successful frame writes
// are offered to the queue, gated by its predicate.
type Listener struct {
	queue *Queue
}

// NewListener wraps a Queue as a hook listener for PostFrameWrite events.
func NewListener(q *Queue) *Listener {
	return &Listener{queue: q}
}

// OnEvent offers the written frame to the queue. TryEnqueue clones the
// frame and never blocks, so the write path is unaffected.
func (l *Listener) OnEvent(_ context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPostFrameWrite {
		return nil
	}
	payload, ok := event.Payload().(hooks.FrameWritePayload)
	if !ok {
		return nil
	}
	l.queue.TryEnqueue(payload.Frame, payload.Event)
	return nil
}

// Priority runs after the display hand-off.
func (l *Listener) Priority() int { return 20 }

// IsAsync is false: TryEnqueue is already non-blocking.
func (l *Listener) IsAsync() bool { return false }
