package display

import (
	"context"

	"github.com/imagingkit/acqstream/hooks"
)

// Listener attaches a Sync to the hook manager: every successful frame
// write becomes a coalesced display notification.
type Listener struct {
	sync *Sync
}

// NewListener wraps a Sync as a hook listener for PostFrameWrite events.
func NewListener(s *Sync) *Listener {
	return &Listener{sync: s}
}

// OnEvent forwards the group's high-water mark to the synchronizer, not the
// written coordinate itself: an out-of-order frame must not step the viewer
// backward. The hand-off is non-blocking, so this listener adds no latency
// to the write path.
func (l *Listener) OnEvent(_ context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPostFrameWrite {
		return nil
	}
	payload, ok := event.Payload().(hooks.FrameWritePayload)
	if !ok {
		return nil
	}
	l.sync.Notify(payload.GroupID, payload.Cursor)
	return nil
}

// Priority runs the display hand-off before the offload hand-off.
func (l *Listener) Priority() int { return 10 }

// IsAsync is false: the hand-off itself is already non-blocking.
func (l *Listener) IsAsync() bool { return false }
