// Package hooks is the extension point of the materializer: collaborators
// register prioritized listeners for run-lifecycle events instead of wiring
// themselves into ambient signal buses. The display synchronizer and the
// offload queue both attach here; their OnEvent implementations are
// non-blocking hand-offs, so listener execution stays off the acquisition
// path's latency budget.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/sequence"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// EventPostStoreCreate fires after a group's backing store is allocated.
	EventPostStoreCreate EventType = "PostStoreCreate"
	// EventPostFrameWrite fires after a frame lands in its group.
	EventPostFrameWrite EventType = "PostFrameWrite"
	// EventPostFrameReject fires when a frame is rejected instead of written.
	EventPostFrameReject EventType = "PostFrameReject"
	// EventPreSequenceFinish fires before finalize/teardown on a normal
	// finish. A listener error cancels the finalize step (teardown still
	// runs).
	EventPreSequenceFinish EventType = "PreSequenceFinish"
	// EventPostTeardown fires once the run's stores are gone.
	EventPostTeardown EventType = "PostTeardown"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event, honoring
	// priority order and each listener's sync/async preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface all event objects implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// StoreCreatePayload describes a freshly allocated backing store.
type StoreCreatePayload struct {
	GroupID string
	Dir     string
	Shape   []int
}

// NewPostStoreCreateEvent creates an event for after a store is allocated.
func NewPostStoreCreateEvent(payload StoreCreatePayload) HookEvent {
	return &BaseEvent{eventType: EventPostStoreCreate, payload: payload}
}

// FrameWritePayload carries a written frame and where it landed. The frame
// is shared, not cloned; listeners must not mutate or retain it beyond
// OnEvent (clone it if they need to, as the offload queue does).
type FrameWritePayload struct {
	GroupID string
	Coord   core.Coord

	// Cursor is the group's high-water mark after this write. Out-of-order
	// frames land at Coord but never move Cursor backward; anything driving
	// a display reads Cursor, not Coord.
	Cursor core.Coord

	Frame *core.Frame
	Event *sequence.AcquisitionEvent
}

// NewPostFrameWriteEvent creates an event for after a successful write.
func NewPostFrameWriteEvent(payload FrameWritePayload) HookEvent {
	return &BaseEvent{eventType: EventPostFrameWrite, payload: payload}
}

// FrameRejectPayload carries the reason a frame was not written.
type FrameRejectPayload struct {
	Reason error
	Event  *sequence.AcquisitionEvent
}

// NewPostFrameRejectEvent creates an event for after a rejected write.
func NewPostFrameRejectEvent(payload FrameRejectPayload) HookEvent {
	return &BaseEvent{eventType: EventPostFrameReject, payload: payload}
}

// SequenceFinishPayload identifies the finishing run.
type SequenceFinishPayload struct {
	PlanID  string
	Persist bool
}

// NewPreSequenceFinishEvent creates an event for before finalize/teardown.
func NewPreSequenceFinishEvent(payload SequenceFinishPayload) HookEvent {
	return &BaseEvent{eventType: EventPreSequenceFinish, payload: payload}
}

// TeardownPayload identifies the torn-down run.
type TeardownPayload struct {
	PlanID string
}

// NewPostTeardownEvent creates an event for after run teardown.
func NewPostTeardownEvent(payload TeardownPayload) HookEvent {
	return &BaseEvent{eventType: EventPostTeardown, payload: payload}
}

// HookListener defines the interface for components listening to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event fires.
	// An error from a "Pre" event listener cancels the operation; errors
	// from "Post" listeners are logged without affecting the main path.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower runs first.
	Priority() int

	// IsAsync indicates whether the listener should be called
	// asynchronously for Post events.
	IsAsync() bool
}

// listenerWithPriority wraps a listener with its priority.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// listener slices are kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for an event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}
	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for an event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		if isPreHook || !item.listener.IsAsync() {
			// Pre events must be synchronous so they can cancel.
			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w",
						event.Type(), item.priority, err)
				}
				m.logger.Error("error from synchronous post-hook listener",
					"event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("error from asynchronous post-hook listener",
						"event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
