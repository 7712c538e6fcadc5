package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	name     string
	priority int
	async    bool
	err      error

	mu    sync.Mutex
	calls []EventType
	log   *[]string
}

func (l *recordingListener) OnEvent(_ context.Context, event HookEvent) error {
	l.mu.Lock()
	l.calls = append(l.calls, event.Type())
	if l.log != nil {
		*l.log = append(*l.log, l.name)
	}
	l.mu.Unlock()
	return l.err
}

func (l *recordingListener) Priority() int { return l.priority }
func (l *recordingListener) IsAsync() bool { return l.async }

func (l *recordingListener) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func TestTriggerCallsRegisteredListener(t *testing.T) {
	m := NewHookManager(nil)
	l := &recordingListener{name: "a"}
	m.Register(EventPostFrameWrite, l)

	err := m.Trigger(context.Background(), NewPostFrameWriteEvent(FrameWritePayload{GroupID: "g1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, l.callCount())
}

func TestTriggerIgnoresUnregisteredEvents(t *testing.T) {
	m := NewHookManager(nil)
	l := &recordingListener{name: "a"}
	m.Register(EventPostFrameWrite, l)

	err := m.Trigger(context.Background(), NewPostTeardownEvent(TeardownPayload{PlanID: "p"}))
	require.NoError(t, err)
	assert.Equal(t, 0, l.callCount())
}

func TestTriggerHonorsPriorityOrder(t *testing.T) {
	m := NewHookManager(nil)
	var order []string
	m.Register(EventPostFrameWrite, &recordingListener{name: "third", priority: 30, log: &order})
	m.Register(EventPostFrameWrite, &recordingListener{name: "first", priority: 5, log: &order})
	m.Register(EventPostFrameWrite, &recordingListener{name: "second", priority: 10, log: &order})

	require.NoError(t, m.Trigger(context.Background(), NewPostFrameWriteEvent(FrameWritePayload{})))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPreHookErrorCancels(t *testing.T) {
	m := NewHookManager(nil)
	boom := errors.New("veto")
	var order []string
	m.Register(EventPreSequenceFinish, &recordingListener{name: "veto", priority: 1, err: boom, log: &order})
	late := &recordingListener{name: "late", priority: 2, log: &order}
	m.Register(EventPreSequenceFinish, late)

	err := m.Trigger(context.Background(), NewPreSequenceFinishEvent(SequenceFinishPayload{PlanID: "p"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, late.callCount(), "listeners after a failed pre-hook must not run")
}

func TestPostHookErrorDoesNotPropagate(t *testing.T) {
	m := NewHookManager(nil)
	m.Register(EventPostFrameReject, &recordingListener{name: "bad", err: errors.New("ignored")})
	after := &recordingListener{name: "after", priority: 5}
	m.Register(EventPostFrameReject, after)

	err := m.Trigger(context.Background(), NewPostFrameRejectEvent(FrameRejectPayload{}))
	require.NoError(t, err)
	assert.Equal(t, 1, after.callCount())
}

type asyncListener struct {
	started chan struct{}
	release chan struct{}
	done    atomic.Bool
}

func (l *asyncListener) OnEvent(context.Context, HookEvent) error {
	close(l.started)
	<-l.release
	l.done.Store(true)
	return nil
}

func (l *asyncListener) Priority() int { return 0 }
func (l *asyncListener) IsAsync() bool { return true }

func TestAsyncListenerAndStop(t *testing.T) {
	m := NewHookManager(nil)
	l := &asyncListener{started: make(chan struct{}), release: make(chan struct{})}
	m.Register(EventPostTeardown, l)

	require.NoError(t, m.Trigger(context.Background(), NewPostTeardownEvent(TeardownPayload{PlanID: "p"})))
	<-l.started
	assert.False(t, l.done.Load(), "async listener runs off the trigger path")

	close(l.release)
	m.Stop()
	assert.True(t, l.done.Load(), "Stop waits for async listeners")
}

func TestPreHookForcesSyncExecution(t *testing.T) {
	m := NewHookManager(nil)
	l := &recordingListener{name: "a", async: true}
	m.Register(EventPreSequenceFinish, l)

	require.NoError(t, m.Trigger(context.Background(), NewPreSequenceFinishEvent(SequenceFinishPayload{})))
	// no Stop needed: pre events run inline even for async listeners
	assert.Equal(t, 1, l.callCount())
}

func TestEventPayloads(t *testing.T) {
	ev := NewPostStoreCreateEvent(StoreCreatePayload{GroupID: "g1", Dir: "/tmp/x"})
	assert.Equal(t, EventPostStoreCreate, ev.Type())
	payload, ok := ev.Payload().(StoreCreatePayload)
	require.True(t, ok)
	assert.Equal(t, "g1", payload.GroupID)
}
