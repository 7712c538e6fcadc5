// Package engine contains the stream writer: the component that receives
// (frame, event) pairs from the acquisition loop and incrementally
// materializes them into pre-allocated, chunked on-disk arrays, while
// keeping the display synchronizer and the offload queue fed through
// decoupled hand-offs. The acquisition loop must never block on, or observe
// a panic from, anything in this package.
package engine

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/display"
	"github.com/imagingkit/acqstream/hooks"
	"github.com/imagingkit/acqstream/layout"
	"github.com/imagingkit/acqstream/offload"
	"github.com/imagingkit/acqstream/sequence"
	"github.com/imagingkit/acqstream/store"
)

var (
	metricFramesWritten  = expvar.NewInt("acqstream.frames_written")
	metricFramesRejected = expvar.NewInt("acqstream.frames_rejected")
	metricRunsStarted    = expvar.NewInt("acqstream.runs_started")
)

// Camera reports the geometry of the frames the acquisition engine will
// deliver. Allocation needs it before the first frame exists.
type Camera interface {
	ImageWidth() int
	ImageHeight() int
	ImageBitDepth() int
}

// FrameSink is the interface the acquisition engine drives. Collaborators
// implement it and are registered once per run; there is no ambient signal
// bus to connect to or forget to disconnect from.
type FrameSink interface {
	// OnSequenceStarted allocates array groups and backing stores for a
	// plan. The caller must pause the acquisition engine around this call
	// so no frame can arrive before its destination array exists.
	OnSequenceStarted(plan *sequence.SequencePlan) error

	// OnFrame writes one frame. It never blocks on display or analysis and
	// never panics; all per-frame failures come back as a Rejected outcome.
	OnFrame(frame *core.Frame, event *sequence.AcquisitionEvent) core.WriteOutcome

	// OnSequenceFinished flushes the display and, for persisted runs,
	// finalizes the backing stores; then tears the run down.
	OnSequenceFinished(planID string) error
}

// Options configures a StreamEngine. Camera is required; everything else
// has a working default.
type Options struct {
	Camera Camera

	// Viewer, when set, enables display synchronization.
	Viewer display.Viewer

	// OffloadConsumer, when set, enables the offload queue.
	OffloadConsumer  offload.Consumer
	OffloadCapacity  int
	OffloadPredicate offload.Predicate

	// SnapshotCacheSize is the chunk cache capacity of readers returned by
	// Snapshot. Zero selects the store default.
	SnapshotCacheSize int

	Hooks          hooks.HookManager
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

// StreamEngine implements FrameSink over a set of backing stores. One run is
// active at a time; its stores are exclusively owned by that run.
type StreamEngine struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	hooks  hooks.HookManager

	displaySync  *display.Sync
	offloadQueue *offload.Queue
	offloadWG    sync.WaitGroup

	mu     sync.RWMutex
	run    *activeRun
	closed atomic.Bool
}

// activeRun is the mutable state of one in-progress acquisition.
type activeRun struct {
	plan     *sequence.SequencePlan
	labels   []string
	resolver *layout.Resolver
	stores   *store.Manager

	// planIDs maps the parent plan id and every nested sub-plan id to this
	// run, so events produced by position sub-sequences still resolve.
	planIDs map[string]struct{}

	// active is flipped off before teardown starts; OnFrame checks it so no
	// in-flight frame is written into a store being destroyed.
	active atomic.Bool

	cursorMu sync.RWMutex
	cursors  map[string]core.Coord
}

// NewStreamEngine validates options and builds an engine. The display
// synchronizer and offload worker, when configured, are started here and
// attached to the hook manager.
func NewStreamEngine(opts Options) (*StreamEngine, error) {
	if opts.Camera == nil {
		return nil, fmt.Errorf("engine requires a camera")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hookMgr := opts.Hooks
	if hookMgr == nil {
		hookMgr = hooks.NewHookManager(logger)
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	e := &StreamEngine{
		opts:   opts,
		logger: logger.With("component", "StreamEngine"),
		tracer: tp.Tracer("github.com/imagingkit/acqstream/engine"),
		hooks:  hookMgr,
	}

	if opts.Viewer != nil {
		e.displaySync = display.New(opts.Viewer, logger)
		hookMgr.Register(hooks.EventPostFrameWrite, display.NewListener(e.displaySync))
	}

	if opts.OffloadConsumer != nil {
		pred := opts.OffloadPredicate
		if pred == nil {
			pred = offload.FirstTimepoint
		}
		e.offloadQueue = offload.NewQueue(opts.OffloadCapacity, pred, logger)
		hookMgr.Register(hooks.EventPostFrameWrite, offload.NewListener(e.offloadQueue))
		e.offloadWG.Add(1)
		go func() {
			defer e.offloadWG.Done()
			if err := e.offloadQueue.Run(context.Background(), opts.OffloadConsumer); err != nil {
				e.logger.Warn("offload worker exited", "error", err)
			}
		}()
	}

	return e, nil
}

// Hooks exposes the engine's hook manager for additional listeners.
func (e *StreamEngine) Hooks() hooks.HookManager {
	return e.hooks
}

// OffloadStats returns the offload queue counters, zero when offloading is
// not configured.
func (e *StreamEngine) OffloadStats() offload.Stats {
	if e.offloadQueue == nil {
		return offload.Stats{}
	}
	return e.offloadQueue.Stats()
}

// DisplayStats returns the display synchronizer counters, zero when no
// viewer is configured.
func (e *StreamEngine) DisplayStats() display.Stats {
	if e.displaySync == nil {
		return display.Stats{}
	}
	return e.displaySync.Stats()
}

// Snapshot returns a read-only view of a group's array, usable by analysis
// workers and save steps while the run is still writing.
func (e *StreamEngine) Snapshot(groupID string) (*store.Reader, error) {
	e.mu.RLock()
	run := e.run
	e.mu.RUnlock()
	if run == nil {
		return nil, core.ErrNoActiveRun
	}
	h, ok := run.stores.Get(groupID)
	if !ok {
		return nil, &core.UnknownGroupError{GroupID: groupID}
	}
	return store.NewReader(h.Array(), e.opts.SnapshotCacheSize), nil
}

// Cursor returns the high-water mark written so far in a group.
func (e *StreamEngine) Cursor(groupID string) (core.Coord, bool) {
	e.mu.RLock()
	run := e.run
	e.mu.RUnlock()
	if run == nil {
		return nil, false
	}
	run.cursorMu.RLock()
	defer run.cursorMu.RUnlock()
	c, ok := run.cursors[groupID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Groups returns the ids of the active run's array groups in creation
// order.
func (e *StreamEngine) Groups() []string {
	e.mu.RLock()
	run := e.run
	e.mu.RUnlock()
	if run == nil {
		return nil
	}
	handles := run.stores.Handles()
	out := make([]string, len(handles))
	for i, h := range handles {
		out[i] = h.GroupID()
	}
	return out
}

// Abort cancels the active run, if any: no finalize, immediate teardown.
func (e *StreamEngine) Abort() {
	e.mu.Lock()
	run := e.run
	e.run = nil
	e.mu.Unlock()
	if run != nil {
		e.logger.Warn("aborting run", "plan", run.plan.ID)
		e.teardown(run)
	}
}

// Close aborts any active run and stops the display and offload workers.
// Idempotent and safe as a deferred last-resort cleanup path.
func (e *StreamEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.Abort()
	if e.offloadQueue != nil {
		e.offloadQueue.Close()
		e.offloadWG.Wait()
	}
	if e.displaySync != nil {
		e.displaySync.Close()
	}
	e.hooks.Stop()
	return nil
}

// teardown destroys a run's backing stores. Safe to reach from the normal
// finish path, Abort, and Close simultaneously; the store manager suppresses
// duplicate cleanup.
func (e *StreamEngine) teardown(run *activeRun) {
	run.active.Store(false)
	run.stores.DestroyAll()
	e.hooks.Trigger(context.Background(),
		hooks.NewPostTeardownEvent(hooks.TeardownPayload{PlanID: run.plan.ID}))
}

// registerPlanIDs collects the plan's id and the ids of all nested
// sub-plans.
func registerPlanIDs(plan *sequence.SequencePlan, into map[string]struct{}) {
	into[plan.ID] = struct{}{}
	for _, pos := range plan.Positions {
		if pos.Sub != nil {
			registerPlanIDs(pos.Sub, into)
		}
	}
}
