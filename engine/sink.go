package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/hooks"
	"github.com/imagingkit/acqstream/layout"
	"github.com/imagingkit/acqstream/sequence"
	"github.com/imagingkit/acqstream/store"
)

// OnSequenceStarted allocates array groups and backing stores for a managed
// plan. Plans without run metadata are not ours: they are logged and
// ignored, and their frames will pass through unmanaged.
//
// The caller pauses the acquisition engine around this call. That pause is
// the only thing standing between "first frame arrives" and "array group
// does not exist yet", so the allocation runs synchronously and completely
// before returning.
func (e *StreamEngine) OnSequenceStarted(plan *sequence.SequencePlan) error {
	if e.closed.Load() {
		return core.ErrEngineClosed
	}
	if plan == nil || plan.Meta == nil {
		e.logger.Debug("ignoring unmanaged sequence")
		return nil
	}

	ctx, span := e.tracer.Start(context.Background(), "StreamEngine.OnSequenceStarted")
	defer span.End()
	span.SetAttributes(attribute.String("plan.id", plan.ID))

	cam := e.opts.Camera
	pt := core.PixelTypeForBitDepth(cam.ImageBitDepth())
	labels, groups, err := layout.Allocate(plan, cam.ImageWidth(), cam.ImageHeight(), pt)
	if err != nil {
		e.logger.Error("sequence allocation failed, run will be unmanaged",
			"plan", plan.ID, "error", err)
		return err
	}
	span.SetAttributes(attribute.Int("groups", len(groups)))

	// A new managed sequence supersedes any run still active.
	e.mu.Lock()
	old := e.run
	e.run = nil
	e.mu.Unlock()
	if old != nil {
		e.logger.Warn("previous run still active at sequence start, tearing it down",
			"plan", old.plan.ID)
		e.teardown(old)
	}

	mgr := store.NewManager(store.ManagerOptions{Logger: e.logger})
	for _, g := range groups {
		h, err := mgr.Create(g)
		if err != nil {
			// Fatal for the run: unwind everything created so far.
			mgr.DestroyAll()
			e.logger.Error("backing store creation failed", "plan", plan.ID, "error", err)
			return err
		}
		e.hooks.Trigger(ctx, hooks.NewPostStoreCreateEvent(hooks.StoreCreatePayload{
			GroupID: g.ID,
			Dir:     h.Dir(),
			Shape:   g.Shape,
		}))
	}

	run := &activeRun{
		plan:     plan,
		labels:   labels,
		resolver: layout.NewResolver(plan),
		stores:   mgr,
		planIDs:  make(map[string]struct{}),
		cursors:  make(map[string]core.Coord, len(groups)),
	}
	registerPlanIDs(plan, run.planIDs)
	run.active.Store(true)

	e.mu.Lock()
	e.run = run
	e.mu.Unlock()

	metricRunsStarted.Add(1)
	e.logger.Info("run started",
		"plan", plan.ID,
		"groups", len(groups),
		"axes", fmt.Sprint(labels),
		"persist", plan.Meta.Persist)
	return nil
}

// OnFrame is the hot loop: resolve, bounds-checked write, cursor advance,
// decoupled notifications. Per-frame work is O(1) amortized. Any failure,
// panics included, is folded into a Rejected outcome; the acquisition loop
// never sees an error escape this boundary.
func (e *StreamEngine) OnFrame(frame *core.Frame, event *sequence.AcquisitionEvent) (outcome core.WriteOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = core.Rejected(fmt.Errorf("panic while writing frame: %v", r))
			metricFramesRejected.Add(1)
			e.logger.Error("panic in frame handler (contained)", "panic", r)
		}
	}()

	if e.closed.Load() {
		return core.Rejected(core.ErrEngineClosed)
	}
	if event == nil {
		return e.reject(nil, fmt.Errorf("frame delivered without an event"))
	}

	e.mu.RLock()
	run := e.run
	e.mu.RUnlock()
	if run == nil || !run.active.Load() {
		return e.reject(event, core.ErrNotManaged)
	}
	if _, ok := run.planIDs[event.SequenceID]; !ok {
		return e.reject(event, core.ErrNotManaged)
	}

	groupID, coord := run.resolver.Resolve(event)
	h, ok := run.stores.Get(groupID)
	if !ok {
		return e.reject(event, &core.UnknownGroupError{GroupID: groupID})
	}
	if err := h.Array().WriteFrame(coord, frame); err != nil {
		var ie *core.IndexError
		if errors.As(err, &ie) {
			ie.GroupID = groupID
		}
		return e.reject(event, err)
	}

	cursor := run.advanceCursor(groupID, coord)
	metricFramesWritten.Add(1)

	e.hooks.Trigger(context.Background(), hooks.NewPostFrameWriteEvent(hooks.FrameWritePayload{
		GroupID: groupID,
		Coord:   coord,
		Cursor:  cursor,
		Frame:   frame,
		Event:   event,
	}))
	return core.Written(groupID, coord)
}

// OnSequenceFinished flushes the display, finalizes persisted runs, and
// tears the run down. Finishing a sequence this engine does not manage is a
// no-op.
func (e *StreamEngine) OnSequenceFinished(planID string) error {
	e.mu.Lock()
	run := e.run
	if run == nil {
		e.mu.Unlock()
		return nil
	}
	if _, ok := run.planIDs[planID]; !ok {
		e.mu.Unlock()
		return nil
	}
	e.run = nil
	e.mu.Unlock()

	ctx, span := e.tracer.Start(context.Background(), "StreamEngine.OnSequenceFinished")
	defer span.End()
	span.SetAttributes(attribute.String("plan.id", run.plan.ID))

	// Stop accepting frames before touching storage.
	run.active.Store(false)

	if e.displaySync != nil {
		e.displaySync.Flush()
	}

	var finalizeErr error
	meta := run.plan.Meta
	if meta != nil && meta.Persist {
		err := e.hooks.Trigger(ctx, hooks.NewPreSequenceFinishEvent(hooks.SequenceFinishPayload{
			PlanID:  run.plan.ID,
			Persist: true,
		}))
		if err != nil {
			e.logger.Warn("finalize cancelled by pre-finish hook", "plan", run.plan.ID, "error", err)
			finalizeErr = err
		} else {
			dir, err := run.stores.Finalize(ctx, *meta, run.plan.ID, run.labels)
			if err != nil {
				e.logger.Error("failed to finalize run", "plan", run.plan.ID, "error", err)
				finalizeErr = err
			} else {
				e.logger.Info("run persisted", "plan", run.plan.ID, "dir", dir)
			}
		}
	}

	e.teardown(run)
	return finalizeErr
}

// reject logs, counts, and reports one rejected frame.
func (e *StreamEngine) reject(event *sequence.AcquisitionEvent, reason error) core.WriteOutcome {
	metricFramesRejected.Add(1)
	if !errors.Is(reason, core.ErrNotManaged) {
		e.logger.Warn("frame rejected", "event", event, "reason", reason)
		e.hooks.Trigger(context.Background(), hooks.NewPostFrameRejectEvent(hooks.FrameRejectPayload{
			Reason: reason,
			Event:  event,
		}))
	}
	return core.Rejected(reason)
}

// advanceCursor moves a group's high-water mark forward and returns the
// post-advance value; the cursor never moves lexicographically backward
// within one run. An out-of-order frame leaves it where it was.
func (r *activeRun) advanceCursor(groupID string, coord core.Coord) core.Coord {
	r.cursorMu.Lock()
	defer r.cursorMu.Unlock()
	cur, ok := r.cursors[groupID]
	if !ok || cur.Less(coord) {
		cur = coord.Clone()
		r.cursors[groupID] = cur
	}
	return cur.Clone()
}
