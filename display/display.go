// Package display keeps an external visualization surface synchronized with
// the frontier of acquired data. All viewer mutation happens on one
// goroutine owned by the Sync; producers hand coordinates off through a
// coalescing buffer and never block. Bursts collapse to the most recent
// coordinate per group; intermediate states carry no information the
// display needs.
package display

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/imagingkit/acqstream/core"
)

// Viewer is the surface the synchronizer drives. Implementations are called
// only from the Sync's goroutine (or from Flush/Close callers while the
// goroutine is quiescent), never concurrently.
type Viewer interface {
	// SetVisible makes a group's display visible. Called once per group,
	// before its first SetStep.
	SetVisible(groupID string)

	// SetStep moves the displayed coordinate for a group.
	SetStep(groupID string, coord []int)
}

// Stats is a snapshot of the synchronizer's counters.
type Stats struct {
	Notified  uint64 // Notify calls accepted
	Delivered uint64 // coordinates actually pushed to the viewer
	Coalesced uint64 // notifications superseded before delivery
}

// Sync is the rate-limited display notifier. Notify is safe for concurrent
// use and O(1); delivery happens on the Sync's own goroutine.
type Sync struct {
	viewer Viewer
	logger *slog.Logger

	mu       sync.Mutex
	pending  map[string]core.Coord
	order    []string // arrival order of pending groups
	seen     map[string]bool
	waiters  []chan struct{}
	inFlight bool // a popped notification is on its way to the viewer

	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
	loopWG  sync.WaitGroup

	notified  atomic.Uint64
	delivered atomic.Uint64
	coalesced atomic.Uint64
}

// New creates a Sync and starts its delivery goroutine.
func New(viewer Viewer, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Sync{
		viewer:  viewer,
		logger:  logger.With("component", "DisplaySync"),
		pending: make(map[string]core.Coord),
		seen:    make(map[string]bool),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.loopWG.Add(1)
	go s.loop()
	return s
}

// Notify records that coord is the latest written coordinate of a group.
// Non-blocking: if the display goroutine is behind, earlier coordinates for
// the same group are dropped.
func (s *Sync) Notify(groupID string, coord core.Coord) {
	s.notified.Add(1)
	s.mu.Lock()
	if _, queued := s.pending[groupID]; queued {
		s.coalesced.Add(1)
	} else {
		s.order = append(s.order, groupID)
	}
	s.pending[groupID] = coord.Clone()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every notification accepted before the call has been
// delivered to the viewer. Used on sequence finish so the display lands on
// the final frame.
func (s *Sync) Flush() {
	s.mu.Lock()
	if len(s.pending) == 0 && !s.inFlight {
		s.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	select {
	case <-ch:
	case <-s.done:
	}
}

// Close flushes pending notifications and stops the delivery goroutine.
// Idempotent.
func (s *Sync) Close() {
	s.stopped.Do(func() {
		s.Flush()
		close(s.done)
	})
	s.loopWG.Wait()
}

// Stats returns a snapshot of the synchronizer's counters.
func (s *Sync) Stats() Stats {
	return Stats{
		Notified:  s.notified.Load(),
		Delivered: s.delivered.Load(),
		Coalesced: s.coalesced.Load(),
	}
}

// loop is the display thread: it drains the coalescing buffer and drives
// the viewer.
func (s *Sync) loop() {
	defer s.loopWG.Done()
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.done:
			s.drain()
			return
		}
	}
}

func (s *Sync) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			waiters := s.waiters
			s.waiters = nil
			s.mu.Unlock()
			for _, ch := range waiters {
				close(ch)
			}
			return
		}
		groupID := s.order[0]
		s.order = s.order[1:]
		coord := s.pending[groupID]
		delete(s.pending, groupID)
		first := !s.seen[groupID]
		s.seen[groupID] = true
		s.inFlight = true
		s.mu.Unlock()

		if first {
			s.viewer.SetVisible(groupID)
			s.logger.Debug("made group visible", "group", groupID)
		}
		s.viewer.SetStep(groupID, coord)
		s.delivered.Add(1)

		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}
}
