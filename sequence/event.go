package sequence

import (
	"fmt"
	"sort"
	"strings"
)

// AcquisitionEvent is one step of iterating a sequence plan, as delivered by
// the acquisition engine. It is read-only; the materializer retains only the
// coordinates derived from it.
type AcquisitionEvent struct {
	// Index maps axis name to coordinate along that axis. Axes absent from
	// the map resolve to coordinate 0 (a grid sub-plan may only partially
	// overlap the shared axis set).
	Index map[string]int

	// PosName is the declared name of the event's position, empty when the
	// position is unnamed or the plan has no position table.
	PosName string

	// Channel is the channel configuration name for this event, empty when
	// the plan has no channel table.
	Channel string

	// SequenceID references the plan (or nested sub-plan) this event was
	// produced from.
	SequenceID string
}

// Coordinate returns the event's index along the named axis, defaulting to 0
// when the axis is absent.
func (e *AcquisitionEvent) Coordinate(axis string) int {
	if e.Index == nil {
		return 0
	}
	return e.Index[axis]
}

func (e *AcquisitionEvent) String() string {
	keys := make([]string, 0, len(e.Index))
	for k := range e.Index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, e.Index[k])
	}
	return "event{" + strings.Join(parts, " ") + "}"
}
