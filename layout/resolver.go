package layout

import (
	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/sequence"
)

// Resolver maps acquisition events onto the groups Allocate declared for the
// same plan. It precomputes the effective axis ordering once; Resolve is a
// handful of map lookups on the hot path.
type Resolver struct {
	plan          *sequence.SequencePlan
	labels        []string
	splitChannel  bool
	splitPosition bool
}

// NewResolver derives the coordinate ordering for a plan. The derivation is
// the same one Allocate uses, axis drops included, so resolved coordinates
// always match the allocated cardinality.
func NewResolver(plan *sequence.SequencePlan) *Resolver {
	labels, _ := sequence.DeriveAxes(plan)
	labels = append([]string(nil), labels...)

	splitChannel := plan.Split.Channel && len(plan.Channels) > 0
	splitPosition := plan.Split.Position && len(plan.Positions) > 0
	if splitChannel {
		labels = dropLabel(labels, sequence.AxisChannel)
	}
	if splitPosition {
		labels = dropLabel(labels, sequence.AxisPosition)
	}

	return &Resolver{
		plan:          plan,
		labels:        labels,
		splitChannel:  splitChannel,
		splitPosition: splitPosition,
	}
}

// Labels returns the coordinate ordering (frame plane excluded).
func (r *Resolver) Labels() []string {
	return r.labels
}

// Resolve computes the group id and in-group coordinate for one event. Axes
// named by the plan but absent from the event's index resolve to 0. The
// returned coordinate excludes the frame plane.
func (r *Resolver) Resolve(ev *sequence.AcquisitionEvent) (string, core.Coord) {
	id := r.plan.ID
	if r.splitChannel {
		id += "_" + sequence.ChannelID(ev.Channel, ev.Coordinate(sequence.AxisChannel))
	}
	if r.splitPosition {
		name := ev.PosName
		if name == "" {
			name = sequence.GeneratedPositionName(ev.Coordinate(sequence.AxisPosition))
		}
		id = name + "_" + id
	}

	coord := make(core.Coord, len(r.labels))
	for i, l := range r.labels {
		coord[i] = ev.Coordinate(l)
	}
	return id, coord
}

func dropLabel(labels []string, name string) []string {
	for i, l := range labels {
		if l == name {
			return append(labels[:i], labels[i+1:]...)
		}
	}
	return labels
}
