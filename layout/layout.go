// Package layout turns a declarative sequence plan into the concrete set of
// array groups to materialize (allocation), and maps individual acquisition
// events back onto those groups (resolution). Both directions derive the
// effective axis ordering through sequence.DeriveAxes, so a coordinate
// computed by the resolver always has the cardinality the allocator declared.
package layout

import (
	"fmt"

	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/sequence"
)

// GroupSpec describes one array group to be created before the first frame
// arrives: its id, full shape (frame plane last), axis labels, and sample
// type.
type GroupSpec struct {
	ID         string
	Shape      []int
	AxisLabels []string
	PixelType  core.PixelType

	// ChannelID is set when the channel axis is split out of the shape.
	ChannelID string
	// PosName is set when the position axis is split out of the shape.
	PosName string
}

// Allocate computes the array groups for a plan. frameW/frameH are the
// camera frame geometry (known before the first frame; the caller pauses the
// acquisition engine around allocation). The returned labels include the
// trailing "y","x" frame plane and apply to every group.
//
// Splitting rules:
//   - Split.Channel removes the channel axis from the shared shape and emits
//     one group per channel table entry, id suffixed with the channel id.
//   - Split.Position removes the position axis and emits one group per
//     position, id prefixed with the position's name (or a generated
//     placeholder). A position's own sub-plan overrides shared axis sizes
//     for that position's group.
//
// When positions carry sub-plans that disagree on a shared axis size and
// positions are not split, the positions would have to share one array of a
// single shape; that conflict is reported as an allocation error rather than
// trusting whichever sub-plan happens to be inspected first.
func Allocate(plan *sequence.SequencePlan, frameW, frameH int, pt core.PixelType) ([]string, []GroupSpec, error) {
	if err := plan.Validate(); err != nil {
		return nil, nil, &core.AllocationError{PlanID: plan.ID, Msg: err.Error()}
	}
	if frameW <= 0 || frameH <= 0 {
		return nil, nil, &core.AllocationError{
			PlanID: plan.ID,
			Msg:    fmt.Sprintf("invalid frame geometry %dx%d", frameW, frameH),
		}
	}

	labels, nested := sequence.DeriveAxes(plan)
	labels = append([]string(nil), labels...)

	shape := make([]int, len(labels))
	for i, l := range labels {
		if s, ok := plan.Axes.Size(l); ok {
			shape[i] = s
		} else {
			shape[i] = 1
		}
	}

	splitChannel := plan.Split.Channel && len(plan.Channels) > 0
	if splitChannel {
		labels, shape = dropAxis(labels, shape, sequence.AxisChannel)
	}

	splitPosition := plan.Split.Position && len(plan.Positions) > 0
	if splitPosition {
		labels, shape = dropAxis(labels, shape, sequence.AxisPosition)
	}

	if nested && !splitPosition {
		if err := checkSubPlanAgreement(plan, labels, shape); err != nil {
			return nil, nil, err
		}
	}

	var groups []GroupSpec
	addGroup := func(id string, s []int, chID, posName string) {
		full := make([]int, 0, len(s)+2)
		full = append(full, s...)
		full = append(full, frameH, frameW)
		groups = append(groups, GroupSpec{
			ID:         id,
			Shape:      full,
			PixelType:  pt,
			ChannelID:  chID,
			PosName:    posName,
		})
	}

	switch {
	case splitPosition:
		for idx, pos := range plan.Positions {
			name := plan.PositionName(idx)
			posShape := append([]int(nil), shape...)
			if pos.Sub != nil {
				for i, l := range labels {
					if s, ok := pos.Sub.Axes.Size(l); ok {
						posShape[i] = s
					}
				}
			}
			if splitChannel {
				for i, ch := range plan.Channels {
					chID := sequence.ChannelID(ch.Config, i)
					addGroup(name+"_"+plan.ID+"_"+chID, posShape, chID, name)
				}
			} else {
				addGroup(name+"_"+plan.ID, posShape, "", name)
			}
		}

	case splitChannel:
		for i, ch := range plan.Channels {
			chID := sequence.ChannelID(ch.Config, i)
			addGroup(plan.ID+"_"+chID, shape, chID, "")
		}

	default:
		addGroup(plan.ID, shape, "", "")
	}

	outLabels := append(labels, "y", "x")
	for i := range groups {
		groups[i].AxisLabels = outLabels
	}
	return outLabels, groups, nil
}

// checkSubPlanAgreement rejects plans whose unsplit positions carry
// sub-plans with conflicting sizes along a shared axis.
func checkSubPlanAgreement(plan *sequence.SequencePlan, labels []string, shape []int) error {
	for i, l := range labels {
		size := -1
		for _, pos := range plan.Positions {
			if pos.Sub == nil {
				continue
			}
			s, ok := pos.Sub.Axes.Size(l)
			if !ok {
				continue
			}
			if size == -1 {
				size = s
			} else if s != size {
				return &core.AllocationError{
					PlanID: plan.ID,
					Msg: fmt.Sprintf("positions disagree on size of shared axis %q (%d vs %d) and positions are not split",
						l, size, s),
				}
			}
		}
		if size != -1 {
			shape[i] = size
		}
	}
	return nil
}

func dropAxis(labels []string, shape []int, name string) ([]string, []int) {
	for i, l := range labels {
		if l == name {
			labels = append(labels[:i], labels[i+1:]...)
			shape = append(shape[:i], shape[i+1:]...)
			return labels, shape
		}
	}
	return labels, shape
}
