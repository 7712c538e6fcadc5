package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/sequence"
)

func TestAllocateNoSplitSingleGroup(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:       "run1",
		Axes:     sequence.AxisPlan{{Name: "t", Size: 4}, {Name: "c", Size: 2}, {Name: "z", Size: 1}},
		Channels: []sequence.Channel{{Config: "DAPI"}, {Config: "FITC"}},
	}
	labels, groups, err := Allocate(plan, 512, 512, core.PixelUint16)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	// the singleton z axis collapses out of the shape
	assert.Equal(t, []string{"t", "c", "y", "x"}, labels)
	assert.Equal(t, "run1", groups[0].ID)
	assert.Equal(t, []int{4, 2, 512, 512}, groups[0].Shape)
	assert.Equal(t, core.PixelUint16, groups[0].PixelType)
}

func TestAllocateChannelSplit(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:       "run1",
		Axes:     sequence.AxisPlan{{Name: "t", Size: 3}, {Name: "c", Size: 2}},
		Channels: []sequence.Channel{{Config: "DAPI"}, {Config: "DAPI"}},
		Split:    sequence.SplitPolicy{Channel: true},
	}
	labels, groups, err := Allocate(plan, 64, 48, core.PixelUint8)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []string{"t", "y", "x"}, labels)
	// duplicate channel configs stay distinct through the table index
	assert.Equal(t, "run1_DAPI_000", groups[0].ID)
	assert.Equal(t, "run1_DAPI_001", groups[1].ID)
	for _, g := range groups {
		assert.Equal(t, []int{3, 48, 64}, g.Shape)
	}
}

func TestAllocatePositionSplit(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:        "run1",
		Axes:      sequence.AxisPlan{{Name: "p", Size: 2}, {Name: "t", Size: 5}},
		Positions: []sequence.Position{{Name: "A1"}, {}},
		Split:     sequence.SplitPolicy{Position: true},
	}
	labels, groups, err := Allocate(plan, 32, 32, core.PixelUint16)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []string{"t", "y", "x"}, labels)
	assert.Equal(t, "A1_run1", groups[0].ID)
	assert.Equal(t, "Pos001_run1", groups[1].ID)
	assert.Equal(t, "A1", groups[0].PosName)
}

func TestAllocatePositionAndChannelSplit(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:        "run1",
		Axes:      sequence.AxisPlan{{Name: "p", Size: 2}, {Name: "t", Size: 2}, {Name: "c", Size: 2}},
		Channels:  []sequence.Channel{{Config: "DAPI"}, {Config: "FITC"}},
		Positions: []sequence.Position{{Name: "A1"}, {Name: "B1"}},
		Split:     sequence.SplitPolicy{Channel: true, Position: true},
	}
	_, groups, err := Allocate(plan, 16, 16, core.PixelUint16)
	require.NoError(t, err)
	require.Len(t, groups, 4)
	assert.Equal(t, "A1_run1_DAPI_000", groups[0].ID)
	assert.Equal(t, "B1_run1_FITC_001", groups[3].ID)
}

func TestAllocateSubPlanOverridesPerPosition(t *testing.T) {
	sub := &sequence.SequencePlan{ID: "sub1", Axes: sequence.AxisPlan{{Name: "g", Size: 4}, {Name: "z", Size: 3}}}
	plan := &sequence.SequencePlan{
		ID:        "run1",
		Axes:      sequence.AxisPlan{{Name: "t", Size: 2}},
		Positions: []sequence.Position{{Name: "A1", Sub: sub}, {Name: "B1", Sub: sub}},
		Split:     sequence.SplitPolicy{Position: true},
	}
	labels, groups, err := Allocate(plan, 8, 8, core.PixelUint16)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"g", "z", "y", "x"}, labels)
	assert.Equal(t, []int{4, 3, 8, 8}, groups[0].Shape)
}

func TestAllocateConflictingSubPlansRejectedWhenUnsplit(t *testing.T) {
	subA := &sequence.SequencePlan{ID: "subA", Axes: sequence.AxisPlan{{Name: "g", Size: 4}}}
	subB := &sequence.SequencePlan{ID: "subB", Axes: sequence.AxisPlan{{Name: "g", Size: 9}}}
	plan := &sequence.SequencePlan{
		ID:        "run1",
		Axes:      sequence.AxisPlan{{Name: "t", Size: 2}},
		Positions: []sequence.Position{{Name: "A1", Sub: subA}, {Name: "B1", Sub: subB}},
	}
	_, _, err := Allocate(plan, 8, 8, core.PixelUint16)
	require.Error(t, err)
	assert.True(t, core.IsAllocationError(err))
	assert.Contains(t, err.Error(), "disagree")
}

func TestAllocateRejectsBadGeometryAndPlans(t *testing.T) {
	plan := &sequence.SequencePlan{ID: "run1", Axes: sequence.AxisPlan{{Name: "t", Size: 2}}}

	_, _, err := Allocate(plan, 0, 512, core.PixelUint16)
	assert.True(t, core.IsAllocationError(err))

	_, _, err = Allocate(&sequence.SequencePlan{ID: "bad"}, 512, 512, core.PixelUint16)
	assert.True(t, core.IsAllocationError(err))
}

func TestResolveMatchesAllocatedCardinality(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:       "run1",
		Axes:     sequence.AxisPlan{{Name: "t", Size: 4}, {Name: "c", Size: 2}, {Name: "z", Size: 1}},
		Channels: []sequence.Channel{{Config: "DAPI"}, {Config: "FITC"}},
	}
	_, groups, err := Allocate(plan, 512, 512, core.PixelUint16)
	require.NoError(t, err)
	outer := groups[0].Shape[:len(groups[0].Shape)-2]

	r := NewResolver(plan)
	seen := make(map[string]bool)
	for _, ev := range sequence.Iterate(plan) {
		id, coord := r.Resolve(&ev)
		assert.Equal(t, "run1", id)
		require.True(t, coord.In(outer), "coord %v outside %v", coord, outer)
		key := id + coord.String()
		assert.False(t, seen[key], "coordinate resolved twice: %s", key)
		seen[key] = true
	}
	// all 8 (t,c) combinations hit exactly once
	assert.Len(t, seen, 8)
}

func TestResolveChannelSplit(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:       "run1",
		Axes:     sequence.AxisPlan{{Name: "t", Size: 2}, {Name: "c", Size: 2}},
		Channels: []sequence.Channel{{Config: "DAPI"}, {Config: "FITC"}},
		Split:    sequence.SplitPolicy{Channel: true},
	}
	r := NewResolver(plan)

	ev := &sequence.AcquisitionEvent{
		Index:   map[string]int{"t": 1, "c": 1},
		Channel: "FITC",
	}
	id, coord := r.Resolve(ev)
	assert.Equal(t, "run1_FITC_001", id)
	assert.Equal(t, core.Coord{1}, coord)
}

func TestResolvePositionIsolation(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:        "run1",
		Axes:      sequence.AxisPlan{{Name: "p", Size: 2}, {Name: "t", Size: 3}},
		Positions: []sequence.Position{{Name: "A1"}, {Name: "B1"}},
		Split:     sequence.SplitPolicy{Position: true},
	}
	r := NewResolver(plan)
	for _, ev := range sequence.Iterate(plan) {
		id, _ := r.Resolve(&ev)
		want := fmt.Sprintf("%s_run1", ev.PosName)
		assert.Equal(t, want, id, "event %s landed in the wrong group", ev.String())
	}
}

func TestResolveMissingAxesDefaultToZero(t *testing.T) {
	plan := &sequence.SequencePlan{
		ID:   "run1",
		Axes: sequence.AxisPlan{{Name: "t", Size: 4}, {Name: "z", Size: 5}},
	}
	r := NewResolver(plan)
	id, coord := r.Resolve(&sequence.AcquisitionEvent{Index: map[string]int{"t": 2}})
	assert.Equal(t, "run1", id)
	assert.Equal(t, core.Coord{2, 0}, coord)
}
