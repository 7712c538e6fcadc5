package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxisPlanValidate(t *testing.T) {
	testCases := []struct {
		name    string
		axes    AxisPlan
		wantErr string
	}{
		{"valid", AxisPlan{{AxisTime, 4}, {AxisChannel, 2}}, ""},
		{"empty plan", AxisPlan{}, ""},
		{"empty name", AxisPlan{{"", 3}}, "empty name"},
		{"duplicate", AxisPlan{{AxisTime, 4}, {AxisTime, 2}}, "duplicate axis"},
		{"zero size", AxisPlan{{AxisZ, 0}}, "must be >= 1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.axes.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestPlanValidateRecursesIntoSubPlans(t *testing.T) {
	plan := &SequencePlan{
		ID:   "run1",
		Axes: AxisPlan{{AxisTime, 2}},
		Positions: []Position{
			{Name: "A1", Sub: &SequencePlan{ID: "sub1", Axes: AxisPlan{{AxisGrid, 0}}}},
		},
	}
	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position")
}

func TestDeriveAxesCollapsesSingletons(t *testing.T) {
	plan := &SequencePlan{
		ID:   "run1",
		Axes: AxisPlan{{AxisTime, 4}, {AxisChannel, 2}, {AxisZ, 1}},
	}
	labels, nested := DeriveAxes(plan)
	assert.False(t, nested)
	assert.Equal(t, []string{AxisTime, AxisChannel}, labels)
}

func TestDeriveAxesPrefersSubPlan(t *testing.T) {
	sub := &SequencePlan{ID: "sub1", Axes: AxisPlan{{AxisGrid, 4}, {AxisZ, 3}}}
	plan := &SequencePlan{
		ID:        "run1",
		Axes:      AxisPlan{{AxisTime, 2}},
		Positions: []Position{{Name: "A1"}, {Name: "B1", Sub: sub}},
	}
	labels, nested := DeriveAxes(plan)
	assert.True(t, nested)
	assert.Equal(t, []string{AxisGrid, AxisZ}, labels)
}

func TestChannelID(t *testing.T) {
	assert.Equal(t, "DAPI_000", ChannelID("DAPI", 0))
	assert.Equal(t, "FITC_012", ChannelID("FITC", 12))
	// duplicate configs stay distinct through the table index
	assert.NotEqual(t, ChannelID("DAPI", 0), ChannelID("DAPI", 1))
}

func TestPositionNames(t *testing.T) {
	plan := &SequencePlan{
		ID:        "run1",
		Axes:      AxisPlan{{AxisTime, 2}},
		Positions: []Position{{Name: "A1"}, {}},
	}
	assert.Equal(t, "A1", plan.PositionName(0))
	assert.Equal(t, "Pos001", plan.PositionName(1))
	assert.Equal(t, "Pos042", GeneratedPositionName(42))
}

func TestNewPlanIDUnique(t *testing.T) {
	a, b := NewPlanID(), NewPlanID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestIterateRowMajor(t *testing.T) {
	plan := &SequencePlan{
		ID:       "run1",
		Axes:     AxisPlan{{AxisTime, 2}, {AxisChannel, 2}, {AxisZ, 3}},
		Channels: []Channel{{Config: "DAPI"}, {Config: "FITC"}},
	}
	events := Iterate(plan)
	require.Len(t, events, 12)

	// last axis varies fastest
	assert.Equal(t, 0, events[0].Coordinate(AxisZ))
	assert.Equal(t, 1, events[1].Coordinate(AxisZ))
	assert.Equal(t, 2, events[2].Coordinate(AxisZ))
	assert.Equal(t, "DAPI", events[0].Channel)
	assert.Equal(t, "FITC", events[3].Channel)
	assert.Equal(t, 1, events[11].Coordinate(AxisTime))

	for _, ev := range events {
		assert.Equal(t, "run1", ev.SequenceID)
	}
}

func TestIteratePositionsOutermost(t *testing.T) {
	plan := &SequencePlan{
		ID:        "run1",
		Axes:      AxisPlan{{AxisPosition, 2}, {AxisTime, 3}},
		Positions: []Position{{Name: "A1"}, {Name: "B1"}},
	}
	events := Iterate(plan)
	require.Len(t, events, 6)
	assert.Equal(t, "A1", events[0].PosName)
	assert.Equal(t, 0, events[0].Coordinate(AxisPosition))
	assert.Equal(t, "B1", events[3].PosName)
	assert.Equal(t, 1, events[3].Coordinate(AxisPosition))
	assert.Equal(t, 2, events[5].Coordinate(AxisTime))
}

func TestIterateSubPlanOverridesSizes(t *testing.T) {
	sub := &SequencePlan{ID: "sub1", Axes: AxisPlan{{AxisGrid, 4}}}
	plan := &SequencePlan{
		ID:        "run1",
		Axes:      AxisPlan{{AxisGrid, 2}},
		Positions: []Position{{Name: "A1", Sub: sub}, {Name: "B1"}},
	}
	events := Iterate(plan)
	// A1 iterates its own 4-step grid, B1 falls back to the parent's 2.
	require.Len(t, events, 6)
	assert.Equal(t, 3, events[3].Coordinate(AxisGrid))
	assert.Equal(t, "B1", events[4].PosName)
}

func TestIterateSingleChannelStillTagsEvents(t *testing.T) {
	plan := &SequencePlan{
		ID:       "run1",
		Axes:     AxisPlan{{AxisTime, 2}, {AxisChannel, 1}},
		Channels: []Channel{{Config: "DAPI"}},
	}
	events := Iterate(plan)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "DAPI", ev.Channel)
	}
}

func TestEventCoordinateDefaultsToZero(t *testing.T) {
	ev := &AcquisitionEvent{Index: map[string]int{AxisTime: 3}}
	assert.Equal(t, 3, ev.Coordinate(AxisTime))
	assert.Equal(t, 0, ev.Coordinate(AxisZ))

	var nilIndex AcquisitionEvent
	assert.Equal(t, 0, nilIndex.Coordinate(AxisTime))
}
