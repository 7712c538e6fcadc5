// Package sequence holds the immutable description of an acquisition plan:
// its axes, channel and position tables, splitting configuration, and the
// events produced by iterating it. It is pure data plus a few derivations;
// all behavior lives in the layout, store, and engine packages.
package sequence

import (
	"fmt"

	"github.com/google/uuid"
)

// Well-known axis names. Plans are free to use others; these are the ones
// the splitting rules and default offload predicate care about.
const (
	AxisTime     = "t"
	AxisPosition = "p"
	AxisGrid     = "g"
	AxisChannel  = "c"
	AxisZ        = "z"
)

// Axis is one named dimension of an acquisition and its extent.
type Axis struct {
	Name string
	Size int
}

// AxisPlan is an ordered list of axes. Order is significant: it is the
// storage order of the resulting arrays.
type AxisPlan []Axis

// Size returns the extent of the named axis, if present.
func (a AxisPlan) Size(name string) (int, bool) {
	for _, ax := range a {
		if ax.Name == name {
			return ax.Size, true
		}
	}
	return 0, false
}

// Names returns the axis names in plan order.
func (a AxisPlan) Names() []string {
	out := make([]string, len(a))
	for i, ax := range a {
		out[i] = ax.Name
	}
	return out
}

// Validate enforces the axis-plan invariants: unique names, sizes >= 1.
func (a AxisPlan) Validate() error {
	seen := make(map[string]struct{}, len(a))
	for _, ax := range a {
		if ax.Name == "" {
			return fmt.Errorf("axis with empty name")
		}
		if _, dup := seen[ax.Name]; dup {
			return fmt.Errorf("duplicate axis %q", ax.Name)
		}
		seen[ax.Name] = struct{}{}
		if ax.Size < 1 {
			return fmt.Errorf("axis %q has size %d, must be >= 1", ax.Name, ax.Size)
		}
	}
	return nil
}

// SplitPolicy decides whether the channel and/or position axis becomes a
// selector across separate array groups instead of a dimension of one array.
type SplitPolicy struct {
	Channel  bool
	Position bool
}

// Channel is one entry of the plan's channel table. Config is the channel's
// configuration preset name (e.g. "DAPI"); duplicates are allowed and are
// disambiguated by table index.
type Channel struct {
	Config string
}

// Position is one entry of the plan's position table. A position may carry
// its own nested sub-plan whose sizes override that position's contribution
// along shared axes (per-position grid or autofocus nesting).
type Position struct {
	Name string
	Sub  *SequencePlan
}

// RunMeta is the configuration surface handed in from the GUI layer. It is
// opaque to the materializer beyond selecting temporary vs persistent
// backing. A plan without RunMeta is not a managed run.
type RunMeta struct {
	Persist bool
	Dir     string
	Name    string
}

// SequencePlan is the full declarative acquisition plan. It is constructed
// once before a run starts and never mutated while the run is active.
type SequencePlan struct {
	ID        string
	Axes      AxisPlan
	Channels  []Channel
	Positions []Position
	Split     SplitPolicy
	Meta      *RunMeta
}

// NewPlanID returns a fresh unique plan identifier.
func NewPlanID() string {
	return uuid.NewString()
}

// Validate checks the plan and any nested sub-plans.
func (p *SequencePlan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan has no id")
	}
	if len(p.Axes) == 0 {
		return fmt.Errorf("plan %s has no axes", p.ID)
	}
	if err := p.Axes.Validate(); err != nil {
		return fmt.Errorf("plan %s: %w", p.ID, err)
	}
	for i, pos := range p.Positions {
		if pos.Sub == nil {
			continue
		}
		if err := pos.Sub.Validate(); err != nil {
			return fmt.Errorf("position %d (%s): %w", i, pos.Name, err)
		}
	}
	return nil
}

// PositionName returns the declared name of position idx, or the generated
// placeholder used when a position is unnamed.
func (p *SequencePlan) PositionName(idx int) string {
	if idx >= 0 && idx < len(p.Positions) && p.Positions[idx].Name != "" {
		return p.Positions[idx].Name
	}
	return GeneratedPositionName(idx)
}

// GeneratedPositionName is the placeholder id for an unnamed position.
func GeneratedPositionName(idx int) string {
	return fmt.Sprintf("Pos%03d", idx)
}

// ChannelID returns the disambiguated identifier for channel table entry i:
// the config name suffixed with the table index, so duplicate configs within
// one plan still map to distinct groups.
func ChannelID(config string, i int) string {
	return fmt.Sprintf("%s_%03d", config, i)
}

// DeriveAxes returns the effective axis labels for the plan, excluding the
// frame plane. Axes of size 1 collapse out: a single timepoint or single z
// slice contributes no array dimension. When any position carries a nested
// sub-plan, the labels come from the first such position's sub-plan instead
// of the parent; nested reports whether that happened. The allocator and
// the resolver both go through this single derivation so their orderings
// cannot drift.
func DeriveAxes(p *SequencePlan) (labels []string, nested bool) {
	for _, pos := range p.Positions {
		if pos.Sub != nil {
			return usedAxisNames(pos.Sub.Axes), true
		}
	}
	return usedAxisNames(p.Axes), false
}

// usedAxisNames returns the names of the axes that contribute a dimension.
func usedAxisNames(a AxisPlan) []string {
	out := make([]string, 0, len(a))
	for _, ax := range a {
		if ax.Size > 1 {
			out = append(out, ax.Name)
		}
	}
	return out
}
