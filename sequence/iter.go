package sequence

// Iterate expands a plan into the event stream an acquisition engine would
// produce for it: positions outermost, then the remaining effective axes in
// plan order. Per-position sub-plan size overrides are honored. It exists
// for the simulator and for tests; a real engine owns its own timing.
func Iterate(p *SequencePlan) []AcquisitionEvent {
	labels, _ := DeriveAxes(p)

	inner := make([]string, 0, len(labels))
	for _, l := range labels {
		if l != AxisPosition {
			inner = append(inner, l)
		}
	}

	var events []AcquisitionEvent

	emit := func(posIdx int, pos *Position) {
		sizes := make([]int, len(inner))
		for i, l := range inner {
			sizes[i] = axisSize(p, pos, l)
		}
		coord := make([]int, len(inner))
		for {
			ev := AcquisitionEvent{
				Index:      make(map[string]int, len(inner)+1),
				SequenceID: p.ID,
			}
			for i, l := range inner {
				ev.Index[l] = coord[i]
				if l == AxisChannel && coord[i] < len(p.Channels) {
					ev.Channel = p.Channels[coord[i]].Config
				}
			}
			if ev.Channel == "" && len(p.Channels) > 0 {
				ev.Channel = p.Channels[0].Config
			}
			if posIdx >= 0 {
				ev.Index[AxisPosition] = posIdx
				if pos != nil {
					ev.PosName = pos.Name
				}
			}
			events = append(events, ev)

			// row-major advance, last axis fastest
			i := len(coord) - 1
			for ; i >= 0; i-- {
				coord[i]++
				if coord[i] < sizes[i] {
					break
				}
				coord[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}

	if len(p.Positions) > 0 {
		for idx := range p.Positions {
			emit(idx, &p.Positions[idx])
		}
	} else if n, ok := p.Axes.Size(AxisPosition); ok {
		for idx := 0; idx < n; idx++ {
			emit(idx, nil)
		}
	} else {
		emit(-1, nil)
	}
	return events
}

// axisSize resolves the extent of one axis for a given position: the
// position's own sub-plan wins, then the parent plan, then 1.
func axisSize(p *SequencePlan, pos *Position, label string) int {
	if pos != nil && pos.Sub != nil {
		if s, ok := pos.Sub.Axes.Size(label); ok {
			return s
		}
	}
	if s, ok := p.Axes.Size(label); ok {
		return s
	}
	return 1
}
