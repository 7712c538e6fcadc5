package core

import (
	"strconv"
	"strings"
)

// Coord is an n-dimensional index into an array group, ordered the same way
// as the group's axis labels (frame plane axes excluded).
type Coord []int

// Clone returns an independent copy. Cursors retain coordinates beyond the
// lifetime of the event they came from, so they must not alias.
func (c Coord) Clone() Coord {
	out := make(Coord, len(c))
	copy(out, c)
	return out
}

// Less reports whether c orders lexicographically before other. A shorter
// coordinate that is a prefix of a longer one orders first. This ordering is
// what makes the per-group high-water mark well defined.
func (c Coord) Less(other Coord) bool {
	n := len(c)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return len(c) < len(other)
}

// Equal reports whether both coordinates are identical.
func (c Coord) Equal(other Coord) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// In reports whether the coordinate fits the given shape. Both must have the
// same cardinality.
func (c Coord) In(shape []int) bool {
	if len(c) != len(shape) {
		return false
	}
	for i, v := range c {
		if v < 0 || v >= shape[i] {
			return false
		}
	}
	return true
}

func (c Coord) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
