package core

// WriteStatus classifies the result of handling one frame.
type WriteStatus uint8

const (
	// StatusWritten means the frame landed in its group at Coord.
	StatusWritten WriteStatus = iota
	// StatusRejected means the frame was not written; Reason says why.
	// Rejection never aborts the acquisition loop.
	StatusRejected
)

func (s WriteStatus) String() string {
	if s == StatusWritten {
		return "written"
	}
	return "rejected"
}

// WriteOutcome is the value returned across the per-frame boundary. All
// per-frame failures are folded into it; the acquisition loop never
// observes a panic or an error return from the stream writer.
type WriteOutcome struct {
	Status  WriteStatus
	GroupID string
	Coord   Coord
	Reason  error
}

// Written builds a successful outcome.
func Written(groupID string, coord Coord) WriteOutcome {
	return WriteOutcome{Status: StatusWritten, GroupID: groupID, Coord: coord}
}

// Rejected builds a failed outcome carrying the rejection reason.
func Rejected(reason error) WriteOutcome {
	return WriteOutcome{Status: StatusRejected, Reason: reason}
}
