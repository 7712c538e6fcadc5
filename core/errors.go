package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineClosed is returned for operations on an engine after Close.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrNotManaged marks events for sequences this engine did not allocate.
	// Such frames pass through unmanaged and are never fatal.
	ErrNotManaged = errors.New("sequence is not managed by this engine")

	// ErrNoActiveRun is returned when a per-run operation (snapshot, cursor)
	// is attempted outside an active run.
	ErrNoActiveRun = errors.New("no active acquisition run")

	// ErrStoreClosed is returned when writing to a backing store after its
	// teardown has begun.
	ErrStoreClosed = errors.New("backing store is closed")
)

// AllocationError reports a sequence plan that could not be turned into
// array groups (malformed axes, conflicting per-position sub-plans, missing
// run metadata). The run proceeds unmanaged.
type AllocationError struct {
	PlanID string
	Msg    string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed for plan %s: %s", e.PlanID, e.Msg)
}

// IsAllocationError checks if an error chain contains an AllocationError.
func IsAllocationError(err error) bool {
	var ae *AllocationError
	return errors.As(err, &ae)
}

// IndexError reports a resolved coordinate that does not fit the
// pre-allocated shape of its group. The frame is rejected; the run continues.
type IndexError struct {
	GroupID string
	Coord   Coord
	Shape   []int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("coordinate %v out of range for group %s with shape %v",
		e.Coord, e.GroupID, e.Shape)
}

// IsIndexError checks if an error chain contains an IndexError.
func IsIndexError(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie)
}

// StoreCreationError reports that backing storage for a group could not be
// allocated. This is fatal for the run: teardown is triggered immediately
// and the error propagates to the caller.
type StoreCreationError struct {
	GroupID string
	Err     error
}

func (e *StoreCreationError) Error() string {
	return fmt.Sprintf("failed to create backing store for group %s: %v", e.GroupID, e.Err)
}

func (e *StoreCreationError) Unwrap() error { return e.Err }

// IsStoreCreationError checks if an error chain contains a StoreCreationError.
func IsStoreCreationError(err error) bool {
	var se *StoreCreationError
	return errors.As(err, &se)
}

// UnknownGroupError reports a resolved group id with no backing store. It is
// a rejection reason, never a panic.
type UnknownGroupError struct {
	GroupID string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("no backing store for group %s", e.GroupID)
}
