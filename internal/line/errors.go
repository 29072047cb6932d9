package line

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("line not found")
	ErrSelfMerge = errors.New("cannot merge a line into itself")

	// ErrStatusReserved rejects attempts to set the merged status through a
	// generic update; merged state is owned by the merge operation.
	ErrStatusReserved = errors.New("status merged can only be set by a merge")
)

type InvalidStateError struct {
	Current  Status
	Required Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("line is not %s (current status: %s)", e.Required, e.Current)
}

// AlreadyMergedError reports a merge attempt whose source is already merged,
// including the existing target so the caller can retry against it.
type AlreadyMergedError struct {
	ID         string
	MergedInto string
}

func (e *AlreadyMergedError) Error() string {
	return fmt.Sprintf("line %s is already merged into line %s", e.ID, e.MergedInto)
}

// TargetMergedError reports a merge attempt into a line that was itself
// merged away; chains deeper than one hop are disallowed.
type TargetMergedError struct {
	ID         string
	MergedInto string
}

func (e *TargetMergedError) Error() string {
	return fmt.Sprintf("cannot merge into line %s: it is already merged into line %s", e.ID, e.MergedInto)
}
