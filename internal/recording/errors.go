package recording

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("recording session not found")
	ErrLineNotFound = errors.New("line not found")
	ErrEmptyBatch   = errors.New("batch cannot be empty")

	// ErrOutOfRange rejects sensor values outside their documented bounds
	// (bearing and magnetic heading live in [0,360)).
	ErrOutOfRange = errors.New("value out of range")
)

type InvalidStateError struct {
	Current  Status
	Required Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session is not %s (current status: %s)", e.Required, e.Current)
}

// MergedLineError rejects ending a session against a merged line; the
// surviving target is included so the client can retry against it.
type MergedLineError struct {
	LineID     string
	MergedInto string
}

func (e *MergedLineError) Error() string {
	return fmt.Sprintf("cannot assign merged line %s; use line %s instead", e.LineID, e.MergedInto)
}
