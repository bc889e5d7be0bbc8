package booking

import (
	"errors"
	"fmt"

	"github.com/tranqhuy/clubsched/libs/schedule"
)

// ErrSubmitInFlight is returned when a second submission is attempted while
// one is still awaiting the remote store. The UI is expected to disable the
// trigger, but the coordinator enforces it anyway.
var ErrSubmitInFlight = errors.New("a submission is already in flight")

// ErrUnknownSession is returned when a booking targets a session that is not
// in the local snapshot; the caller should refresh and retry explicitly.
var ErrUnknownSession = errors.New("session not in local snapshot")

// ConflictError reports that a candidate slot overlaps existing confirmed
// entries. The local check lists the colliding entries; a remote rejection
// carries none, because the server is the arbiter and does not echo detail.
type ConflictError struct {
	Entries []schedule.Entry
}

func (e *ConflictError) Error() string {
	if len(e.Entries) == 0 {
		return "time slot conflicts with an existing entry"
	}
	return fmt.Sprintf("time slot conflicts with %d existing entries", len(e.Entries))
}

// CapacityError reports that a course session has no remaining seats.
type CapacityError struct {
	SessionID string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("course session %s is fully booked", e.SessionID)
}

// FetchError wraps a failed read against the remote store. Reads are safe to
// retry on explicit user action.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "schedule fetch failed: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// WriteError wraps a failed write. Writes are never retried automatically:
// resubmitting the same parameters could double-book.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "schedule write failed: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }
