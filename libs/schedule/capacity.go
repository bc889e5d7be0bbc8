package schedule

import (
	"errors"
	"time"
)

var ErrCapacityExceeded = errors.New("course session is fully booked")

// CourseSession is a bookable class occurrence with a fixed seat count.
type CourseSession struct {
	ID          string
	CourseID    string
	Title       string
	Capacity    int
	BookedCount int
	Slot        TimeSlot
}

func (s CourseSession) Remaining() int {
	r := s.Capacity - s.BookedCount
	if r < 0 {
		return 0
	}
	return r
}

func (s CourseSession) IsFull() bool {
	return s.Remaining() <= 0
}

// SessionState classifies how a session should be presented.
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionFull
	SessionUpcomingSoon
)

func (s SessionState) String() string {
	switch s {
	case SessionFull:
		return "full"
	case SessionUpcomingSoon:
		return "upcoming_soon"
	default:
		return "open"
	}
}

func CanBook(s CourseSession) bool {
	return s.BookedCount < s.Capacity
}

// Classify returns the session's display state. A full session is always
// reported full, even when its start is imminent. UpcomingSoon holds when the
// session starts within the next hour.
func Classify(s CourseSession, now time.Time) SessionState {
	if !CanBook(s) {
		return SessionFull
	}
	start := s.Slot.StartTime()
	if now.Before(start) && !start.After(now.Add(time.Hour)) {
		return SessionUpcomingSoon
	}
	return SessionOpen
}

// ApplyBooking returns a copy with one more seat taken. The input is left
// unchanged when the session is already full.
func ApplyBooking(s CourseSession) (CourseSession, error) {
	if !CanBook(s) {
		return s, ErrCapacityExceeded
	}
	s.BookedCount++
	return s, nil
}

// ApplyCancellation returns a copy with one seat released, floored at zero.
func ApplyCancellation(s CourseSession) CourseSession {
	if s.BookedCount > 0 {
		s.BookedCount--
	}
	return s
}
