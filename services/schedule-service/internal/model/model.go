package model

import "time"

// ShiftEntry is a coach shift on the club calendar. Confirmed entries for the
// same resource must not overlap; the database exclusion constraint is the
// authoritative guard.
type ShiftEntry struct {
	ID         string
	ResourceID string
	StartsAt   time.Time
	EndsAt     time.Time
	Status     string
	CanceledAt *time.Time
	CreatedAt  time.Time
}

// CourseSession is a bookable class occurrence with a fixed seat count.
type CourseSession struct {
	ID          string
	CourseID    string
	Title       string
	Capacity    int
	BookedCount int
	StartsAt    time.Time
	EndsAt      time.Time
	CreatedAt   time.Time
}

// Booking is one member's seat in a course session. Cancellation is a soft
// status change; the row is kept.
type Booking struct {
	ID         string
	SessionID  string
	MemberID   string
	Status     string
	CreatedAt  time.Time
	CanceledAt *time.Time
}
