package schedule

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRange = errors.New("slot start must be before slot end")

const minutesPerDay = 24 * 60

// Date is a timezone-naive calendar day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeSlot is a half-open interval [Start, End) of minutes-of-day on a calendar
// date, anchored in an IANA timezone. Comparisons happen on absolute instants,
// never on formatted clock strings.
type TimeSlot struct {
	Date     Date
	StartMin int
	EndMin   int
	Location *time.Location
}

// NewTimeSlot builds a slot from minute-of-day bounds. A nil location means UTC.
func NewTimeSlot(date Date, startMin, endMin int, loc *time.Location) (TimeSlot, error) {
	if startMin < 0 || endMin > minutesPerDay || startMin >= endMin {
		return TimeSlot{}, ErrInvalidRange
	}
	if loc == nil {
		loc = time.UTC
	}
	return TimeSlot{Date: date, StartMin: startMin, EndMin: endMin, Location: loc}, nil
}

// ParseClock converts "HH:mm" to a minute-of-day integer.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid clock value %q (want HH:mm)", s)
	}
	h, err := atoi2(s[0:2])
	if err != nil || h > 23 {
		return 0, fmt.Errorf("invalid clock value %q (want HH:mm)", s)
	}
	m, err := atoi2(s[3:5])
	if err != nil || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q (want HH:mm)", s)
	}
	return h*60 + m, nil
}

// FormatClock renders a minute-of-day integer as "HH:mm".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

func atoi2(s string) (int, error) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, errors.New("not a two-digit number")
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), nil
}

// StartTime returns the slot's start as an absolute instant in its location.
func (s TimeSlot) StartTime() time.Time {
	return time.Date(s.Date.Year, s.Date.Month, s.Date.Day, s.StartMin/60, s.StartMin%60, 0, 0, s.loc())
}

// EndTime returns the slot's (exclusive) end as an absolute instant.
func (s TimeSlot) EndTime() time.Time {
	return time.Date(s.Date.Year, s.Date.Month, s.Date.Day, s.EndMin/60, s.EndMin%60, 0, 0, s.loc())
}

// Overlaps reports whether two half-open slots intersect. The slots are
// normalized to absolute instants first, so slots in different timezones
// compare correctly. Touching boundaries (a.End == b.Start) do not overlap,
// which is what back-to-back shifts rely on.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.StartTime().Before(other.EndTime()) && other.StartTime().Before(s.EndTime())
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s %s", s.Date, FormatClock(s.StartMin), FormatClock(s.EndMin), s.loc().String())
}

func (s TimeSlot) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// SlotFromTimes converts an absolute [start, end) interval into a TimeSlot
// expressed in loc. It fails if the interval is inverted or does not fit
// within a single calendar day in loc.
func SlotFromTimes(start, end time.Time, loc *time.Location) (TimeSlot, error) {
	if loc == nil {
		loc = time.UTC
	}
	if !end.After(start) {
		return TimeSlot{}, ErrInvalidRange
	}
	localStart := start.In(loc)
	date := Date{Year: localStart.Year(), Month: localStart.Month(), Day: localStart.Day()}
	startMin := localStart.Hour()*60 + localStart.Minute()
	endMin := startMin + int(end.Sub(start)/time.Minute)
	if endMin > minutesPerDay {
		return TimeSlot{}, fmt.Errorf("interval %s..%s crosses a day boundary in %s", start.Format(time.RFC3339), end.Format(time.RFC3339), loc)
	}
	return TimeSlot{Date: date, StartMin: startMin, EndMin: endMin, Location: loc}, nil
}
