package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tranqhuy/clubsched/libs/schedule"
	"github.com/tranqhuy/clubsched/services/desk-gateway/internal/booking"
)

type fakeStore struct {
	entries  []schedule.Entry
	sessions []schedule.CourseSession
	creates  int
	bookErr  error
}

func (f *fakeStore) FetchSchedules(_ context.Context, resourceID string, _ schedule.Date) ([]schedule.Entry, error) {
	var out []schedule.Entry
	for _, e := range f.entries {
		if e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchCourseSessions(_ context.Context, filter booking.SessionFilter) ([]schedule.CourseSession, error) {
	if filter.SessionID == "" {
		return f.sessions, nil
	}
	for _, s := range f.sessions {
		if s.ID == filter.SessionID {
			return []schedule.CourseSession{s}, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateScheduleEntry(_ context.Context, resourceID string, slot schedule.TimeSlot) (schedule.Entry, error) {
	f.creates++
	e := schedule.Entry{ID: "new-entry", ResourceID: resourceID, Slot: slot, Status: schedule.StatusConfirmed}
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeStore) BookCourseSession(_ context.Context, sessionID, memberID string) (booking.Booking, error) {
	if f.bookErr != nil {
		return booking.Booking{}, f.bookErr
	}
	return booking.Booking{ID: "bk-1", SessionID: sessionID, MemberID: memberID, Status: "booked", CreatedAt: time.Now()}, nil
}

func (f *fakeStore) CancelBooking(context.Context, string) error { return nil }

func newTestHandler(t *testing.T, fake *fakeStore) *DeskHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	coord := booking.NewCoordinator(schedule.NewStore(), fake, fake, logger)
	return NewDeskHandler(coord, time.UTC, logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func mustEntry(t *testing.T, id, resourceID, date, start, end string) schedule.Entry {
	t.Helper()
	d, err := schedule.ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	s, err := schedule.ParseClock(start)
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	e, err := schedule.ParseClock(end)
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	slot, err := schedule.NewTimeSlot(d, s, e, time.UTC)
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}
	return schedule.Entry{ID: id, ResourceID: resourceID, Slot: slot, Status: schedule.StatusConfirmed}
}

func TestScheduleShiftConflictReturns409(t *testing.T) {
	fake := &fakeStore{entries: []schedule.Entry{
		mustEntry(t, "e1", "coach-7", "2026-09-01", "09:00", "11:00"),
	}}
	h := newTestHandler(t, fake)

	body := `{"resource_id":"coach-7","date":"2026-09-01","start":"10:00","end":"12:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/desk/shifts", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.ScheduleShift(rw, req)

	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rw.Code, rw.Body.String())
	}
	if fake.creates != 0 {
		t.Fatalf("remote store must not be written on a local conflict, got %d creates", fake.creates)
	}
	var resp conflictResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode conflict response: %v", err)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].EntryID != "e1" {
		t.Fatalf("unexpected conflicts %+v", resp.Conflicts)
	}
}

func TestScheduleShiftAdjacentSucceeds(t *testing.T) {
	fake := &fakeStore{entries: []schedule.Entry{
		mustEntry(t, "e1", "coach-7", "2026-09-01", "09:00", "11:00"),
	}}
	h := newTestHandler(t, fake)

	body := `{"resource_id":"coach-7","date":"2026-09-01","start":"11:00","end":"13:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/desk/shifts", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.ScheduleShift(rw, req)

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if fake.creates != 1 {
		t.Fatalf("expected one remote create, got %d", fake.creates)
	}
}

func TestScheduleShiftRejectsBadClock(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	body := `{"resource_id":"coach-7","date":"2026-09-01","start":"9am","end":"11:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/desk/shifts", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.ScheduleShift(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestBookSessionFullReturns422(t *testing.T) {
	slot, _ := schedule.NewTimeSlot(schedule.Date{Year: 2026, Month: time.September, Day: 1}, 18*60, 19*60, time.UTC)
	fake := &fakeStore{sessions: []schedule.CourseSession{
		{ID: "sess-1", CourseID: "yoga", Title: "Evening Yoga", Capacity: 10, BookedCount: 10, Slot: slot},
	}}
	h := newTestHandler(t, fake)

	body := `{"session_id":"sess-1","member_id":"member-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/desk/bookings", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.BookSession(rw, req)

	if rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestBookSessionRemoteCapacityRejectionWins(t *testing.T) {
	slot, _ := schedule.NewTimeSlot(schedule.Date{Year: 2026, Month: time.September, Day: 1}, 18*60, 19*60, time.UTC)
	fake := &fakeStore{
		sessions: []schedule.CourseSession{
			{ID: "sess-1", CourseID: "yoga", Title: "Evening Yoga", Capacity: 10, BookedCount: 9, Slot: slot},
		},
		bookErr: &booking.CapacityError{SessionID: "sess-1"},
	}
	h := newTestHandler(t, fake)

	body := `{"session_id":"sess-1","member_id":"member-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/desk/bookings", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.BookSession(rw, req)

	if rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 from authoritative rejection, got %d", rw.Code)
	}
}

func TestListSessionsIncludesDisplayState(t *testing.T) {
	slot, _ := schedule.NewTimeSlot(schedule.Date{Year: 2026, Month: time.September, Day: 1}, 18*60, 19*60, time.UTC)
	fake := &fakeStore{sessions: []schedule.CourseSession{
		{ID: "sess-1", CourseID: "yoga", Title: "Evening Yoga", Capacity: 10, BookedCount: 10, Slot: slot},
	}}
	h := newTestHandler(t, fake)
	h.now = func() time.Time {
		return time.Date(2026, time.September, 1, 17, 30, 0, 0, time.UTC)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/desk/sessions", nil)
	rw := httptest.NewRecorder()
	h.ListSessions(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var out []sessionResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d sessions", len(out))
	}
	// Full beats upcoming-soon even inside the final hour.
	if out[0].State != "full" {
		t.Fatalf("state = %q, want full", out[0].State)
	}
	if out[0].Remaining != 0 {
		t.Fatalf("remaining = %d", out[0].Remaining)
	}
}

func TestListSchedulesFiltersByResource(t *testing.T) {
	fake := &fakeStore{entries: []schedule.Entry{
		mustEntry(t, "e1", "coach-7", "2026-09-01", "09:00", "11:00"),
	}}
	h := newTestHandler(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/desk/schedules?resource_id=coach-7&date=2026-09-01", nil)
	rw := httptest.NewRecorder()
	h.ListSchedules(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var out []shiftResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Start != "09:00" || out[0].End != "11:00" {
		t.Fatalf("unexpected schedule list %+v", out)
	}
}
