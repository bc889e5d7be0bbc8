package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tranqhuy/clubsched/libs/schedule"
	"github.com/tranqhuy/clubsched/services/desk-gateway/internal/booking"
)

func TestFetchSchedulesConvertsWireTimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/shifts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("resource_id"); got != "coach-7" {
			t.Errorf("resource_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"entry_id":"e1","resource_id":"coach-7","start_time":"2026-09-01T09:00:00Z","end_time":"2026-09-01T11:00:00Z","status":"confirmed"},
			{"entry_id":"e2","resource_id":"coach-7","start_time":"2026-09-01T12:00:00Z","end_time":"2026-09-01T13:00:00Z","status":"canceled"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC, nil)
	entries, err := c.FetchSchedules(context.Background(), "coach-7", schedule.Date{Year: 2026, Month: time.September, Day: 1})
	if err != nil {
		t.Fatalf("FetchSchedules: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Slot.StartMin != 9*60 || entries[0].Slot.EndMin != 11*60 {
		t.Fatalf("slot minutes = %d..%d", entries[0].Slot.StartMin, entries[0].Slot.EndMin)
	}
	if entries[1].Status != schedule.StatusCanceled {
		t.Fatalf("status = %q", entries[1].Status)
	}
}

func TestCreateScheduleEntryMapsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "schedule conflict", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC, nil)
	slot, err := schedule.NewTimeSlot(schedule.Date{Year: 2026, Month: time.September, Day: 1}, 9*60, 10*60, time.UTC)
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}
	_, err = c.CreateScheduleEntry(context.Background(), "coach-7", slot)
	var conflict *booking.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("got %v, want ConflictError", err)
	}
}

func TestBookCourseSessionMapsCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("missing Idempotency-Key header")
		}
		http.Error(w, "course session is fully booked", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC, nil)
	_, err := c.BookCourseSession(context.Background(), "sess-1", "member-1")
	var full *booking.CapacityError
	if !errors.As(err, &full) {
		t.Fatalf("got %v, want CapacityError", err)
	}
	if full.SessionID != "sess-1" {
		t.Fatalf("session id = %q", full.SessionID)
	}
}

func TestBookCourseSessionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"booking_id":"b1","session_id":"sess-1","member_id":"member-1","status":"booked"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC, nil)
	b, err := c.BookCourseSession(context.Background(), "sess-1", "member-1")
	if err != nil {
		t.Fatalf("BookCourseSession: %v", err)
	}
	if b.ID != "b1" || b.Status != "booked" {
		t.Fatalf("unexpected booking %+v", b)
	}
}

func TestServerErrorIsNotTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC, nil)
	err := c.CancelBooking(context.Background(), "b1")
	if err == nil {
		t.Fatal("expected error")
	}
	var conflict *booking.ConflictError
	var full *booking.CapacityError
	if errors.As(err, &conflict) || errors.As(err, &full) {
		t.Fatalf("5xx must not map to a domain error, got %v", err)
	}
}
