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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/model"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/outbox"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/storage"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeSessionStore struct {
	session       model.CourseSession
	full          bool
	missing       bool
	takeSeatCalls int
	records       map[string]storage.IdempotencyRecord
	lockReported  map[string]bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		records:      map[string]storage.IdempotencyRecord{},
		lockReported: map[string]bool{},
	}
}

func (f *fakeSessionStore) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (f *fakeSessionStore) Create(_ context.Context, _ pgx.Tx, _ *model.CourseSession) (string, error) {
	return "sess-1", nil
}

func (f *fakeSessionStore) Get(context.Context, string) (model.CourseSession, error) {
	if f.missing {
		return model.CourseSession{}, pgx.ErrNoRows
	}
	return f.session, nil
}

func (f *fakeSessionStore) List(context.Context, string, time.Time, time.Time) ([]model.CourseSession, error) {
	return []model.CourseSession{f.session}, nil
}

func (f *fakeSessionStore) TakeSeat(_ context.Context, _ pgx.Tx, _ string) error {
	f.takeSeatCalls++
	if f.missing {
		return pgx.ErrNoRows
	}
	if f.full {
		return storage.ErrSessionFull
	}
	return nil
}

func (f *fakeSessionStore) ReleaseSeat(context.Context, pgx.Tx, string) error { return nil }

func (f *fakeSessionStore) CreateBooking(_ context.Context, _ pgx.Tx, _ *model.Booking) (string, error) {
	return "bk-1", nil
}

func (f *fakeSessionStore) GetBookingForUpdate(context.Context, pgx.Tx, string) (model.Booking, error) {
	return model.Booking{}, pgx.ErrNoRows
}

func (f *fakeSessionStore) CancelBooking(context.Context, pgx.Tx, string) (time.Time, error) {
	return time.Now(), nil
}

func (f *fakeSessionStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := f.records[key]
	reported := f.lockReported[key]
	if !ok {
		f.records[key] = storage.IdempotencyRecord{IdempotencyKey: key}
		rec = f.records[key]
	}
	return rec, ok && reported, nil
}

func (f *fakeSessionStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, key, bookingID string, statusCode int, response []byte) error {
	f.records[key] = storage.IdempotencyRecord{
		IdempotencyKey:  key,
		BookingID:       bookingID,
		StatusCode:      statusCode,
		ResponsePayload: response,
	}
	return nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (f *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func bookRequest(idempotencyKey string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings",
		strings.NewReader(`{"session_id":"sess-1","member_id":"member-1"}`))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req
}

func TestBookFullSessionReturns422(t *testing.T) {
	store := newFakeSessionStore()
	store.full = true
	h := NewSessionHandler(store, &fakeOutbox{}, discardLogger())

	rw := httptest.NewRecorder()
	h.Book(rw, bookRequest(""))

	if rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "fully booked") {
		t.Fatalf("body = %q, want a full-session message", rw.Body.String())
	}
}

func TestBookFullSessionWithIdempotencyKeyStillReturns422(t *testing.T) {
	store := newFakeSessionStore()
	store.full = true
	h := NewSessionHandler(store, &fakeOutbox{}, discardLogger())

	rw := httptest.NewRecorder()
	h.Book(rw, bookRequest("key-1"))

	// The rejection must reach the client even when it is also recorded
	// for replay; an empty 200 here would surface as a generic gateway
	// failure instead of a capacity rejection.
	if rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rw.Code)
	}
	if rw.Body.Len() == 0 {
		t.Fatal("expected a response body")
	}
	rec := store.records["key-1"]
	if rec.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("recorded status = %d, want 422", rec.StatusCode)
	}
}

func TestBookReplaysFinalizedKey(t *testing.T) {
	store := newFakeSessionStore()
	store.records["key-1"] = storage.IdempotencyRecord{
		IdempotencyKey:  "key-1",
		BookingID:       "bk-9",
		StatusCode:      http.StatusCreated,
		ResponsePayload: []byte(`{"booking_id":"bk-9","session_id":"sess-1","member_id":"member-1","status":"booked"}`),
	}
	store.lockReported["key-1"] = true
	h := NewSessionHandler(store, &fakeOutbox{}, discardLogger())

	rw := httptest.NewRecorder()
	h.Book(rw, bookRequest("key-1"))

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rw.Code)
	}
	if store.takeSeatCalls != 0 {
		t.Fatalf("replay must not take another seat, got %d calls", store.takeSeatCalls)
	}
}

func TestBookReplaysFinalizedKeyFromConcurrentInsert(t *testing.T) {
	// A duplicate submit that raced the first one blocks on the key row and
	// then observes the finalized record without having inserted it. The
	// finalized status alone must trigger the replay.
	store := newFakeSessionStore()
	store.records["key-1"] = storage.IdempotencyRecord{
		IdempotencyKey:  "key-1",
		BookingID:       "bk-9",
		StatusCode:      http.StatusCreated,
		ResponsePayload: []byte(`{"booking_id":"bk-9","session_id":"sess-1","member_id":"member-1","status":"booked"}`),
	}
	store.lockReported["key-1"] = false
	h := NewSessionHandler(store, &fakeOutbox{}, discardLogger())

	rw := httptest.NewRecorder()
	h.Book(rw, bookRequest("key-1"))

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rw.Code)
	}
	if store.takeSeatCalls != 0 {
		t.Fatalf("duplicate submit must not book a second seat, got %d TakeSeat calls", store.takeSeatCalls)
	}
}

func TestBookSuccessWritesOutboxEvent(t *testing.T) {
	store := newFakeSessionStore()
	ob := &fakeOutbox{}
	h := NewSessionHandler(store, ob, discardLogger())

	rw := httptest.NewRecorder()
	h.Book(rw, bookRequest("key-1"))

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp createBookingResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BookingID != "bk-1" || resp.Status != "booked" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != "booking.created.v1" {
		t.Fatalf("unexpected outbox events %+v", ob.events)
	}
}

func TestBookUnknownSessionReturns404(t *testing.T) {
	store := newFakeSessionStore()
	store.missing = true
	h := NewSessionHandler(store, &fakeOutbox{}, discardLogger())

	rw := httptest.NewRecorder()
	h.Book(rw, bookRequest(""))

	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

type fakeShiftStore struct {
	createErr error
}

func (f *fakeShiftStore) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (f *fakeShiftStore) Create(_ context.Context, _ pgx.Tx, _ *model.ShiftEntry) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "entry-1", nil
}

func (f *fakeShiftStore) GetForUpdate(context.Context, pgx.Tx, string) (model.ShiftEntry, error) {
	return model.ShiftEntry{}, pgx.ErrNoRows
}

func (f *fakeShiftStore) Cancel(context.Context, pgx.Tx, string) (time.Time, error) {
	return time.Now(), nil
}

func (f *fakeShiftStore) ListByResource(context.Context, string, time.Time, time.Time) ([]model.ShiftEntry, error) {
	return nil, nil
}

func TestShiftCreateExclusionViolationReturns409(t *testing.T) {
	store := &fakeShiftStore{createErr: &pgconn.PgError{Code: "23P01"}}
	h := NewShiftHandler(store, &fakeOutbox{}, discardLogger())

	body := `{"resource_id":"coach-7","start_time":"2026-09-01T09:00:00Z","end_time":"2026-09-01T11:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Create(rw, req)

	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestShiftCreateSucceeds(t *testing.T) {
	ob := &fakeOutbox{}
	h := NewShiftHandler(&fakeShiftStore{}, ob, discardLogger())

	body := `{"resource_id":"coach-7","start_time":"2026-09-01T09:00:00Z","end_time":"2026-09-01T11:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Create(rw, req)

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if len(ob.events) != 1 || ob.events[0].EventType != "schedule.shift.created.v1" {
		t.Fatalf("unexpected outbox events %+v", ob.events)
	}
}
