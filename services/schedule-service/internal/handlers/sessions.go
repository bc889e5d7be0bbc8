package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tranqhuy/clubsched/services/schedule-service/internal/model"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/outbox"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/storage"
)

type SessionHandler struct {
	repo       sessionStore
	outboxRepo eventOutbox
	logger     *slog.Logger
}

func NewSessionHandler(repo sessionStore, outboxRepo eventOutbox, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{repo: repo, outboxRepo: outboxRepo, logger: logger}
}

type createSessionRequest struct {
	CourseID  string `json:"course_id"`
	Title     string `json:"title"`
	Capacity  int    `json:"capacity"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type sessionItem struct {
	SessionID   string `json:"session_id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	Capacity    int    `json:"capacity"`
	BookedCount int    `json:"booked_count"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type createBookingRequest struct {
	SessionID string `json:"session_id"`
	MemberID  string `json:"member_id"`
}

type createBookingResponse struct {
	BookingID string `json:"booking_id"`
	SessionID string `json:"session_id"`
	MemberID  string `json:"member_id"`
	Status    string `json:"status"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type cancelBookingResponse struct {
	BookingID  string `json:"booking_id"`
	Status     string `json:"status"`
	CanceledAt string `json:"canceled_at"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.Title = strings.TrimSpace(req.Title)
	if req.CourseID == "" {
		http.Error(w, "course_id required", http.StatusBadRequest)
		return
	}
	if req.Capacity <= 0 {
		http.Error(w, "capacity must be positive", http.StatusBadRequest)
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if !endTime.After(startTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	session := &model.CourseSession{
		CourseID: req.CourseID,
		Title:    req.Title,
		Capacity: req.Capacity,
		StartsAt: startTime,
		EndsAt:   endTime,
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, session)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, sessionItem{
		SessionID: id,
		CourseID:  session.CourseID,
		Title:     session.Title,
		Capacity:  session.Capacity,
		StartTime: session.StartsAt.UTC().Format(time.RFC3339),
		EndTime:   session.EndsAt.UTC().Format(time.RFC3339),
	})
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Single-session lookup is used by booking flows to refresh one snapshot.
	if sessionID := strings.TrimSpace(r.URL.Query().Get("session_id")); sessionID != "" {
		session, err := h.repo.Get(r.Context(), sessionID)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, []sessionItem{toSessionItem(session)})
		return
	}

	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}
	courseID := strings.TrimSpace(r.URL.Query().Get("course_id"))

	sessions, err := h.repo.List(r.Context(), courseID, start, end)
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	items := make([]sessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionItem(s))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *SessionHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.MemberID = strings.TrimSpace(req.MemberID)
	if req.SessionID == "" || req.MemberID == "" {
		http.Error(w, "session_id and member_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, _, err := h.repo.LockIdempotencyKey(ctx, tx, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		// A finalized record is a replay no matter who inserted the key: a
		// concurrent duplicate blocks on the row lock until the first request
		// commits, then sees the finalized record here.
		if rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			if len(rec.ResponsePayload) > 0 {
				_, _ = w.Write(rec.ResponsePayload)
				return
			}
			_ = json.NewEncoder(w).Encode(createBookingResponse{BookingID: rec.BookingID, SessionID: req.SessionID, MemberID: req.MemberID, Status: "booked"})
			return
		}
	}

	// The conditional seat increment is the authoritative capacity check;
	// the gateway's optimistic pre-check may already be stale by now.
	if err := h.repo.TakeSeat(ctx, tx, req.SessionID); err != nil {
		if errors.Is(err, storage.ErrSessionFull) {
			// Record the rejection for replay, then still answer 422: the
			// gateway maps this status to its capacity error.
			if idempotencyKey != "" && h.finalizeIdempotencyError(ctx, tx, idempotencyKey, http.StatusUnprocessableEntity, "course session is fully booked") {
				_ = tx.Commit(ctx)
			}
			http.Error(w, "course session is fully booked", http.StatusUnprocessableEntity)
			return
		}
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to take seat", http.StatusInternalServerError)
		return
	}

	booking := &model.Booking{
		SessionID: req.SessionID,
		MemberID:  req.MemberID,
		Status:    "booked",
	}
	id, err := h.repo.CreateBooking(ctx, tx, booking)
	if err != nil {
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"booking_id": id,
		"session_id": booking.SessionID,
		"member_id":  booking.MemberID,
		"booked_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     "booking.created.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	resp := createBookingResponse{BookingID: id, SessionID: booking.SessionID, MemberID: booking.MemberID, Status: booking.Status}
	respBody, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *SessionHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := h.repo.GetBookingForUpdate(ctx, tx, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	if booking.Status == "cancelled" && booking.CanceledAt != nil {
		writeJSON(w, http.StatusOK, cancelBookingResponse{
			BookingID:  booking.ID,
			Status:     "cancelled",
			CanceledAt: booking.CanceledAt.UTC().Format(time.RFC3339),
		})
		return
	}
	if booking.Status != "booked" {
		http.Error(w, "booking cannot be cancelled", http.StatusConflict)
		return
	}

	canceledAt, err := h.repo.CancelBooking(ctx, tx, booking.ID)
	if err != nil {
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}
	if err := h.repo.ReleaseSeat(ctx, tx, booking.SessionID); err != nil {
		http.Error(w, "failed to release seat", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"booking_id":  booking.ID,
		"session_id":  booking.SessionID,
		"member_id":   booking.MemberID,
		"canceled_at": canceledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     "booking.canceled.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cancelBookingResponse{
		BookingID:  booking.ID,
		Status:     "cancelled",
		CanceledAt: canceledAt.UTC().Format(time.RFC3339),
	})
}

func toSessionItem(s model.CourseSession) sessionItem {
	return sessionItem{
		SessionID:   s.ID,
		CourseID:    s.CourseID,
		Title:       s.Title,
		Capacity:    s.Capacity,
		BookedCount: s.BookedCount,
		StartTime:   s.StartsAt.UTC().Format(time.RFC3339),
		EndTime:     s.EndsAt.UTC().Format(time.RFC3339),
	}
}
