package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tranqhuy/clubsched/libs/schedule"
	"github.com/tranqhuy/clubsched/services/desk-gateway/internal/booking"
)

// DeskHandler exposes the front-desk operations. All requests flow through a
// single coordinator, so two desk clerks cannot have two writes in flight at
// once; the second gets a retryable 409.
type DeskHandler struct {
	coord  *booking.Coordinator
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func NewDeskHandler(coord *booking.Coordinator, loc *time.Location, logger *slog.Logger) *DeskHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DeskHandler{coord: coord, loc: loc, logger: logger, now: time.Now}
}

type scheduleShiftRequest struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Timezone   string `json:"timezone"`
}

type shiftResponse struct {
	EntryID    string `json:"entry_id"`
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Status     string `json:"status"`
}

type conflictResponse struct {
	Error     string          `json:"error"`
	Conflicts []shiftResponse `json:"conflicts"`
}

type sessionResponse struct {
	SessionID   string `json:"session_id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	Capacity    int    `json:"capacity"`
	BookedCount int    `json:"booked_count"`
	Remaining   int    `json:"remaining"`
	Date        string `json:"date"`
	Start       string `json:"start"`
	End         string `json:"end"`
	State       string `json:"state"`
}

type bookSessionRequest struct {
	SessionID string `json:"session_id"`
	MemberID  string `json:"member_id"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	SessionID string `json:"session_id"`
}

// ScheduleShift validates a candidate shift against the freshest snapshot and
// submits it. The snapshot is refreshed first, so the local conflict check
// runs against data no older than this request.
func (h *DeskHandler) ScheduleShift(w http.ResponseWriter, r *http.Request) {
	var req scheduleShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	if req.ResourceID == "" {
		http.Error(w, "resource_id is required", http.StatusBadRequest)
		return
	}

	slot, err := h.parseSlot(req.Date, req.Start, req.End, req.Timezone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.coord.RefreshSchedules(r.Context(), req.ResourceID, slot.Date); err != nil {
		h.logger.Error("schedule refresh failed", "resource_id", req.ResourceID, "err", err)
		http.Error(w, "schedule store unavailable", http.StatusBadGateway)
		return
	}

	entry, err := h.coord.ScheduleShift(r.Context(), req.ResourceID, slot)
	if err != nil {
		h.writeShiftError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftResponse(entry))
}

// ListSchedules returns one resource's confirmed entries for a day, freshly
// fetched from the schedule store.
func (h *DeskHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	resourceID := strings.TrimSpace(r.URL.Query().Get("resource_id"))
	if resourceID == "" {
		http.Error(w, "resource_id is required", http.StatusBadRequest)
		return
	}
	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if err := h.coord.RefreshSchedules(r.Context(), resourceID, date); err != nil {
		h.logger.Error("schedule refresh failed", "resource_id", resourceID, "err", err)
		http.Error(w, "schedule store unavailable", http.StatusBadGateway)
		return
	}

	entries := h.coord.EntriesOn(date)
	out := make([]shiftResponse, 0, len(entries))
	for _, e := range entries {
		if e.ResourceID != resourceID {
			continue
		}
		out = append(out, toShiftResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListSessions returns upcoming course sessions with their display state
// (open, full, or starting within the hour).
func (h *DeskHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	filter := booking.SessionFilter{
		CourseID: strings.TrimSpace(r.URL.Query().Get("course_id")),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "from must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "to must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.To = t
	}

	sessions, err := h.coord.LoadSessions(r.Context(), filter)
	if err != nil {
		h.logger.Error("session load failed", "err", err)
		http.Error(w, "schedule store unavailable", http.StatusBadGateway)
		return
	}

	now := h.now()
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// BookSession reserves one seat. When the session is not yet in the local
// snapshot it is fetched first, so the optimistic capacity check always has
// something to check against.
func (h *DeskHandler) BookSession(w http.ResponseWriter, r *http.Request) {
	var req bookSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.MemberID = strings.TrimSpace(req.MemberID)
	if req.SessionID == "" || req.MemberID == "" {
		http.Error(w, "session_id and member_id are required", http.StatusBadRequest)
		return
	}

	if _, ok := h.coord.Session(req.SessionID); !ok {
		if _, err := h.coord.LoadSessions(r.Context(), booking.SessionFilter{SessionID: req.SessionID}); err != nil {
			h.logger.Error("session load failed", "session_id", req.SessionID, "err", err)
			http.Error(w, "schedule store unavailable", http.StatusBadGateway)
			return
		}
	}

	bk, err := h.coord.BookSession(r.Context(), req.SessionID, req.MemberID)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"booking_id": bk.ID,
		"session_id": bk.SessionID,
		"member_id":  bk.MemberID,
		"status":     bk.Status,
	})
}

func (h *DeskHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id is required", http.StatusBadRequest)
		return
	}

	if err := h.coord.CancelBooking(r.Context(), req.BookingID, strings.TrimSpace(req.SessionID)); err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"booking_id": req.BookingID, "status": "cancelled"})
}

func (h *DeskHandler) parseSlot(dateStr, startStr, endStr, tz string) (schedule.TimeSlot, error) {
	date, err := schedule.ParseDate(dateStr)
	if err != nil {
		return schedule.TimeSlot{}, errors.New("date must be YYYY-MM-DD")
	}
	start, err := schedule.ParseClock(startStr)
	if err != nil {
		return schedule.TimeSlot{}, errors.New("start must be HH:mm")
	}
	end, err := schedule.ParseClock(endStr)
	if err != nil {
		return schedule.TimeSlot{}, errors.New("end must be HH:mm")
	}
	loc := h.loc
	if tz = strings.TrimSpace(tz); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return schedule.TimeSlot{}, errors.New("unknown timezone")
		}
	}
	slot, err := schedule.NewTimeSlot(date, start, end, loc)
	if err != nil {
		return schedule.TimeSlot{}, errors.New("start must be before end")
	}
	return slot, nil
}

func (h *DeskHandler) writeShiftError(w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError
	switch {
	case errors.As(err, &conflict):
		conflicts := make([]shiftResponse, 0, len(conflict.Entries))
		for _, e := range conflict.Entries {
			conflicts = append(conflicts, toShiftResponse(e))
		}
		writeJSON(w, http.StatusConflict, conflictResponse{Error: "shift overlaps an existing entry", Conflicts: conflicts})
	case errors.Is(err, booking.ErrSubmitInFlight):
		http.Error(w, "another submission is in flight", http.StatusConflict)
	default:
		http.Error(w, "schedule store rejected the request", http.StatusBadGateway)
	}
}

func (h *DeskHandler) writeBookingError(w http.ResponseWriter, err error) {
	var full *booking.CapacityError
	switch {
	case errors.As(err, &full):
		http.Error(w, "course session is fully booked", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrUnknownSession):
		http.Error(w, "course session not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrSubmitInFlight):
		http.Error(w, "another submission is in flight", http.StatusConflict)
	default:
		http.Error(w, "schedule store rejected the request", http.StatusBadGateway)
	}
}

func toShiftResponse(e schedule.Entry) shiftResponse {
	return shiftResponse{
		EntryID:    e.ID,
		ResourceID: e.ResourceID,
		Date:       e.Slot.Date.String(),
		Start:      schedule.FormatClock(e.Slot.StartMin),
		End:        schedule.FormatClock(e.Slot.EndMin),
		Status:     string(e.Status),
	}
}

func toSessionResponse(s schedule.CourseSession, now time.Time) sessionResponse {
	return sessionResponse{
		SessionID:   s.ID,
		CourseID:    s.CourseID,
		Title:       s.Title,
		Capacity:    s.Capacity,
		BookedCount: s.BookedCount,
		Remaining:   s.Remaining(),
		Date:        s.Slot.Date.String(),
		Start:       schedule.FormatClock(s.Slot.StartMin),
		End:         schedule.FormatClock(s.Slot.EndMin),
		State:       schedule.Classify(s, now).String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
