package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tranqhuy/clubsched/services/schedule-service/internal/model"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/outbox"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/storage"
)

type ShiftHandler struct {
	repo       shiftStore
	outboxRepo eventOutbox
	logger     *slog.Logger
}

func NewShiftHandler(repo shiftStore, outboxRepo eventOutbox, logger *slog.Logger) *ShiftHandler {
	return &ShiftHandler{repo: repo, outboxRepo: outboxRepo, logger: logger}
}

type createShiftRequest struct {
	ResourceID string `json:"resource_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type shiftItem struct {
	EntryID    string `json:"entry_id"`
	ResourceID string `json:"resource_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
	CanceledAt string `json:"canceled_at,omitempty"`
}

type cancelShiftRequest struct {
	EntryID string `json:"entry_id"`
}

type cancelShiftResponse struct {
	EntryID    string `json:"entry_id"`
	Status     string `json:"status"`
	CanceledAt string `json:"canceled_at"`
}

func (h *ShiftHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	if req.ResourceID == "" {
		http.Error(w, "resource_id required", http.StatusBadRequest)
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

	entry := &model.ShiftEntry{
		ResourceID: req.ResourceID,
		StartsAt:   startTime,
		EndsAt:     endTime,
		Status:     "confirmed",
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, entry)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot conflicts with an existing shift", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create shift", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"entry_id":    id,
		"resource_id": entry.ResourceID,
		"start_time":  entry.StartsAt.UTC().Format(time.RFC3339),
		"end_time":    entry.EndsAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "shift",
		AggregateID:   id,
		EventType:     "schedule.shift.created.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, shiftItem{
		EntryID:    id,
		ResourceID: entry.ResourceID,
		StartTime:  entry.StartsAt.UTC().Format(time.RFC3339),
		EndTime:    entry.EndsAt.UTC().Format(time.RFC3339),
		Status:     entry.Status,
	})
}

func (h *ShiftHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.EntryID = strings.TrimSpace(req.EntryID)
	if req.EntryID == "" {
		http.Error(w, "entry_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := h.repo.GetForUpdate(ctx, tx, req.EntryID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "shift not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load shift", http.StatusInternalServerError)
		return
	}

	if entry.Status == "canceled" && entry.CanceledAt != nil {
		writeJSON(w, http.StatusOK, cancelShiftResponse{
			EntryID:    entry.ID,
			Status:     "canceled",
			CanceledAt: entry.CanceledAt.UTC().Format(time.RFC3339),
		})
		return
	}
	if entry.Status != "confirmed" {
		http.Error(w, "shift cannot be canceled", http.StatusConflict)
		return
	}

	canceledAt, err := h.repo.Cancel(ctx, tx, entry.ID)
	if err != nil {
		http.Error(w, "failed to cancel shift", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"entry_id":    entry.ID,
		"resource_id": entry.ResourceID,
		"start_time":  entry.StartsAt.UTC().Format(time.RFC3339),
		"end_time":    entry.EndsAt.UTC().Format(time.RFC3339),
		"canceled_at": canceledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "shift",
		AggregateID:   entry.ID,
		EventType:     "schedule.shift.canceled.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cancelShiftResponse{
		EntryID:    entry.ID,
		Status:     "canceled",
		CanceledAt: canceledAt.UTC().Format(time.RFC3339),
	})
}

func (h *ShiftHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resourceID := strings.TrimSpace(r.URL.Query().Get("resource_id"))
	if resourceID == "" {
		http.Error(w, "resource_id required", http.StatusBadRequest)
		return
	}
	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}

	entries, err := h.repo.ListByResource(r.Context(), resourceID, start, end)
	if err != nil {
		http.Error(w, "failed to list shifts", http.StatusInternalServerError)
		return
	}

	items := make([]shiftItem, 0, len(entries))
	for _, e := range entries {
		item := shiftItem{
			EntryID:    e.ID,
			ResourceID: e.ResourceID,
			StartTime:  e.StartsAt.UTC().Format(time.RFC3339),
			EndTime:    e.EndsAt.UTC().Format(time.RFC3339),
			Status:     e.Status,
		}
		if e.CanceledAt != nil {
			item.CanceledAt = e.CanceledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromStr == "" || toStr == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
