package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tranqhuy/clubsched/libs/db"
)

// ReportHandler serves read-only aggregates built by the event consumers.
type ReportHandler struct {
	pool   *db.Pool
	logger *slog.Logger
}

func NewReportHandler(pool *db.Pool, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{pool: pool, logger: logger}
}

type dailyMetricItem struct {
	SessionID     string `json:"session_id"`
	Day           string `json:"day"`
	BookedCount   int    `json:"booked_count"`
	CanceledCount int    `json:"canceled_count"`
}

// Daily returns per-session booking counts by day. An optional session_id
// narrows the result; from/to bound the day range.
func (h *ReportHandler) Daily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	from, to, ok := parseDayRange(w, r)
	if !ok {
		return
	}

	rows, err := h.pool.Query(r.Context(), `
		SELECT session_id, day, booked_count, canceled_count
		FROM daily_booking_metrics
		WHERE ($1 = '' OR session_id::text = $1)
		  AND day >= $2::date AND day < $3::date
		ORDER BY day, session_id
	`, sessionID, from, to)
	if err != nil {
		h.logger.Error("daily metrics query failed", "err", err)
		http.Error(w, "failed to query metrics", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	items := make([]dailyMetricItem, 0)
	for rows.Next() {
		var item dailyMetricItem
		var day time.Time
		if err := rows.Scan(&item.SessionID, &day, &item.BookedCount, &item.CanceledCount); err != nil {
			h.logger.Error("daily metrics scan failed", "err", err)
			http.Error(w, "failed to read metrics", http.StatusInternalServerError)
			return
		}
		item.Day = day.Format("2006-01-02")
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("daily metrics rows failed", "err", err)
		http.Error(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func parseDayRange(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" {
		from = time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")
	}
	if to == "" {
		to = time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	}
	for _, v := range []string{from, to} {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			http.Error(w, "from/to must be YYYY-MM-DD", http.StatusBadRequest)
			return "", "", false
		}
	}
	return from, to, true
}
