package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tranqhuy/clubsched/libs/schedule"
	"github.com/tranqhuy/clubsched/services/desk-gateway/internal/booking"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client talks to schedule-service over HTTP and implements the coordinator's
// Fetcher and Writer contracts. It owns the mapping from HTTP status codes to
// the coordinator's error types; nothing above it sees HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	loc     *time.Location
	logger  *slog.Logger
}

func NewClient(baseURL string, loc *time.Location, logger *slog.Logger) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		loc:    loc,
		logger: logger,
	}
}

type shiftItem struct {
	EntryID    string `json:"entry_id"`
	ResourceID string `json:"resource_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
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

type createBookingResponse struct {
	BookingID string `json:"booking_id"`
	SessionID string `json:"session_id"`
	MemberID  string `json:"member_id"`
	Status    string `json:"status"`
}

func (c *Client) FetchSchedules(ctx context.Context, resourceID string, date schedule.Date) ([]schedule.Entry, error) {
	dayStart := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, c.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	q := url.Values{}
	q.Set("resource_id", resourceID)
	q.Set("from", dayStart.UTC().Format(time.RFC3339))
	q.Set("to", dayEnd.UTC().Format(time.RFC3339))

	var items []shiftItem
	if err := c.getJSON(ctx, "/api/v1/shifts?"+q.Encode(), &items); err != nil {
		return nil, err
	}

	entries := make([]schedule.Entry, 0, len(items))
	for _, item := range items {
		entry, err := c.toEntry(item)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("skipping unmappable shift", "entry_id", item.EntryID, "err", err)
			}
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Client) FetchCourseSessions(ctx context.Context, filter booking.SessionFilter) ([]schedule.CourseSession, error) {
	q := url.Values{}
	if filter.SessionID != "" {
		q.Set("session_id", filter.SessionID)
	} else {
		from := filter.From
		to := filter.To
		if from.IsZero() {
			from = time.Now().UTC()
		}
		if to.IsZero() {
			to = from.Add(7 * 24 * time.Hour)
		}
		q.Set("from", from.UTC().Format(time.RFC3339))
		q.Set("to", to.UTC().Format(time.RFC3339))
		if filter.CourseID != "" {
			q.Set("course_id", filter.CourseID)
		}
	}

	var items []sessionItem
	if err := c.getJSON(ctx, "/api/v1/sessions?"+q.Encode(), &items); err != nil {
		return nil, err
	}

	sessions := make([]schedule.CourseSession, 0, len(items))
	for _, item := range items {
		session, err := c.toSession(item)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("skipping unmappable session", "session_id", item.SessionID, "err", err)
			}
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (c *Client) CreateScheduleEntry(ctx context.Context, resourceID string, slot schedule.TimeSlot) (schedule.Entry, error) {
	body := map[string]string{
		"resource_id": resourceID,
		"start_time":  slot.StartTime().UTC().Format(time.RFC3339),
		"end_time":    slot.EndTime().UTC().Format(time.RFC3339),
	}

	resp, err := c.postJSON(ctx, "/api/v1/shifts", body, "")
	if err != nil {
		return schedule.Entry{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var item shiftItem
		if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
			return schedule.Entry{}, fmt.Errorf("decode shift response: %w", err)
		}
		return c.toEntry(item)
	case http.StatusConflict:
		// The server is authoritative and does not echo the colliding rows.
		return schedule.Entry{}, &booking.ConflictError{}
	default:
		return schedule.Entry{}, responseError(resp)
	}
}

func (c *Client) BookCourseSession(ctx context.Context, sessionID, memberID string) (booking.Booking, error) {
	body := map[string]string{
		"session_id": sessionID,
		"member_id":  memberID,
	}

	resp, err := c.postJSON(ctx, "/api/v1/bookings", body, uuid.NewString())
	if err != nil {
		return booking.Booking{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var br createBookingResponse
		if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
			return booking.Booking{}, fmt.Errorf("decode booking response: %w", err)
		}
		return booking.Booking{
			ID:        br.BookingID,
			MemberID:  br.MemberID,
			SessionID: br.SessionID,
			Status:    br.Status,
			CreatedAt: time.Now().UTC(),
		}, nil
	case http.StatusUnprocessableEntity:
		return booking.Booking{}, &booking.CapacityError{SessionID: sessionID}
	default:
		return booking.Booking{}, responseError(resp)
	}
}

func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	resp, err := c.postJSON(ctx, "/api/v1/bookings/cancel", map[string]string{"booking_id": bookingID}, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, idempotencyKey string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.httpc.Do(req)
}

func (c *Client) toEntry(item shiftItem) (schedule.Entry, error) {
	start, err := time.Parse(time.RFC3339, item.StartTime)
	if err != nil {
		return schedule.Entry{}, fmt.Errorf("invalid start_time %q: %w", item.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339, item.EndTime)
	if err != nil {
		return schedule.Entry{}, fmt.Errorf("invalid end_time %q: %w", item.EndTime, err)
	}
	slot, err := schedule.SlotFromTimes(start, end, c.loc)
	if err != nil {
		return schedule.Entry{}, err
	}
	return schedule.Entry{
		ID:         item.EntryID,
		ResourceID: item.ResourceID,
		Slot:       slot,
		Status:     schedule.EntryStatus(item.Status),
	}, nil
}

func (c *Client) toSession(item sessionItem) (schedule.CourseSession, error) {
	start, err := time.Parse(time.RFC3339, item.StartTime)
	if err != nil {
		return schedule.CourseSession{}, fmt.Errorf("invalid start_time %q: %w", item.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339, item.EndTime)
	if err != nil {
		return schedule.CourseSession{}, fmt.Errorf("invalid end_time %q: %w", item.EndTime, err)
	}
	slot, err := schedule.SlotFromTimes(start, end, c.loc)
	if err != nil {
		return schedule.CourseSession{}, err
	}
	return schedule.CourseSession{
		ID:          item.SessionID,
		CourseID:    item.CourseID,
		Title:       item.Title,
		Capacity:    item.Capacity,
		BookedCount: item.BookedCount,
		Slot:        slot,
	}, nil
}

func responseError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("schedule-service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
}
