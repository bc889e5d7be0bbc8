package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tranqhuy/clubsched/libs/db"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/model"
)

// ErrSessionFull is returned when the conditional seat increment matches no
// row because booked_count already reached capacity.
var ErrSessionFull = errors.New("course session is fully booked")

type SessionRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func NewSessionRepository(pool *db.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *SessionRepository) Create(ctx context.Context, tx pgx.Tx, s *model.CourseSession) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO course_sessions (course_id, title, capacity, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.CourseID, s.Title, s.Capacity, s.StartsAt, s.EndsAt).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (model.CourseSession, error) {
	var s model.CourseSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, course_id, title, capacity, booked_count, starts_at, ends_at, created_at
		FROM course_sessions
		WHERE id = $1
	`, sessionID).Scan(&s.ID, &s.CourseID, &s.Title, &s.Capacity, &s.BookedCount, &s.StartsAt, &s.EndsAt, &s.CreatedAt)
	if err != nil {
		return model.CourseSession{}, err
	}
	return s, nil
}

func (r *SessionRepository) List(ctx context.Context, courseID string, start, end time.Time) ([]model.CourseSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, course_id, title, capacity, booked_count, starts_at, ends_at, created_at
		FROM course_sessions
		WHERE ($1 = '' OR course_id = $1)
			AND starts_at < $3
			AND ends_at > $2
		ORDER BY starts_at ASC
	`, courseID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.CourseSession
	for rows.Next() {
		var s model.CourseSession
		if err := rows.Scan(&s.ID, &s.CourseID, &s.Title, &s.Capacity, &s.BookedCount, &s.StartsAt, &s.EndsAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sessions, nil
}

// TakeSeat increments booked_count only while seats remain, so the database
// decides capacity races, not the client's optimistic pre-check.
func (r *SessionRepository) TakeSeat(ctx context.Context, tx pgx.Tx, sessionID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE course_sessions
		SET booked_count = booked_count + 1
		WHERE id = $1 AND booked_count < capacity
	`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM course_sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrSessionFull
	}
	return nil
}

// ReleaseSeat decrements booked_count, floored at zero.
func (r *SessionRepository) ReleaseSeat(ctx context.Context, tx pgx.Tx, sessionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE course_sessions
		SET booked_count = GREATEST(booked_count - 1, 0)
		WHERE id = $1
	`, sessionID)
	return err
}

func (r *SessionRepository) CreateBooking(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings (session_id, member_id, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`, b.SessionID, b.MemberID, b.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SessionRepository) GetBookingForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error) {
	var b model.Booking
	var canceledAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, session_id, member_id, status, created_at, canceled_at
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID).Scan(&b.ID, &b.SessionID, &b.MemberID, &b.Status, &b.CreatedAt, &canceledAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.CanceledAt = canceledAt
	return b, nil
}

func (r *SessionRepository) CancelBooking(ctx context.Context, tx pgx.Tx, bookingID string) (time.Time, error) {
	var canceledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			canceled_at = now()
		WHERE id = $1
		RETURNING canceled_at
	`, bookingID).Scan(&canceledAt)
	return canceledAt, err
}

func (r *SessionRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *SessionRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = NULLIF($2, '')::uuid,
			status_code = $3,
			response_payload = $4,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, bookingID, statusCode, response)
	return err
}

func (r *SessionRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&rec.IdempotencyKey, &rec.BookingID, &rec.StatusCode, &responseText)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
