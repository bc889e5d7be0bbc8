package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/model"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/outbox"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/storage"
)

// Store contracts the handlers depend on; satisfied by the pgx-backed
// repositories in internal/storage and internal/outbox.

type shiftStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, entry *model.ShiftEntry) (string, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, entryID string) (model.ShiftEntry, error)
	Cancel(ctx context.Context, tx pgx.Tx, entryID string) (time.Time, error)
	ListByResource(ctx context.Context, resourceID string, start, end time.Time) ([]model.ShiftEntry, error)
}

type sessionStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, s *model.CourseSession) (string, error)
	Get(ctx context.Context, sessionID string) (model.CourseSession, error)
	List(ctx context.Context, courseID string, start, end time.Time) ([]model.CourseSession, error)
	TakeSeat(ctx context.Context, tx pgx.Tx, sessionID string) error
	ReleaseSeat(ctx context.Context, tx pgx.Tx, sessionID string) error
	CreateBooking(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error)
	GetBookingForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error)
	CancelBooking(ctx context.Context, tx pgx.Tx, bookingID string) (time.Time, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, bookingID string, statusCode int, response []byte) error
}

type eventOutbox interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}
