package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tranqhuy/clubsched/libs/db"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/model"
)

type ShiftRepository struct {
	pool *db.Pool
}

func NewShiftRepository(pool *db.Pool) *ShiftRepository {
	return &ShiftRepository{pool: pool}
}

func (r *ShiftRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Create inserts a confirmed shift. An overlap with another confirmed shift
// for the same resource trips the exclusion constraint; callers classify it
// with IsConflict.
func (r *ShiftRepository) Create(ctx context.Context, tx pgx.Tx, entry *model.ShiftEntry) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO schedule_entries (resource_id, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, entry.ResourceID, entry.StartsAt, entry.EndsAt, entry.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ShiftRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, entryID string) (model.ShiftEntry, error) {
	var e model.ShiftEntry
	var canceledAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, resource_id, starts_at, ends_at, status, canceled_at, created_at
		FROM schedule_entries
		WHERE id = $1
		FOR UPDATE
	`, entryID).Scan(&e.ID, &e.ResourceID, &e.StartsAt, &e.EndsAt, &e.Status, &canceledAt, &e.CreatedAt)
	if err != nil {
		return model.ShiftEntry{}, err
	}
	e.CanceledAt = canceledAt
	return e, nil
}

// Cancel soft-removes a shift: the row stays, the status changes, and the
// exclusion constraint stops considering it.
func (r *ShiftRepository) Cancel(ctx context.Context, tx pgx.Tx, entryID string) (time.Time, error) {
	var canceledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE schedule_entries
		SET status = 'canceled',
			canceled_at = now()
		WHERE id = $1
		RETURNING canceled_at
	`, entryID).Scan(&canceledAt)
	return canceledAt, err
}

// ListByResource returns all entries touching [start, end) for one resource,
// all statuses included so clients can render canceled shifts greyed out.
func (r *ShiftRepository) ListByResource(ctx context.Context, resourceID string, start, end time.Time) ([]model.ShiftEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, resource_id, starts_at, ends_at, status, canceled_at, created_at
		FROM schedule_entries
		WHERE resource_id = $1
			AND starts_at < $3
			AND ends_at > $2
		ORDER BY starts_at ASC
	`, resourceID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ShiftEntry
	for rows.Next() {
		var e model.ShiftEntry
		var canceledAt *time.Time
		if err := rows.Scan(&e.ID, &e.ResourceID, &e.StartsAt, &e.EndsAt, &e.Status, &canceledAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CanceledAt = canceledAt
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// IsConflict reports an exclusion-constraint violation (overlapping confirmed
// shifts for the same resource).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
