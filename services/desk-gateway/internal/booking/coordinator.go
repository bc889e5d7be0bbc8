package booking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tranqhuy/clubsched/libs/schedule"
)

// State tracks one scheduling or booking attempt end to end.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateSucceeded
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Booking is a member's seat in a course session.
type Booking struct {
	ID        string
	MemberID  string
	SessionID string
	Status    string
	CreatedAt time.Time
}

// SessionFilter narrows a course-session fetch.
type SessionFilter struct {
	SessionID string
	CourseID  string
	From      time.Time
	To        time.Time
}

// Fetcher is the read side of the remote store. Fetches are idempotent and
// side-effect-free.
type Fetcher interface {
	FetchSchedules(ctx context.Context, resourceID string, date schedule.Date) ([]schedule.Entry, error)
	FetchCourseSessions(ctx context.Context, filter SessionFilter) ([]schedule.CourseSession, error)
}

// Writer is the write side of the remote store. The coordinator knows nothing
// about HTTP status codes or serialization; implementations translate remote
// rejections into *ConflictError / *CapacityError.
type Writer interface {
	CreateScheduleEntry(ctx context.Context, resourceID string, slot schedule.TimeSlot) (schedule.Entry, error)
	BookCourseSession(ctx context.Context, sessionID, memberID string) (Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
}

const defaultSubmitTimeout = 10 * time.Second

// Coordinator orchestrates one user-initiated scheduling or booking action:
// optimistic local validation, then a bounded remote submit, then local
// reconciliation on confirmed success only. The remote store stays the sole
// arbiter: a rejection that arrives after a passing local check wins.
type Coordinator struct {
	store         *schedule.Store
	fetcher       Fetcher
	writer        Writer
	logger        *slog.Logger
	submitTimeout time.Duration

	mu       sync.Mutex
	state    State
	sessions map[string]schedule.CourseSession
}

type Option func(*Coordinator)

// WithSubmitTimeout bounds the Submitting state so a stalled remote call
// cannot leave the attempt pending forever.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.submitTimeout = d
		}
	}
}

func NewCoordinator(store *schedule.Store, fetcher Fetcher, writer Writer, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		fetcher:       fetcher,
		writer:        writer,
		logger:        logger,
		submitTimeout: defaultSubmitTimeout,
		state:         StateIdle,
		sessions:      map[string]schedule.CourseSession{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RefreshSchedules replaces the local snapshot with the remote store's view
// of one resource's day.
func (c *Coordinator) RefreshSchedules(ctx context.Context, resourceID string, date schedule.Date) error {
	entries, err := c.fetcher.FetchSchedules(ctx, resourceID, date)
	if err != nil {
		return &FetchError{Err: err}
	}
	c.mu.Lock()
	c.store.Replace(entries)
	c.mu.Unlock()
	return nil
}

// LoadSessions fetches course sessions into the local snapshot and returns
// them for display.
func (c *Coordinator) LoadSessions(ctx context.Context, filter SessionFilter) ([]schedule.CourseSession, error) {
	sessions, err := c.fetcher.FetchCourseSessions(ctx, filter)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	c.mu.Lock()
	for _, s := range sessions {
		c.sessions[s.ID] = s
	}
	c.mu.Unlock()
	return sessions, nil
}

// EntriesOn returns the snapshot's confirmed entries for a day.
func (c *Coordinator) EntriesOn(date schedule.Date) []schedule.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.EntriesOn(date)
}

// Session returns the snapshot copy of one session, if present.
func (c *Coordinator) Session(id string) (schedule.CourseSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// ScheduleShift validates candidate against the local snapshot and, if it
// passes, submits the shift to the remote store. On success the confirmed
// entry is upserted into the store; the snapshot is never mutated before the
// remote store confirms.
func (c *Coordinator) ScheduleShift(ctx context.Context, resourceID string, candidate schedule.TimeSlot) (schedule.Entry, error) {
	if err := c.beginAttempt(); err != nil {
		return schedule.Entry{}, err
	}

	c.mu.Lock()
	res := schedule.CheckConflicts(c.store, resourceID, candidate)
	if res.HasConflict {
		c.state = StateRejected
		c.mu.Unlock()
		return schedule.Entry{}, &ConflictError{Entries: res.Conflicting}
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	entry, err := c.writer.CreateScheduleEntry(submitCtx, resourceID, candidate)
	if err != nil {
		c.setState(StateFailed)
		return schedule.Entry{}, c.asWriteError(err, "shift create rejected", "resource_id", resourceID)
	}

	c.mu.Lock()
	c.store.Upsert(entry)
	c.state = StateSucceeded
	c.mu.Unlock()
	return entry, nil
}

// BookSession books one seat in a session previously loaded via LoadSessions.
// The local capacity check is optimistic; a remote 'session full' rejection
// after it passes is authoritative.
func (c *Coordinator) BookSession(ctx context.Context, sessionID, memberID string) (Booking, error) {
	if err := c.beginAttempt(); err != nil {
		return Booking{}, err
	}

	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.state = StateFailed
		c.mu.Unlock()
		return Booking{}, ErrUnknownSession
	}
	if !schedule.CanBook(session) {
		c.state = StateRejected
		c.mu.Unlock()
		return Booking{}, &CapacityError{SessionID: sessionID}
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	bk, err := c.writer.BookCourseSession(submitCtx, sessionID, memberID)
	if err != nil {
		c.setState(StateFailed)
		return Booking{}, c.asWriteError(err, "booking rejected", "session_id", sessionID)
	}

	c.mu.Lock()
	if updated, err := schedule.ApplyBooking(session); err == nil {
		c.sessions[sessionID] = updated
	}
	c.state = StateSucceeded
	c.mu.Unlock()
	return bk, nil
}

// CancelBooking releases a booking and, when the session is in the snapshot,
// reconciles its seat count after the remote store confirms.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID, sessionID string) error {
	if err := c.beginAttempt(); err != nil {
		return err
	}
	c.setState(StateSubmitting)

	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	if err := c.writer.CancelBooking(submitCtx, bookingID); err != nil {
		c.setState(StateFailed)
		return c.asWriteError(err, "booking cancel rejected", "booking_id", bookingID)
	}

	c.mu.Lock()
	if session, ok := c.sessions[sessionID]; ok {
		c.sessions[sessionID] = schedule.ApplyCancellation(session)
	}
	c.state = StateSucceeded
	c.mu.Unlock()
	return nil
}

// beginAttempt starts a fresh Idle -> Validating cycle. Any terminal state is
// reset; an in-flight submission is not.
func (c *Coordinator) beginAttempt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	c.state = StateValidating
	return nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// asWriteError passes authoritative remote rejections through unchanged and
// wraps everything else as a generic, non-retryable write failure.
func (c *Coordinator) asWriteError(err error, msg string, args ...any) error {
	switch err.(type) {
	case *ConflictError, *CapacityError:
		if c.logger != nil {
			c.logger.Warn(msg, append(args, "err", err)...)
		}
		return err
	}
	if c.logger != nil {
		c.logger.Error(msg, append(args, "err", err)...)
	}
	return &WriteError{Err: err}
}
