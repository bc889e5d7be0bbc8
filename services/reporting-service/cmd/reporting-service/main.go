package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tranqhuy/clubsched/libs/config"
	"github.com/tranqhuy/clubsched/libs/db"
	"github.com/tranqhuy/clubsched/libs/httpx"
	"github.com/tranqhuy/clubsched/libs/kafkax"
	otelx "github.com/tranqhuy/clubsched/libs/otel"
	"github.com/tranqhuy/clubsched/libs/runtime"
	"github.com/tranqhuy/clubsched/services/reporting-service/internal/consumer"
	"github.com/tranqhuy/clubsched/services/reporting-service/internal/handlers"
	"github.com/tranqhuy/clubsched/services/reporting-service/internal/inbox"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "reporting-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)

	handleBookingEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			BookingID  string `json:"booking_id"`
			SessionID  string `json:"session_id"`
			MemberID   string `json:"member_id"`
			BookedAt   string `json:"booked_at"`
			CanceledAt string `json:"canceled_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if payload.BookingID == "" || payload.SessionID == "" {
			logger.Error("missing booking fields")
			return nil
		}
		occurredRaw := payload.BookedAt
		if kind == "canceled" {
			occurredRaw = payload.CanceledAt
		}
		occurredAt, err := time.Parse(time.RFC3339, occurredRaw)
		if err != nil {
			logger.Error("invalid booking timestamp", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		tx, err := pool.Begin(ctx)
		if err != nil {
			logger.Error("db begin failed", "err", err)
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_events (event_id, event_type, booking_id, session_id, member_id, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.BookingID, payload.SessionID, payload.MemberID, occurredAt.UTC())
		if err != nil {
			logger.Error("failed to insert booking event", "err", err)
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Commit(ctx)
			return nil
		}

		bookedInc := 0
		canceledInc := 0
		if kind == "booked" {
			bookedInc = 1
		} else {
			canceledInc = 1
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_booking_metrics (session_id, day, booked_count, canceled_count)
			VALUES ($1, $2::date, $3, $4)
			ON CONFLICT (session_id, day)
			DO UPDATE SET booked_count = daily_booking_metrics.booked_count + EXCLUDED.booked_count,
			              canceled_count = daily_booking_metrics.canceled_count + EXCLUDED.canceled_count,
			              updated_at = now()
		`, payload.SessionID, occurredAt.UTC(), bookedInc, canceledInc); err != nil {
			logger.Error("failed to update daily metrics", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			logger.Error("failed to commit booking metric", "err", err)
			return err
		}

		logger.Info("booking metric recorded", "booking_id", payload.BookingID, "session_id", payload.SessionID, "event_type", meta.EventType)
		return nil
	}

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "reporting-service")

	bookedConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "booking.created.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "booked")
	})
	go bookedConsumer.Run(ctx)

	canceledConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "booking.canceled.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "canceled")
	})
	go canceledConsumer.Run(ctx)

	handleShiftEvent := func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EntryID    string `json:"entry_id"`
			ResourceID string `json:"resource_id"`
			StartTime  string `json:"start_time"`
			EndTime    string `json:"end_time"`
			CanceledAt string `json:"canceled_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid shift payload", "err", err)
			return nil
		}
		if payload.EntryID == "" || payload.ResourceID == "" || payload.StartTime == "" {
			logger.Error("missing shift fields")
			return nil
		}
		startTime, err := time.Parse(time.RFC3339, payload.StartTime)
		if err != nil {
			logger.Error("invalid start_time", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		if _, err := pool.Exec(ctx, `
			INSERT INTO shift_audit_events (event_id, event_type, entry_id, resource_id, starts_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.EntryID, payload.ResourceID, startTime.UTC()); err != nil {
			logger.Error("failed to insert shift audit event", "err", err)
			return err
		}

		logger.Info("shift audit recorded", "entry_id", payload.EntryID, "event_type", meta.EventType)
		return nil
	}

	shiftCreatedConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "schedule.shift.created.v1",
	}, handleShiftEvent)
	go shiftCreatedConsumer.Run(ctx)

	shiftCanceledConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "schedule.shift.canceled.v1",
	}, handleShiftEvent)
	go shiftCanceledConsumer.Run(ctx)

	reports := handlers.NewReportHandler(pool, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/reports/daily", reports.Daily)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "reporting")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
