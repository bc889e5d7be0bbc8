package main

import (
	"context"
	"net/http"
	"time"

	"github.com/tranqhuy/clubsched/libs/config"
	"github.com/tranqhuy/clubsched/libs/db"
	"github.com/tranqhuy/clubsched/libs/httpx"
	"github.com/tranqhuy/clubsched/libs/kafkax"
	otelx "github.com/tranqhuy/clubsched/libs/otel"
	"github.com/tranqhuy/clubsched/libs/runtime"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/handlers"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/outbox"
	"github.com/tranqhuy/clubsched/services/schedule-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "schedule-service")
	port, err := config.Port("PORT", "8081")
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

	shiftRepo := storage.NewShiftRepository(pool)
	sessionRepo := storage.NewSessionRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	shiftHandler := handlers.NewShiftHandler(shiftRepo, outboxRepo, logger)
	sessionHandler := handlers.NewSessionHandler(sessionRepo, outboxRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/shifts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			shiftHandler.List(w, r)
			return
		}
		shiftHandler.Create(w, r)
	})
	mux.HandleFunc("/api/v1/shifts/cancel", shiftHandler.Cancel)
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			sessionHandler.List(w, r)
			return
		}
		sessionHandler.Create(w, r)
	})
	mux.HandleFunc("/api/v1/bookings", sessionHandler.Book)
	mux.HandleFunc("/api/v1/bookings/cancel", sessionHandler.CancelBooking)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "schedule")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
