package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"camp-service/internal/broadcast"
	"camp-service/internal/config"
	attendanceCheck "camp-service/internal/http-server/handlers/attendance/check"
	attendanceGet "camp-service/internal/http-server/handlers/attendance/get"
	recognitionWebhook "camp-service/internal/http-server/handlers/recognition/webhook"
	scheduleCore "camp-service/internal/http-server/handlers/schedules/core"
	scheduleGet "camp-service/internal/http-server/handlers/schedules/get"
	scheduleOptional "camp-service/internal/http-server/handlers/schedules/optional"
	scheduleReschedule "camp-service/internal/http-server/handlers/schedules/reschedule"
	"camp-service/internal/idempotency"
	"camp-service/internal/lock"
	"camp-service/internal/recognition"
	svc "camp-service/internal/service"
	"camp-service/internal/storage/postgres"
	slogpretty "camp-service/pkg/handlers/slogPretty"
	"camp-service/pkg/middleware/mwLogger"
	"camp-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	locker, err := lock.NewRedisLock(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	cache, err := idempotency.NewRedisCache(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init idempotency cache", sl.Err(err))
		os.Exit(1)
	}

	notifier, err := broadcast.NewRedisNotifier(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init notifier", sl.Err(err))
		os.Exit(1)
	}

	matcher := recognition.NewHTTPMatcher(cfg.Recognition.MatcherURL, cfg.Recognition.Timeout)

	service := svc.NewService(log, storage, locker, cache, matcher, notifier, svc.Options{
		StrictCampers:  cfg.Attendance.StrictCampers,
		IdempotencyTTL: cfg.Idempotency.TTL,
		ProcessingTTL:  cfg.Idempotency.ProcessingTTL,
		MinConfidence:  cfg.Recognition.MinConfidence,
		LockTTL:        cfg.Lock.TTL,
	})

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Schedules
	router.Post("/schedules/core", scheduleCore.New(log, service))
	router.Post("/schedules/optional", scheduleOptional.New(log, service))
	router.Get("/schedules/{id}", scheduleGet.New(log, service))
	router.Post("/schedules/{id}/reschedule", scheduleReschedule.New(log, service))

	// Attendance
	router.Post("/attendance/core", attendanceCheck.New(log, service, svc.EntryCore))
	router.Post("/attendance/optional", attendanceCheck.New(log, service, svc.EntryOptional))
	router.Post("/attendance/checkin", attendanceCheck.New(log, service, svc.EntryCheckin))
	router.Post("/attendance/checkout", attendanceCheck.New(log, service, svc.EntryCheckout))
	router.Get("/attendance", attendanceGet.New(log, service))

	// Recognition webhook
	router.Post("/webhooks/recognition", recognitionWebhook.New(log, service))

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if err := storage.Close(); err != nil {
		log.Error("Failed to close storage", sl.Err(err))
	} else {
		log.Info("Storage closed")
	}

	if err := locker.Close(); err != nil {
		log.Error("Failed to close locker", sl.Err(err))
	}

	if err := cache.Close(); err != nil {
		log.Error("Failed to close idempotency cache", sl.Err(err))
	}

	if err := notifier.Close(); err != nil {
		log.Error("Failed to close notifier", sl.Err(err))
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
