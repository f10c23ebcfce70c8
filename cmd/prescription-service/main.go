// Package main provides the prescription service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medtrack/prescription-service/internal/api/handlers"
	"github.com/medtrack/prescription-service/internal/api/middleware"
	"github.com/medtrack/prescription-service/internal/clients/appointment"
	"github.com/medtrack/prescription-service/internal/clients/notification"
	"github.com/medtrack/prescription-service/internal/config"
	"github.com/medtrack/prescription-service/internal/domain/prescription"
	"github.com/medtrack/prescription-service/internal/observability/metrics"
	"github.com/medtrack/prescription-service/internal/observability/tracing"
	"github.com/medtrack/prescription-service/pkg/circuitbreaker"
	"github.com/medtrack/prescription-service/pkg/workerpool"
)

const serviceName = "prescription-service"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	ctx := context.Background()

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	repo := prescription.NewRepository(pool, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	m := metrics.New()

	// Tracing export is best-effort; the service runs without a collector.
	tp, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	breaker, err := circuitbreaker.New(appointment.BreakerConfig(), logger)
	if err != nil {
		logger.Fatal("failed to create circuit breaker", zap.Error(err))
	}

	verifier := appointment.NewClient(cfg.AppointmentServiceURL, 10*time.Second, breaker, logger)

	notifyPool := workerpool.New(workerpool.DefaultConfig(), logger)
	notifyPool.Start()
	defer notifyPool.Stop()

	notifier := notification.NewClient(cfg.NotificationServiceURL, notifyPool, m, logger)

	prescriptionHandler := handlers.NewPrescriptionHandler(repo, verifier, notifier, m, logger)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(m.RequestDuration))
	r.Use(middleware.Tracing(serviceName))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/prescriptions", prescriptionHandler.Routes())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting prescription service", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"%s"}`, serviceName)
}
