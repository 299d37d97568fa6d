package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/database"
	"github.com/stemsi/simulado-backend/internal/handler"
	"github.com/stemsi/simulado-backend/internal/logger"
	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/observability"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/router"
	"github.com/stemsi/simulado-backend/internal/service"
	"github.com/stemsi/simulado-backend/internal/validator"
	"github.com/stemsi/simulado-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Simulado Backend")

	// ─── Initialize Validator and Metrics ──────────────────────────────
	validator.Setup()
	observability.RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	simuladoRepo := repository.NewSimuladoRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, rdb, log)
	attemptService := service.NewAttemptService(
		service.NewPgAttemptStore(attemptRepo),
		service.NewRedisEventSink(rdb, log),
		log,
		service.WithMaxViolations(cfg.MaxViolations),
	)
	simuladoService := service.NewSimuladoService(simuladoRepo, cfg.DefaultDuration, log)
	questionService := service.NewQuestionService(questionRepo)
	monitorService := service.NewMonitorService(monitorRepo, simuladoRepo)
	auditService := service.NewAuditService(auditRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, userRepo, log),
		StudentPortal: handler.NewStudentPortalHandler(attemptService, log),
		WS:            handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins, cfg.WSReadIdleTimeout),
		Simulado:      handler.NewSimuladoHandler(simuladoService, log),
		Question:      handler.NewQuestionHandler(questionService, log),
		Release:       handler.NewReleaseHandler(attemptService, log),
		Monitor:       handler.NewMonitorHandler(rdb, monitorService, cfg.MonitorKeepAlive, log),
		System:        handler.NewSystemHandler(pool, rdb, log),
		Audit:         handler.NewAuditHandler(auditService, log),
	}
	limiter := middleware.NewLoginRateLimiter(rdb, cfg.LoginRateLimit, cfg.LoginRateWindow, log)
	auditor := middleware.NewAuditor(auditService, log)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	auditWorker := worker.NewViolationAuditWorker(violationRepo, rdb, log)
	expiryWorker := worker.NewExpiryWorker(attemptService, cfg.SweepInterval, cfg.SweepBatch, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		auditWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		expiryWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, limiter, auditor, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the audit worker flushes what it holds.
	workerCancel()
	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
