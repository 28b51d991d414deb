package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/novacriatura/rota/internal/app"
	"github.com/novacriatura/rota/internal/assignments"
	audithttp "github.com/novacriatura/rota/internal/audit/http"
	"github.com/novacriatura/rota/internal/observability"
	"github.com/novacriatura/rota/internal/schedule"
	"github.com/novacriatura/rota/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("set maxprocs", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	services, err := app.Build(ctx, cfg, logger, app.BuildOptions{Metrics: metrics, Enqueue: true})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, reset endpoint disabled")
	}
	assignmentsHandler := assignments.NewHandler(logger, services.Assignments, cfg.AdminPasswordHash).
		WithRateLimit(cfg.RateLimitWrites)
	scheduleHandler := schedule.NewHandler(logger, services.Schedules)
	auditHandler := audithttp.NewHandler(logger, services.Audit)

	var inspector jobs.QueueInspector
	if services.Redis != nil {
		asynqInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqInspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		inspector = asynqInspector
	}
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AssignmentsHandler: assignmentsHandler,
		ScheduleHandler:    scheduleHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
		Ready: func(r *http.Request) error {
			return services.Store.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", services.Store.Driver),
			slog.Int("cards", len(services.Catalog.Roles())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
