package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/novacriatura/rota/internal/app"
	"github.com/novacriatura/rota/internal/calendar"
	jobmetrics "github.com/novacriatura/rota/internal/jobs"
	"github.com/novacriatura/rota/jobs"
)

// warmupWeeks is how many upcoming meetings the weekly warmup rebuilds.
const warmupWeeks = 2

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	services, err := app.Build(ctx, cfg, logger, app.BuildOptions{})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()
	if services.Redis == nil {
		logger.Error("worker requires redis", slog.String("addr", cfg.RedisAddr))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	refreshJob := jobs.NewScheduleRefreshJob(services.Schedules, logger, metrics)
	warmupJob := jobs.NewScheduleWarmupJob(services.Schedules, logger, metrics)

	warmupTask, err := jobs.NewScheduleWarmupTask(cfg.ScheduleWeekday, warmupWeeks)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	weekday, err := calendar.ParseWeekday(cfg.ScheduleWeekday)
	if err != nil {
		logger.Error("meeting weekday", slog.Any("error", err))
		os.Exit(1)
	}
	nextMeeting := func() []calendar.Date {
		return jobs.UpcomingMeetings(calendar.FromTime(time.Now()), weekday, 1)
	}
	if err := services.Schedules.Rewarm(ctx, nextMeeting); err != nil {
		logger.Warn("subscribe schedule invalidations", slog.Any("error", err))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskScheduleRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskScheduleWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ScheduleWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
