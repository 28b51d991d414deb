package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/novacriatura/rota/internal/calendar"
	jobmetrics "github.com/novacriatura/rota/internal/jobs"
	"github.com/novacriatura/rota/internal/schedule"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Refresher rebuilds and caches the programme of a date.
type Refresher interface {
	Refresh(ctx context.Context, date calendar.Date) (schedule.View, error)
}

// ScheduleRefreshJob handles TaskScheduleRefresh.
type ScheduleRefreshJob struct {
	Schedules Refresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewScheduleRefreshJob wires dependencies for the refresh handler.
func NewScheduleRefreshJob(schedules Refresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScheduleRefreshJob {
	return &ScheduleRefreshJob{Schedules: schedules, Logger: logger, Metrics: metrics}
}

// Handle processes schedule refresh tasks.
func (j *ScheduleRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Schedules == nil {
		return errors.New("schedule refresh: handler not configured")
	}
	var payload ScheduleRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("schedule refresh: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	date, err := calendar.Parse(payload.Date)
	if err != nil {
		return fmt.Errorf("schedule refresh: %v: %w", err, asynq.SkipRetry)
	}

	tracker := pickMetrics(j.Metrics).Track(TaskScheduleRefresh)
	logger := jobLogger(j.Logger, TaskScheduleRefresh).With(slog.String("date", date.String()))

	start := time.Now()
	view, err := j.Schedules.Refresh(ctx, date)
	if err != nil {
		logger.Error("refresh schedule", slog.Any("error", err))
		return tracker.End(err)
	}
	pickMetrics(j.Metrics).AddWarmed(1)
	logger.Info("schedule refreshed",
		slog.Int("comunhao", len(view.Roles.Comunhao)),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func pickMetrics(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
