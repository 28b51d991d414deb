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
)

// ScheduleWarmupJob rebuilds the programmes of the next meetings so the
// first readers of the week hit a warm cache.
type ScheduleWarmupJob struct {
	Schedules Refresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewScheduleWarmupJob wires dependencies for the warmup handler.
func NewScheduleWarmupJob(schedules Refresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScheduleWarmupJob {
	return &ScheduleWarmupJob{
		Schedules: schedules,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes schedule warmup tasks.
func (j *ScheduleWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Schedules == nil {
		return errors.New("schedule warmup: handler not configured")
	}
	var payload ScheduleWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("schedule warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	weekday, err := calendar.ParseWeekday(payload.Weekday)
	if err != nil {
		return fmt.Errorf("schedule warmup: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Weeks <= 0 {
		payload.Weeks = 1
	}

	tracker := pickMetrics(j.Metrics).Track(TaskScheduleWarmup)
	logger := jobLogger(j.Logger, TaskScheduleWarmup)

	dates := UpcomingMeetings(calendar.FromTime(j.now()), weekday, payload.Weeks)
	for _, date := range dates {
		dateCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		_, err := j.Schedules.Refresh(dateCtx, date)
		cancel()
		if err != nil {
			logger.Error("warm schedule", slog.String("date", date.String()), slog.Any("error", err))
			return tracker.End(err)
		}
	}
	pickMetrics(j.Metrics).AddWarmed(len(dates))
	logger.Info("schedules warmed", slog.Int("dates", len(dates)))
	return tracker.End(nil)
}

// UpcomingMeetings lists the next weeks meeting dates on weekday, starting today.
func UpcomingMeetings(today calendar.Date, weekday time.Weekday, weeks int) []calendar.Date {
	first := today.NextWeekday(weekday)
	out := make([]calendar.Date, 0, weeks)
	for i := 0; i < weeks; i++ {
		out = append(out, first.AddDays(7*i))
	}
	return out
}

func (j *ScheduleWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
