package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/novacriatura/rota/internal/calendar"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskScheduleRefresh rebuilds the cached programme of one date.
	TaskScheduleRefresh = "schedule:refresh"
	// TaskScheduleWarmup rebuilds the programmes of the upcoming meetings.
	TaskScheduleWarmup = "schedule:warmup"
)

// refreshUniqueness collapses bursts of refreshes for the same date.
const refreshUniqueness = 30 * time.Second

// ScheduleRefreshPayload names the date to rebuild.
type ScheduleRefreshPayload struct {
	Date string `json:"date"`
}

// ScheduleWarmupPayload selects the meeting weekday and how many weeks ahead to warm.
type ScheduleWarmupPayload struct {
	Weekday string `json:"weekday"`
	Weeks   int    `json:"weeks"`
}

// NewScheduleRefreshTask constructs a refresh task for date.
func NewScheduleRefreshTask(date calendar.Date) (*asynq.Task, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("jobs: refresh task needs a date")
	}
	data, err := json.Marshal(ScheduleRefreshPayload{Date: date.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScheduleRefresh, data, asynq.Queue(QueueDefault), asynq.Unique(refreshUniqueness), asynq.MaxRetry(5)), nil
}

// NewScheduleWarmupTask constructs a warmup task.
func NewScheduleWarmupTask(weekday string, weeks int) (*asynq.Task, error) {
	weekday = strings.TrimSpace(weekday)
	if _, err := calendar.ParseWeekday(weekday); err != nil {
		return nil, err
	}
	if weeks <= 0 {
		weeks = 1
	}
	data, err := json.Marshal(ScheduleWarmupPayload{Weekday: weekday, Weeks: weeks})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScheduleWarmup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
