package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/novacriatura/rota/internal/calendar"
	jobmetrics "github.com/novacriatura/rota/internal/jobs"
	"github.com/novacriatura/rota/internal/schedule"
	"github.com/novacriatura/rota/jobs"
)

type slowRefresher struct {
	delay time.Duration
	fail  map[calendar.Date]bool
}

func (s slowRefresher) Refresh(ctx context.Context, date calendar.Date) (schedule.View, error) {
	time.Sleep(s.delay)
	if s.fail[date] {
		return schedule.View{}, errors.New("store timeout")
	}
	return schedule.View{Date: date}, nil
}

func TestScheduleRefreshThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	start := calendar.MustParse("2026-01-03")
	failing := map[calendar.Date]bool{
		start.AddDays(7 * 10): true,
		start.AddDays(7 * 20): true,
	}
	job := jobs.NewScheduleRefreshJob(slowRefresher{delay: 2 * time.Millisecond, fail: failing}, nil, metrics)

	for i := 0; i < 40; i++ {
		task, err := jobs.NewScheduleRefreshTask(start.AddDays(7 * i))
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		err = job.Handle(context.Background(), task)
		if failing[start.AddDays(7*i)] != (err != nil) {
			t.Fatalf("week %d: unexpected result %v", i, err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "rota_jobs_total", map[string]string{"job": jobs.TaskScheduleRefresh, "status": "success"})
	failure := metricValue(t, families, "rota_jobs_total", map[string]string{"job": jobs.TaskScheduleRefresh, "status": "failure"})
	if success != 38 || failure != 2 {
		t.Fatalf("unexpected counts: success=%v failure=%v", success, failure)
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("refresh success ratio too low: %f", ratio)
	}

	mean := histogramMean(t, families, "rota_job_duration_seconds", map[string]string{"job": jobs.TaskScheduleRefresh})
	if mean > 0.5 {
		t.Fatalf("refresh duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
