package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("schedule_refresh").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("schedule_refresh").End(boom), boom)
	m.AddWarmed(4)
	m.AddWarmed(0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("schedule_refresh", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("schedule_refresh", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.failures.WithLabelValues("schedule_refresh")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.warmed), 0)
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddWarmed(3)
}
