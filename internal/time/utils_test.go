package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

func TestAlignTimestamp(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 7, 30, 0, time.UTC)

	tests := []struct {
		name       string
		resolution string
		alignment  string
		expected   time.Time
	}{
		{"floor 1m", "1m", "floor", time.Date(2024, 1, 15, 10, 7, 0, 0, time.UTC)},
		{"ceil 1m", "1m", "ceil", time.Date(2024, 1, 15, 10, 8, 0, 0, time.UTC)},
		{"round 1m up", "1m", "round", time.Date(2024, 1, 15, 10, 8, 0, 0, time.UTC)},
		{"floor 5m", "5m", "floor", time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)},
		{"ceil 5m", "5m", "ceil", time.Date(2024, 1, 15, 10, 10, 0, 0, time.UTC)},
		{"round 5m down", "5m", "round", time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)},
		{"floor 1h", "1h", "floor", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"ceil 1h", "1h", "ceil", time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AlignTimestamp(base, tt.resolution, tt.alignment)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAlignTimestampAlreadyAligned(t *testing.T) {
	aligned := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)

	got, err := AlignTimestamp(aligned, "5m", "ceil")
	require.NoError(t, err)
	assert.Equal(t, aligned, got)
}

func TestAlignTimestampUnsupported(t *testing.T) {
	now := time.Now()

	_, err := AlignTimestamp(now, "2m", "floor")
	assert.Error(t, err)

	_, err = AlignTimestamp(now, "1m", "nearest")
	assert.Error(t, err)
}

func TestProcessMetricsExplicitSteps(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	step := int64(7)
	points := []models.MetricPoint{
		{Timestamp: &ts, Step: &step, Values: map[string]float64{"loss": 3.3}},
	}

	metrics, err := ProcessMetrics(points, models.TimeConfig{Resolution: "1m", Alignment: "floor", StepMode: "sequence"}, nil)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "loss", metrics[0].Key)
	assert.Equal(t, 3.3, metrics[0].Value)
	require.NotNil(t, metrics[0].Step)
	assert.Equal(t, int64(7), *metrics[0].Step)
}

func TestProcessMetricsSequenceSteps(t *testing.T) {
	ts1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(10 * time.Minute)
	points := []models.MetricPoint{
		{Timestamp: &ts1, Values: map[string]float64{"loss": 3.0}},
		{Timestamp: &ts2, Values: map[string]float64{"loss": 2.0}},
	}

	metrics, err := ProcessMetrics(points, models.TimeConfig{Resolution: "1m", Alignment: "floor", StepMode: "sequence"}, nil)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, int64(0), *metrics[0].Step)
	assert.Equal(t, int64(1), *metrics[1].Step)
}

func TestProcessMetricsTimestampSteps(t *testing.T) {
	ts1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(15 * time.Minute)
	points := []models.MetricPoint{
		{Timestamp: &ts1, Values: map[string]float64{"loss": 3.0}},
		{Timestamp: &ts2, Values: map[string]float64{"loss": 2.0}},
	}

	metrics, err := ProcessMetrics(points, models.TimeConfig{Resolution: "1m", Alignment: "floor", StepMode: "timestamp"}, nil)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	// Minutes elapsed from the first point.
	assert.Equal(t, int64(0), *metrics[0].Step)
	assert.Equal(t, int64(15), *metrics[1].Step)
}

func TestProcessMetricsSortsKeysPerPoint(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	points := []models.MetricPoint{
		{Timestamp: &ts, Values: map[string]float64{"recall": 0.9, "accuracy": 0.8, "f1": 0.85}},
	}

	metrics, err := ProcessMetrics(points, models.TimeConfig{Resolution: "1m", Alignment: "floor", StepMode: "sequence"}, nil)
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	assert.Equal(t, "accuracy", metrics[0].Key)
	assert.Equal(t, "f1", metrics[1].Key)
	assert.Equal(t, "recall", metrics[2].Key)
}

func TestProcessMetricsAlignmentApplied(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 7, 30, 0, time.UTC)
	points := []models.MetricPoint{
		{Timestamp: &ts, Values: map[string]float64{"loss": 1.0}},
	}

	metrics, err := ProcessMetrics(points, models.TimeConfig{Resolution: "5m", Alignment: "floor", StepMode: "sequence"}, nil)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC), metrics[0].Timestamp)
}

func TestProcessMetricsBadResolution(t *testing.T) {
	ts := time.Now()
	points := []models.MetricPoint{
		{Timestamp: &ts, Values: map[string]float64{"loss": 1.0}},
	}

	_, err := ProcessMetrics(points, models.TimeConfig{Resolution: "3m", Alignment: "floor", StepMode: "sequence"}, nil)
	assert.Error(t, err)
}
