package models

import "time"

// MetricPoint is one row of a metrics ingestion file. Values holds arbitrary
// metric keys; timestamp and step are optional and inferred when absent.
type MetricPoint struct {
	Timestamp *time.Time         `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Step      *int64             `json:"step,omitempty" yaml:"step,omitempty"`
	Values    map[string]float64 `json:"values" yaml:"values"`
}

type MetricsFile struct {
	Metrics []MetricPoint `json:"metrics" yaml:"metrics"`
}

type Metric struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Step      *int64    `json:"step,omitempty"`
}

// MetricRecording is one append-only entry in a run's durable metric sequence.
type MetricRecording struct {
	Value     float64   `json:"value"`
	Step      *int64    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

type TimeConfig struct {
	Resolution string // 1m, 5m, 1h
	Alignment  string // floor, ceil, round
	StepMode   string // auto, timestamp, sequence
}
