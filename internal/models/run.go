package models

import "time"

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Valid reports whether s is one of the known run statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s closes a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// Run is the handle for one tracked execution. It is allocated by a backend's
// StartRun and owned by a single RunContext for its lifetime; backends hold
// only the durable projection of its state.
type Run struct {
	ID         string     `json:"run_id" yaml:"run_id"`
	Experiment string     `json:"experiment" yaml:"experiment"`
	Status     RunStatus  `json:"status" yaml:"status"`
	StartTime  time.Time  `json:"start_time" yaml:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
}
