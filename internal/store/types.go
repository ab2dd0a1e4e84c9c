package store

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a recorded test run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
)

// Run is one execution of a feature suite.
type Run struct {
	ID          string     `json:"id"`
	SuiteName   string     `json:"suite_name"`
	Status      RunStatus  `json:"status"`
	PassedSteps int        `json:"passed_steps"`
	FailedSteps int        `json:"failed_steps"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// StepRecord is the persisted trace of a single dispatched step.
type StepRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	ScenarioID string    `json:"scenario_id"`
	StepIndex  int       `json:"step_index"`
	Text       string    `json:"text"`
	ActionType string    `json:"action_type"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Curl       string    `json:"curl,omitempty"`
	StatusCode *int      `json:"status_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is an append-only audit entry scoped to a run. Sequence numbers are
// assigned per run and strictly increase.
type Event struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	ScenarioID string          `json:"scenario_id,omitempty"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status *RunStatus
	Suite  string
	Since  *time.Time
	Limit  int
	Offset int
}
