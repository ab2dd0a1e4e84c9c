package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nlstep/nlstep/pkg/schema"
)

// Recorder persists dispatched steps under a single run. It satisfies the
// dispatcher's step sink contract and tracks pass/fail tallies so the run
// row can be closed with totals.
type Recorder struct {
	store Store
	runID string

	mu     sync.Mutex
	passed int
	failed int
}

// NewRecorder opens a run row and returns a recorder bound to it.
func NewRecorder(ctx context.Context, s Store, suiteName string) (*Recorder, error) {
	run := &Run{
		ID:        uuid.NewString(),
		SuiteName: suiteName,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return &Recorder{store: s, runID: run.ID}, nil
}

// RunID returns the identifier of the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// StepFinished persists one step outcome.
func (r *Recorder) StepFinished(ctx context.Context, scenarioID string, index int, stepText string, outcome *schema.StepOutcome) error {
	rec := &StepRecord{
		RunID:      r.runID,
		ScenarioID: scenarioID,
		StepIndex:  index,
		Text:       stepText,
		ActionType: string(outcome.ActionType),
		Status:     string(outcome.Status),
		Message:    outcome.Message,
		CreatedAt:  time.Now().UTC(),
	}
	if outcome.Record != nil {
		rec.Endpoint = outcome.Record.Endpoint
		rec.Curl = outcome.Record.Curl
		rec.StatusCode = outcome.Record.StatusCode
	}

	r.mu.Lock()
	if outcome.Failed() {
		r.failed++
	} else {
		r.passed++
	}
	r.mu.Unlock()

	return r.store.AppendStep(ctx, rec)
}

// Finish closes the run row with the accumulated tallies.
func (r *Recorder) Finish(ctx context.Context) error {
	r.mu.Lock()
	passed, failed := r.passed, r.failed
	r.mu.Unlock()

	status := RunPassed
	if failed > 0 {
		status = RunFailed
	}
	return r.store.FinishRun(ctx, r.runID, status, passed, failed)
}
