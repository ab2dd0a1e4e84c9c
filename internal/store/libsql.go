package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/nlstep/nlstep/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	status := run.Status
	if status == "" {
		status = RunRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, suite_name, status, passed_steps, failed_steps, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SuiteName, string(status), run.PassedSteps, run.FailedSteps,
		timeOrNow(run.StartedAt), nullTime(run.FinishedAt),
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) FinishRun(ctx context.Context, id string, status RunStatus, passed, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, passed_steps = ?, failed_steps = ?, finished_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(status), passed, failed, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	var status string
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, suite_name, status, passed_steps, failed_steps, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.SuiteName, &status, &run.PassedSteps, &run.FailedSteps, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Suite != "" {
		where = append(where, "suite_name = ?")
		args = append(args, filter.Suite)
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, suite_name, status, passed_steps, failed_steps, started_at, finished_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var status string
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.SuiteName, &status, &run.PassedSteps,
			&run.FailedSteps, &run.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.Status = RunStatus(status)
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Steps ---

func (s *LibSQLStore) AppendStep(ctx context.Context, step *StepRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, scenario_id, step_index, text, action_type, status, message, endpoint, curl, status_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.RunID, step.ScenarioID, step.StepIndex, step.Text, step.ActionType, step.Status,
		nullStr(step.Message), nullStr(step.Endpoint), nullStr(step.Curl),
		nullInt(step.StatusCode), timeOrNow(step.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	step.ID, _ = res.LastInsertId()
	return nil
}

func (s *LibSQLStore) ListSteps(ctx context.Context, runID string) ([]*StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, scenario_id, step_index, text, action_type, status, message, endpoint, curl, status_code, created_at
		 FROM steps WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		sr := &StepRecord{}
		var message, endpoint, curl sql.NullString
		var statusCode sql.NullInt64
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.ScenarioID, &sr.StepIndex, &sr.Text,
			&sr.ActionType, &sr.Status, &message, &endpoint, &curl, &statusCode, &sr.CreatedAt); err != nil {
			return nil, err
		}
		sr.Message = message.String
		sr.Endpoint = endpoint.String
		sr.Curl = curl.String
		if statusCode.Valid {
			code := int(statusCode.Int64)
			sr.StatusCode = &code
		}
		steps = append(steps, sr)
	}
	return steps, rows.Err()
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Next sequence number for this run.
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (run_id, scenario_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.ScenarioID), event.Type, nullRaw(event.Payload),
		timeOrNow(event.Timestamp), seq,
	)
	if isUniqueViolation(err) {
		// A concurrent writer claimed the sequence first.
		return schema.NewErrorf(schema.ErrCodeConflict,
			"event sequence %d already taken for run %s", seq, event.RunID).WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, scenario_id, event_type, payload, timestamp, sequence
		 FROM events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var scenarioID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &scenarioID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.ScenarioID = scenarioID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure. The
// driver surfaces these as plain SQLite error strings.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
