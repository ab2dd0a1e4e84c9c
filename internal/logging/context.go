package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	scenarioIDKey ctxKey = iota
	stepIndexKey
	runIDKey
)

// WithScenarioID returns a context with the scenario ID set.
func WithScenarioID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scenarioIDKey, id)
}

// WithStepIndex returns a context with the step index set.
func WithStepIndex(ctx context.Context, idx int) context.Context {
	return context.WithValue(ctx, stepIndexKey, idx)
}

// WithRunID returns a context with the run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// ScenarioID extracts the scenario ID from the context, or "" if absent.
func ScenarioID(ctx context.Context) string {
	v, _ := ctx.Value(scenarioIDKey).(string)
	return v
}

// StepIndex extracts the step index from the context, or -1 if absent.
func StepIndex(ctx context.Context) int {
	v, ok := ctx.Value(stepIndexKey).(int)
	if !ok {
		return -1
	}
	return v
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only present values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RunID(ctx); id != "" {
		logger = logger.With(slog.String("run_id", id))
	}
	if id := ScenarioID(ctx); id != "" {
		logger = logger.With(slog.String("scenario_id", id))
	}
	if idx := StepIndex(ctx); idx >= 0 {
		logger = logger.With(slog.Int("step_index", idx))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := RunID(ctx); v != "" {
		r.AddAttrs(slog.String("run_id", v))
	}
	if v := ScenarioID(ctx); v != "" {
		r.AddAttrs(slog.String("scenario_id", v))
	}
	if v := StepIndex(ctx); v >= 0 {
		r.AddAttrs(slog.Int("step_index", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
