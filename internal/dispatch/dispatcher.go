// Package dispatch routes classified steps to their executors and resolves
// every internal error into a reportable outcome. Nothing below the BDD
// runner ever sees a Go error escape a step.
package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nlstep/nlstep/internal/assertion"
	"github.com/nlstep/nlstep/internal/classifier"
	"github.com/nlstep/nlstep/internal/executor"
	"github.com/nlstep/nlstep/internal/logging"
	"github.com/nlstep/nlstep/internal/session"
	"github.com/nlstep/nlstep/pkg/schema"
)

// DefaultFailurePhrases are the response fragments treated as failure
// signals even under a 2xx status. Overridable through Config.
var DefaultFailurePhrases = []string{
	"i am unable to",
	"i cannot",
	"could not process",
	"failed to",
	"error occurred",
}

// DefaultNegativeMarkers are the step fragments that flip a 4xx outcome
// into an expected result.
var DefaultNegativeMarkers = []string{
	"invalid", "wrong", "incorrect", "should fail",
}

// Config tunes one dispatcher.
type Config struct {
	// BaseURL resolves relative API paths. Optional; steps with absolute
	// URLs work without it.
	BaseURL string
	// LoginPath is where credential steps post when the step names no path.
	LoginPath string
	// FailurePhrases overrides DefaultFailurePhrases when non-empty.
	FailurePhrases []string
	// NegativeMarkers overrides DefaultNegativeMarkers when non-empty.
	NegativeMarkers []string
}

func (c *Config) failurePhrases() []string {
	if len(c.FailurePhrases) > 0 {
		return c.FailurePhrases
	}
	return DefaultFailurePhrases
}

func (c *Config) negativeMarkers() []string {
	if len(c.NegativeMarkers) > 0 {
		return c.NegativeMarkers
	}
	return DefaultNegativeMarkers
}

// Sink observes finished steps. Sink failures are logged, never surfaced;
// persistence must not fail a scenario.
type Sink interface {
	StepFinished(ctx context.Context, scenarioID string, index int, stepText string, outcome *schema.StepOutcome) error
}

// Dispatcher runs the per-step lifecycle for one scenario. It owns the
// scenario's session and routing mode and is not safe for concurrent use;
// parallel scenarios each get their own dispatcher.
type Dispatcher struct {
	classifier classifier.Classifier
	api        *executor.APIExecutor
	browser    *executor.BrowserExecutor
	evaluator  *assertion.Evaluator

	session *session.Context
	mode    schema.RoutingMode
	config  Config
	logger  *slog.Logger
	sink    Sink

	phase Phase
}

// Options carries the collaborators for a new dispatcher.
type Options struct {
	Classifier classifier.Classifier
	API        *executor.APIExecutor
	Browser    *executor.BrowserExecutor
	Evaluator  *assertion.Evaluator
	Session    *session.Context
	Mode       schema.RoutingMode
	Config     Config
	Logger     *slog.Logger
	Sink       Sink
}

// New creates a dispatcher for one scenario.
func New(opts Options) *Dispatcher {
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Classifier == nil {
		opts.Classifier = classifier.NewRulesClassifier(classifier.DefaultRules())
	}
	if opts.Evaluator == nil {
		opts.Evaluator = assertion.NewEvaluator()
	}
	if opts.API == nil {
		opts.API = executor.NewAPIExecutor(executor.APIConfig{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	if opts.Mode == "" {
		opts.Mode = schema.RouteAuto
	}
	return &Dispatcher{
		classifier: opts.Classifier,
		api:        opts.API,
		browser:    opts.Browser,
		evaluator:  opts.Evaluator,
		session:    opts.Session,
		mode:       opts.Mode,
		config:     cfg,
		logger:     opts.Logger,
		sink:       opts.Sink,
		phase:      PhaseIdle,
	}
}

// Session exposes the scenario session, mainly for lifecycle hooks.
func (d *Dispatcher) Session() *session.Context { return d.session }

// RunStep executes one step end to end and always returns an outcome. Any
// internal error resolves to a StepError outcome here, at the boundary.
func (d *Dispatcher) RunStep(ctx context.Context, stepText string) schema.StepOutcome {
	ctx = logging.WithScenarioID(ctx, d.session.ID())
	ctx = logging.WithStepIndex(ctx, len(d.session.Steps()))
	log := logging.LogWith(ctx, d.logger)

	outcome := d.runStep(ctx, stepText, log)

	// Reporting phase: the step log, the sink, and the log line.
	d.session.RecordStep(stepText, outcome.Status)
	if d.sink != nil {
		if err := d.sink.StepFinished(ctx, d.session.ID(), len(d.session.Steps())-1, stepText, &outcome); err != nil {
			log.WarnContext(ctx, "step sink failed", slog.String("error", err.Error()))
		}
	}
	if outcome.Failed() {
		log.InfoContext(ctx, "step failed",
			slog.String("action", string(outcome.ActionType)),
			slog.String("message", outcome.Message))
	} else {
		log.DebugContext(ctx, "step passed",
			slog.String("action", string(outcome.ActionType)))
	}

	d.phase = PhaseIdle
	return outcome
}

func (d *Dispatcher) runStep(ctx context.Context, stepText string, log *slog.Logger) schema.StepOutcome {
	if err := d.advance(PhaseClassifying); err != nil {
		return errorOutcome("", err)
	}

	actionType, err := d.classifier.Classify(ctx, stepText, d.mode)
	if err != nil {
		return errorOutcome("", schema.NewErrorf(schema.ErrCodeClassifier,
			"cannot classify step: %v", err).WithCause(err).WithStep(stepText))
	}
	log.DebugContext(ctx, "step classified", slog.String("action", string(actionType)))

	if err := d.advance(PhaseExecuting); err != nil {
		return errorOutcome(actionType, err)
	}

	switch actionType {
	case schema.ActionAssertion:
		return d.runAssertion(ctx, stepText)
	case schema.ActionBrowser:
		return d.runBrowser(ctx, stepText)
	default:
		return d.runAPI(ctx, stepText)
	}
}

func (d *Dispatcher) runAssertion(ctx context.Context, stepText string) schema.StepOutcome {
	// Assertions skip Updating: they never touch the session.
	res, err := d.evaluator.Evaluate(ctx, stepText, d.session)
	if err != nil {
		_ = d.advance(PhaseReporting)
		return errorOutcome(schema.ActionAssertion, err)
	}
	_ = d.advance(PhaseReporting)

	outcome := schema.StepOutcome{
		ActionType: schema.ActionAssertion,
		Validation: res,
		Record:     d.session.Current(),
	}
	if res.Passed {
		outcome.Status = schema.StepSuccess
	} else {
		outcome.Status = schema.StepError
		outcome.Message = schema.NewError(schema.ErrCodeValidationFailure, res.Description).
			WithStep(stepText).Error()
	}
	return outcome
}

func (d *Dispatcher) runAPI(ctx context.Context, stepText string) schema.StepOutcome {
	req, err := d.parseAPIRequest(stepText)
	if err != nil {
		_ = d.advance(PhaseReporting)
		return errorOutcome(schema.ActionAPI, err)
	}

	rec, err := d.api.Execute(ctx, req)
	if err != nil {
		_ = d.advance(PhaseReporting)
		return errorOutcome(schema.ActionAPI, err)
	}

	_ = d.advance(PhaseUpdating)
	d.session.SetCurrent(rec)
	d.captureToken(rec)
	if obj := rec.JSONObject(); obj != nil {
		d.session.MergeAPIData(obj)
	}

	_ = d.advance(PhaseReporting)
	return d.resolveRecord(schema.ActionAPI, stepText, rec)
}

func (d *Dispatcher) runBrowser(ctx context.Context, stepText string) schema.StepOutcome {
	if d.browser == nil {
		_ = d.advance(PhaseReporting)
		return errorOutcome(schema.ActionBrowser, schema.NewError(
			schema.ErrCodeBackendUnavailable, "no browser backend configured").WithStep(stepText))
	}

	rec, err := d.browser.Execute(ctx, stepText)
	if err != nil {
		_ = d.advance(PhaseReporting)
		return errorOutcome(schema.ActionBrowser, err)
	}

	_ = d.advance(PhaseUpdating)
	d.session.SetCurrent(rec)
	if obj := rec.JSONObject(); obj != nil {
		for k, v := range obj {
			if s, ok := v.(string); ok {
				d.session.SetUIData(k, s)
			}
		}
	}

	_ = d.advance(PhaseReporting)
	return d.resolveRecord(schema.ActionBrowser, stepText, rec)
}

// captureToken scans the response for token material in a fixed field
// order; the first present field wins. Capturing the same token again is a
// no-op by construction.
func (d *Dispatcher) captureToken(rec *schema.ExecutionRecord) {
	obj := rec.JSONObject()
	if obj == nil {
		return
	}
	for _, field := range []string{"token", "access_token", "jwtToken", "authToken"} {
		if v, ok := obj[field].(string); ok && v != "" {
			d.session.SetBearerToken(v)
			return
		}
	}
}

// resolveRecord turns an execution record into the step outcome, applying
// the failure signals and the negative-test exception: a 4xx under a step
// that announces an expected failure is a pass.
func (d *Dispatcher) resolveRecord(at schema.ActionType, stepText string, rec *schema.ExecutionRecord) schema.StepOutcome {
	outcome := schema.StepOutcome{
		ActionType: at,
		Record:     rec,
		Status:     schema.StepSuccess,
	}

	if failMsg := d.failureSignal(rec); failMsg != "" {
		if rec.ClientError() && d.isNegativeStep(stepText) {
			outcome.Message = "expected failure observed"
			return outcome
		}
		outcome.Status = schema.StepError
		outcome.Message = failMsg
	}
	return outcome
}

// failureSignal reports why a record counts as failed, or "" when it does
// not: a transport or backend error, an HTTP status of 400 or above, or a
// configured failure phrase in the response text.
func (d *Dispatcher) failureSignal(rec *schema.ExecutionRecord) string {
	if rec.Error != "" {
		return rec.Error
	}
	if rec.StatusCode != nil && *rec.StatusCode >= 400 {
		return "request returned status " + strconv.Itoa(*rec.StatusCode)
	}
	lowerBody := strings.ToLower(rec.ResponseBody)
	for _, phrase := range d.config.failurePhrases() {
		if strings.Contains(lowerBody, phrase) {
			return "response reports a failure: " + phrase
		}
	}
	return ""
}

func (d *Dispatcher) isNegativeStep(stepText string) bool {
	lower := strings.ToLower(stepText)
	for _, marker := range d.config.negativeMarkers() {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func errorOutcome(at schema.ActionType, err error) schema.StepOutcome {
	return schema.StepOutcome{
		Status:     schema.StepError,
		ActionType: at,
		Message:    err.Error(),
	}
}
