package schema

import "encoding/json"

// ActionType is the classified kind of a single step. It is produced fresh
// for every step and never persisted beyond it.
type ActionType string

const (
	ActionAPI       ActionType = "api"
	ActionBrowser   ActionType = "browser"
	ActionAssertion ActionType = "assertion"
)

// RoutingMode is the scenario-level routing policy, derived once from
// scenario tags. Explicit modes force every step to one backend; Mixed and
// Auto re-classify each step.
type RoutingMode string

const (
	RouteExplicitAPI     RoutingMode = "api"
	RouteExplicitBrowser RoutingMode = "browser"
	RouteMixed           RoutingMode = "mixed"
	// RouteAuto is the default when no routing tag is present. Steps are
	// classified by rules, with the semantic classifier as tie-breaker.
	RouteAuto RoutingMode = "auto"
)

// RoutingModeFromTags maps scenario tags to a RoutingMode.
// Recognized tags: @api, @browser, @ui, @mixed. Absence of all implies Auto.
func RoutingModeFromTags(tags []string) RoutingMode {
	for _, t := range tags {
		switch t {
		case "@api", "api":
			return RouteExplicitAPI
		case "@browser", "browser", "@ui", "ui":
			return RouteExplicitBrowser
		case "@mixed", "mixed":
			return RouteMixed
		}
	}
	return RouteAuto
}

// ExecutionRecord is the authoritative record of the most recent
// side-effecting action. Exactly one record is "current" per scenario; each
// API or browser step replaces it wholesale, and assertion steps never
// produce one.
type ExecutionRecord struct {
	// Tool is one of get/post/put/delete/login/browser.
	Tool string `json:"tool"`
	// Endpoint is the absolute URL for API calls.
	Endpoint string `json:"endpoint,omitempty"`
	// Instruction is the natural-language command for browser calls.
	Instruction string `json:"instruction,omitempty"`
	// RequestBody is the structured payload sent, if any.
	RequestBody any `json:"request_body,omitempty"`
	// Curl is a reconstruction of the equivalent command-line request,
	// attached for diagnostics and report generation.
	Curl string `json:"curl,omitempty"`
	// StatusCode is present only for API calls that produced a response.
	StatusCode *int `json:"status_code,omitempty"`
	// ResponseBody is the raw response text.
	ResponseBody string `json:"response_body,omitempty"`
	// ResponseJSON is the parsed response, when the body was valid JSON.
	ResponseJSON any `json:"response_json,omitempty"`
	// Error is set only for transport-level failures (or backend failures
	// for browser steps). A non-2xx status is data, not an error.
	Error string `json:"error,omitempty"`
}

// OK reports whether the record carries a 2xx status.
func (r *ExecutionRecord) OK() bool {
	return r.StatusCode != nil && *r.StatusCode >= 200 && *r.StatusCode < 300
}

// ClientError reports whether the record carries a 4xx status.
func (r *ExecutionRecord) ClientError() bool {
	return r.StatusCode != nil && *r.StatusCode >= 400 && *r.StatusCode < 500
}

// JSONObject returns the parsed response as a map, or nil.
func (r *ExecutionRecord) JSONObject() map[string]any {
	m, _ := r.ResponseJSON.(map[string]any)
	return m
}

// MarshalCompact renders the record as one-line JSON for storage and logs.
func (r *ExecutionRecord) MarshalCompact() string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}

// ValidationResult is the outcome of evaluating one assertion step against
// the session. Producing it never mutates the session.
type ValidationResult struct {
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
	Expected    any    `json:"expected,omitempty"`
	Actual      any    `json:"actual,omitempty"`
}

// StepStatus is the terminal status of one dispatched step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// StepOutcome is the only thing the BDD runner observes for a step. All
// internal errors are resolved into it at the dispatcher boundary; nothing
// propagates uncaught.
type StepOutcome struct {
	Status     StepStatus        `json:"status"`
	ActionType ActionType        `json:"action_type"`
	Record     *ExecutionRecord  `json:"record,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// Failed reports whether the outcome should fail the step in the runner.
func (o *StepOutcome) Failed() bool { return o.Status == StepError }
