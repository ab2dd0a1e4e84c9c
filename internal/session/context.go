package session

import (
	"github.com/google/uuid"
	"github.com/nlstep/nlstep/pkg/schema"
)

// HistoryDepth is how many superseded execution records are retained for
// cross-response assertions.
const HistoryDepth = 5

// StepEntry is one line of the per-scenario step log.
type StepEntry struct {
	Index   int               `json:"index"`
	Text    string            `json:"text"`
	Outcome schema.StepStatus `json:"outcome"`
}

// Context holds all per-scenario state: the current execution record, a
// bounded history of superseded records, the captured bearer token, data
// bags for the two sources, and the step log.
//
// A Context is owned by exactly one scenario and is not shared across
// goroutines. Scenarios running in parallel each get their own.
type Context struct {
	id string

	current *schema.ExecutionRecord
	history []*schema.ExecutionRecord

	bearerToken string

	uiData  map[string]string
	apiData map[string]any

	steps []StepEntry
}

// New creates an empty scenario context with a fresh ID.
func New() *Context {
	return &Context{
		id:      uuid.NewString(),
		uiData:  make(map[string]string),
		apiData: make(map[string]any),
	}
}

// ID returns the scenario correlation ID.
func (c *Context) ID() string { return c.id }

// Current returns the record of the most recent side-effecting action, or
// nil when no API or browser step has run yet.
func (c *Context) Current() *schema.ExecutionRecord { return c.current }

// SetCurrent replaces the current record wholesale. The superseded record
// moves to the front of the history, which is trimmed to HistoryDepth.
func (c *Context) SetCurrent(rec *schema.ExecutionRecord) {
	if c.current != nil {
		c.history = append([]*schema.ExecutionRecord{c.current}, c.history...)
		if len(c.history) > HistoryDepth {
			c.history = c.history[:HistoryDepth]
		}
	}
	c.current = rec
}

// Previous returns the nth superseded record, newest first: Previous(1) is
// the record replaced by the current one. Returns nil when out of range.
func (c *Context) Previous(n int) *schema.ExecutionRecord {
	if n < 1 || n > len(c.history) {
		return nil
	}
	return c.history[n-1]
}

// History returns the superseded records, newest first.
func (c *Context) History() []*schema.ExecutionRecord { return c.history }

// BearerToken returns the captured token, or "" when none has been seen.
func (c *Context) BearerToken() string { return c.bearerToken }

// SetBearerToken stores a captured token, replacing any earlier one.
func (c *Context) SetBearerToken(tok string) { c.bearerToken = tok }

// UIData returns the browser-sourced data bag.
func (c *Context) UIData() map[string]string { return c.uiData }

// SetUIData stores one browser-sourced value.
func (c *Context) SetUIData(key, value string) { c.uiData[key] = value }

// APIData returns the API-sourced data bag.
func (c *Context) APIData() map[string]any { return c.apiData }

// MergeAPIData folds the top-level fields of an object response into the
// API data bag. Later steps overwrite earlier keys.
func (c *Context) MergeAPIData(obj map[string]any) {
	for k, v := range obj {
		c.apiData[k] = v
	}
}

// RecordStep appends one entry to the step log.
func (c *Context) RecordStep(text string, outcome schema.StepStatus) {
	c.steps = append(c.steps, StepEntry{
		Index:   len(c.steps),
		Text:    text,
		Outcome: outcome,
	})
}

// Steps returns the step log in execution order.
func (c *Context) Steps() []StepEntry { return c.steps }

// Clear resets every piece of scenario state, keeping the ID. Called between
// scenarios so state never leaks across them.
func (c *Context) Clear() {
	c.current = nil
	c.history = nil
	c.bearerToken = ""
	c.uiData = make(map[string]string)
	c.apiData = make(map[string]any)
	c.steps = nil
}

// Snapshot assembles the expression-engine view of the session. Assertions
// evaluate against this copy and never write back.
func (c *Context) Snapshot() map[string]any {
	snap := map[string]any{
		"ui":  map[string]any{},
		"api": c.apiData,
	}
	ui := make(map[string]any, len(c.uiData))
	for k, v := range c.uiData {
		ui[k] = v
	}
	snap["ui"] = ui

	if c.current != nil {
		if c.current.StatusCode != nil {
			snap["status"] = *c.current.StatusCode
		}
		if obj := c.current.JSONObject(); obj != nil {
			snap["response"] = obj
		}
	}

	hist := make([]any, 0, len(c.history))
	for _, rec := range c.history {
		if obj := rec.JSONObject(); obj != nil {
			hist = append(hist, obj)
		} else {
			hist = append(hist, map[string]any{})
		}
	}
	snap["history"] = hist
	return snap
}
