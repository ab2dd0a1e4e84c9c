// Package assertion evaluates verification steps against the scenario
// session. Evaluation is read-only: every rule inspects the current
// execution record, the history, and the data bags, and produces a
// ValidationResult without mutating any of them.
package assertion

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nlstep/nlstep/internal/expressions"
	"github.com/nlstep/nlstep/internal/session"
	"github.com/nlstep/nlstep/pkg/schema"
)

// Evaluator resolves one assertion step into a pass/fail result. Rules are
// tried in a fixed order; the first one that recognizes the step decides.
// A step no rule recognizes fails with an explanation rather than erroring.
type Evaluator struct {
	jq   *expressions.GoJQEngine
	cel  *expressions.CELEngine
	expr *expressions.ExprEngine
}

// NewEvaluator creates an assertion evaluator.
func NewEvaluator() *Evaluator {
	// The CEL environment is static; constructing it cannot fail outside of
	// a programming error.
	cel, err := expressions.NewCELEngine()
	if err != nil {
		panic(err)
	}
	return &Evaluator{
		jq:   expressions.NewGoJQEngine(),
		cel:  cel,
		expr: expressions.NewExprEngine(),
	}
}

type rule func(ctx context.Context, lower, original string, sess *session.Context) (*schema.ValidationResult, bool, error)

// Evaluate runs the rule chain. The only error it returns is the
// unresolvable case: an assertion with nothing to verify against.
func (e *Evaluator) Evaluate(ctx context.Context, stepText string, sess *session.Context) (*schema.ValidationResult, error) {
	if sess.Current() == nil {
		return nil, schema.NewError(schema.ErrCodeAssertionUnresolvable,
			"no prior execution to verify against").WithStep(stepText)
	}

	lower := strings.ToLower(stepText)
	rules := []rule{
		e.ruleExpression,
		e.ruleSchema,
		e.ruleCrossSource,
		e.ruleCrossResponse,
		e.ruleToken,
		e.ruleStatus,
		e.ruleFieldComparison,
		e.ruleFieldPresence,
		e.ruleSubstring,
	}

	for _, r := range rules {
		res, ok, err := r(ctx, lower, stepText, sess)
		if err != nil {
			return nil, err
		}
		if ok {
			return res, nil
		}
	}

	return &schema.ValidationResult{
		Passed:      false,
		Description: fmt.Sprintf("no verification rule recognized step %q", stepText),
	}, nil
}

// --- status expectations ---

var statusCodeRe = regexp.MustCompile(`status(?: code)?\s+(?:of\s+)?(\d{3})`)

// ruleStatus checks status-word expectations against the current record.
// A step that names a field explicitly, by quoting it or saying "field",
// is a structural lookup even when the field is called "error" or
// "success"; those steps fall through to the field rules.
func (e *Evaluator) ruleStatus(_ context.Context, lower, _ string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	rec := sess.Current()
	namesField := quotedRe.MatchString(lower) || strings.Contains(lower, "field")

	type expectation struct {
		desc  string
		match func(code int) bool
	}
	var exp *expectation

	switch {
	case statusCodeRe.MatchString(lower):
		m := statusCodeRe.FindStringSubmatch(lower)
		want, _ := strconv.Atoi(m[1])
		exp = &expectation{
			desc:  fmt.Sprintf("status code %d", want),
			match: func(code int) bool { return code == want },
		}
	case namesField:
		return nil, false, nil
	case strings.Contains(lower, "not found"):
		exp = &expectation{"status 404 not found", func(code int) bool { return code == 404 }}
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "unauthorised"):
		exp = &expectation{"status 401 unauthorized", func(code int) bool { return code == 401 }}
	case strings.Contains(lower, "forbidden"):
		exp = &expectation{"status 403 forbidden", func(code int) bool { return code == 403 }}
	case strings.Contains(lower, "successful") || strings.Contains(lower, "success"):
		exp = &expectation{"successful (2xx) status", func(code int) bool { return code >= 200 && code < 300 }}
	case strings.Contains(lower, "error") || strings.Contains(lower, "fail"):
		exp = &expectation{"error (4xx/5xx) status", func(code int) bool { return code >= 400 }}
	default:
		return nil, false, nil
	}

	if rec.StatusCode == nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: "expected " + exp.desc,
			Expected:    exp.desc,
			Actual:      recActual(rec),
		}, true, nil
	}

	return &schema.ValidationResult{
		Passed:      exp.match(*rec.StatusCode),
		Description: "expected " + exp.desc,
		Expected:    exp.desc,
		Actual:      *rec.StatusCode,
	}, true, nil
}

func recActual(rec *schema.ExecutionRecord) any {
	if rec.Error != "" {
		return rec.Error
	}
	return "no response"
}

// --- field comparison and presence ---

var (
	quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

	// `the "email" should be "a@b.c"`, `field "age" equals 30`
	comparisonRe = regexp.MustCompile(`["']([^"']+)["']\s+(?:field\s+)?(?:should\s+)?(?:be|equal|equals|contain|contains|match|matches)\s+["']?([^"']+?)["']?\s*$`)

	// `response should contain the field "token"` or `... contain a user id`
	presenceRe = regexp.MustCompile(`(?:contain|contains|have|has|include|includes)\s+(?:the\s+|a\s+|an\s+)?(?:field\s+)?["']?([A-Za-z0-9_.]+)["']?`)
)

// ruleFieldComparison handles `"path" should be "value"` style steps,
// comparing as numbers when both sides parse as numbers.
func (e *Evaluator) ruleFieldComparison(ctx context.Context, lower, original string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	m := comparisonRe.FindStringSubmatch(original)
	if m == nil {
		return nil, false, nil
	}
	path, want := m[1], strings.TrimSpace(m[2])

	doc := sess.Current().ResponseJSON
	got, found, err := e.jq.Lookup(ctx, path, doc)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("field %q not present in response", path),
			Expected:    want,
			Actual:      nil,
		}, true, nil
	}

	passed := compareValues(got, want, strings.Contains(lower, "contain"))
	return &schema.ValidationResult{
		Passed:      passed,
		Description: fmt.Sprintf("field %q comparison", path),
		Expected:    want,
		Actual:      got,
	}, true, nil
}

// compareValues compares a response value against the literal from the
// step: numerically when both sides are numbers, by substring when the step
// said "contain", by normalized string equality otherwise.
func compareValues(got any, want string, substring bool) bool {
	gotStr := valueString(got)

	if gf, gerr := strconv.ParseFloat(gotStr, 64); gerr == nil {
		if wf, werr := strconv.ParseFloat(want, 64); werr == nil {
			return gf == wf
		}
	}
	if substring {
		return strings.Contains(strings.ToLower(gotStr), strings.ToLower(want))
	}
	return strings.EqualFold(strings.TrimSpace(gotStr), strings.TrimSpace(want))
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ruleFieldPresence handles "the response should contain <field>" steps,
// resolving dotted paths and array indices.
func (e *Evaluator) ruleFieldPresence(ctx context.Context, lower, original string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	m := presenceRe.FindStringSubmatch(original)
	if m == nil {
		return nil, false, nil
	}
	path := m[1]

	doc := sess.Current().ResponseJSON
	if doc == nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("expected field %q but response has no JSON body", path),
			Expected:    path,
		}, true, nil
	}

	got, found, err := e.jq.Lookup(ctx, path, doc)
	if err != nil {
		return nil, false, err
	}

	return &schema.ValidationResult{
		Passed:      found,
		Description: fmt.Sprintf("field %q presence", path),
		Expected:    path,
		Actual:      got,
	}, true, nil
}

// ruleSubstring is the final recognizer: a quoted literal in the step must
// appear somewhere in the response body.
func (e *Evaluator) ruleSubstring(_ context.Context, _, original string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	q := firstQuoted(original)
	if q == "" {
		return nil, false, nil
	}

	body := sess.Current().ResponseBody
	passed := strings.Contains(strings.ToLower(body), strings.ToLower(q))
	return &schema.ValidationResult{
		Passed:      passed,
		Description: fmt.Sprintf("response contains %q", q),
		Expected:    q,
		Actual:      truncate(body, 200),
	}, true, nil
}

// --- cross-response comparison ---

var previousRe = regexp.MustCompile(`(?:(\d+)(?:st|nd|rd|th)?\s+)?previous\s+response`)

// ruleCrossResponse compares a field of the current response against the
// same field of an earlier one, e.g. "the id should match the previous
// response".
func (e *Evaluator) ruleCrossResponse(ctx context.Context, lower, original string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	m := previousRe.FindStringSubmatch(lower)
	if m == nil {
		return nil, false, nil
	}

	n := 1
	if m[1] != "" {
		n, _ = strconv.Atoi(m[1])
	}

	prev := sess.Previous(n)
	if prev == nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("no response %d steps back to compare against", n),
		}, true, nil
	}

	path := firstQuoted(original)
	if path == "" {
		// Whole-body comparison.
		passed := sess.Current().ResponseBody == prev.ResponseBody
		return &schema.ValidationResult{
			Passed:      passed,
			Description: fmt.Sprintf("response matches response %d steps back", n),
			Expected:    truncate(prev.ResponseBody, 200),
			Actual:      truncate(sess.Current().ResponseBody, 200),
		}, true, nil
	}

	got, gotFound, err := e.jq.Lookup(ctx, path, sess.Current().ResponseJSON)
	if err != nil {
		return nil, false, err
	}
	want, wantFound, err := e.jq.Lookup(ctx, path, prev.ResponseJSON)
	if err != nil {
		return nil, false, err
	}

	passed := gotFound && wantFound && valueString(got) == valueString(want)
	return &schema.ValidationResult{
		Passed:      passed,
		Description: fmt.Sprintf("field %q matches response %d steps back", path, n),
		Expected:    want,
		Actual:      got,
	}, true, nil
}

// --- shared helpers ---

func firstQuoted(s string) string {
	m := quotedRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
