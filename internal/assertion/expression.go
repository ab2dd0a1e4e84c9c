package assertion

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nlstep/nlstep/internal/session"
	"github.com/nlstep/nlstep/pkg/schema"
)

// Steps like: the expression `status == 200 && 'token' in response` should hold
var exprStepRe = regexp.MustCompile("(?i)expression\\s+(?:`([^`]+)`|\"([^\"]+)\"|'([^']+)')")

// ruleExpression evaluates an inline expression against the session
// snapshot. CEL is tried first; anything CEL rejects is retried with the
// expr engine, so both dialects work in feature files.
func (e *Evaluator) ruleExpression(ctx context.Context, _, original string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	m := exprStepRe.FindStringSubmatch(original)
	if m == nil {
		return nil, false, nil
	}
	program := m[1]
	for _, g := range m[2:] {
		if g != "" {
			program = g
		}
	}
	data := sess.Snapshot()

	out, err := e.cel.Evaluate(ctx, program, data)
	if err != nil {
		out, err = e.expr.Evaluate(ctx, program, data)
	}
	if err != nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: fmt.Sprintf("expression %q did not evaluate: %s", program, err.Error()),
			Expected:    true,
		}, true, nil
	}

	passed, isBool := out.(bool)
	desc := fmt.Sprintf("expression %q", program)
	if !isBool {
		return &schema.ValidationResult{
			Passed:      false,
			Description: desc + " did not produce a boolean",
			Expected:    true,
			Actual:      out,
		}, true, nil
	}

	return &schema.ValidationResult{
		Passed:      passed,
		Description: desc,
		Expected:    true,
		Actual:      passed,
	}, true, nil
}
