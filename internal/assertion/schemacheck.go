package assertion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nlstep/nlstep/internal/session"
	"github.com/nlstep/nlstep/pkg/schema"
)

// Steps like: the response should match schema `{"type":"object","required":["id"]}`
var schemaStepRe = regexp.MustCompile("(?i)match(?:es)?\\s+(?:the\\s+)?schema\\s+(?:`([^`]+)`|'([^']+)')")

var (
	schemaCacheMu sync.RWMutex
	schemaCache   = map[string]*jsonschema.Schema{}
)

// ruleSchema validates the current response body against an inline JSON
// Schema carried in the step text. A schema that does not compile fails
// the assertion rather than erroring the step.
func (e *Evaluator) ruleSchema(_ context.Context, _, original string, sess *session.Context) (*schema.ValidationResult, bool, error) {
	m := schemaStepRe.FindStringSubmatch(original)
	if m == nil {
		return nil, false, nil
	}
	src := m[1]
	if src == "" {
		src = m[2]
	}

	compiled, err := compileResponseSchema(src)
	if err != nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: "schema did not compile: " + err.Error(),
			Expected:    src,
		}, true, nil
	}

	doc := sess.Current().ResponseJSON
	if doc == nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: "response has no JSON body to validate",
			Expected:    src,
		}, true, nil
	}

	if err := compiled.Validate(doc); err != nil {
		return &schema.ValidationResult{
			Passed:      false,
			Description: "response does not match schema",
			Expected:    src,
			Actual:      schemaViolations(err),
		}, true, nil
	}

	return &schema.ValidationResult{
		Passed:      true,
		Description: "response matches schema",
		Expected:    src,
	}, true, nil
}

func compileResponseSchema(src string) (*jsonschema.Schema, error) {
	schemaCacheMu.RLock()
	compiled, ok := schemaCache[src]
	schemaCacheMu.RUnlock()
	if ok {
		return compiled, nil
	}

	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()
	if compiled, ok := schemaCache[src]; ok {
		return compiled, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("inline.json", doc); err != nil {
		return nil, err
	}
	compiled, err = c.Compile("inline.json")
	if err != nil {
		return nil, err
	}
	schemaCache[src] = compiled
	return compiled, nil
}

// schemaViolations flattens a validation error tree into location-prefixed
// messages suitable for a step failure report.
func schemaViolations(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, schemaViolations(cause)...)
	}
	return out
}
