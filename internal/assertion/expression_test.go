package assertion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpression_CELAgainstStatus(t *testing.T) {
	sess := sessionWith(t, 200, `{"ok": true}`)

	res := evaluate(t, "the expression `status == 200` should hold", sess)
	assert.True(t, res.Passed)

	res = evaluate(t, "the expression `status == 404` should hold", sess)
	assert.False(t, res.Passed)
}

func TestExpression_CELAgainstResponseFields(t *testing.T) {
	sess := sessionWith(t, 200, `{"user": {"role": "admin"}, "count": 3}`)

	res := evaluate(t, "the expression `response.user.role == 'admin'` should hold", sess)
	assert.True(t, res.Passed)

	res = evaluate(t, "the expression `response.count > 5` should hold", sess)
	assert.False(t, res.Passed)
}

func TestExpression_ExprFallback(t *testing.T) {
	// Range syntax is not CEL; the expr engine picks it up.
	sess := sessionWith(t, 204, `{}`)

	res := evaluate(t, "the expression `status in 200..299` should hold", sess)
	assert.True(t, res.Passed)
}

func TestExpression_NonBooleanFails(t *testing.T) {
	res := evaluate(t, "the expression `status` should hold", sessionWith(t, 200, `{}`))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Description, "did not produce a boolean")
}

func TestExpression_UnparseableFailsWithoutError(t *testing.T) {
	res := evaluate(t, "the expression `((` should hold", sessionWith(t, 200, `{}`))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Description, "did not evaluate")
}
