package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/nlstep/nlstep/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "jq", e.Name())
}

// --- Basic evaluation ---

func TestGoJQ_Identity(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"username": "alice"}

	out, err := e.Evaluate(context.Background(), ".", data)
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", m["username"])
}

func TestGoJQ_SelectField(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"username": "alice", "email": "alice@example.com"}

	out, err := e.Evaluate(context.Background(), ".email", data)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", out)
}

func TestGoJQ_NestedField(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{
		"user": map[string]any{
			"id": 42,
		},
	}

	out, err := e.Evaluate(context.Background(), ".user.id", data)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out)
}

func TestGoJQ_NullResult(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"username": "alice"}

	out, err := e.Evaluate(context.Background(), ".missing", data)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{
		"items": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2},
		},
	}

	out, err := e.Evaluate(context.Background(), ".items[].id", data)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, out)
}

// --- Errors ---

func TestGoJQ_EmptyExpression(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)

	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, schema.ErrCodeValidation, engErr.Code)
}

func TestGoJQ_ParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), ".[invalid", nil)
	require.Error(t, err)

	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, schema.ErrCodeValidation, engErr.Code)
}

func TestGoJQ_EnvBlocked(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), "$ENV | length", map[string]any{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, out)
}

// --- Lookup (dotted paths) ---

func TestGoJQ_LookupSimple(t *testing.T) {
	e := NewGoJQEngine()
	doc := map[string]any{"user": map[string]any{"email": "a@b.c"}}

	val, found, err := e.Lookup(context.Background(), "user.email", doc)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a@b.c", val)
}

func TestGoJQ_LookupArrayIndex(t *testing.T) {
	e := NewGoJQEngine()
	doc := map[string]any{
		"items": []any{
			map[string]any{"id": 7},
			map[string]any{"id": 8},
		},
	}

	val, found, err := e.Lookup(context.Background(), "items.1.id", doc)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 8.0, val)
}

func TestGoJQ_LookupMissing(t *testing.T) {
	e := NewGoJQEngine()
	doc := map[string]any{"user": map[string]any{"email": "a@b.c"}}

	_, found, err := e.Lookup(context.Background(), "user.phone", doc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGoJQ_LookupExplicitNull(t *testing.T) {
	e := NewGoJQEngine()
	doc := map[string]any{"user": map[string]any{"middleName": nil}}

	val, found, err := e.Lookup(context.Background(), "user.middleName", doc)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, val)
}

func TestGoJQ_LookupScalarParent(t *testing.T) {
	e := NewGoJQEngine()
	doc := map[string]any{"id": 1}

	_, found, err := e.Lookup(context.Background(), "id.name", doc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGoJQ_LookupEmptyPath(t *testing.T) {
	e := NewGoJQEngine()

	_, _, err := e.Lookup(context.Background(), "", map[string]any{})
	require.Error(t, err)
}

// --- Caching and concurrency ---

func TestGoJQ_CompileCached(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), ".a", map[string]any{"a": 1})
	require.NoError(t, err)

	e.mu.RLock()
	_, cached := e.cache[".a"]
	e.mu.RUnlock()
	assert.True(t, cached)
}

func TestGoJQ_ConcurrentEvaluate(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"n": 2}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), ".n * 2", data)
			assert.NoError(t, err)
			assert.Equal(t, 4.0, out)
		}()
	}
	wg.Wait()
}
