package expressions

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/nlstep/nlstep/pkg/schema"
)

// GoJQEngine implements the Engine interface using GoJQ. Assertion rules use
// it to resolve dotted field paths and array indices inside response bodies.
// Thread-safe: compiled *Code objects are cached and reused across goroutines.
type GoJQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewGoJQEngine creates a new GoJQ expression engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{
		cache: make(map[string]*gojq.Code),
	}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate compiles (or retrieves from cache) a jq expression and evaluates it
// against the provided data. The data map is used as the input JSON object.
//
// jq expressions can produce multiple outputs. When there is exactly one
// output, it is returned directly. When there are multiple outputs, they are
// collected into a slice and returned as []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}

	code, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalizeForJQ(data))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"jq evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Lookup resolves a dotted field path against a JSON value. Numeric segments
// index into arrays, so "items.0.id" reads the id of the first item. The
// second return distinguishes an absent field from one explicitly set to null.
func (e *GoJQEngine) Lookup(ctx context.Context, path string, doc any) (any, bool, error) {
	if path == "" {
		return nil, false, schema.NewError(schema.ErrCodeValidation, "empty field path")
	}

	arr := pathArray(path)
	code, err := e.getOrCompile("getpath(" + arr + ")")
	if err != nil {
		return nil, false, err
	}

	input := normalizeForJQ(doc)
	iter := code.RunWithContext(ctx, input)
	val, ok := iter.Next()
	if !ok {
		return nil, false, nil
	}
	if _, isErr := val.(error); isErr {
		// getpath on a scalar parent, e.g. "id.name" against {"id": 1}.
		return nil, false, nil
	}
	if val != nil {
		return val, true, nil
	}

	// getpath yields null both for an absent key and an explicit null; the
	// paths enumeration disambiguates.
	present, err := e.pathPresent(ctx, arr, input)
	if err != nil {
		return nil, false, err
	}
	return nil, present, nil
}

func (e *GoJQEngine) pathPresent(ctx context.Context, arr string, input any) (bool, error) {
	code, err := e.getOrCompile("[paths] | any(. == " + arr + ")")
	if err != nil {
		return false, err
	}
	iter := code.RunWithContext(ctx, input)
	val, ok := iter.Next()
	if !ok {
		return false, nil
	}
	b, _ := val.(bool)
	return b, nil
}

// pathArray renders a dotted path as a jq path array literal, e.g.
// "items.0.id" becomes ["items",0,"id"].
func pathArray(path string) string {
	segs := strings.Split(path, ".")
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if _, err := strconv.Atoi(s); err == nil {
			parts = append(parts, s)
		} else {
			parts = append(parts, strconv.Quote(s))
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// getOrCompile returns a cached compiled code or compiles and caches a new one.
func (e *GoJQEngine) getOrCompile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = code
	return code, nil
}

// normalizeForJQ converts Go native types to jq-compatible types.
// jq uses float64 for all numbers.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForJQ(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
