package expressions

import "context"

// Engine evaluates assertion expressions against session data.
// Three implementations: GoJQ (path lookups and transforms), Expr (logic),
// CEL (guard conditions).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
