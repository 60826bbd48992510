package expressions

import (
	"context"

	"github.com/rendis/flowdesk/pkg/schema"
)

// Engine evaluates an expression against a JSON-shaped environment.
// Three implementations: Expr (--where), CEL (--cel) and GoJQ (--jq).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// NewEngine returns the engine registered under name: "expr", "cel" or "jq".
func NewEngine(name string) (Engine, error) {
	switch name {
	case "expr", "":
		return NewExprEngine(), nil
	case "cel":
		return NewCELEngine()
	case "jq":
		return NewGoJQEngine(), nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name)
}

func evalError(engine, expression string, err error) *schema.FlowdeskError {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s evaluation failed for %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func compileError(engine, expression string, err error) *schema.FlowdeskError {
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s compile error in %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}
