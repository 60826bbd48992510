package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/flowdesk/pkg/schema"
)

// ExprEngine implements the Engine interface using expr-lang/expr. Node
// fields are top-level variables, e.g. `exec_form == "DOC_REVIEW" && len(subtasks) > 0`.
// Compiled programs are cached and shared across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

func (e *ExprEngine) Name() string { return "expr" }

func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}
	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, evalError("expr", expression, err)
	}
	return out, nil
}

// getOrCompile returns a cached program or compiles and caches a new one.
// Programs are compiled without a typed env so one program serves every node.
func (e *ExprEngine) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}
	prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, compileError("expr", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
