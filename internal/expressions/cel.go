package expressions

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/flowdesk/pkg/schema"
)

// CELEngine implements the Engine interface using Google's Common Expression Language.
// The node under test is bound to `node` and its flow to `flow`:
//
//	node.exec_form == "DOC_REVIEW" && size(node.raci.R) > 0
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL engine exposing the node and flow variables.
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("node", mapType),
		cel.Variable("flow", mapType),
	)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "create CEL environment").WithCause(err)
	}
	return &CELEngine{env: env, cache: make(map[string]cel.Program)}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Evaluate runs expression with data bound as `node`. A "flow" key in data,
// when present, is bound to `flow` instead of being part of the node.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.ContextEval(ctx, activation(data))
	if err != nil {
		return nil, evalError("CEL", expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
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
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, compileError("CEL", expression, issues.Err())
	}
	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, compileError("CEL", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

func activation(data map[string]any) map[string]any {
	node := make(map[string]any, len(data))
	flow := map[string]any{}
	for k, v := range data {
		if k == "flow" {
			if m, ok := v.(map[string]any); ok {
				flow = m
			}
			continue
		}
		node[k] = v
	}
	return map[string]any{"node": node, "flow": flow}
}

var _ Engine = (*CELEngine)(nil)
