package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/flowdesk/pkg/schema"
)

// NodeEnv is the environment a node predicate sees: the node's wire fields
// with raci and subtasks decoded, plus min_days and max_days converted
// from the node's duration unit.
func NodeEnv(node schema.FlowNode) map[string]any {
	raci := make(map[string]any, len(schema.RACIKeys))
	for _, k := range schema.RACIKeys {
		vals := make([]any, 0, len(node.RACI[k]))
		for _, v := range node.RACI[k] {
			vals = append(vals, v)
		}
		raci[string(k)] = vals
	}
	subtasks := make([]any, 0, len(node.Subtasks))
	for _, s := range node.Subtasks {
		subtasks = append(subtasks, s)
	}

	env := map[string]any{
		"id":            node.ID,
		"flow_id":       node.FlowID,
		"node_no":       node.NodeNo,
		"name":          node.Name,
		"intro":         node.Intro,
		"exec_form":     string(node.ExecForm),
		"duration_unit": string(node.DurationUnit),
		"duration_min":  optFloat(node.DurationMin),
		"duration_max":  optFloat(node.DurationMax),
		"raci":          raci,
		"prereq_text":   node.PrereqText,
		"outputs_text":  node.OutputsText,
		"subtasks":      subtasks,
		"sort_order":    float64(node.SortOrder),
		"min_days":      nil,
		"max_days":      nil,
	}
	days := node.DurationUnit.Days()
	if node.DurationMin != nil {
		env["min_days"] = *node.DurationMin * days
	}
	if node.DurationMax != nil {
		env["max_days"] = *node.DurationMax * days
	}
	return env
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// FilterNodes keeps the nodes for which expression evaluates to true. The
// flow, when non-nil, is visible to the predicate as `flow`. A non-boolean
// result is a VALIDATION_ERROR naming the offending node.
func FilterNodes(ctx context.Context, engine Engine, expression string, flow *schema.Flow, nodes []schema.FlowNode) ([]schema.FlowNode, error) {
	if expression == "" {
		return nodes, nil
	}
	var flowEnv map[string]any
	if flow != nil {
		flowEnv = map[string]any{
			"id":      flow.ID,
			"flow_no": flow.FlowNo,
			"title":   flow.Title,
			"status":  string(flow.Status),
			"owner":   flow.OwnerID,
		}
	}

	out := make([]schema.FlowNode, 0, len(nodes))
	for _, n := range nodes {
		env := NodeEnv(n)
		if flowEnv != nil {
			env["flow"] = flowEnv
		}
		v, err := engine.Evaluate(ctx, expression, env)
		if err != nil {
			return nil, err
		}
		keep, ok := v.(bool)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"%s predicate %q returned %s, want bool", engine.Name(), expression, typeName(v)).WithNode(n.ID)
		}
		if keep {
			out = append(out, n)
		}
	}
	return out, nil
}

// Project runs a jq expression over any JSON-encodable value. One output is
// returned directly, several as []any, none as nil.
func Project(ctx context.Context, expression string, value any) (any, error) {
	input, err := toJQ(value)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "value is not JSON-encodable").WithCause(err)
	}
	results, err := NewGoJQEngine().EvaluateAll(ctx, expression, input)
	if err != nil {
		return nil, err
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

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
