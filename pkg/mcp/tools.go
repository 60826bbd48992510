package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/expressions"
	"github.com/rendis/flowdesk/internal/forms"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/pkg/schema"
)

// handleGetFlow returns the session, optionally filtering the node list.
func (s *FlowdeskServer) handleGetFlow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req.GetString("agent_id", ""))

	st := s.editor.State()
	nodes := editor.Ordered(st.Nodes)
	if where := req.GetString("where", ""); where != "" {
		engine, err := expressions.NewEngine(req.GetString("engine", "expr"))
		if err != nil {
			return toolError(err), nil
		}
		nodes, err = expressions.FilterNodes(ctx, engine, where, &st.Flow, nodes)
		if err != nil {
			return toolError(err), nil
		}
	}
	minDays, maxDays := editor.Totals(st.Nodes)

	return marshalResult(map[string]any{
		"flow":                    st.Flow,
		"diagram":                 st.Diagram,
		"nodes":                   nodes,
		"selected":                st.Selected,
		"editable":                st.Editable,
		"dirty":                   st.Dirty,
		"total_duration_min_days": minDays,
		"total_duration_max_days": maxDays,
	})
}

// handleRender draws the current diagram in the requested format.
func (s *FlowdeskServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	st := s.editor.State()
	model := diagram.Build(st.Diagram, st.Nodes, diagram.BuildOptions{Title: st.Flow.Title, Selected: st.Selected})

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// handleAddNode adds a step from the panel side, then applies name and
// exec_form when given.
func (s *FlowdeskServer) handleAddNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx, req.GetString("agent_id", ""))

	node, err := s.editor.AddNodeFromPanel(ctx)
	if err != nil {
		return toolError(err), nil
	}

	name := req.GetString("name", "")
	execForm := req.GetString("exec_form", "")
	if name == "" && execForm == "" {
		return marshalResult(node)
	}
	if name != "" {
		node.Name = name
	}
	if execForm != "" {
		if !schema.ExecForm(execForm).Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("node %s added, but exec_form %q is not supported", node.ID, execForm)), nil
		}
		node.ExecForm = schema.ExecForm(execForm)
	}
	if err := s.editor.UpdateNode(ctx, node); err != nil {
		return toolError(err), nil
	}
	return marshalResult(node)
}

// handleUpdateNode overlays the given fields onto the node's edit form and
// applies it with the form's validation rules.
func (s *FlowdeskServer) handleUpdateNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	fields := mcp.ParseStringMap(req, "fields", nil)
	if fields == nil {
		return mcp.NewToolResultError("fields is required"), nil
	}
	s.captureSession(ctx, req.GetString("agent_id", ""))

	base, ok := s.editor.Node(nodeID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("node %s not found", nodeID)), nil
	}
	form, err := overlayForm(forms.FromNode(base), fields)
	if err != nil {
		return toolError(err), nil
	}
	node, err := form.ToNode(base)
	if err != nil {
		return toolError(err), nil
	}
	if err := s.editor.UpdateNode(ctx, node); err != nil {
		return toolError(err), nil
	}
	return marshalResult(node)
}

func (s *FlowdeskServer) handleDeleteNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	s.captureSession(ctx, req.GetString("agent_id", ""))

	if err := s.editor.DeleteNode(ctx, nodeID); err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"ok": true, "node_id": nodeID})
}

// handleConnect runs the whole connect gesture in one call. A refused
// confirmation cancels the pending connection so the next call starts clean.
func (s *FlowdeskServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("target is required"), nil
	}
	s.captureSession(ctx, req.GetString("agent_id", ""))

	if err := s.editor.BeginConnection(ctx, source, target); err != nil {
		return toolError(err), nil
	}
	edge, err := s.editor.ConfirmConnection(ctx, diagram.EdgeType(req.GetString("type", "")), req.GetString("label", ""))
	if err != nil {
		s.editor.CancelConnection(ctx)
		return toolError(err), nil
	}
	return marshalResult(edge)
}

func (s *FlowdeskServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var result *schema.ValidationResult
	switch {
	case req.GetBool("readiness", false):
		result = validation.ReviewReadiness(s.editor.Detail())
	case s.validator != nil:
		result = s.validator.Validate(diagram.Serialize(s.editor.Diagram()))
	default:
		result = s.editor.Validate()
	}
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

func (s *FlowdeskServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.saver == nil {
		return mcp.NewToolResultError("no backend configured"), nil
	}
	s.captureSession(ctx, req.GetString("agent_id", ""))

	if err := s.editor.Save(ctx, s.saver); err != nil {
		return toolError(err), nil
	}
	st := s.editor.State()
	return marshalResult(map[string]any{"ok": true, "flow": st.Flow, "dirty": st.Dirty})
}

// --- Internal helpers ---

// overlayForm copies the recognised keys of fields onto form. Numbers may
// arrive as JSON numbers or strings; RACI and subtasks as string arrays.
func overlayForm(form forms.NodeForm, fields map[string]any) (forms.NodeForm, error) {
	text := map[string]*string{
		forms.FieldNodeNo:       &form.NodeNo,
		forms.FieldName:         &form.Name,
		"intro":                 &form.Intro,
		forms.FieldExecForm:     &form.ExecForm,
		forms.FieldDurationMin:  &form.DurationMin,
		forms.FieldDurationMax:  &form.DurationMax,
		forms.FieldDurationUnit: &form.DurationUnit,
		"prereq_text":           &form.PrereqText,
		"outputs_text":          &form.OutputsText,
	}
	for key, v := range fields {
		if dst, ok := text[key]; ok {
			s, err := scalarText(key, v)
			if err != nil {
				return form, err
			}
			*dst = s
			continue
		}
		switch key {
		case forms.FieldRACI:
			raw, ok := v.(map[string]any)
			if !ok {
				return form, fieldTypeError(key, "an object of string arrays")
			}
			raci := schema.RACI{}
			for k, vals := range raw {
				list, err := stringList(key+"."+k, vals)
				if err != nil {
					return form, err
				}
				var committed []string
				for _, item := range list {
					committed, _ = forms.Commit(committed, item)
				}
				raci[schema.RACIKey(k)] = committed
			}
			form.RACI = raci
		case forms.FieldSubtasks:
			list, err := stringList(key, v)
			if err != nil {
				return form, err
			}
			subtasks := []string{}
			for _, item := range list {
				subtasks, _ = forms.CommitList(subtasks, item)
			}
			form.Subtasks = subtasks
		default:
			return form, schema.NewErrorf(schema.ErrCodeValidation, "unknown field %q", key)
		}
	}
	return form, nil
}

func scalarText(key string, v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	}
	return "", fieldTypeError(key, "a string or number")
}

func stringList(key string, v any) ([]string, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fieldTypeError(key, "an array of strings")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fieldTypeError(key, "an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func fieldTypeError(key, want string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "field %s must be %s", key, want).
		WithDetails(map[string]any{"fields": map[string]string{key: forms.ReasonInvalidEnum}})
}

func execFormValues() []string {
	out := make([]string, len(schema.ExecForms))
	for i, f := range schema.ExecForms {
		out[i] = string(f)
	}
	return out
}

// captureSession maps the agent ID to its current MCP session for notifications.
func (s *FlowdeskServer) captureSession(ctx context.Context, agentID string) {
	if agentID == "" {
		return
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(agentID, session.SessionID())
	}
}

// toolError renders err as a tool error whose text is the JSON error body,
// so agents can read the code and field reasons.
func toolError(err error) *mcp.CallToolResult {
	body := map[string]any{"message": err.Error()}
	var fe *schema.FlowdeskError
	if errors.As(err, &fe) {
		body["code"] = fe.Code
		body["message"] = fe.Message
		if fe.NodeID != "" {
			body["node_id"] = fe.NodeID
		}
		if len(fe.Details) > 0 {
			body["details"] = fe.Details
		}
	}
	data, _ := json.Marshal(map[string]any{"error": body})
	return mcp.NewToolResultError(string(data))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
