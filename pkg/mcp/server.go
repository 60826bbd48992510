package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/streaming"
	"github.com/rendis/flowdesk/internal/validation"
)

// FlowdeskServerDeps holds the dependencies for creating a FlowdeskServer.
type FlowdeskServerDeps struct {
	Editor    *editor.Editor
	Saver     editor.Saver
	Validator validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// FlowdeskServer wraps an MCP server with tools over one editing session.
type FlowdeskServer struct {
	editor    *editor.Editor
	saver     editor.Saver
	validator validation.Validator
	hub       streaming.EventHub
	sessions  *SessionRegistry
	notifier  AgentNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowdeskServer creates a new FlowdeskServer with all 8 tools registered.
func NewFlowdeskServer(deps FlowdeskServerDeps) *FlowdeskServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowdeskServer{
		editor:    deps.Editor,
		saver:     deps.Saver,
		validator: deps.Validator,
		hub:       deps.Hub,
		sessions:  NewSessionRegistry(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowdesk",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowdesk edits one business flow: a diagram of steps and the node records behind them. "+
			"Use flowdesk.get_flow to read the session, flowdesk.render to draw it, flowdesk.add_node, flowdesk.update_node, "+
			"flowdesk.delete_node and flowdesk.connect to change it, flowdesk.validate to check it and flowdesk.save to persist it."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
// Editor events from other surfaces are forwarded to agents while it runs.
func (s *FlowdeskServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		go s.Forward(ctx)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowdeskServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowdeskServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: getFlowTool(), Handler: s.handleGetFlow},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: addNodeTool(), Handler: s.handleAddNode},
		{Tool: updateNodeTool(), Handler: s.handleUpdateNode},
		{Tool: deleteNodeTool(), Handler: s.handleDeleteNode},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: saveTool(), Handler: s.handleSave},
	}
}

// --- Tool definitions ---

func getFlowTool() mcp.Tool {
	return mcp.NewTool("flowdesk.get_flow",
		mcp.WithDescription("Get the flow being edited: header, diagram, node records in step order, and session state"),
		mcp.WithString("where", mcp.Description("Keep only nodes matching this predicate, e.g. exec_form == \"DOC_REVIEW\"")),
		mcp.WithString("engine",
			mcp.Enum("expr", "cel", "jq"),
			mcp.Description("Expression language of where (default: expr)"),
		),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent, for change notifications")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("flowdesk.render",
		mcp.WithDescription("Render the diagram. Returns ASCII art, Mermaid flowchart syntax, or base64-encoded PNG image"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
	)
}

func addNodeTool() mcp.Tool {
	return mcp.NewTool("flowdesk.add_node",
		mcp.WithDescription("Add a step to the diagram with its node record"),
		mcp.WithString("name", mcp.Description("Step name (default: a numbered placeholder)")),
		mcp.WithString("exec_form", mcp.Enum(execFormValues()...), mcp.Description("Execution form")),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent")),
	)
}

func updateNodeTool() mcp.Tool {
	return mcp.NewTool("flowdesk.update_node",
		mcp.WithDescription("Update a node record; a new name is copied onto the diagram label"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node to update")),
		mcp.WithObject("fields", mcp.Required(),
			mcp.Description("Fields to change: node_no, name, intro, exec_form, duration_min, duration_max, duration_unit, raci, prereq_text, outputs_text, subtasks")),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent")),
	)
}

func deleteNodeTool() mcp.Tool {
	return mcp.NewTool("flowdesk.delete_node",
		mcp.WithDescription("Delete a step, its record and every edge touching it"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node to delete")),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent")),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("flowdesk.connect",
		mcp.WithDescription("Connect two steps with a typed edge"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node ID")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node ID")),
		mcp.WithString("type",
			mcp.Enum("SEQUENTIAL", "CONDITIONAL", "PARALLEL"),
			mcp.Description("Edge type (default: SEQUENTIAL)"),
		),
		mcp.WithString("label", mcp.Description("Condition label, kept for CONDITIONAL edges only")),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flowdesk.validate",
		mcp.WithDescription("Check the diagram structure, or with readiness=true everything that blocks a review submission"),
		mcp.WithBoolean("readiness", mcp.Description("Also check node records for review readiness")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("flowdesk.save",
		mcp.WithDescription("Save the flow to the backend. Structural diagram errors block the save"),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent")),
	)
}
