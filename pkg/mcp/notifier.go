package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowdesk/internal/streaming"
	"github.com/rendis/flowdesk/pkg/schema"
)

// AgentNotifier pushes notifications to connected agents.
type AgentNotifier interface {
	Notify(ctx context.Context, agentID string, payload map[string]any) error
}

// MCPNotifier implements AgentNotifier using MCP session push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP sessions.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the agent's session.
// Best-effort: returns nil if the agent is not connected.
func (n *MCPNotifier) Notify(_ context.Context, agentID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(agentID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// forwardedKinds are the editor events agents hear about: changes that make
// a previously read flow stale.
var forwardedKinds = []string{
	schema.EventDiagramReplaced,
	schema.EventDiagramImported,
	schema.EventNodeAdded,
	schema.EventNodeUpdated,
	schema.EventNodeDeleted,
	schema.EventEdgeAdded,
	schema.EventFlowSaved,
	schema.EventFlowTransitioned,
	schema.EventDraftDiscarded,
}

// Forward relays editor events of the session's flow to every agent that
// has called a tool, until ctx is cancelled.
func (s *FlowdeskServer) Forward(ctx context.Context) {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{FlowID: s.editor.FlowID(), Kinds: forwardedKinds})
	if err != nil {
		s.logger.WarnContext(ctx, "subscribe for agent notifications", slog.String("error", err.Error()))
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.notifyAll(ctx, ev)
		}
	}
}

func (s *FlowdeskServer) notifyAll(ctx context.Context, ev schema.EditorEvent) {
	payload := map[string]any{
		"level":  "info",
		"logger": "flowdesk",
		"data": map[string]any{
			"flow_id": ev.FlowID,
			"kind":    ev.Kind,
			"node_id": ev.NodeID,
			"edge_id": ev.EdgeID,
		},
	}
	if len(ev.Payload) > 0 {
		payload["data"].(map[string]any)["payload"] = json.RawMessage(ev.Payload)
	}
	for _, agentID := range s.sessions.Agents() {
		if err := s.notifier.Notify(ctx, agentID, payload); err != nil {
			s.logger.DebugContext(ctx, "notify agent", slog.String("agent_id", agentID), slog.String("error", err.Error()))
		}
	}
}
