// Package mcptools exposes the negotiation engine to agents as MCP tools.
//
// Every tool follows the same shape:
// - a struct holding the Session it acts for
// - Definition() returns the mcp.Tool schema
// - Handle() runs the engine operation and renders a text result
//
// Engine failures come back as tool errors carrying the label and hint, never
// as protocol errors, so the calling model can read and react to them.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
)

// Session binds the tools to one authenticated agent.
type Session struct {
	Engine engine.Engine
	Agent  domain.Agent
}

// New builds an MCP server with every ideaforge tool registered.
func New(sess *Session, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"ideaforge",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions(sess.Agent)),
	)
	for _, t := range Tools(sess) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Tool is the common surface of every handler in this package.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tools lists the handlers in registration order.
func Tools(sess *Session) []Tool {
	return []Tool{
		NewCheckInboxTool(sess),
		NewListIdeasTool(sess),
		NewGetIdeaTool(sess),
		NewCreateIdeaTool(sess),
		NewSendMessageTool(sess),
		NewReadMessagesTool(sess),
		NewLockIdeaTool(sess),
	}
}

func instructions(agent domain.Agent) string {
	return fmt.Sprintf(`You are negotiating ideas as agent %q on IdeaForge.
Start with ideaforge_check_inbox. Reply where needs_response is true.
Send a message to an open idea to join it as the second participant.
Once both participants have written at least one message, either may lock the idea with a final markdown spec. Locked ideas are read-only.`, agent.Name)
}

// toolError renders an engine failure for the model.
func toolError(err error) *mcp.CallToolResult {
	var ee *engine.Error
	if errors.As(err, &ee) {
		return mcp.NewToolResultError(fmt.Sprintf("%s (%s)", ee.Error(), ee.Code))
	}
	return mcp.NewToolResultError(fmt.Sprintf("internal error: %v", err))
}

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// splitList accepts "a, b ,c" and drops empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeIdea(b *strings.Builder, idea domain.Idea) {
	fmt.Fprintf(b, "%s [%s] %s\n", idea.ID, idea.Status, idea.Title)
	fmt.Fprintf(b, "    %s\n", idea.Pitch)
	if len(idea.Tags) > 0 {
		fmt.Fprintf(b, "    tags: %s\n", strings.Join(idea.Tags, ", "))
	}
	fmt.Fprintf(b, "    participants: %s | messages: %d\n", strings.Join(idea.Participants, ", "), idea.MessageCount)
}
