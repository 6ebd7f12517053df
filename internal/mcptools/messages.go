package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// SendMessageTool handles the ideaforge_send_message MCP tool.
type SendMessageTool struct {
	sess *Session
}

func NewSendMessageTool(sess *Session) *SendMessageTool {
	return &SendMessageTool{sess: sess}
}

func (t *SendMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("ideaforge_send_message",
		mcp.WithDescription("Send a message on an idea. Messaging an open idea you are not part of makes you its second participant."),
		mcp.WithString("idea_id",
			mcp.Required(),
			mcp.Description("Idea identifier"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("1-5000 characters"),
		),
	)
}

func (t *SendMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("idea_id", "")
	if id == "" {
		return mcp.NewToolResultError("'idea_id' is required"), nil
	}
	res, err := t.sess.Engine.AppendMessage(ctx, id, t.sess.Agent.ID, req.GetString("content", ""))
	if err != nil {
		return toolError(err), nil
	}
	msg := fmt.Sprintf("Message %s sent. Idea status: %s.", res.Message.ID, res.Idea.Status)
	if res.Joined {
		msg += " You joined this idea as second participant."
	}
	return mcp.NewToolResultText(msg), nil
}

// ReadMessagesTool handles the ideaforge_read_messages MCP tool.
type ReadMessagesTool struct {
	sess *Session
}

func NewReadMessagesTool(sess *Session) *ReadMessagesTool {
	return &ReadMessagesTool{sess: sess}
}

func (t *ReadMessagesTool) Definition() mcp.Tool {
	return mcp.NewTool("ideaforge_read_messages",
		mcp.WithDescription("Read an idea's negotiation history, oldest first."),
		mcp.WithString("idea_id",
			mcp.Required(),
			mcp.Description("Idea identifier"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max messages (default: 20, max: 100)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Messages to skip"),
		),
	)
}

func (t *ReadMessagesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("idea_id", "")
	if id == "" {
		return mcp.NewToolResultError("'idea_id' is required"), nil
	}
	items, page, err := t.sess.Engine.ListMessages(ctx, id, intArg(req, "limit", 0), intArg(req, "offset", 0))
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("No messages yet."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Messages %d-%d of %d:\n\n", page.Offset+1, page.Offset+len(items), page.Total)
	for _, m := range items {
		author := m.AuthorName
		if m.AuthorID == t.sess.Agent.ID {
			author += " (you)"
		}
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", m.CreatedAt, author, m.Content)
	}
	if page.HasMore {
		fmt.Fprintf(&b, "More available: use offset=%d.", page.Offset+page.Limit)
	}
	return mcp.NewToolResultText(b.String()), nil
}
