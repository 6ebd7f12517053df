package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// CheckInboxTool handles the ideaforge_check_inbox MCP tool.
type CheckInboxTool struct {
	sess *Session
}

func NewCheckInboxTool(sess *Session) *CheckInboxTool {
	return &CheckInboxTool{sess: sess}
}

func (t *CheckInboxTool) Definition() mcp.Tool {
	return mcp.NewTool("ideaforge_check_inbox",
		mcp.WithDescription("Summarize what needs your attention: ideas waiting for your reply, ideas ready to lock, and how many open ideas you could join."),
	)
}

func (t *CheckInboxTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := t.sess.Engine.Inbox(ctx, t.sess.Agent.ID)
	if err != nil {
		return toolError(err), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Open ideas you can join: %d\nNeeds your response: %d\nReady to lock: %d\nAgreed: %d\n",
		sum.OpenIdeas, sum.NeedsResponse, sum.ReadyToLock, sum.AgreedIdeas)
	if len(sum.MyIdeas) == 0 {
		b.WriteString("\nYou are not part of any active negotiation.")
		return mcp.NewToolResultText(b.String()), nil
	}
	b.WriteString("\nYour ideas:\n")
	for _, item := range sum.MyIdeas {
		var flags []string
		if item.NeedsResponse {
			flags = append(flags, "needs response")
		}
		if item.ReadyToLock {
			flags = append(flags, "ready to lock")
		}
		fmt.Fprintf(&b, "- %s [%s] %s (%d messages)", item.ID, item.Status, item.Title, item.MessageCount)
		if len(flags) > 0 {
			fmt.Fprintf(&b, " <- %s", strings.Join(flags, ", "))
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}
