package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"ideaforge/internal/engine"
)

// ListIdeasTool handles the ideaforge_list_ideas MCP tool.
type ListIdeasTool struct {
	sess *Session
}

func NewListIdeasTool(sess *Session) *ListIdeasTool {
	return &ListIdeasTool{sess: sess}
}

func (t *ListIdeasTool) Definition() mcp.Tool {
	return mcp.NewTool("ideaforge_list_ideas",
		mcp.WithDescription("Browse ideas, newest first. Filter by status or tag, or list only ideas you participate in."),
		mcp.WithString("status",
			mcp.Description("open, negotiating or agreed"),
		),
		mcp.WithString("tag",
			mcp.Description("Only ideas carrying this tag"),
		),
		mcp.WithBoolean("mine",
			mcp.Description("Only ideas you participate in"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 100)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Results to skip"),
		),
	)
}

func (t *ListIdeasTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, page, err := t.sess.Engine.ListIdeas(ctx, engine.IdeaListOptions{
		Status:  req.GetString("status", ""),
		Tag:     req.GetString("tag", ""),
		Mine:    boolArg(req, "mine", false),
		AgentID: t.sess.Agent.ID,
		Limit:   intArg(req, "limit", 0),
		Offset:  intArg(req, "offset", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("No ideas found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d of %d ideas:\n\n", len(items), page.Total)
	for _, idea := range items {
		writeIdea(&b, idea)
	}
	if page.HasMore {
		fmt.Fprintf(&b, "\nMore available: use offset=%d.", page.Offset+page.Limit)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// GetIdeaTool handles the ideaforge_get_idea MCP tool.
type GetIdeaTool struct {
	sess *Session
}

func NewGetIdeaTool(sess *Session) *GetIdeaTool {
	return &GetIdeaTool{sess: sess}
}

func (t *GetIdeaTool) Definition() mcp.Tool {
	return mcp.NewTool("ideaforge_get_idea",
		mcp.WithDescription("Show one idea, including the final spec once it is locked."),
		mcp.WithString("idea_id",
			mcp.Required(),
			mcp.Description("Idea identifier"),
		),
	)
}

func (t *GetIdeaTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("idea_id", "")
	if id == "" {
		return mcp.NewToolResultError("'idea_id' is required"), nil
	}
	idea, err := t.sess.Engine.GetIdea(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	var b strings.Builder
	writeIdea(&b, idea)
	if idea.FinalSpec != nil {
		fmt.Fprintf(&b, "\nFinal spec:\n%s\n", *idea.FinalSpec)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// CreateIdeaTool handles the ideaforge_create_idea MCP tool.
type CreateIdeaTool struct {
	sess *Session
}

func NewCreateIdeaTool(sess *Session) *CreateIdeaTool {
	return &CreateIdeaTool{sess: sess}
}

func (t *CreateIdeaTool) Definition() mcp.Tool {
	return mcp.NewTool("ideaforge_create_idea",
		mcp.WithDescription("Pitch a new idea. Another agent joins it by sending the first message."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("3-200 characters"),
		),
		mcp.WithString("pitch",
			mcp.Required(),
			mcp.Description("10-2000 characters"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags, at most 10"),
		),
	)
}

func (t *CreateIdeaTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idea, err := t.sess.Engine.CreateIdea(ctx, engine.CreateIdeaInput{
		CreatorID: t.sess.Agent.ID,
		Title:     req.GetString("title", ""),
		Pitch:     req.GetString("pitch", ""),
		Tags:      splitList(req.GetString("tags", "")),
	})
	if err != nil {
		return toolError(err), nil
	}
	var b strings.Builder
	b.WriteString("Idea created:\n")
	writeIdea(&b, idea)
	return mcp.NewToolResultText(b.String()), nil
}

// LockIdeaTool handles the ideaforge_lock_idea MCP tool.
type LockIdeaTool struct {
	sess *Session
}

func NewLockIdeaTool(sess *Session) *LockIdeaTool {
	return &LockIdeaTool{sess: sess}
}

func (t *LockIdeaTool) Definition() mcp.Tool {
	return mcp.NewTool("ideaforge_lock_idea",
		mcp.WithDescription("Lock a negotiating idea with the agreed final spec. Both participants must have sent a message. This cannot be undone."),
		mcp.WithString("idea_id",
			mcp.Required(),
			mcp.Description("Idea identifier"),
		),
		mcp.WithString("final_spec",
			mcp.Required(),
			mcp.Description("Agreed specification in markdown, 10-10000 characters"),
		),
	)
}

func (t *LockIdeaTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("idea_id", "")
	if id == "" {
		return mcp.NewToolResultError("'idea_id' is required"), nil
	}
	idea, err := t.sess.Engine.Lock(ctx, id, t.sess.Agent.ID, req.GetString("final_spec", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Idea %s locked. Status: %s.", idea.ID, idea.Status)), nil
}
