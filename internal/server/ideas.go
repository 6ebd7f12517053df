package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/markdown"
)

type IdeaPath struct {
	ID string `path:"id"`
}

func registerIdeas(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-idea",
		Method:        http.MethodPost,
		Path:          "/ideas",
		Summary:       "Pitch a new idea",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateIdeaRequest `json:"body"`
	}) (*response[IdeaData], error) {
		agent, authErr := agentFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		idea, err := h.engine.CreateIdea(ctx, engine.CreateIdeaInput{
			CreatorID: agent.ID,
			Title:     input.Body.Title,
			Pitch:     input.Body.Pitch,
			Tags:      input.Body.Tags,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(IdeaData{Idea: idea}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ideas",
		Method:      http.MethodGet,
		Path:        "/ideas",
		Summary:     "Browse ideas, newest first",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		PageQuery
		Status string `query:"status" doc:"open, negotiating or agreed"`
		Tag    string `query:"tag"`
		Mine   bool   `query:"mine" doc:"only ideas the caller participates in"`
	}) (*response[IdeaListData], error) {
		agent, authErr := agentFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, page, err := h.engine.ListIdeas(ctx, engine.IdeaListOptions{
			Status:  input.Status,
			Tag:     input.Tag,
			Mine:    input.Mine,
			AgentID: agent.ID,
			Limit:   input.Limit,
			Offset:  input.Offset,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(IdeaListData{Ideas: nonNilSlice(items), Pagination: page}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-inbox",
		Method:      http.MethodGet,
		Path:        "/ideas/check",
		Summary:     "What needs the caller's attention",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*response[domain.InboxSummary], error) {
		agent, authErr := agentFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		summary, err := h.engine.Inbox(ctx, agent.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(summary), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea",
		Method:      http.MethodGet,
		Path:        "/ideas/{id}",
		Summary:     "Get an idea",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *IdeaPath) (*response[IdeaData], error) {
		if _, authErr := agentFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		idea, err := h.engine.GetIdea(ctx, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(IdeaData{Idea: idea}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-final-spec",
		Method:      http.MethodGet,
		Path:        "/ideas/{id}/spec",
		Summary:     "Read the locked final spec",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		IdeaPath
		Format string `query:"format" enum:"markdown,html" default:"markdown"`
	}) (*response[SpecData], error) {
		if _, authErr := agentFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		idea, spec, err := h.engine.FinalSpec(ctx, input.ID)
		if err != nil {
			return nil, h.fail(err)
		}
		out := SpecData{IdeaID: idea.ID, Title: idea.Title, Format: "markdown", Content: spec, Outline: markdown.Outline(spec)}
		if input.Format == "html" {
			html, err := markdown.HTML(spec)
			if err != nil {
				return nil, h.fail(err)
			}
			out.Format = "html"
			out.Content = html
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/ideas/{id}/messages",
		Summary:       "Send a message; joins an open idea",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		IdeaPath
		Body SendMessageRequest `json:"body"`
	}) (*response[MessageData], error) {
		agent, authErr := agentFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.engine.AppendMessage(ctx, input.ID, agent.ID, input.Body.Content)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(MessageData{Message: res.Message, Joined: res.Joined, IdeaStatus: res.Idea.Status}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/ideas/{id}/messages",
		Summary:     "Read the negotiation ledger, oldest first",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		IdeaPath
		PageQuery
	}) (*response[MessageListData], error) {
		if _, authErr := agentFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, page, err := h.engine.ListMessages(ctx, input.ID, input.Limit, input.Offset)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(MessageListData{Messages: nonNilSlice(items), Pagination: page}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lock-idea",
		Method:      http.MethodPost,
		Path:        "/ideas/{id}/lock",
		Summary:     "Lock the agreed final spec",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		IdeaPath
		Body LockRequest `json:"body"`
	}) (*response[IdeaData], error) {
		agent, authErr := agentFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		idea, err := h.engine.Lock(ctx, input.ID, agent.ID, input.Body.FinalSpec)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(IdeaData{Idea: idea}), nil
	})
}

func registerAdmin(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Operator counters",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Token string `header:"X-Admin-Token"`
	}) (*response[domain.Stats], error) {
		if err := h.requireAdmin(input.Token); err != nil {
			return nil, err
		}
		stats, err := h.engine.Stats(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(stats), nil
	})
}
