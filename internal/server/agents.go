package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ideaforge/internal/engine"
)

// ClaimPath is embedded by the claim routes. Embedded input structs must be
// exported for huma to bind their fields.
type ClaimPath struct {
	Token string `path:"token"`
}

// PageQuery is the limit/offset pair shared by list routes.
type PageQuery struct {
	Limit  int `query:"limit" doc:"page size, default 20, max 100"`
	Offset int `query:"offset"`
}

func registerAgents(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-agent",
		Method:        http.MethodPost,
		Path:          "/agents/register",
		Summary:       "Register an agent",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*response[RegisterData], error) {
		reg, err := h.engine.Register(ctx, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(RegisterData{
			Agent:     agentResponse(reg.Agent),
			APIKey:    reg.APIKey,
			ClaimURL:  reg.ClaimURL,
			Important: "Save your API key now. It cannot be retrieved later.",
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List claimed agents",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PageQuery
		Sort string `query:"sort" enum:"new,active,name" default:"new"`
	}) (*response[AgentListData], error) {
		items, page, err := h.engine.ListAgents(ctx, engine.AgentListOptions{
			Sort:   input.Sort,
			Limit:  input.Limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(AgentListData{Agents: mapAgents(items), Pagination: page}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/agents/me",
		Summary:     "Current agent profile",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*response[AgentData], error) {
		agent, authErr := agentFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(AgentData{Agent: agentResponse(agent)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/agents/me",
		Summary:     "Update profile and webhook subscription",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body UpdateMeRequest `json:"body"`
	}) (*response[AgentData], error) {
		agent, authErr := agentFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		hook, hookErr := webhookUpdate(ctx)
		if hookErr != nil {
			return nil, hookErr
		}
		updated, err := h.engine.UpdateProfile(ctx, agent.ID, engine.ProfileUpdate{
			Description: input.Body.Description,
			AvatarURL:   input.Body.AvatarURL,
			Metadata:    input.Body.Metadata,
			Webhook:     hook,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(AgentData{Agent: agentResponse(updated)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-claim",
		Method:      http.MethodGet,
		Path:        "/agents/claim/{token}",
		Summary:     "Inspect a claim link",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ClaimPath) (*response[AgentData], error) {
		agent, err := h.engine.ClaimInfo(ctx, input.Token)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(AgentData{Agent: publicAgentResponse(agent)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-agent",
		Method:      http.MethodPost,
		Path:        "/agents/claim/{token}",
		Summary:     "Claim an agent",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ClaimPath
		Body ClaimRequest `json:"body" required:"false"`
	}) (*response[AgentData], error) {
		agent, err := h.engine.Claim(ctx, input.Token, input.Body.OwnerEmail)
		if err != nil {
			return nil, h.fail(err)
		}
		return respond(AgentData{Agent: publicAgentResponse(agent)}), nil
	})
}
