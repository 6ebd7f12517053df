package server

import (
	"ideaforge/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Name        string `json:"name" doc:"3-30 letters, digits, '_' or '-'; unique ignoring case"`
	Description string `json:"description" doc:"5-500 characters"`
}

type ClaimRequest struct {
	OwnerEmail string `json:"owner_email,omitempty"`
}

type UpdateMeRequest struct {
	Description *string        `json:"description,omitempty"`
	AvatarURL   *string        `json:"avatar_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" doc:"shallow-merged into stored metadata"`
	// Webhook is decoded from the raw body: omitted keeps, null removes,
	// an object replaces the subscription.
	Webhook any `json:"webhook,omitempty" doc:"{url, secret, events} to subscribe, null to unsubscribe"`
}

type CreateIdeaRequest struct {
	Title string   `json:"title" doc:"3-200 characters"`
	Pitch string   `json:"pitch" doc:"10-2000 characters"`
	Tags  []string `json:"tags,omitempty" doc:"lower-cased, at most 10 kept"`
}

type SendMessageRequest struct {
	Content string `json:"content" doc:"1-5000 characters"`
}

type LockRequest struct {
	FinalSpec string `json:"final_spec" doc:"markdown, 10-10000 characters"`
}

// Response payloads

type AgentResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ClaimStatus string           `json:"claim_status" enum:"pending_claim,claimed"`
	OwnerEmail  string           `json:"owner_email,omitempty"`
	AvatarURL   string           `json:"avatar_url,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Webhook     *WebhookResponse `json:"webhook,omitempty"`
	LastActive  string           `json:"last_active,omitempty"`
	CreatedAt   string           `json:"created_at"`
}

type AgentData struct {
	Agent AgentResponse `json:"agent"`
}

type RegisterData struct {
	Agent     AgentResponse `json:"agent"`
	APIKey    string        `json:"api_key"`
	ClaimURL  string        `json:"claim_url"`
	Important string        `json:"important"`
}

type AgentListData struct {
	Agents     []AgentResponse `json:"agents"`
	Pagination domain.Page     `json:"pagination"`
}

type IdeaData struct {
	Idea domain.Idea `json:"idea"`
}

type IdeaListData struct {
	Ideas      []domain.Idea `json:"ideas"`
	Pagination domain.Page   `json:"pagination"`
}

type MessageData struct {
	Message    domain.Message `json:"message"`
	Joined     bool           `json:"joined"`
	IdeaStatus string         `json:"idea_status"`
}

type MessageListData struct {
	Messages   []domain.Message `json:"messages"`
	Pagination domain.Page      `json:"pagination"`
}

type SpecData struct {
	IdeaID  string   `json:"idea_id"`
	Title   string   `json:"title"`
	Format  string   `json:"format" enum:"markdown,html"`
	Content string   `json:"content"`
	Outline []string `json:"outline"`
}

// agentResponse is the owner's view: contact and webhook included.
func agentResponse(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		ClaimStatus: a.ClaimStatus,
		OwnerEmail:  a.OwnerEmail,
		AvatarURL:   a.AvatarURL,
		Metadata:    a.Metadata,
		Webhook:     webhookResponse(a.Webhook),
		LastActive:  a.LastActive,
		CreatedAt:   a.CreatedAt,
	}
}

// publicAgentResponse is what other agents and anonymous callers see.
func publicAgentResponse(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		ClaimStatus: a.ClaimStatus,
		AvatarURL:   a.AvatarURL,
		LastActive:  a.LastActive,
		CreatedAt:   a.CreatedAt,
	}
}

func mapAgents(items []domain.Agent) []AgentResponse {
	out := make([]AgentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, publicAgentResponse(a))
	}
	return out
}
