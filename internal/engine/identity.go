package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine/auth"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

const (
	maxWebhookSecret = 256
	maxURLLength     = 2048
	maxMetadataBytes = 8 << 10
)

// Registration is the one-time result of Register. APIKey and ClaimToken are
// never retrievable again.
type Registration struct {
	Agent      domain.Agent
	APIKey     string
	ClaimToken string
	ClaimURL   string
}

// Register creates a pending agent and mints its credentials.
func (e Engine) Register(ctx context.Context, name, description string) (Registration, error) {
	name = strings.TrimSpace(name)
	if !agentNamePattern.MatchString(name) {
		return Registration{}, newError(CodeInvalidInput, "invalid name", "name must be 3-30 characters of letters, digits, '_' or '-'")
	}
	description = normalizeText(description)
	if err := checkLength("description", description, 5, 500); err != nil {
		return Registration{}, err
	}
	creds, err := auth.NewCredentials()
	if err != nil {
		return Registration{}, err
	}
	now := e.timestamp()
	agent := domain.Agent{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		ClaimStatus: domain.ClaimPending,
		Metadata:    map[string]any{},
		LastActive:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	nameKey := strings.ToLower(name)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Registration{}, err
	}
	defer tx.Rollback()
	taken, err := e.Repo.AgentNameTaken(ctx, tx, nameKey)
	if err != nil {
		return Registration{}, err
	}
	if taken {
		return Registration{}, newError(CodeConflict, "name already taken", "choose a different agent name")
	}
	if err := e.Repo.InsertAgent(ctx, tx, agent, nameKey, repo.HashAPIKey(creds.APIKey), repo.HashAPIKey(creds.ClaimToken)); err != nil {
		return Registration{}, fmt.Errorf("insert agent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Registration{}, err
	}
	e.Logger.Info("agent registered", "agent_id", agent.ID, "name", agent.Name)
	return Registration{
		Agent:      agent,
		APIKey:     creds.APIKey,
		ClaimToken: creds.ClaimToken,
		ClaimURL:   e.claimURL(creds.ClaimToken),
	}, nil
}

func (e Engine) claimURL(token string) string {
	return e.PublicURL + "/claim/" + url.PathEscape(token)
}

// Authenticate resolves a bearer credential to its agent and refreshes the
// agent's activity timestamp. A failed refresh is logged, not returned.
func (e Engine) Authenticate(ctx context.Context, apiKey string) (domain.Agent, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return domain.Agent{}, errUnauthenticated
	}
	agent, err := e.Repo.GetAgentByAPIKeyHash(ctx, repo.HashAPIKey(apiKey))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Agent{}, errUnauthenticated
	}
	if err != nil {
		return domain.Agent{}, err
	}
	now := e.timestamp()
	if err := e.Repo.TouchAgent(ctx, agent.ID, now); err != nil {
		e.Logger.Warn("refresh last_active failed", "agent_id", agent.ID, "error", err)
	} else {
		agent.LastActive = now
	}
	return agent, nil
}

// ClaimInfo shows the agent behind a claim token without consuming it.
func (e Engine) ClaimInfo(ctx context.Context, token string) (domain.Agent, error) {
	agent, err := e.Repo.GetAgentByClaimHash(ctx, nil, repo.HashAPIKey(token))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Agent{}, errClaimNotFound
	}
	return agent, err
}

// Claim consumes a claim token, flipping the agent to claimed exactly once.
func (e Engine) Claim(ctx context.Context, token, ownerEmail string) (domain.Agent, error) {
	ownerEmail = strings.TrimSpace(ownerEmail)
	if ownerEmail != "" && (len(ownerEmail) > 254 || !strings.Contains(ownerEmail, "@")) {
		return domain.Agent{}, newError(CodeInvalidInput, "invalid owner email", "provide a valid email address or omit it")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()
	agent, err := e.Repo.GetAgentByClaimHash(ctx, tx, repo.HashAPIKey(token))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Agent{}, errClaimNotFound
	}
	if err != nil {
		return domain.Agent{}, err
	}
	now := e.timestamp()
	ok, err := e.Repo.MarkClaimed(ctx, tx, agent.ID, ownerEmail, now)
	if err != nil {
		return domain.Agent{}, err
	}
	if !ok {
		return domain.Agent{}, newError(CodeAlreadyClaimed, "agent already claimed", "this claim link has been used")
	}
	if err := tx.Commit(); err != nil {
		return domain.Agent{}, err
	}
	agent.ClaimStatus = domain.ClaimClaimed
	agent.OwnerEmail = ownerEmail
	agent.UpdatedAt = now
	e.Logger.Info("agent claimed", "agent_id", agent.ID)
	return agent, nil
}

// GetAgent loads an agent by id.
func (e Engine) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	agent, err := e.Repo.GetAgent(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Agent{}, errAgentNotFound
	}
	return agent, err
}

// OptionalWebhook distinguishes "leave as is" (Set false), "remove" (Set
// true, Value nil) and "replace" (Set true, Value non-nil).
type OptionalWebhook struct {
	Set   bool
	Value *domain.WebhookSubscription
}

// ProfileUpdate carries a partial profile change; nil fields are untouched.
type ProfileUpdate struct {
	Description *string
	AvatarURL   *string
	// Metadata is shallow-merged into the stored metadata.
	Metadata map[string]any
	Webhook  OptionalWebhook
}

// UpdateProfile validates every field first, then applies the change.
func (e Engine) UpdateProfile(ctx context.Context, agentID string, u ProfileUpdate) (domain.Agent, error) {
	var (
		description, avatar string
		hook                *domain.WebhookSubscription
	)
	if u.Description != nil {
		description = normalizeText(*u.Description)
		if err := checkLength("description", description, 5, 500); err != nil {
			return domain.Agent{}, err
		}
	}
	if u.AvatarURL != nil {
		avatar = strings.TrimSpace(*u.AvatarURL)
		if avatar != "" {
			if err := validateHTTPURL("avatar_url", avatar); err != nil {
				return domain.Agent{}, err
			}
		}
	}
	if u.Webhook.Set && u.Webhook.Value != nil {
		validated, err := validateWebhook(*u.Webhook.Value)
		if err != nil {
			return domain.Agent{}, err
		}
		hook = &validated
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()
	agent, err := e.Repo.GetAgent(ctx, tx, agentID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Agent{}, errAgentNotFound
	}
	if err != nil {
		return domain.Agent{}, err
	}
	if u.Description != nil {
		agent.Description = description
	}
	if u.AvatarURL != nil {
		agent.AvatarURL = avatar
	}
	if len(u.Metadata) > 0 {
		if agent.Metadata == nil {
			agent.Metadata = map[string]any{}
		}
		for k, v := range u.Metadata {
			agent.Metadata[k] = v
		}
		if size := metadataSize(agent.Metadata); size > maxMetadataBytes {
			return domain.Agent{}, invalidf("metadata too large", "metadata must encode to at most %d bytes", maxMetadataBytes)
		}
	}
	if u.Webhook.Set {
		agent.Webhook = hook
	}
	agent.UpdatedAt = e.timestamp()
	if err := e.Repo.SaveAgentProfile(ctx, tx, agent); err != nil {
		return domain.Agent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agent{}, err
	}
	return agent, nil
}

func metadataSize(m map[string]any) int {
	b, err := json.Marshal(m)
	if err != nil {
		return maxMetadataBytes + 1
	}
	return len(b)
}

func validateWebhook(in domain.WebhookSubscription) (domain.WebhookSubscription, error) {
	out := domain.WebhookSubscription{URL: strings.TrimSpace(in.URL), Secret: in.Secret}
	if err := validateHTTPURL("webhook url", out.URL); err != nil {
		return out, err
	}
	if utf8.RuneCountInString(out.Secret) > maxWebhookSecret {
		return out, invalidf("invalid webhook secret", "secret must be at most %d characters", maxWebhookSecret)
	}
	kinds, err := events.ParseKinds(in.Events)
	if err != nil {
		return out, newError(CodeInvalidInput, "invalid webhook events", err.Error())
	}
	seen := map[events.Kind]bool{}
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Events = append(out.Events, string(k))
	}
	return out, nil
}

func validateHTTPURL(field, raw string) error {
	if len(raw) > maxURLLength {
		return invalidf("invalid "+field, "%s must be at most %d characters", field, maxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalidf("invalid "+field, "%s must be an absolute http or https URL", field)
	}
	return nil
}

type AgentListOptions struct {
	Sort   string
	All    bool
	Limit  int
	Offset int
}

// ListAgents pages through the public agent directory.
func (e Engine) ListAgents(ctx context.Context, opts AgentListOptions) ([]domain.Agent, domain.Page, error) {
	switch opts.Sort {
	case "", "new", "active", "name":
	default:
		return nil, domain.Page{}, newError(CodeInvalidInput, "invalid sort", "sort must be one of new, active, name")
	}
	limit, offset := e.Page(opts.Limit, opts.Offset)
	items, total, err := e.Repo.ListAgents(ctx, repo.AgentFilters{Sort: opts.Sort, All: opts.All, Limit: limit, Offset: offset})
	if err != nil {
		return nil, domain.Page{}, err
	}
	return items, domain.NewPage(total, limit, offset), nil
}
