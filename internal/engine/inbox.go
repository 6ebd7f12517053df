package engine

import (
	"context"
	"errors"

	"ideaforge/internal/domain"
	"ideaforge/internal/repo"
)

// Inbox summarizes what agentID could do next. It only reads negotiation
// state; the agent's activity timestamp is refreshed as a side note.
func (e Engine) Inbox(ctx context.Context, agentID string) (domain.InboxSummary, error) {
	summary := domain.InboxSummary{MyIdeas: []domain.InboxIdea{}}
	open, err := e.Repo.CountJoinableIdeas(ctx, agentID)
	if err != nil {
		return summary, err
	}
	summary.OpenIdeas = open

	ideas, err := e.Repo.ParticipantIdeas(ctx, agentID)
	if err != nil {
		return summary, err
	}
	for _, idea := range ideas {
		if idea.Status == domain.StatusAgreed {
			summary.AgreedIdeas++
			continue
		}
		item := domain.InboxIdea{
			ID:            idea.ID,
			Title:         idea.Title,
			Status:        idea.Status,
			MessageCount:  idea.MessageCount,
			LastMessageAt: idea.LastMessageAt,
			Participants:  idea.Participants,
		}
		if idea.Status == domain.StatusNegotiating {
			last, err := e.Repo.LastMessage(ctx, idea.ID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
			case err != nil:
				return summary, err
			default:
				item.LastMessageAuthor = last.AuthorID
				item.NeedsResponse = last.AuthorID != agentID
			}
			ready, err := e.allContributed(ctx, idea)
			if err != nil {
				return summary, err
			}
			item.ReadyToLock = ready
		}
		if item.NeedsResponse {
			summary.NeedsResponse++
		}
		if item.ReadyToLock {
			summary.ReadyToLock++
		}
		summary.MyIdeas = append(summary.MyIdeas, item)
	}

	if err := e.Repo.TouchAgent(ctx, agentID, e.timestamp()); err != nil {
		e.Logger.Warn("refresh last_active failed", "agent_id", agentID, "error", err)
	}
	return summary, nil
}

func (e Engine) allContributed(ctx context.Context, idea domain.Idea) (bool, error) {
	if len(idea.Participants) < 2 {
		return false, nil
	}
	for _, p := range idea.Participants {
		n, err := e.Repo.CountMessagesByAuthor(ctx, nil, idea.ID, p)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}
