package engine

import (
	"context"

	"ideaforge/internal/domain"
)

// ListMessages returns one page of an idea's ledger in creation order.
func (e Engine) ListMessages(ctx context.Context, ideaID string, limit, offset int) ([]domain.Message, domain.Page, error) {
	if _, err := e.loadIdea(ctx, ideaID); err != nil {
		return nil, domain.Page{}, err
	}
	limit, offset = e.Page(limit, offset)
	items, total, err := e.Repo.ListMessages(ctx, ideaID, limit, offset)
	if err != nil {
		return nil, domain.Page{}, err
	}
	return items, domain.NewPage(total, limit, offset), nil
}

// ContributionCount is the number of ledger entries authorID wrote on ideaID.
func (e Engine) ContributionCount(ctx context.Context, ideaID, authorID string) (int, error) {
	return e.Repo.CountMessagesByAuthor(ctx, nil, ideaID, authorID)
}
