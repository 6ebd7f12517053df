package repo

import (
	"context"

	"ideaforge/internal/domain"
)

// Stats aggregates store-wide counters for operators.
func (r Repo) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	row := r.DB.QueryRowContext(ctx, `SELECT
  (SELECT count(*) FROM agents),
  (SELECT count(*) FROM agents WHERE claim_status=?),
  (SELECT count(*) FROM messages),
  (SELECT count(*) FROM agents WHERE webhook_url IS NOT NULL)`, domain.ClaimClaimed)
	if err := row.Scan(&s.Agents, &s.ClaimedAgents, &s.Messages, &s.Webhooks); err != nil {
		return s, err
	}
	ideas, err := r.CountIdeasByStatus(ctx)
	if err != nil {
		return s, err
	}
	s.Ideas = ideas
	return s, nil
}
