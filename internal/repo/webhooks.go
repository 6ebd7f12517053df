package repo

import (
	"context"

	"ideaforge/internal/events"
)

// Subscribers resolves the webhook subscriptions of the given agents.
func (r Repo) Subscribers(ctx context.Context, agentIDs []string) ([]events.Subscriber, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(agentIDs))
	for _, id := range agentIDs {
		args = append(args, id)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,webhook_url,COALESCE(webhook_secret,''),COALESCE(webhook_events_json,'[]')
FROM agents WHERE webhook_url IS NOT NULL AND id IN (`+placeholders(len(agentIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []events.Subscriber
	for rows.Next() {
		var (
			s         events.Subscriber
			eventsRaw string
		)
		if err := rows.Scan(&s.AgentID, &s.URL, &s.Secret, &eventsRaw); err != nil {
			return nil, err
		}
		for _, name := range decodeStrings(eventsRaw) {
			s.Events = append(s.Events, events.Kind(name))
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
