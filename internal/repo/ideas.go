package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ideaforge/internal/domain"
)

const ideaColumns = `id,title,pitch,tags_json,status,created_by,final_spec,message_count,last_message_at,created_at,updated_at`

func scanIdea(row rowScanner) (domain.Idea, error) {
	var (
		i        domain.Idea
		tagsJSON string
		spec     sql.NullString
		lastMsg  sql.NullString
	)
	err := row.Scan(&i.ID, &i.Title, &i.Pitch, &tagsJSON, &i.Status, &i.CreatedBy, &spec, &i.MessageCount, &lastMsg, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return i, ErrNotFound
	}
	if err != nil {
		return i, err
	}
	i.Tags = decodeStrings(tagsJSON)
	if spec.Valid {
		i.FinalSpec = &spec.String
	}
	if lastMsg.Valid {
		i.LastMessageAt = &lastMsg.String
	}
	i.Participants = []string{}
	return i, nil
}

// InsertIdea stores a new open idea with its creator as first participant.
func (r Repo) InsertIdea(ctx context.Context, tx *sql.Tx, i domain.Idea) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO ideas(id,title,pitch,tags_json,status,created_by,participant_count,message_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,1,0,?,?)`,
		i.ID, i.Title, i.Pitch, encodeStrings(i.Tags), i.Status, i.CreatedBy, i.CreatedAt, i.UpdatedAt); err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO idea_participants(idea_id,agent_id,position,joined_at) VALUES (?,?,1,?)`,
		i.ID, i.CreatedBy, i.CreatedAt); err != nil {
		return fmt.Errorf("insert creator participant: %w", err)
	}
	for _, tag := range i.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO idea_tags(idea_id,tag) VALUES (?,?)`, i.ID, tag); err != nil {
			return fmt.Errorf("insert idea tag: %w", err)
		}
	}
	return nil
}

func (r Repo) GetIdea(ctx context.Context, tx *sql.Tx, id string) (domain.Idea, error) {
	i, err := scanIdea(r.q(tx).QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=?`, id))
	if err != nil {
		return i, err
	}
	parts, err := r.participants(ctx, r.q(tx), []string{id})
	if err != nil {
		return i, err
	}
	i.Participants = append(i.Participants, parts[id]...)
	return i, nil
}

// JoinIdea admits agentID as second participant. The update only matches an
// open idea that still has a single participant, so of two concurrent
// joiners exactly one sees true.
func (r Repo) JoinIdea(ctx context.Context, tx *sql.Tx, ideaID, agentID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET status=?,participant_count=2,updated_at=?
WHERE id=? AND status=? AND participant_count=1`,
		domain.StatusNegotiating, now, ideaID, domain.StatusOpen)
	if err != nil {
		return false, err
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO idea_participants(idea_id,agent_id,position,joined_at) VALUES (?,?,2,?)`,
		ideaID, agentID, now); err != nil {
		return false, fmt.Errorf("insert joining participant: %w", err)
	}
	return true, nil
}

// RecordMessage bumps the idea's ledger counters. It matches nothing once the
// idea is agreed.
func (r Repo) RecordMessage(ctx context.Context, tx *sql.Tx, ideaID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET message_count=message_count+1,last_message_at=?,updated_at=?
WHERE id=? AND status<>?`, now, now, ideaID, domain.StatusAgreed)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// LockIdea moves a negotiating idea to agreed and stores its final spec.
func (r Repo) LockIdea(ctx context.Context, tx *sql.Tx, ideaID, finalSpec, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET status=?,final_spec=?,updated_at=? WHERE id=? AND status=?`,
		domain.StatusAgreed, finalSpec, now, ideaID, domain.StatusNegotiating)
	if err != nil {
		return false, err
	}
	return affected(res)
}

type IdeaFilters struct {
	Status        string
	Tag           string
	ParticipantID string
	Limit         int
	Offset        int
}

// ListIdeas returns one page of ideas, newest first, with the unpaged total.
func (r Repo) ListIdeas(ctx context.Context, f IdeaFilters) ([]domain.Idea, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.Status != "" {
		where += " AND i.status=?"
		args = append(args, f.Status)
	}
	if f.Tag != "" {
		where += " AND EXISTS (SELECT 1 FROM idea_tags t WHERE t.idea_id=i.id AND t.tag=?)"
		args = append(args, f.Tag)
	}
	if f.ParticipantID != "" {
		where += " AND EXISTS (SELECT 1 FROM idea_participants p WHERE p.idea_id=i.id AND p.agent_id=?)"
		args = append(args, f.ParticipantID)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM ideas i`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + ideaColumns + ` FROM ideas i` + where + ` ORDER BY i.created_at DESC, i.id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	items, err := r.collectIdeas(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r Repo) collectIdeas(ctx context.Context, query string, args ...any) ([]domain.Idea, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		items []domain.Idea
		ids   []string
	)
	for rows.Next() {
		i, err := scanIdea(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, i)
		ids = append(ids, i.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(ids) == 0 {
		return items, nil
	}
	parts, err := r.participants(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for idx := range items {
		items[idx].Participants = append(items[idx].Participants, parts[items[idx].ID]...)
	}
	return items, nil
}

func (r Repo) participants(ctx context.Context, q querier, ideaIDs []string) (map[string][]string, error) {
	args := make([]any, 0, len(ideaIDs))
	for _, id := range ideaIDs {
		args = append(args, id)
	}
	rows, err := q.QueryContext(ctx, `SELECT idea_id,agent_id FROM idea_participants WHERE idea_id IN (`+placeholders(len(ideaIDs))+`) ORDER BY idea_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]string{}
	for rows.Next() {
		var ideaID, agentID string
		if err := rows.Scan(&ideaID, &agentID); err != nil {
			return nil, err
		}
		res[ideaID] = append(res[ideaID], agentID)
	}
	return res, rows.Err()
}

// CountIdeasByStatus returns idea counts keyed by status; every status is present.
func (r Repo) CountIdeasByStatus(ctx context.Context) (map[string]int, error) {
	res := map[string]int{
		domain.StatusOpen:        0,
		domain.StatusNegotiating: 0,
		domain.StatusAgreed:      0,
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM ideas GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

// ParticipantIdeas returns every idea agentID takes part in, most recently
// discussed first.
func (r Repo) ParticipantIdeas(ctx context.Context, agentID string) ([]domain.Idea, error) {
	return r.collectIdeas(ctx, `SELECT `+ideaColumns+` FROM ideas i
WHERE EXISTS (SELECT 1 FROM idea_participants p WHERE p.idea_id=i.id AND p.agent_id=?)
ORDER BY i.last_message_at IS NULL, i.last_message_at DESC, i.created_at DESC`, agentID)
}

// CountJoinableIdeas counts open ideas agentID is not already part of.
func (r Repo) CountJoinableIdeas(ctx context.Context, agentID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM ideas i WHERE i.status=?
AND NOT EXISTS (SELECT 1 FROM idea_participants p WHERE p.idea_id=i.id AND p.agent_id=?)`, domain.StatusOpen, agentID).Scan(&n)
	return n, err
}
