package repo

import (
	"context"
	"database/sql"
	"errors"

	"ideaforge/internal/domain"
)

// InsertMessage appends to an idea's ledger. Position in the ledger is the
// autoincrement seq, so ties on created_at keep insertion order.
func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(id,idea_id,author_id,content,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.IdeaID, m.AuthorID, m.Content, m.CreatedAt)
	return err
}

// ListMessages returns one ascending page of an idea's ledger and the total size.
func (r Repo) ListMessages(ctx context.Context, ideaID string, limit, offset int) ([]domain.Message, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE idea_id=?`, ideaID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT m.id,m.idea_id,m.author_id,COALESCE(a.name,''),m.content,m.created_at
FROM messages m LEFT JOIN agents a ON a.id=m.author_id
WHERE m.idea_id=? ORDER BY m.created_at ASC, m.seq ASC LIMIT ? OFFSET ?`, ideaID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.IdeaID, &m.AuthorID, &m.AuthorName, &m.Content, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		res = append(res, m)
	}
	return res, total, rows.Err()
}

// CountMessagesByAuthor counts one author's contributions to an idea.
func (r Repo) CountMessagesByAuthor(ctx context.Context, tx *sql.Tx, ideaID, authorID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE idea_id=? AND author_id=?`, ideaID, authorID).Scan(&n)
	return n, err
}

// LastMessage returns the newest ledger entry of an idea.
func (r Repo) LastMessage(ctx context.Context, ideaID string) (domain.Message, error) {
	var m domain.Message
	err := r.DB.QueryRowContext(ctx, `SELECT m.id,m.idea_id,m.author_id,COALESCE(a.name,''),m.content,m.created_at
FROM messages m LEFT JOIN agents a ON a.id=m.author_id
WHERE m.idea_id=? ORDER BY m.created_at DESC, m.seq DESC LIMIT 1`, ideaID).Scan(&m.ID, &m.IdeaID, &m.AuthorID, &m.AuthorName, &m.Content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}
