package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ideaforge/internal/domain"
)

const agentColumns = `id,name,description,claim_status,COALESCE(owner_email,''),COALESCE(avatar_url,''),metadata_json,
COALESCE(webhook_url,''),COALESCE(webhook_secret,''),COALESCE(webhook_events_json,''),last_active,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (domain.Agent, error) {
	var (
		a                         domain.Agent
		metaJSON                  string
		hookURL, hookSecret, hook string
	)
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.ClaimStatus, &a.OwnerEmail, &a.AvatarURL, &metaJSON,
		&hookURL, &hookSecret, &hook, &a.LastActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Metadata = map[string]any{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &a.Metadata); err != nil {
			return a, fmt.Errorf("decode agent metadata: %w", err)
		}
	}
	if hookURL != "" {
		a.Webhook = &domain.WebhookSubscription{URL: hookURL, Secret: hookSecret, Events: decodeStrings(hook)}
	}
	return a, nil
}

// InsertAgent stores a freshly registered agent with its credential digests.
func (r Repo) InsertAgent(ctx context.Context, tx *sql.Tx, a domain.Agent, nameKey, apiKeyHash, claimHash string) error {
	meta, err := json.Marshal(nonNilMap(a.Metadata))
	if err != nil {
		return fmt.Errorf("encode agent metadata: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO agents(id,name,name_key,description,api_key_hash,claim_token_hash,claim_status,metadata_json,last_active,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, nameKey, a.Description, apiKeyHash, claimHash, a.ClaimStatus, string(meta), a.LastActive, a.CreatedAt, a.UpdatedAt)
	return err
}

// AgentNameTaken reports whether a case-folded name is already registered.
func (r Repo) AgentNameTaken(ctx context.Context, tx *sql.Tx, nameKey string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT 1 FROM agents WHERE name_key=? LIMIT 1`, nameKey).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) GetAgent(ctx context.Context, tx *sql.Tx, id string) (domain.Agent, error) {
	return scanAgent(r.q(tx).QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=?`, id))
}

// SaveAgentProfile writes every mutable profile column of a.
func (r Repo) SaveAgentProfile(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	meta, err := json.Marshal(nonNilMap(a.Metadata))
	if err != nil {
		return fmt.Errorf("encode agent metadata: %w", err)
	}
	var hookURL, hookSecret, hookEvents any
	if a.Webhook != nil {
		hookURL = a.Webhook.URL
		hookSecret = nullable(a.Webhook.Secret)
		hookEvents = encodeStrings(a.Webhook.Events)
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE agents SET description=?,avatar_url=?,metadata_json=?,webhook_url=?,webhook_secret=?,webhook_events_json=?,updated_at=? WHERE id=?`,
		a.Description, nullable(a.AvatarURL), string(meta), hookURL, hookSecret, hookEvents, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// MarkClaimed flips a pending agent to claimed. It returns false when the
// agent was already claimed by an earlier call.
func (r Repo) MarkClaimed(ctx context.Context, tx *sql.Tx, id, ownerEmail, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE agents SET claim_status=?,owner_email=?,updated_at=? WHERE id=? AND claim_status=?`,
		domain.ClaimClaimed, nullable(ownerEmail), now, id, domain.ClaimPending)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// TouchAgent refreshes last_active.
func (r Repo) TouchAgent(ctx context.Context, id, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE agents SET last_active=? WHERE id=?`, now, id)
	return err
}

type AgentFilters struct {
	// Sort is one of new, active, name.
	Sort string
	// All includes agents still waiting to be claimed.
	All    bool
	Limit  int
	Offset int
}

func (r Repo) ListAgents(ctx context.Context, f AgentFilters) ([]domain.Agent, int, error) {
	where := ` WHERE claim_status='` + domain.ClaimClaimed + `'`
	if f.All {
		where = ""
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM agents`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	order := ` ORDER BY created_at DESC, id`
	switch f.Sort {
	case "active":
		order = ` ORDER BY last_active DESC, id`
	case "name":
		order = ` ORDER BY name_key ASC`
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents`+where+order+` LIMIT ? OFFSET ?`, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, a)
	}
	return res, total, rows.Err()
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
