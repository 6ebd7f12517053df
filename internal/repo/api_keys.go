package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"ideaforge/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
// Claim tokens are stored with the same digest.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// GetAgentByAPIKeyHash resolves the agent owning a hashed API key.
func (r Repo) GetAgentByAPIKeyHash(ctx context.Context, hash string) (domain.Agent, error) {
	return scanAgent(r.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_hash=? LIMIT 1`, hash))
}

// GetAgentByClaimHash resolves the agent a hashed claim token was issued to.
func (r Repo) GetAgentByClaimHash(ctx context.Context, tx *sql.Tx, hash string) (domain.Agent, error) {
	return scanAgent(r.q(tx).QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE claim_token_hash=? LIMIT 1`, hash))
}
