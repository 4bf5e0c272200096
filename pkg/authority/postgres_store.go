package authority

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/tiers"

	_ "github.com/lib/pq"
)

// PostgresStore is the Postgres-backed token store for shared deployments.
// Semantics match SQLiteStore: every conditional update is one UPDATE
// statement.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and runs its migration.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS execution_tokens (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		created_by TEXT,
		scope TEXT NOT NULL,
		task_type TEXT,
		allowed_tools JSONB,
		allowed_skills JSONB,
		allowed_paths JSONB,
		network_policy TEXT NOT NULL,
		network_allowlist JSONB,
		secret_policy TEXT,
		max_duration_sec INTEGER NOT NULL,
		max_actions INTEGER NOT NULL,
		risk_tier INTEGER NOT NULL,
		requires_verifier BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		parent_receipt_id TEXT,
		actions_used INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ NOT NULL,
		session_id TEXT
	)`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, token *ExecutionToken) error {
	tools, _ := json.Marshal(token.AllowedTools)
	skills, _ := json.Marshal(token.AllowedSkills)
	paths, _ := json.Marshal(token.AllowedPaths)
	hosts, _ := json.Marshal(token.NetworkAllowlist)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_tokens (id, created_at, created_by, scope, task_type,
			allowed_tools, allowed_skills, allowed_paths, network_policy, network_allowlist,
			secret_policy, max_duration_sec, max_actions, risk_tier, requires_verifier,
			status, parent_receipt_id, actions_used, expires_at, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		token.ID, token.CreatedAt, token.CreatedBy, token.Scope, token.TaskType,
		string(tools), string(skills), string(paths), string(token.NetworkPolicy), string(hosts),
		token.SecretPolicy, token.MaxDurationSec, token.MaxActions, int(token.RiskTier), token.RequiresVerifier,
		string(token.Status), token.ParentReceiptID, token.ActionsUsed, token.ExpiresAt, token.SessionID)
	if err != nil {
		return fmt.Errorf("insert token %s: %w", token.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*ExecutionToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM execution_tokens WHERE id = $1`, id)
	token, err := scanPostgresToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return token, err
}

func (s *PostgresStore) IncrementActions(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_tokens SET actions_used = actions_used + 1
		WHERE id = $1 AND status = $2 AND actions_used < max_actions`,
		id, string(StatusActive))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id string, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_tokens SET status = $1 WHERE id = $2 AND status = $3`,
		string(StatusRevoked), id, string(StatusActive))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_tokens SET status = $1
		WHERE status = $2 AND (expires_at <= $3 OR actions_used >= max_actions)`,
		string(StatusExpired), string(StatusActive), now)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]*ExecutionToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM execution_tokens WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ExecutionToken
	for rows.Next() {
		token, err := scanPostgresToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

// scanPostgresToken mirrors scanToken; kept separate because pq returns
// JSONB as []byte while the sqlite driver returns TEXT.
func scanPostgresToken(row rowScanner) (*ExecutionToken, error) {
	var t ExecutionToken
	var tools, skills, paths, hosts []byte
	var network, status string
	var createdBy, secretPolicy, parentReceipt, sessionID sql.NullString
	var riskTier int

	err := row.Scan(&t.ID, &t.CreatedAt, &createdBy, &t.Scope, &t.TaskType,
		&tools, &skills, &paths, &network, &hosts,
		&secretPolicy, &t.MaxDurationSec, &t.MaxActions, &riskTier, &t.RequiresVerifier,
		&status, &parentReceipt, &t.ActionsUsed, &t.ExpiresAt, &sessionID)
	if err != nil {
		return nil, err
	}

	t.CreatedBy = createdBy.String
	t.SecretPolicy = secretPolicy.String
	t.ParentReceiptID = parentReceipt.String
	t.SessionID = sessionID.String
	t.NetworkPolicy = NetworkPolicy(network)
	t.Status = TokenStatus(status)
	t.RiskTier = tiers.RiskTier(riskTier)

	lists := []struct {
		raw []byte
		dst *[]string
	}{
		{tools, &t.AllowedTools},
		{skills, &t.AllowedSkills},
		{paths, &t.AllowedPaths},
		{hosts, &t.NetworkAllowlist},
	}
	for _, l := range lists {
		if len(l.raw) > 0 && string(l.raw) != "null" {
			if err := json.Unmarshal(l.raw, l.dst); err != nil {
				return nil, err
			}
		}
	}
	return &t, nil
}
