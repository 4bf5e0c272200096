package authority

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/tiers"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable token store. Conditional updates are single
// UPDATE statements so concurrent callers cannot push a counter past its
// budget.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and runs its migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS execution_tokens (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		created_by TEXT,
		scope TEXT NOT NULL,
		task_type TEXT,
		allowed_tools JSON,
		allowed_skills JSON,
		allowed_paths JSON,
		network_policy TEXT NOT NULL,
		network_allowlist JSON,
		secret_policy TEXT,
		max_duration_sec INTEGER NOT NULL,
		max_actions INTEGER NOT NULL,
		risk_tier INTEGER NOT NULL,
		requires_verifier BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		parent_receipt_id TEXT,
		actions_used INTEGER NOT NULL DEFAULT 0,
		expires_at DATETIME NOT NULL,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tokens_session ON execution_tokens(session_id);
	CREATE INDEX IF NOT EXISTS idx_tokens_status ON execution_tokens(status);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, token *ExecutionToken) error {
	tools, _ := json.Marshal(token.AllowedTools)
	skills, _ := json.Marshal(token.AllowedSkills)
	paths, _ := json.Marshal(token.AllowedPaths)
	hosts, _ := json.Marshal(token.NetworkAllowlist)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_tokens (id, created_at, created_by, scope, task_type,
			allowed_tools, allowed_skills, allowed_paths, network_policy, network_allowlist,
			secret_policy, max_duration_sec, max_actions, risk_tier, requires_verifier,
			status, parent_receipt_id, actions_used, expires_at, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.CreatedAt, token.CreatedBy, token.Scope, token.TaskType,
		string(tools), string(skills), string(paths), string(token.NetworkPolicy), string(hosts),
		token.SecretPolicy, token.MaxDurationSec, token.MaxActions, int(token.RiskTier), token.RequiresVerifier,
		string(token.Status), token.ParentReceiptID, token.ActionsUsed, token.ExpiresAt, token.SessionID)
	if err != nil {
		return fmt.Errorf("insert token %s: %w", token.ID, err)
	}
	return nil
}

const tokenColumns = `id, created_at, created_by, scope, task_type,
	allowed_tools, allowed_skills, allowed_paths, network_policy, network_allowlist,
	secret_policy, max_duration_sec, max_actions, risk_tier, requires_verifier,
	status, parent_receipt_id, actions_used, expires_at, session_id`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*ExecutionToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM execution_tokens WHERE id = ?`, id)
	token, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return token, err
}

func (s *SQLiteStore) IncrementActions(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_tokens SET actions_used = actions_used + 1
		WHERE id = ? AND status = ? AND actions_used < max_actions`,
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
	// distinguish exhausted from unknown
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLiteStore) Revoke(ctx context.Context, id string, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_tokens SET status = ? WHERE id = ? AND status = ?`,
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

func (s *SQLiteStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_tokens SET status = ?
		WHERE status = ? AND (expires_at <= ? OR actions_used >= max_actions)`,
		string(StatusExpired), string(StatusActive), now)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]*ExecutionToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM execution_tokens WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ExecutionToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*ExecutionToken, error) {
	var t ExecutionToken
	var tools, skills, paths, hosts, network, status sql.NullString
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
	t.NetworkPolicy = NetworkPolicy(network.String)
	t.Status = TokenStatus(status.String)
	t.RiskTier = tiers.RiskTier(riskTier)

	lists := []struct {
		col sql.NullString
		dst *[]string
	}{
		{tools, &t.AllowedTools},
		{skills, &t.AllowedSkills},
		{paths, &t.AllowedPaths},
		{hosts, &t.NetworkAllowlist},
	}
	for _, l := range lists {
		if l.col.Valid && l.col.String != "null" {
			if err := json.Unmarshal([]byte(l.col.String), l.dst); err != nil {
				return nil, err
			}
		}
	}
	return &t, nil
}
