package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable graph and run store. Steps and the receipts
// index are serialized as JSON side columns, matching the persisted record
// shapes the surrounding service reads.
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
	CREATE TABLE IF NOT EXISTS task_graphs (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		planner_version TEXT,
		steps JSON NOT NULL,
		session_id TEXT
	);
	CREATE TABLE IF NOT EXISTS task_runs (
		id TEXT PRIMARY KEY,
		task_graph_id TEXT NOT NULL,
		execution_token_id TEXT,
		status TEXT NOT NULL,
		current_step_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		receipts_index JSON,
		last_error TEXT,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_task_runs_session ON task_runs(session_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) CreateGraph(ctx context.Context, g *Graph) error {
	steps, err := json.Marshal(g.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_graphs (id, goal, created_at, planner_version, steps, session_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Goal, g.CreatedAt, g.PlannerVersion, string(steps), g.SessionID)
	if err != nil {
		return fmt.Errorf("insert graph %s: %w", g.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetGraph(ctx context.Context, id string) (*Graph, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, goal, created_at, planner_version, steps, session_id
		FROM task_graphs WHERE id = ?`, id)

	var g Graph
	var plannerVersion, steps, sessionID sql.NullString
	err := row.Scan(&g.ID, &g.Goal, &g.CreatedAt, &plannerVersion, &steps, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: graph %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	g.PlannerVersion = plannerVersion.String
	g.SessionID = sessionID.String
	if steps.Valid {
		if err := json.Unmarshal([]byte(steps.String), &g.Steps); err != nil {
			return nil, err
		}
	}
	return &g, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, r *Run) error {
	index, err := json.Marshal(r.ReceiptsIndex)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_runs (id, task_graph_id, execution_token_id, status, current_step_id,
			created_at, updated_at, receipts_index, last_error, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GraphID, r.TokenID, string(r.Status), r.CurrentStepID,
		r.CreatedAt, r.UpdatedAt, string(index), r.LastError, r.SessionID)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_graph_id, execution_token_id, status, current_step_id,
			created_at, updated_at, receipts_index, last_error, session_id
		FROM task_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return r, err
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, r *Run) error {
	index, err := json.Marshal(r.ReceiptsIndex)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_runs SET status = ?, current_step_id = ?, updated_at = ?,
			receipts_index = ?, last_error = ?
		WHERE id = ?`,
		string(r.Status), r.CurrentStepID, time.Now().UTC(), string(index), r.LastError, r.ID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, r.ID)
	}
	return nil
}

func (s *SQLiteStore) ListRunsBySession(ctx context.Context, sessionID string) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_graph_id, execution_token_id, status, current_step_id,
			created_at, updated_at, receipts_index, last_error, session_id
		FROM task_runs WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var tokenID, currentStep, index, lastError, sessionID sql.NullString
	var status string
	err := row.Scan(&r.ID, &r.GraphID, &tokenID, &status, &currentStep,
		&r.CreatedAt, &r.UpdatedAt, &index, &lastError, &sessionID)
	if err != nil {
		return nil, err
	}
	r.TokenID = tokenID.String
	r.Status = RunStatus(status)
	r.CurrentStepID = currentStep.String
	r.LastError = lastError.String
	r.SessionID = sessionID.String
	if index.Valid && index.String != "null" {
		if err := json.Unmarshal([]byte(index.String), &r.ReceiptsIndex); err != nil {
			return nil, err
		}
	}
	return &r, nil
}
