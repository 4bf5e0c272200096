package trust

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Snapshotter persists trust records so they survive a process restart.
// Warden's in-memory state stays authoritative; the snapshot is recovery
// material only.
type Snapshotter interface {
	Save(ctx context.Context, rec *Record) error
	LoadAll(ctx context.Context) ([]*Record, error)
}

// SQLiteSnapshotter stores one row per (capability, scope) with the full
// record serialized as JSON alongside the queryable key columns.
type SQLiteSnapshotter struct {
	db *sql.DB
}

// NewSQLiteSnapshotter creates the snapshotter and runs its migration.
func NewSQLiteSnapshotter(db *sql.DB) (*SQLiteSnapshotter, error) {
	s := &SQLiteSnapshotter{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSnapshotter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS trust_records (
		capability TEXT NOT NULL,
		scope TEXT NOT NULL,
		record JSON NOT NULL,
		PRIMARY KEY (capability, scope)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteSnapshotter) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trust_records (capability, scope, record) VALUES (?, ?, ?)
		ON CONFLICT (capability, scope) DO UPDATE SET record = excluded.record`,
		rec.Capability, rec.Scope, string(data))
	if err != nil {
		return fmt.Errorf("save trust record %s/%s: %w", rec.Capability, rec.Scope, err)
	}
	return nil
}

func (s *SQLiteSnapshotter) LoadAll(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM trust_records`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
