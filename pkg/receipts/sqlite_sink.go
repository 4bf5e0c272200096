package receipts

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"

	_ "modernc.org/sqlite"
)

// SQLiteSink is a durable sink that chains receipts per session: each row
// stores the JCS-canonical payload, its SHA-256, and the hash of the
// previous receipt in the same session, so tampering is detectable.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates the sink and runs its migration.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS receipts (
		receipt_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		parent_id TEXT,
		session_id TEXT,
		payload JSON NOT NULL,
		payload_hash TEXT NOT NULL,
		prev_hash TEXT NOT NULL DEFAULT '',
		lamport_clock INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_session ON receipts(session_id, lamport_clock);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Create appends the receipt to its session chain. The previous-hash read
// and the insert happen in one transaction so concurrent writers cannot
// fork the chain.
func (s *SQLiteSink) Create(ctx context.Context, r *Receipt) error {
	payload, payloadHash, err := canonicalize(r)
	if err != nil {
		return fmt.Errorf("canonicalize receipt %s: %w", r.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var prevHash string
	var clock int64
	row := tx.QueryRowContext(ctx, `
		SELECT payload_hash, lamport_clock FROM receipts
		WHERE session_id = ?
		ORDER BY lamport_clock DESC LIMIT 1`, r.SessionID)
	switch err := row.Scan(&prevHash, &clock); {
	case errors.Is(err, sql.ErrNoRows):
		prevHash, clock = "", -1
	case err != nil:
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (receipt_id, kind, name, status, parent_id, session_id, payload, payload_hash, prev_hash, lamport_clock)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.Name, string(r.Status), r.ParentID, r.SessionID,
		string(payload), payloadHash, prevHash, clock+1)
	if err != nil {
		return fmt.Errorf("insert receipt %s: %w", r.ID, err)
	}

	return tx.Commit()
}

// ListBySession returns a session's receipts in chain order.
func (s *SQLiteSink) ListBySession(ctx context.Context, sessionID string) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM receipts WHERE session_id = ? ORDER BY lamport_clock ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Receipt
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r Receipt
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// VerifyChain recomputes a session's hash chain from the stored payloads
// and reports the first receipt whose stored hashes do not match.
func (s *SQLiteSink) VerifyChain(ctx context.Context, sessionID string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_id, payload, payload_hash, prev_hash
		FROM receipts WHERE session_id = ? ORDER BY lamport_clock ASC`, sessionID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	expectPrev := ""
	for rows.Next() {
		var id, payload, payloadHash, prevHash string
		if err := rows.Scan(&id, &payload, &payloadHash, &prevHash); err != nil {
			return err
		}
		if prevHash != expectPrev {
			return fmt.Errorf("receipt %s: broken chain link", id)
		}
		sum := sha256.Sum256([]byte(payload))
		if hex.EncodeToString(sum[:]) != payloadHash {
			return fmt.Errorf("receipt %s: payload hash mismatch", id)
		}
		expectPrev = payloadHash
	}
	return rows.Err()
}

// canonicalize returns the receipt's JCS-canonical JSON and its SHA-256.
func canonicalize(r *Receipt) ([]byte, string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}
