package authority_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Mindburn-Labs/warden/pkg/authority"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresStore(t *testing.T) (*authority.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS execution_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := authority.NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_IncrementIsConditional(t *testing.T) {
	store, mock := newPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE execution_tokens SET actions_used").
		WithArgs("tok-1", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.IncrementActions(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExpireStaleSweepsByTimeAndActions(t *testing.T) {
	store, mock := newPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE execution_tokens SET status").
		WithArgs("EXPIRED", "ACTIVE", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	swept, err := store.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, swept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RevokeNoOpWhenNotActive(t *testing.T) {
	store, mock := newPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE execution_tokens SET status").
		WithArgs("REVOKED", "tok-1", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	cols := []string{"id", "created_at", "created_by", "scope", "task_type",
		"allowed_tools", "allowed_skills", "allowed_paths", "network_policy", "network_allowlist",
		"secret_policy", "max_duration_sec", "max_actions", "risk_tier", "requires_verifier",
		"status", "parent_receipt_id", "actions_used", "expires_at", "session_id"}
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM execution_tokens WHERE id").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"tok-1", now, "policy", "scope", "task",
			[]byte(`[]`), []byte(`[]`), []byte(`[]`), "OFF", []byte(`[]`),
			"", 60, 5, 2, false,
			"REVOKED", "", 0, now.Add(time.Minute), "sess"))

	ok, err := store.Revoke(ctx, "tok-1", "again")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
