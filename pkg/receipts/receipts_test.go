package receipts_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Mindburn-Labs/warden/pkg/receipts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type failingSink struct{}

func (failingSink) Create(ctx context.Context, r *receipts.Receipt) error {
	return errors.New("sink down")
}

func TestEmitBestEffort_SwallowsSinkFault(t *testing.T) {
	r := receipts.New(receipts.KindStep, "step-1", receipts.StatusCompleted)
	// must not panic or propagate
	receipts.EmitBestEffort(context.Background(), failingSink{}, r, slog.Default())
	receipts.EmitBestEffort(context.Background(), nil, r, nil)
}

func TestMemorySink_PreservesOrder(t *testing.T) {
	sink := receipts.NewMemorySink()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, sink.Create(ctx, receipts.New(receipts.KindStep, name, receipts.StatusCompleted)))
	}

	all := sink.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)
	assert.Equal(t, "c", all[2].Name)
	assert.Len(t, sink.ByName("b"), 1)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteSink_ChainsAndVerifies(t *testing.T) {
	sink, err := receipts.NewSQLiteSink(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"mint", "step-1", "step-2"} {
		r := receipts.New(receipts.KindStep, name, receipts.StatusCompleted)
		r.SessionID = "sess-1"
		r.Inputs = map[string]any{"step": name}
		require.NoError(t, sink.Create(ctx, r))
	}
	// a second session must not interleave with the first chain
	other := receipts.New(receipts.KindRun, "other", receipts.StatusStarted)
	other.SessionID = "sess-2"
	require.NoError(t, sink.Create(ctx, other))

	listed, err := sink.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "mint", listed[0].Name)
	assert.Equal(t, "step-2", listed[2].Name)
	assert.Equal(t, map[string]any{"step": "step-2"}, listed[2].Inputs)

	assert.NoError(t, sink.VerifyChain(ctx, "sess-1"))
	assert.NoError(t, sink.VerifyChain(ctx, "sess-2"))
	assert.NoError(t, sink.VerifyChain(ctx, "sess-absent"))
}

func TestSQLiteSink_VerifyDetectsTampering(t *testing.T) {
	db := openTestDB(t)
	sink, err := receipts.NewSQLiteSink(db)
	require.NoError(t, err)
	ctx := context.Background()

	r := receipts.New(receipts.KindStep, "step-1", receipts.StatusCompleted)
	r.SessionID = "sess-1"
	require.NoError(t, sink.Create(ctx, r))

	_, err = db.ExecContext(ctx, `UPDATE receipts SET payload = json_set(payload, '$.name', 'forged')`)
	require.NoError(t, err)

	assert.Error(t, sink.VerifyChain(ctx, "sess-1"))
}
