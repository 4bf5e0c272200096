package trust_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/tiers"
	"github.com/Mindburn-Labs/warden/pkg/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestSQLiteSnapshotter_TrustSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	snap, err := trust.NewSQLiteSnapshotter(db)
	require.NoError(t, err)

	policy := config.DefaultTrustPolicy()
	policy.Thresholds.T3ToT2 = 3

	l := trust.NewLedger(policy, trust.WithSnapshotter(snap))
	l.GetOrCreate("email.send", "team", tiers.T3, tiers.T0)
	for i := 0; i < 3; i++ {
		_, err = l.RecordSuccess("email.send", "team")
		require.NoError(t, err)
	}
	rec, err := l.Get("email.send", "team")
	require.NoError(t, err)
	require.NotNil(t, rec.Pending)

	// a new ledger over the same database restores counters, tier, and
	// the pending proposal
	restored := trust.NewLedger(policy, trust.WithSnapshotter(snap))
	rec2, err := restored.Get("email.send", "team")
	require.NoError(t, err)
	assert.Equal(t, rec.TotalSuccesses, rec2.TotalSuccesses)
	assert.Equal(t, rec.CurrentTier, rec2.CurrentTier)
	require.NotNil(t, rec2.Pending)
	assert.Equal(t, rec.Pending.ID, rec2.Pending.ID)

	// the restored proposal is applicable
	applied, err := restored.ApplyGraduation(rec2.Pending.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, tiers.T2, applied.CurrentTier)
}
