package tiers_test

import (
	"testing"

	"github.com/Mindburn-Labs/warden/pkg/tiers"
	"github.com/stretchr/testify/assert"
)

func TestTiers_Ordering(t *testing.T) {
	assert.True(t, tiers.T0 < tiers.T1)
	assert.True(t, tiers.T1 < tiers.T2)
	assert.True(t, tiers.T2 < tiers.T3)
}

func TestTiers_String(t *testing.T) {
	tests := []struct {
		tier     tiers.RiskTier
		expected string
	}{
		{tiers.T0, "T0"},
		{tiers.T1, "T1"},
		{tiers.T2, "T2"},
		{tiers.T3, "T3"},
		{tiers.RiskTier(7), "T?(7)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.tier.String())
	}
}

func TestTiers_RelaxNeverSkipsOrCrossesFloor(t *testing.T) {
	assert.Equal(t, tiers.T2, tiers.T3.Relax(tiers.T0))
	assert.Equal(t, tiers.T1, tiers.T2.Relax(tiers.T0))
	// floor holds even when the step would cross it
	assert.Equal(t, tiers.T2, tiers.T2.Relax(tiers.T2))
	assert.Equal(t, tiers.T0, tiers.T0.Relax(tiers.T0))
}

func TestTiers_RestrictCapsAtMax(t *testing.T) {
	assert.Equal(t, tiers.T3, tiers.T2.Restrict())
	assert.Equal(t, tiers.T3, tiers.T3.Restrict())
}

func TestTiers_Parse(t *testing.T) {
	tier, err := tiers.Parse("T2")
	assert.NoError(t, err)
	assert.Equal(t, tiers.T2, tier)

	tier, err = tiers.Parse("1")
	assert.NoError(t, err)
	assert.Equal(t, tiers.T1, tier)

	_, err = tiers.Parse("T9")
	assert.Error(t, err)
}
