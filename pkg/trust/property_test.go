//go:build property
// +build property

// Package trust_test property tests: scope isolation and tier bounds under
// arbitrary interleavings of success/failure reporting.
package trust_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/tiers"
	"github.com/Mindburn-Labs/warden/pkg/trust"
)

// Property: reporting any sequence of outcomes against scope A never
// changes scope B's counters or tier.
func TestLedger_ScopeIsolationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("sibling scopes are untouched", prop.ForAll(
		func(outcomes []bool) bool {
			l := trust.NewLedger(nil)
			l.GetOrCreate("email.send", "a", tiers.T3, tiers.T0)
			before := l.GetOrCreate("email.send", "b", tiers.T3, tiers.T0)

			for _, ok := range outcomes {
				if ok {
					_, _ = l.RecordSuccess("email.send", "a")
				} else {
					_, _ = l.RecordFailure("email.send", "a", false)
				}
			}

			after, err := l.Get("email.send", "b")
			if err != nil {
				return false
			}
			return after.TotalSuccesses == before.TotalSuccesses &&
				after.TotalFailures == before.TotalFailures &&
				after.ConsecutiveSuccesses == before.ConsecutiveSuccesses &&
				after.CurrentTier == before.CurrentTier &&
				after.Pending == nil
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

// Property: after any interleaving of outcomes and approvals, the tier
// stays within [soul_minimum, T3].
func TestLedger_TierBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	policy := config.DefaultTrustPolicy()
	policy.Thresholds.T3ToT2 = 2
	policy.Thresholds.T2ToT1 = 2
	policy.Thresholds.T1ToT0 = 2
	policy.Revocation.CooldownAfterDenial = 1
	policy.Revocation.CooldownAfterRevocation = 1

	properties.Property("soul minimum holds", prop.ForAll(
		func(outcomes []bool, soulMin int) bool {
			floor := tiers.RiskTier(soulMin)
			l := trust.NewLedger(policy)
			l.GetOrCreate("deploy", "prod", tiers.T3, floor)

			for _, ok := range outcomes {
				if ok {
					rec, err := l.RecordSuccess("deploy", "prod")
					if err != nil {
						return false
					}
					if rec.Pending != nil {
						if _, err := l.ApplyGraduation(rec.Pending.ID, true, ""); err != nil {
							return false
						}
					}
				} else {
					if _, err := l.RecordFailure("deploy", "prod", true); err != nil {
						return false
					}
				}
			}

			rec, err := l.Get("deploy", "prod")
			if err != nil {
				return false
			}
			return rec.CurrentTier >= floor && rec.CurrentTier <= tiers.T3
		},
		gen.SliceOf(gen.Bool()),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
