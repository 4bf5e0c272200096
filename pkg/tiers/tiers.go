// Package tiers defines the ordered risk-tier scale used by trust records
// and execution tokens. Lower numeric value = less restrictive.
package tiers

import "fmt"

// RiskTier is an ordered restriction level.
type RiskTier int

const (
	// T0 is inert: no real-world consequence.
	T0 RiskTier = 0
	// T1 covers reversible actions.
	T1 RiskTier = 1
	// T2 covers controlled actions.
	T2 RiskTier = 2
	// T3 covers irreversible actions.
	T3 RiskTier = 3
)

// Min and Max bound the scale.
const (
	Min = T0
	Max = T3
)

// String returns the canonical label (T0..T3).
func (t RiskTier) String() string {
	if t < Min || t > Max {
		return fmt.Sprintf("T?(%d)", int(t))
	}
	return fmt.Sprintf("T%d", int(t))
}

// Valid reports whether the tier is on the T0..T3 scale.
func (t RiskTier) Valid() bool {
	return t >= Min && t <= Max
}

// Clamp returns the tier forced onto the scale.
func (t RiskTier) Clamp() RiskTier {
	if t < Min {
		return Min
	}
	if t > Max {
		return Max
	}
	return t
}

// Relax returns the tier one step less restrictive, floored at lo.
func (t RiskTier) Relax(lo RiskTier) RiskTier {
	next := t - 1
	if next < lo {
		return lo
	}
	return next
}

// Restrict returns the tier one step more restrictive, capped at Max.
func (t RiskTier) Restrict() RiskTier {
	next := t + 1
	if next > Max {
		return Max
	}
	return next
}

// Parse maps a label ("T2", "t2", "2") back to a tier.
func Parse(s string) (RiskTier, error) {
	switch s {
	case "T0", "t0", "0":
		return T0, nil
	case "T1", "t1", "1":
		return T1, nil
	case "T2", "t2", "2":
		return T2, nil
	case "T3", "t3", "3":
		return T3, nil
	}
	return Min, fmt.Errorf("unknown risk tier %q", s)
}
