// Package trust tracks demonstrated reliability per (capability, scope) and
// proposes — never silently applies — relaxations of restriction. State is
// authoritative in memory; an optional Snapshotter makes it durable.
package trust

import (
	"errors"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/tiers"
)

var (
	// ErrNotFound is returned when a (capability, scope) record or a
	// proposal does not exist.
	ErrNotFound = errors.New("trust: record not found")
	// ErrInvalidTransition is returned when a graduation proposal is
	// applied after it has already been resolved.
	ErrInvalidTransition = errors.New("trust: proposal is not pending")
)

// ProposalStatus is the lifecycle state of a graduation proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalDenied   ProposalStatus = "denied"
	ProposalRevoked  ProposalStatus = "revoked"
)

// Trigger identifies what caused a tier-transition event.
type Trigger string

const (
	TriggerThresholdMet      Trigger = "threshold_met"
	TriggerOwnerApproval     Trigger = "owner_approval"
	TriggerOwnerDenial       Trigger = "owner_denial"
	TriggerFailureRevocation Trigger = "failure_revocation"
)

// Proposal is a candidate one-step tier reduction awaiting an owner
// decision. At most one may be pending per record.
type Proposal struct {
	ID                   string         `json:"id"`
	Capability           string         `json:"capability"`
	Scope                string         `json:"scope"`
	CurrentTier          tiers.RiskTier `json:"current_tier"`
	ProposedTier         tiers.RiskTier `json:"proposed_tier"`
	ConsecutiveSuccesses int            `json:"consecutive_successes"`
	TotalSuccesses       int            `json:"total_successes"`
	Status               ProposalStatus `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Event is an immutable record of one tier transition.
type Event struct {
	FromTier      tiers.RiskTier `json:"from_tier"`
	ToTier        tiers.RiskTier `json:"to_tier"`
	Trigger       Trigger        `json:"trigger"`
	OwnerApproved *bool          `json:"owner_approved,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Record is the trust state for one (capability, scope) pair.
// soul_minimum_tier <= current_tier <= T3 holds at all times.
type Record struct {
	Capability           string         `json:"capability"`
	Scope                string         `json:"scope"`
	CurrentTier          tiers.RiskTier `json:"current_tier"`
	DefaultTier          tiers.RiskTier `json:"default_tier"`
	SoulMinimumTier      tiers.RiskTier `json:"soul_minimum_tier"`
	ConsecutiveSuccesses int            `json:"consecutive_successes"`
	TotalSuccesses       int            `json:"total_successes"`
	TotalFailures        int            `json:"total_failures"`
	TotalRollbacks       int            `json:"total_rollbacks"`
	CooldownRemaining    int            `json:"cooldown_remaining"`
	Pending              *Proposal      `json:"pending_proposal,omitempty"`
	History              []Event        `json:"graduation_history,omitempty"`
}

// Graduated reports whether the record currently sits below its resting
// default tier.
func (r *Record) Graduated() bool {
	return r.CurrentTier < r.DefaultTier
}

// clone returns a deep copy safe to hand outside the ledger's locks.
func (r *Record) clone() *Record {
	out := *r
	if r.Pending != nil {
		p := *r.Pending
		out.Pending = &p
	}
	if len(r.History) > 0 {
		out.History = make([]Event, len(r.History))
		copy(out.History, r.History)
	}
	return &out
}
