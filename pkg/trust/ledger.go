package trust

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/receipts"
	"github.com/Mindburn-Labs/warden/pkg/tiers"
)

type key struct {
	capability string
	scope      string
}

// entry pairs a record with its own mutex so concurrent reporting against
// different keys never contends, and reporting against the same key never
// loses updates.
type entry struct {
	mu  sync.Mutex
	rec *Record
}

// Ledger owns all trust records. Construct with NewLedger and inject it
// explicitly into consumers; there is no package-level instance.
type Ledger struct {
	mu        sync.RWMutex
	entries   map[key]*entry
	proposals map[string]key // proposal ID -> owning record

	policy      *config.TrustPolicy
	sink        receipts.Sink
	snapshotter Snapshotter
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithReceiptSink emits a trust-transition receipt for every graduation or
// revocation. Sink faults are logged and ignored.
func WithReceiptSink(sink receipts.Sink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithSnapshotter persists records write-through after every mutation and
// restores them on construction. Without it, trust resets on restart.
func WithSnapshotter(s Snapshotter) Option {
	return func(l *Ledger) { l.snapshotter = s }
}

// WithLogger sets the logger; nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock injects a time source for testing.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger governed by the given policy. A nil policy
// means the built-in defaults.
func NewLedger(policy *config.TrustPolicy, opts ...Option) *Ledger {
	if policy == nil {
		policy = config.DefaultTrustPolicy()
	}
	l := &Ledger{
		entries:   make(map[key]*entry),
		proposals: make(map[string]key),
		policy:    policy,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.snapshotter != nil {
		l.restore()
	}
	return l
}

func (l *Ledger) restore() {
	records, err := l.snapshotter.LoadAll(context.Background())
	if err != nil {
		l.logger.Warn("trust snapshot restore failed, starting empty", "error", err)
		return
	}
	for _, rec := range records {
		k := key{rec.Capability, rec.Scope}
		l.entries[k] = &entry{rec: rec.clone()}
		if rec.Pending != nil {
			l.proposals[rec.Pending.ID] = k
		}
	}
}

// GetOrCreate returns the record for (capability, scope), creating it at
// defaultTier on first reference. Repeated calls for the same key return
// the same record regardless of the tiers passed later.
func (l *Ledger) GetOrCreate(capability, scope string, defaultTier, soulMinimum tiers.RiskTier) *Record {
	k := key{capability, scope}

	l.mu.Lock()
	e, ok := l.entries[k]
	if !ok {
		e = &entry{rec: &Record{
			Capability:      capability,
			Scope:           scope,
			CurrentTier:     defaultTier.Clamp(),
			DefaultTier:     defaultTier.Clamp(),
			SoulMinimumTier: soulMinimum.Clamp(),
		}}
		l.entries[k] = e
	}
	l.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !ok {
		l.snapshot(e.rec)
	}
	return e.rec.clone()
}

// Get returns the record for (capability, scope) or ErrNotFound.
func (l *Ledger) Get(capability, scope string) (*Record, error) {
	e, err := l.lookup(capability, scope)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.clone(), nil
}

func (l *Ledger) lookup(capability, scope string) (*entry, error) {
	l.mu.RLock()
	e, ok := l.entries[key{capability, scope}]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, capability, scope)
	}
	return e, nil
}

// RecordSuccess registers one successful use of the capability within the
// scope, then reconsiders graduation eligibility.
func (l *Ledger) RecordSuccess(capability, scope string) (*Record, error) {
	e, err := l.lookup(capability, scope)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.rec
	rec.ConsecutiveSuccesses++
	rec.TotalSuccesses++
	if rec.CooldownRemaining > 0 {
		rec.CooldownRemaining--
	}
	l.checkGraduation(rec)
	l.snapshot(rec)
	return rec.clone(), nil
}

// RecordFailure registers a failure (or rollback). Consecutive successes
// reset, and a graduated record has its trust revoked.
func (l *Ledger) RecordFailure(capability, scope string, isRollback bool) (*Record, error) {
	e, err := l.lookup(capability, scope)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.rec
	rec.ConsecutiveSuccesses = 0
	rec.TotalFailures++
	if isRollback {
		rec.TotalRollbacks++
	}
	if rec.Graduated() {
		l.revokeLocked(rec, isRollback)
	}
	l.snapshot(rec)
	return rec.clone(), nil
}

// RevokeTrust snaps the record back toward its resting restriction: to the
// default tier on an ordinary failure, one tier above it (capped at T3) on
// a rollback. Any pending proposal is discarded.
func (l *Ledger) RevokeTrust(capability, scope string, isRollback bool) (*Record, error) {
	e, err := l.lookup(capability, scope)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	l.revokeLocked(e.rec, isRollback)
	l.snapshot(e.rec)
	return e.rec.clone(), nil
}

func (l *Ledger) revokeLocked(rec *Record, isRollback bool) {
	from := rec.CurrentTier
	target := rec.DefaultTier
	if isRollback {
		target = rec.DefaultTier.Restrict()
	}
	rec.CurrentTier = target
	rec.CooldownRemaining = l.policy.Revocation.CooldownAfterRevocation

	if rec.Pending != nil {
		rec.Pending.Status = ProposalRevoked
		l.dropProposal(rec.Pending.ID)
		rec.Pending = nil
	}

	rec.History = append(rec.History, Event{
		FromTier:  from,
		ToTier:    target,
		Trigger:   TriggerFailureRevocation,
		Timestamp: l.now(),
	})
	l.emitTransition(rec, from, target, TriggerFailureRevocation)
}

// checkGraduation creates a pending proposal when the record has earned
// one. Caller holds the entry lock.
func (l *Ledger) checkGraduation(rec *Record) {
	if rec.CurrentTier <= rec.SoulMinimumTier {
		return
	}
	if rec.CooldownRemaining > 0 || rec.Pending != nil {
		return
	}

	threshold, ok := l.threshold(rec.CurrentTier)
	if !ok || rec.ConsecutiveSuccesses < threshold {
		return
	}

	proposal := &Proposal{
		ID:                   uuid.New().String(),
		Capability:           rec.Capability,
		Scope:                rec.Scope,
		CurrentTier:          rec.CurrentTier,
		ProposedTier:         rec.CurrentTier - 1,
		ConsecutiveSuccesses: rec.ConsecutiveSuccesses,
		TotalSuccesses:       rec.TotalSuccesses,
		Status:               ProposalPending,
		CreatedAt:            l.now(),
	}
	rec.Pending = proposal

	l.mu.Lock()
	l.proposals[proposal.ID] = key{rec.Capability, rec.Scope}
	l.mu.Unlock()
}

// threshold returns the consecutive-success count required to graduate out
// of the given tier. T0 has no further graduation.
func (l *Ledger) threshold(tier tiers.RiskTier) (int, bool) {
	switch tier {
	case tiers.T3:
		return l.policy.Thresholds.T3ToT2, true
	case tiers.T2:
		return l.policy.Thresholds.T2ToT1, true
	case tiers.T1:
		return l.policy.Thresholds.T1ToT0, true
	default:
		return 0, false
	}
}

// ApplyGraduation resolves a pending proposal. Approval moves the tier one
// step down, floored at the soul minimum; denial leaves the tier and starts
// the post-denial cooldown. A proposal that is no longer pending cannot be
// re-applied.
func (l *Ledger) ApplyGraduation(proposalID string, approved bool, reason string) (*Record, error) {
	l.mu.RLock()
	k, ok := l.proposals[proposalID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}

	e, err := l.lookup(k.capability, k.scope)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.rec
	if rec.Pending == nil || rec.Pending.ID != proposalID || rec.Pending.Status != ProposalPending {
		return nil, fmt.Errorf("%w: proposal %s", ErrInvalidTransition, proposalID)
	}

	from := rec.CurrentTier
	ownerApproved := approved

	if approved {
		rec.Pending.Status = ProposalApproved
		rec.CurrentTier = rec.CurrentTier.Relax(rec.SoulMinimumTier)
		rec.ConsecutiveSuccesses = 0
		rec.History = append(rec.History, Event{
			FromTier:      from,
			ToTier:        rec.CurrentTier,
			Trigger:       TriggerOwnerApproval,
			OwnerApproved: &ownerApproved,
			Reason:        reason,
			Timestamp:     l.now(),
		})
		l.emitTransition(rec, from, rec.CurrentTier, TriggerOwnerApproval)
	} else {
		rec.Pending.Status = ProposalDenied
		rec.CooldownRemaining = l.policy.Revocation.CooldownAfterDenial
		rec.History = append(rec.History, Event{
			FromTier:      from,
			ToTier:        from,
			Trigger:       TriggerOwnerDenial,
			OwnerApproved: &ownerApproved,
			Reason:        reason,
			Timestamp:     l.now(),
		})
	}

	l.dropProposal(proposalID)
	rec.Pending = nil
	l.snapshot(rec)
	return rec.clone(), nil
}

func (l *Ledger) dropProposal(id string) {
	l.mu.Lock()
	delete(l.proposals, id)
	l.mu.Unlock()
}

// PendingProposal returns the record's pending proposal, or nil.
func (l *Ledger) PendingProposal(capability, scope string) (*Proposal, error) {
	e, err := l.lookup(capability, scope)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.Pending == nil {
		return nil, nil
	}
	p := *e.rec.Pending
	return &p, nil
}

func (l *Ledger) emitTransition(rec *Record, from, to tiers.RiskTier, trigger Trigger) {
	if l.sink == nil {
		return
	}
	r := receipts.New(receipts.KindTrustTransition, rec.Capability+"/"+rec.Scope, receipts.StatusCompleted)
	r.Inputs = map[string]any{
		"from_tier": from.String(),
		"to_tier":   to.String(),
		"trigger":   string(trigger),
	}
	receipts.EmitBestEffort(context.Background(), l.sink, r, l.logger)
}

// snapshot persists the record write-through. A snapshot fault is logged
// and ignored: in-memory state stays authoritative.
func (l *Ledger) snapshot(rec *Record) {
	if l.snapshotter == nil {
		return
	}
	if err := l.snapshotter.Save(context.Background(), rec.clone()); err != nil {
		l.logger.Warn("trust snapshot write failed",
			"capability", rec.Capability, "scope", rec.Scope, "error", err)
	}
}
