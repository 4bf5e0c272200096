package authority

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/warden/pkg/receipts"
	"github.com/Mindburn-Labs/warden/pkg/tiers"
)

// Clock provides the minter's time source.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// MintRequest carries everything an approved request grants. Empty
// allowlists leave that dimension unrestricted.
type MintRequest struct {
	Scope            string
	TaskType         string
	CreatedBy        string
	AllowedTools     []string
	AllowedSkills    []string
	AllowedPaths     []string
	NetworkPolicy    NetworkPolicy
	NetworkAllowlist []string
	SecretPolicy     string
	RiskTier         tiers.RiskTier
	MaxDurationSec   int
	MaxActions       int
	RequiresVerifier bool
	ParentReceiptID  string
	SessionID        string
}

// Minter constructs and persists execution tokens from approved requests.
type Minter struct {
	store   Store
	sink    receipts.Sink
	logger  *slog.Logger
	clock   Clock
	limiter *rate.Limiter
}

// MinterOption configures a Minter.
type MinterOption func(*Minter)

// WithMintReceipts emits a receipt for every mint. Sink faults are logged
// and ignored.
func WithMintReceipts(sink receipts.Sink) MinterOption {
	return func(m *Minter) { m.sink = sink }
}

// WithMinterLogger sets the logger; nil means slog.Default().
func WithMinterLogger(logger *slog.Logger) MinterOption {
	return func(m *Minter) { m.logger = logger }
}

// WithMinterClock injects a time source for testing.
func WithMinterClock(clock Clock) MinterOption {
	return func(m *Minter) { m.clock = clock }
}

// WithMintRateLimit caps sustained mints per second with the given burst,
// guarding the store against a misbehaving caller minting in a loop.
func WithMintRateLimit(perSecond float64, burst int) MinterOption {
	return func(m *Minter) { m.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewMinter creates a minter persisting into the given store.
func NewMinter(store Store, opts ...MinterOption) *Minter {
	m := &Minter{
		store:  store,
		logger: slog.Default(),
		clock:  wallClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// MintFromApproval constructs and persists a new token. ExpiresAt is fixed
// here, at creation, and never recomputed.
func (m *Minter) MintFromApproval(ctx context.Context, req MintRequest) (*ExecutionToken, error) {
	if req.MaxDurationSec <= 0 {
		return nil, fmt.Errorf("mint: max_duration_sec must be positive, got %d", req.MaxDurationSec)
	}
	if req.MaxActions <= 0 {
		return nil, fmt.Errorf("mint: max_actions must be positive, got %d", req.MaxActions)
	}
	if m.limiter != nil && !m.limiter.Allow() {
		return nil, fmt.Errorf("mint: rate limit exceeded")
	}

	now := m.clock.Now()
	policy := req.NetworkPolicy
	if policy == "" {
		policy = NetworkOff
	}

	token := &ExecutionToken{
		ID:               uuid.New().String(),
		CreatedAt:        now,
		CreatedBy:        req.CreatedBy,
		Scope:            req.Scope,
		TaskType:         req.TaskType,
		AllowedTools:     req.AllowedTools,
		AllowedSkills:    req.AllowedSkills,
		AllowedPaths:     req.AllowedPaths,
		NetworkPolicy:    policy,
		NetworkAllowlist: req.NetworkAllowlist,
		SecretPolicy:     req.SecretPolicy,
		MaxDurationSec:   req.MaxDurationSec,
		MaxActions:       req.MaxActions,
		RiskTier:         req.RiskTier.Clamp(),
		RequiresVerifier: req.RequiresVerifier,
		Status:           StatusActive,
		ParentReceiptID:  req.ParentReceiptID,
		ExpiresAt:        now.Add(time.Duration(req.MaxDurationSec) * time.Second),
		SessionID:        req.SessionID,
	}

	if err := m.store.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	if m.sink != nil {
		r := receipts.New(receipts.KindTokenMint, token.Scope, receipts.StatusCompleted)
		r.ParentID = token.ParentReceiptID
		r.SessionID = token.SessionID
		r.Inputs = map[string]any{
			"token_id":    token.ID,
			"task_type":   token.TaskType,
			"risk_tier":   token.RiskTier.String(),
			"max_actions": token.MaxActions,
			"expires_at":  token.ExpiresAt.Format(time.RFC3339),
		}
		receipts.EmitBestEffort(ctx, m.sink, r, m.logger)
	}

	return token, nil
}
