// Package authority turns an approved request into a bounded, checkable
// grant (an ExecutionToken) and answers whether a specific action is
// allowed by a token. Tokens carry their own fixed allowlists: they are
// independent of the trust ledger, whose tiers only inform the risk tier a
// policy layer stamps onto a mint request.
package authority

import (
	"errors"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/tiers"
)

var (
	// ErrNotFound is returned when a token id is unknown to a store.
	ErrNotFound = errors.New("authority: token not found")
)

// TokenStatus is the lifecycle state of an execution token.
type TokenStatus string

const (
	StatusActive  TokenStatus = "ACTIVE"
	StatusRevoked TokenStatus = "REVOKED"
	StatusExpired TokenStatus = "EXPIRED"
)

// NetworkPolicy controls outbound network access under a token.
type NetworkPolicy string

const (
	NetworkOff       NetworkPolicy = "OFF"
	NetworkAllowlist NetworkPolicy = "ALLOWLIST"
	NetworkFull      NetworkPolicy = "FULL"
)

// ExecutionToken is a scoped, time- and action-bounded grant of permission.
// An empty allowlist means unrestricted along that dimension; this
// default-open behavior is deliberate and pinned by tests.
type ExecutionToken struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	CreatedBy        string         `json:"created_by"`
	Scope            string         `json:"scope"`
	TaskType         string         `json:"task_type"`
	AllowedTools     []string       `json:"allowed_tools,omitempty"`
	AllowedSkills    []string       `json:"allowed_skills,omitempty"`
	AllowedPaths     []string       `json:"allowed_paths,omitempty"`
	NetworkPolicy    NetworkPolicy  `json:"network_policy"`
	NetworkAllowlist []string       `json:"network_allowlist,omitempty"`
	SecretPolicy     string         `json:"secret_policy,omitempty"`
	MaxDurationSec   int            `json:"max_duration_sec"`
	MaxActions       int            `json:"max_actions"`
	RiskTier         tiers.RiskTier `json:"risk_tier"`
	RequiresVerifier bool           `json:"requires_verifier"`
	Status           TokenStatus    `json:"status"`
	ParentReceiptID  string         `json:"parent_receipt_id,omitempty"`
	ActionsUsed      int            `json:"actions_used"`
	ExpiresAt        time.Time      `json:"expires_at"`
	SessionID        string         `json:"session_id,omitempty"`
}

// IsExpired reports whether the token is spent, either by wall-clock time
// or by exhausted action count. ExpiresAt is fixed at mint time and never
// recomputed.
func (t *ExecutionToken) IsExpired(now time.Time) bool {
	if !now.Before(t.ExpiresAt) {
		return true
	}
	return t.ActionsUsed >= t.MaxActions
}

// ActionsRemaining returns how many more actions the token permits.
func (t *ExecutionToken) ActionsRemaining() int {
	remaining := t.MaxActions - t.ActionsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// clone returns a copy safe to hand outside a store's lock.
func (t *ExecutionToken) clone() *ExecutionToken {
	out := *t
	out.AllowedTools = append([]string(nil), t.AllowedTools...)
	out.AllowedSkills = append([]string(nil), t.AllowedSkills...)
	out.AllowedPaths = append([]string(nil), t.AllowedPaths...)
	out.NetworkAllowlist = append([]string(nil), t.NetworkAllowlist...)
	return &out
}
