// Package receipts defines the immutable audit records emitted for every
// governed action (token mints, trust transitions, task steps) and the
// narrow sink interface the core writes them through. The storage engine
// behind a sink is external; the core only needs Create.
package receipts

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Status of the action a receipt records.
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusDenied    Status = "DENIED"
)

// Kind categorizes the recorded action.
type Kind string

const (
	KindTokenMint      Kind = "TOKEN_MINT"
	KindTokenRevoke    Kind = "TOKEN_REVOKE"
	KindTrustTransition Kind = "TRUST_TRANSITION"
	KindStep           Kind = "STEP"
	KindRun            Kind = "RUN"
)

// Receipt is one immutable audit record.
type Receipt struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Name      string         `json:"name"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Status    Status         `json:"status"`
	ParentID  string         `json:"parent_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New constructs a receipt with a fresh ID and the current time.
func New(kind Kind, name string, status Status) *Receipt {
	return &Receipt{
		ID:        uuid.New().String(),
		Kind:      kind,
		Name:      name,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// Sink accepts receipts for durable storage.
type Sink interface {
	Create(ctx context.Context, r *Receipt) error
}

// EmitBestEffort writes a receipt and swallows any sink fault. Audit-sink
// failures never alter the authoritative outcome of the action they record;
// they are logged at Warn and dropped.
func EmitBestEffort(ctx context.Context, sink Sink, r *Receipt, logger *slog.Logger) {
	if sink == nil || r == nil {
		return
	}
	if err := sink.Create(ctx, r); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("receipt write failed", "receipt_id", r.ID, "kind", r.Kind, "error", err)
	}
}
