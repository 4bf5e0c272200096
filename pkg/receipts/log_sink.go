package receipts

import (
	"context"
	"log/slog"
)

// LogSink writes receipts to a structured logger. It is the fallback sink
// for deployments without a durable receipt store.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to the given logger, or slog.Default()
// when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Create(ctx context.Context, r *Receipt) error {
	s.logger.InfoContext(ctx, "receipt",
		"receipt_id", r.ID,
		"kind", r.Kind,
		"name", r.Name,
		"status", r.Status,
		"parent_id", r.ParentID,
		"session_id", r.SessionID,
	)
	return nil
}
