// Package observability provides OpenTelemetry metrics for the
// authorization core: authority decisions, token mints, and run outcomes.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments the core records into. A nil *Metrics is
// valid everywhere and records nothing.
type Metrics struct {
	authorityChecks metric.Int64Counter
	tokensMinted    metric.Int64Counter
	stepsExecuted   metric.Int64Counter
	runsFinished    metric.Int64Counter
}

// NewMetrics creates instruments on the given provider, or the global
// provider when nil.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("github.com/Mindburn-Labs/warden")

	authorityChecks, err := meter.Int64Counter("warden.authority.checks",
		metric.WithDescription("Authority checks by decision"))
	if err != nil {
		return nil, fmt.Errorf("create authority counter: %w", err)
	}
	tokensMinted, err := meter.Int64Counter("warden.tokens.minted",
		metric.WithDescription("Execution tokens minted"))
	if err != nil {
		return nil, fmt.Errorf("create mint counter: %w", err)
	}
	stepsExecuted, err := meter.Int64Counter("warden.steps.executed",
		metric.WithDescription("Task steps executed by type and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create step counter: %w", err)
	}
	runsFinished, err := meter.Int64Counter("warden.runs.finished",
		metric.WithDescription("Task runs reaching a resting status"))
	if err != nil {
		return nil, fmt.Errorf("create run counter: %w", err)
	}

	return &Metrics{
		authorityChecks: authorityChecks,
		tokensMinted:    tokensMinted,
		stepsExecuted:   stepsExecuted,
		runsFinished:    runsFinished,
	}, nil
}

// RecordAuthorityCheck counts one allow/deny decision.
func (m *Metrics) RecordAuthorityCheck(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	m.authorityChecks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
}

// RecordMint counts one token mint at the given risk tier label.
func (m *Metrics) RecordMint(ctx context.Context, riskTier string) {
	if m == nil {
		return
	}
	m.tokensMinted.Add(ctx, 1, metric.WithAttributes(attribute.String("risk_tier", riskTier)))
}

// RecordStep counts one executed step.
func (m *Metrics) RecordStep(ctx context.Context, stepType string, success bool) {
	if m == nil {
		return
	}
	m.stepsExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", stepType),
		attribute.Bool("success", success),
	))
}

// RecordRunFinished counts one run reaching SUCCEEDED, FAILED, BLOCKED, or
// CANCELLED.
func (m *Metrics) RecordRunFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.runsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
