package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/warden/pkg/authority"
	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/planner"
	"github.com/Mindburn-Labs/warden/pkg/receipts"
	"github.com/Mindburn-Labs/warden/pkg/runner"
	"github.com/Mindburn-Labs/warden/pkg/task"
	"github.com/Mindburn-Labs/warden/pkg/tiers"
	"github.com/Mindburn-Labs/warden/pkg/verify"
)

// echoExecutor stands in for a real skill runtime: every handler call
// succeeds and reports what it would have done.
type echoExecutor struct {
	out io.Writer
}

func (e *echoExecutor) Run(_ context.Context, handler string, inputs map[string]any) (runner.Result, error) {
	desc, _ := inputs["description"].(string)
	_, _ = fmt.Fprintf(e.out, "  [%s] %s\n", handler, desc)
	return runner.Result{Success: true, Outputs: map[string]any{"echoed": desc}}, nil
}

// runDemo compiles a goal into a task graph, mints a scoped execution
// token, and drives the run through the full authority and receipt path
// against a single SQLite database.
func runDemo(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "warden-demo.db", "SQLite database path")
	goal := fs.String("goal", "refresh the project dependencies", "goal to plan and run")
	steps := fs.String("steps", "fetch the dependency manifest;run the update script;verify the lockfile is consistent", "semicolon-separated step descriptions")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open database: %v\n", err)
		return 1
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	sink, err := receipts.NewSQLiteSink(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "receipt sink: %v\n", err)
		return 1
	}
	tokenStore, err := authority.NewSQLiteStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "token store: %v\n", err)
		return 1
	}
	taskStore, err := task.NewSQLiteStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "task store: %v\n", err)
		return 1
	}
	verifier, err := verify.NewCELVerifier()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verifier: %v\n", err)
		return 1
	}

	sessionID := uuid.New().String()

	minter := authority.NewMinter(tokenStore,
		authority.WithMintReceipts(sink),
		authority.WithMinterLogger(logger))
	token, err := minter.MintFromApproval(ctx, authority.MintRequest{
		Scope:          "demo",
		TaskType:       "maintenance",
		CreatedBy:      "warden-demo",
		RiskTier:       tiers.T2,
		MaxDurationSec: 600,
		MaxActions:     50,
		SessionID:      sessionID,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "mint token: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "minted token %s (tier %s, %d actions, expires %s)\n",
		token.ID, token.RiskTier, token.MaxActions, token.ExpiresAt.Format(time.RFC3339))

	descriptions := splitSteps(*steps)
	graph := planner.CompileSequence(*goal, descriptions, sessionID)
	for i := range graph.Steps {
		// The CEL verifier needs an expression, not prose; give inferred
		// VERIFY steps a concrete check over their declared evidence.
		if graph.Steps[i].Type == task.StepVerify && graph.Steps[i].AcceptanceCheck == "" {
			graph.Steps[i].Inputs = map[string]any{"status": "consistent"}
			graph.Steps[i].AcceptanceCheck = `output.status == "consistent"`
		}
	}
	if err := taskStore.CreateGraph(ctx, graph); err != nil {
		_, _ = fmt.Fprintf(stderr, "store graph: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "compiled graph %s with %d steps:\n", graph.ID, len(graph.Steps))
	for _, step := range graph.Steps {
		_, _ = fmt.Fprintf(stdout, "  %s %-10s %s\n", step.ID, step.Type, step.Description)
	}

	run := &task.Run{
		ID:        uuid.New().String(),
		GraphID:   graph.ID,
		TokenID:   token.ID,
		Status:    task.RunQueued,
		CreatedAt: time.Now().UTC(),
		SessionID: sessionID,
	}
	if err := taskStore.CreateRun(ctx, run); err != nil {
		_, _ = fmt.Fprintf(stderr, "store run: %v\n", err)
		return 1
	}

	r := runner.NewRunner(taskStore, &echoExecutor{out: stdout},
		runner.WithTokenStore(tokenStore),
		runner.WithVerifier(verifier),
		runner.WithReceiptSink(sink),
		runner.WithLogger(logger))

	_, _ = fmt.Fprintf(stdout, "running %s:\n", run.ID)
	final, err := r.Run(ctx, run.ID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "run finished: %s", final.Status)
	if final.LastError != "" {
		_, _ = fmt.Fprintf(stdout, " (%s)", final.LastError)
	}
	_, _ = fmt.Fprintln(stdout)

	recs, err := sink.ListBySession(ctx, sessionID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list receipts: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "receipts (%d):\n", len(recs))
	for _, rec := range recs {
		_, _ = fmt.Fprintf(stdout, "  %-16s %-10s %s\n", rec.Kind, rec.Status, rec.Name)
	}

	if err := sink.VerifyChain(ctx, sessionID); err != nil {
		_, _ = fmt.Fprintf(stderr, "receipt chain verification: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "receipt chain verified")

	if final.Status != task.RunSucceeded {
		return 1
	}
	return 0
}

func splitSteps(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// runPolicyCmd prints the trust policy that would govern graduations,
// honoring WARDEN_TRUST_POLICY the same way the services do.
func runPolicyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("policy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("file", "", "trust policy file (defaults to WARDEN_TRUST_POLICY)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	if *path == "" {
		*path = cfg.TrustPolicyPath
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))
	policy := config.LoadTrustPolicy(*path, logger)

	_, _ = fmt.Fprintf(stdout, "graduation thresholds:\n")
	_, _ = fmt.Fprintf(stdout, "  T3 -> T2: %d consecutive successes\n", policy.Thresholds.T3ToT2)
	_, _ = fmt.Fprintf(stdout, "  T2 -> T1: %d consecutive successes\n", policy.Thresholds.T2ToT1)
	_, _ = fmt.Fprintf(stdout, "  T1 -> T0: %d consecutive successes\n", policy.Thresholds.T1ToT0)
	_, _ = fmt.Fprintf(stdout, "cooldowns:\n")
	_, _ = fmt.Fprintf(stdout, "  after denial:     %d successes\n", policy.Revocation.CooldownAfterDenial)
	_, _ = fmt.Fprintf(stdout, "  after revocation: %d successes\n", policy.Revocation.CooldownAfterRevocation)
	return 0
}
