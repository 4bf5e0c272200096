// Package runner executes compiled task graphs step by step under the
// authority of an execution token. Every step is gated through an
// authority check before it runs, every attempt leaves a receipt, and the
// first failing or denied step halts the run. HUMAN_INPUT steps park the
// run as BLOCKED rather than failing it.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/authority"
	"github.com/Mindburn-Labs/warden/pkg/observability"
	"github.com/Mindburn-Labs/warden/pkg/receipts"
	"github.com/Mindburn-Labs/warden/pkg/task"
	"github.com/Mindburn-Labs/warden/pkg/verify"
)

// Result is the outcome a skill handler reports for one step.
type Result struct {
	Success bool
	Outputs map[string]any
	Error   string
}

// SkillExecutor runs one named handler with translated step inputs. An
// error return means the handler infrastructure itself broke; a Result
// with Success=false means the handler ran and reported failure. The
// runner treats both as a failed step.
type SkillExecutor interface {
	Run(ctx context.Context, handler string, inputs map[string]any) (Result, error)
}

// handlerTable maps each executable step type to its skill handler name.
// VERIFY steps go to the Verifier and HUMAN_INPUT steps never execute, so
// neither appears here.
var handlerTable = map[task.StepType]string{
	task.StepToolCall:  "tool_call",
	task.StepSkillCall: "skill_call",
	task.StepFileEdit:  "file_edit",
	task.StepCommand:   "command",
}

// actionFor translates a step into the action the token allowlists are
// checked against. The tool is keyed coarsely on the step type; skill,
// path, and host details come from the step's inputs when declared.
func actionFor(step *task.Step) authority.Action {
	action := authority.Action{Tool: string(step.Type)}
	if skill, ok := step.Inputs["skill"].(string); ok {
		action.Skill = skill
	}
	if path, ok := step.Inputs["path"].(string); ok {
		action.Path = path
	}
	if host, ok := step.Inputs["host"].(string); ok {
		action.NetworkHost = host
	}
	return action
}

// Runner drives runs to a terminal or blocked state.
type Runner struct {
	tasks    task.Store
	tokens   authority.Store
	executor SkillExecutor
	verifier verify.Verifier
	sink     receipts.Sink
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option tunes a Runner.
type Option func(*Runner)

// WithTokenStore binds an execution-token store. Without one the runner
// executes runs ungated, which is only appropriate in tests.
func WithTokenStore(s authority.Store) Option {
	return func(r *Runner) { r.tokens = s }
}

// WithVerifier installs the verifier used for VERIFY steps and for
// acceptance checks on tokens that require one.
func WithVerifier(v verify.Verifier) Option {
	return func(r *Runner) { r.verifier = v }
}

// WithReceiptSink installs the audit sink. Sink faults never change run
// outcomes.
func WithReceiptSink(s receipts.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithMetrics installs step and run counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner wires a runner over its task store and skill executor.
func NewRunner(tasks task.Store, executor SkillExecutor, opts ...Option) *Runner {
	r := &Runner{
		tasks:    tasks,
		executor: executor,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the identified run until it succeeds, fails, or blocks on
// human input. The returned run reflects the final persisted state. An
// error is returned only when the run itself cannot be loaded; every
// other fault is recorded on the run and reported through its status.
func (r *Runner) Run(ctx context.Context, runID string) (*task.Run, error) {
	run, err := r.tasks.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resolve run %s: %w", runID, err)
	}

	graph, err := r.tasks.GetGraph(ctx, run.GraphID)
	if err != nil {
		return r.fail(ctx, run, fmt.Sprintf("resolve task graph %s: %v", run.GraphID, err))
	}

	var token *authority.ExecutionToken
	if run.TokenID != "" && r.tokens != nil {
		token, err = r.tokens.Get(ctx, run.TokenID)
		if err != nil {
			return r.fail(ctx, run, fmt.Sprintf("resolve execution token %s: %v", run.TokenID, err))
		}
	}

	order, err := executionOrder(graph)
	if err != nil {
		return r.fail(ctx, run, err.Error())
	}

	for _, stepID := range order {
		step := graph.StepByID(stepID)
		if step == nil {
			return r.fail(ctx, run, fmt.Sprintf("step %s missing from graph %s", stepID, graph.ID))
		}

		run.Status = task.RunRunning
		run.CurrentStepID = step.ID
		if err := r.tasks.UpdateRun(ctx, run); err != nil {
			return run, fmt.Errorf("persist run %s: %w", run.ID, err)
		}

		if token != nil {
			// Re-read so revocation and budget exhaustion from outside
			// this run take effect at the next step boundary.
			token, err = r.tokens.Get(ctx, run.TokenID)
			if err != nil {
				return r.fail(ctx, run, fmt.Sprintf("resolve execution token %s: %v", run.TokenID, err))
			}
			decision := authority.CheckAuthority(token, actionFor(step), r.now())
			r.metrics.RecordAuthorityCheck(ctx, decision.Allowed)
			if !decision.Allowed {
				r.emitStep(ctx, run, step, receipts.StatusDenied, nil, decision.Reason)
				return r.fail(ctx, run, fmt.Sprintf("step %s denied: %s", step.ID, decision.Reason))
			}
		}

		if step.Type == task.StepHumanInput {
			run.Status = task.RunBlocked
			if err := r.tasks.UpdateRun(ctx, run); err != nil {
				return run, fmt.Errorf("persist run %s: %w", run.ID, err)
			}
			r.logger.Info("run blocked on human input", "run_id", run.ID, "step_id", step.ID)
			return run, nil
		}

		r.emitStep(ctx, run, step, receipts.StatusStarted, nil, "")

		res := r.execute(ctx, step)
		r.metrics.RecordStep(ctx, string(step.Type), res.Success)
		if !res.Success {
			r.emitStep(ctx, run, step, receipts.StatusFailed, res.Outputs, res.Error)
			return r.fail(ctx, run, fmt.Sprintf("step %s failed: %s", step.ID, res.Error))
		}

		if token != nil && token.RequiresVerifier && step.AcceptanceCheck != "" && step.Type != task.StepVerify {
			verdict, verr := r.check(ctx, step.AcceptanceCheck, res.Outputs)
			if verr != nil {
				r.emitStep(ctx, run, step, receipts.StatusFailed, res.Outputs, verr.Error())
				return r.fail(ctx, run, fmt.Sprintf("step %s verification: %v", step.ID, verr))
			}
			if !verdict.Success {
				r.emitStep(ctx, run, step, receipts.StatusFailed, res.Outputs, verdict.Reason)
				return r.fail(ctx, run, fmt.Sprintf("step %s rejected by verifier: %s", step.ID, verdict.Reason))
			}
		}

		r.emitStep(ctx, run, step, receipts.StatusCompleted, res.Outputs, "")

		if token != nil {
			ok, ierr := r.tokens.IncrementActions(ctx, run.TokenID)
			if ierr != nil {
				return r.fail(ctx, run, fmt.Sprintf("consume action on token %s: %v", run.TokenID, ierr))
			}
			if !ok {
				// Budget hit exactly at this step; the next authority
				// check will deny, but log the edge now.
				r.logger.Warn("token budget exhausted", "token_id", run.TokenID, "run_id", run.ID)
			}
		}
	}

	run.Status = task.RunSucceeded
	if err := r.tasks.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	r.metrics.RecordRunFinished(ctx, string(run.Status))
	r.logger.Info("run succeeded", "run_id", run.ID, "steps", len(order))
	return run, nil
}

// execute dispatches one executable step and converts every failure
// mode, including a panicking handler, into a failed Result.
func (r *Runner) execute(ctx context.Context, step *task.Step) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Error: fmt.Sprintf("handler panic: %v", p)}
		}
	}()

	if step.Type == task.StepVerify {
		goal := step.AcceptanceCheck
		if goal == "" {
			goal = step.Description
		}
		verdict, err := r.check(ctx, goal, step.Inputs)
		if err != nil {
			return Result{Error: err.Error()}
		}
		return Result{Success: verdict.Success, Error: verdict.Reason}
	}

	handler, ok := handlerTable[step.Type]
	if !ok {
		return Result{Error: fmt.Sprintf("no handler for step type %s", step.Type)}
	}

	res, err := r.executor.Run(ctx, handler, handlerInputs(step))
	if err != nil {
		return Result{Outputs: res.Outputs, Error: err.Error()}
	}
	if !res.Success && res.Error == "" {
		res.Error = "handler reported failure"
	}
	return res
}

// check runs the verifier over a goal and JSON-serialized evidence.
func (r *Runner) check(ctx context.Context, goal string, evidence map[string]any) (verify.Verdict, error) {
	if r.verifier == nil {
		return verify.Verdict{}, fmt.Errorf("no verifier configured")
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		raw = []byte("{}")
	}
	return r.verifier.Verify(ctx, goal, string(raw))
}

// handlerInputs translates a step's declared inputs for its handler. The
// step description rides along, and command steps that never got an
// explicit command fall back to it.
func handlerInputs(step *task.Step) map[string]any {
	inputs := make(map[string]any, len(step.Inputs)+1)
	for k, v := range step.Inputs {
		inputs[k] = v
	}
	if _, ok := inputs["description"]; !ok {
		inputs["description"] = step.Description
	}
	if step.Type == task.StepCommand {
		if _, ok := inputs["command"]; !ok {
			inputs["command"] = step.Description
		}
	}
	return inputs
}

// fail marks the run FAILED with the given reason and persists it. The
// reason lands in last_error; persistence faults take precedence in the
// returned error.
func (r *Runner) fail(ctx context.Context, run *task.Run, reason string) (*task.Run, error) {
	run.Status = task.RunFailed
	run.LastError = reason
	if err := r.tasks.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	r.metrics.RecordRunFinished(ctx, string(run.Status))
	r.logger.Warn("run failed", "run_id", run.ID, "reason", reason)
	return run, nil
}

// emitStep records a best-effort receipt for one step attempt and indexes
// it on the run.
func (r *Runner) emitStep(ctx context.Context, run *task.Run, step *task.Step, status receipts.Status, outputs map[string]any, reason string) {
	rec := receipts.New(receipts.KindStep, step.ID, status)
	rec.ParentID = run.ID
	rec.SessionID = run.SessionID
	rec.Inputs = map[string]any{
		"step_type":   string(step.Type),
		"description": step.Description,
	}
	if reason != "" {
		rec.Inputs["reason"] = reason
	}
	rec.Outputs = outputs
	receipts.EmitBestEffort(ctx, r.sink, rec, r.logger)
	run.ReceiptsIndex = append(run.ReceiptsIndex, rec.ID)
}
