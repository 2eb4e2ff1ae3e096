package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/contextstore"
	"github.com/ledgerflow/workflowengine/pkg/executor"
	"github.com/ledgerflow/workflowengine/pkg/metrics"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// initStepID tags the context commit that seeds StartExecution's
// initial_context, so History/audit attribute it to something other than a
// real step id.
const initStepID = "__init__"

// Engine is C5: it owns every WorkflowExecution/StepExecution transition and
// the context commits that accompany them, persisting both before
// acknowledging the caller (spec.md §4.5's durable-before-ack invariant).
// The scheduler (C6) drives it: Engine never dispatches executors itself.
type Engine struct {
	store        ExecutionStore
	contextStore contextstore.Store
	predicates   executor.PredicateEvaluator
	log          *logrus.Logger
	clock        func() time.Time
	newID        func() string
	metrics      *metrics.Registry

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// WithMetrics attaches a metrics.Registry that CheckCompletion/Cancel/
// CompleteStepFailed's terminal transitions report against. Optional:
// passing nil leaves the Engine without metrics and every record call below
// a no-op, so callers that don't care about Prometheus never need to touch
// this.
func (e *Engine) WithMetrics(reg *metrics.Registry) *Engine {
	e.metrics = reg
	return e
}

func NewEngine(store ExecutionStore, ctxStore contextstore.Store, predicates executor.PredicateEvaluator, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store:        store,
		contextStore: ctxStore,
		predicates:   predicates,
		log:          log,
		clock:        time.Now,
		newID:        func() string { return uuid.NewString() },
		cancels:      make(map[string]context.CancelFunc),
	}
}

// RegisterCancel associates an execution's drive loop with its cooperative
// cancellation signal. Cancel invokes it after the CANCELLED transition
// persists, so every in-flight executor sees ctx.Done() (spec.md §4.6:
// "signals cooperative cancellation to any in-flight executor").
func (e *Engine) RegisterCancel(executionID string, cancel context.CancelFunc) {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	e.cancels[executionID] = cancel
}

// UnregisterCancel drops the signal registration once the drive loop exits.
func (e *Engine) UnregisterCancel(executionID string) {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	delete(e.cancels, executionID)
}

// StartExecution creates a new WorkflowExecution directly in RUNNING ("on
// first scheduling tick" — this engine treats creation and the first tick as
// atomic from the caller's point of view), then commits initialContext as the
// first context version.
func (e *Engine) StartExecution(ctx context.Context, def types.WorkflowDefinition, initialContext types.Delta, principalID, sessionID string) (string, error) {
	executionID := e.newID()
	now := e.clock().UTC()

	// The execution row is created first: context_commits carries a foreign
	// key to it, so the initial-context commit must land second.
	exec := types.WorkflowExecution{
		ExecutionID:     executionID,
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		PrincipalID:     principalID,
		SessionID:       sessionID,
		Status:          types.ExecutionRunning,
		CurrentSteps:    append([]string{}, def.EntryPoints...),
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return "", err
	}

	if len(initialContext) > 0 {
		version, err := e.contextStore.Commit(ctx, executionID, initStepID, initialContext, 0)
		if err != nil {
			return "", err
		}
		if err := e.updateExecutionRecord(ctx, executionID, func(ex *types.WorkflowExecution) {
			ex.ContextVersion = version
		}); err != nil {
			return "", err
		}
	}
	return executionID, nil
}

func (e *Engine) GetExecution(ctx context.Context, executionID string) (types.WorkflowExecution, error) {
	return e.store.GetExecution(ctx, executionID)
}

// Snapshot exposes the current context view for read-only callers (the
// boundary layer's input pre-validation); dispatch snapshots come from
// BeginStep so their version is tied to the attempt.
func (e *Engine) Snapshot(ctx context.Context, executionID string) (types.ContextSnapshot, error) {
	return e.contextStore.Snapshot(ctx, executionID)
}

func (e *Engine) ListExecutions(ctx context.Context, principalID string, page types.Page) (types.PageResult[types.WorkflowExecution], error) {
	return e.store.ListExecutions(ctx, principalID, page)
}

// StepStatuses returns the latest known status of every step with a
// recorded attempt, keyed by step id. Steps with no attempt yet are absent
// (the scheduler treats an absent entry as PENDING).
func (e *Engine) StepStatuses(ctx context.Context, executionID string) (map[string]types.StepStatus, error) {
	steps, err := e.store.ListStepExecutions(ctx, executionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.StepStatus, len(steps))
	for _, s := range steps {
		out[s.StepID] = s.Status
	}
	return out, nil
}

// transitionExecution validates and persists an execution-status change.
func (e *Engine) transitionExecution(ctx context.Context, executionID string, to types.ExecutionStatus, errInfo *types.ExecutionError) error {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return apperror.NewTerminalState(executionID, string(exec.Status))
	}
	if exec.Status == to {
		return nil // already in the target status: e.g. a second step entering AWAITING_INPUT
	}
	if err := checkExecutionTransition(executionID, exec.Status, to); err != nil {
		return err
	}
	exec.Status = to
	exec.UpdatedAt = e.clock().UTC()
	if to.IsTerminal() {
		completedAt := exec.UpdatedAt
		exec.CompletedAt = &completedAt
	}
	exec.Error = errInfo
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	if to.IsTerminal() && e.metrics != nil {
		e.metrics.ExecutionsByState.WithLabelValues(string(to)).Inc()
	}
	return nil
}

// updateExecutionRecord applies mutate to the execution's bookkeeping fields
// (current_steps, context version) without a status transition. Terminal
// executions are left untouched: their record is frozen.
func (e *Engine) updateExecutionRecord(ctx context.Context, executionID string, mutate func(*types.WorkflowExecution)) error {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return nil
	}
	mutate(&exec)
	exec.UpdatedAt = e.clock().UTC()
	return e.store.UpdateExecution(ctx, exec)
}

// isTerminal reports whether the execution has already reached a write-once
// terminal status; results arriving afterwards are dropped (spec.md §4.6
// cancellation: "an in-flight step that completes after cancellation has its
// result dropped").
func (e *Engine) isTerminal(ctx context.Context, executionID string) (bool, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return false, err
	}
	return exec.Status.IsTerminal(), nil
}

func addCurrentStep(exec *types.WorkflowExecution, stepID string) {
	for _, s := range exec.CurrentSteps {
		if s == stepID {
			return
		}
	}
	exec.CurrentSteps = append(exec.CurrentSteps, stepID)
}

func removeCurrentStep(exec *types.WorkflowExecution, stepID string) {
	out := exec.CurrentSteps[:0]
	for _, s := range exec.CurrentSteps {
		if s != stepID {
			out = append(out, s)
		}
	}
	exec.CurrentSteps = out
}

func (e *Engine) Pause(ctx context.Context, executionID string) error {
	return e.transitionExecution(ctx, executionID, types.ExecutionPaused, nil)
}

// Resume requires every step to have left AWAITING_INPUT (spec.md §4.5:
// "explicit Resume + all AWAITING_INPUT satisfied").
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	steps, err := e.store.ListStepExecutions(ctx, executionID)
	if err != nil {
		return err
	}
	var pending []string
	for _, s := range steps {
		if s.Status == types.StepAwaitingInput {
			pending = append(pending, s.StepID)
		}
	}
	if len(pending) > 0 {
		return apperror.Newf(apperror.KindValidationFailed, "execution %s still awaits input for steps %v", executionID, pending)
	}
	return e.transitionExecution(ctx, executionID, types.ExecutionRunning, nil)
}

func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	if err := e.transitionExecution(ctx, executionID, types.ExecutionCancelled, nil); err != nil {
		return err
	}
	e.cancelMu.Lock()
	cancel := e.cancels[executionID]
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// BeginStep transitions a step PENDING -> RUNNING, recording a new attempt,
// and returns the snapshot the executor should run against (spec.md §4.6:
// "input to each dispatched step is the snapshot at dispatch time").
func (e *Engine) BeginStep(ctx context.Context, executionID, stepID string) (attempt int, snapshot types.ContextSnapshot, err error) {
	prior, found, err := e.store.GetStepExecution(ctx, executionID, stepID)
	if err != nil {
		return 0, types.ContextSnapshot{}, err
	}
	attempt = 1
	if found {
		switch prior.Status {
		case types.StepRunning:
			// A retry of the in-flight attempt after a retryable failure:
			// CompleteStepFailed leaves the step RUNNING on purpose so the
			// scheduler can re-dispatch without a spurious transition.
			attempt = prior.Attempt + 1
		case types.StepAwaitingInput:
			attempt = prior.Attempt // resuming the same attempt, not a new one
		default:
			if !CanTransitionStep(prior.Status, types.StepRunning) {
				return 0, types.ContextSnapshot{}, apperror.Newf(apperror.KindInternal, "step %s/%s: illegal transition %s -> RUNNING", executionID, stepID, prior.Status)
			}
			attempt = prior.Attempt + 1
		}
	}

	snapshot, err = e.contextStore.Snapshot(ctx, executionID)
	if err != nil {
		return 0, types.ContextSnapshot{}, err
	}

	if err := e.store.UpsertStepExecution(ctx, types.StepExecution{
		ExecutionID:   executionID,
		StepID:        stepID,
		Attempt:       attempt,
		Status:        types.StepRunning,
		StartedAt:     e.clock().UTC(),
		InputSnapshot: snapshot.Data,
	}); err != nil {
		return 0, types.ContextSnapshot{}, err
	}
	if err := e.updateExecutionRecord(ctx, executionID, func(exec *types.WorkflowExecution) {
		addCurrentStep(exec, stepID)
	}); err != nil {
		return 0, types.ContextSnapshot{}, err
	}
	return attempt, snapshot, nil
}

// CompleteStepDone applies a Done StepResult: it runs spec's post-step
// validation_rules against the would-be-committed state, commits the delta
// iff they pass, and marks the step COMPLETED. A failing rule instead marks
// the step FAILED and never commits (spec.md §4.5: "post-validation rule
// fails" is one of RUNNING -> FAILED's two triggers).
func (e *Engine) CompleteStepDone(ctx context.Context, executionID string, spec types.StepSpec, attempt int, delta types.Delta, outputs map[string]types.Value, expectedVersion int64) error {
	if terminal, err := e.isTerminal(ctx, executionID); err != nil || terminal {
		// A step finishing after Cancel/fail has its result dropped: no
		// context commit lands once the execution is terminal.
		return err
	}

	if e.predicates != nil && len(spec.ValidationRules) > 0 {
		if fail := e.evaluatePostValidation(ctx, executionID, spec, delta); fail != "" {
			execErr := &types.ExecutionError{
				Code: string(apperror.KindValidationFailed), Message: fail, Retryable: false,
			}
			if err := e.finishStep(ctx, executionID, spec.ID, attempt, types.StepFailed, outputs, execErr); err != nil {
				return err
			}
			if err := e.transitionExecution(ctx, executionID, types.ExecutionFailed, execErr); err != nil {
				if !apperror.Is(err, apperror.KindTerminalState) {
					return err
				}
			}
			return nil
		}
	}

	var newVersion int64
	if len(delta) > 0 {
		v, err := e.contextStore.Commit(ctx, executionID, spec.ID, delta, expectedVersion)
		if err != nil {
			return err
		}
		newVersion = v
	}
	if err := e.finishStep(ctx, executionID, spec.ID, attempt, types.StepCompleted, outputs, nil); err != nil {
		return err
	}
	return e.updateExecutionRecord(ctx, executionID, func(exec *types.WorkflowExecution) {
		removeCurrentStep(exec, spec.ID)
		if newVersion > 0 {
			exec.ContextVersion = newVersion
		}
	})
}

func (e *Engine) evaluatePostValidation(ctx context.Context, executionID string, spec types.StepSpec, delta types.Delta) string {
	data := make(map[string]interface{}, len(delta))
	for k, v := range delta {
		data[k] = valueToPlain(v)
	}
	for _, rule := range spec.ValidationRules {
		ok, err := e.predicates.Evaluate(ctx, rule.Engine, rule.Predicate, rule.Params, data)
		if err != nil || !ok {
			e.log.WithFields(logrus.Fields{"execution_id": executionID, "step_id": spec.ID, "rule": rule.Name}).
				Warn("post-step validation rule failed")
			return fmt.Sprintf("validation rule %q failed for step %s", rule.Name, spec.ID)
		}
	}
	return ""
}

// valueToPlain converts a types.Value into a plain Go value suitable for
// gojq/opa input documents.
func valueToPlain(v types.Value) interface{} {
	switch v.Kind {
	case types.ValueNull:
		return nil
	case types.ValueBool:
		return v.BoolVal
	case types.ValueInteger:
		return v.IntVal
	case types.ValueDecimal:
		f, _ := v.DecVal.Float64()
		return f
	case types.ValueString:
		return v.StrVal
	case types.ValueTimestamp:
		return v.TimeVal
	case types.ValueList:
		out := make([]interface{}, len(v.ListVal))
		for i, e := range v.ListVal {
			out[i] = valueToPlain(e)
		}
		return out
	case types.ValueMap:
		out := make(map[string]interface{}, len(v.MapVal))
		for k, e := range v.MapVal {
			out[k] = valueToPlain(e)
		}
		return out
	}
	return nil
}

// CompleteStepAwaitInput marks a step AWAITING_INPUT and pauses the
// execution (spec.md §4.5).
func (e *Engine) CompleteStepAwaitInput(ctx context.Context, executionID, stepID string, attempt int, prompt string, expectedKeys []string) error {
	if terminal, err := e.isTerminal(ctx, executionID); err != nil || terminal {
		return err
	}
	keys := make([]types.Value, len(expectedKeys))
	for i, k := range expectedKeys {
		keys[i] = types.String(k)
	}
	outputs := map[string]types.Value{
		"prompt":        types.String(prompt),
		"expected_keys": types.List(keys),
	}
	if err := e.finishStep(ctx, executionID, stepID, attempt, types.StepAwaitingInput, outputs, nil); err != nil {
		return err
	}
	if err := e.transitionExecution(ctx, executionID, types.ExecutionPaused, nil); err != nil {
		if !apperror.Is(err, apperror.KindTerminalState) {
			return err
		}
	}
	return nil
}

// CompleteStepFailed records a failed attempt. If the failure is retryable
// and the policy's attempt budget isn't exhausted, the step is left for the
// scheduler to re-dispatch (shouldRetry=true) and no status transition is
// persisted yet. Otherwise the step and the whole execution fail. outputs is
// whatever the executor produced alongside the failure (e.g. a VALIDATION
// step's per-check results, which spec.md §4.3 requires to be reported even
// when halt_on_fail fails the step); it lands on the StepExecution record
// but never in the context — context commits happen only on COMPLETED.
func (e *Engine) CompleteStepFailed(ctx context.Context, executionID, stepID string, attempt int, policy RetryPolicy, outputs map[string]types.Value, errKind apperror.Kind, message string, retryable bool) (shouldRetry bool, err error) {
	if terminal, terr := e.isTerminal(ctx, executionID); terr != nil || terminal {
		return false, terr
	}
	if retryable && !policy.ExhaustedAt(attempt) {
		return true, nil
	}

	execErr := &types.ExecutionError{Code: string(errKind), Message: message, Retryable: retryable}
	if err := e.finishStep(ctx, executionID, stepID, attempt, types.StepFailed, outputs, execErr); err != nil {
		return false, err
	}
	if err := e.updateExecutionRecord(ctx, executionID, func(exec *types.WorkflowExecution) {
		removeCurrentStep(exec, stepID)
	}); err != nil {
		return false, err
	}
	if err := e.transitionExecution(ctx, executionID, types.ExecutionFailed, execErr); err != nil {
		if !apperror.Is(err, apperror.KindTerminalState) {
			return false, err
		}
	}
	return false, nil
}

// FinalizeCancelledStep closes out a step that was in flight when its
// execution was cancelled (spec.md §5): SKIPPED when the executor honoured
// the cancellation signal, FAILED(CancellationTimedOut) when it did not
// return within the documented budget. The execution is already terminal, so
// only the step record and current_steps bookkeeping change — never the
// execution status, and never the context.
func (e *Engine) FinalizeCancelledStep(ctx context.Context, executionID, stepID string, attempt int, honoured bool) error {
	if honoured {
		outputs := map[string]types.Value{"reason": types.String("execution cancelled")}
		if err := e.finishStep(ctx, executionID, stepID, attempt, types.StepSkipped, outputs, nil); err != nil {
			return err
		}
	} else {
		execErr := &types.ExecutionError{
			Code:    string(apperror.KindCancellationTimeout),
			Message: "executor did not honour cancellation within its budget",
		}
		if err := e.finishStep(ctx, executionID, stepID, attempt, types.StepFailed, nil, execErr); err != nil {
			return err
		}
	}

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	removeCurrentStep(&exec, stepID)
	exec.UpdatedAt = e.clock().UTC()
	return e.store.UpdateExecution(ctx, exec)
}

// CompleteStepSkipped marks a step SKIPPED, used both when an executor
// declines (e.g. a conditional rule) and when the scheduler determines a
// step is unreachable because its dependencies all ended in SKIPPED.
func (e *Engine) CompleteStepSkipped(ctx context.Context, executionID, stepID, reason string) error {
	if err := e.finishStep(ctx, executionID, stepID, 0, types.StepSkipped, map[string]types.Value{"reason": types.String(reason)}, nil); err != nil {
		return err
	}
	return e.updateExecutionRecord(ctx, executionID, func(exec *types.WorkflowExecution) {
		removeCurrentStep(exec, stepID)
	})
}

func (e *Engine) finishStep(ctx context.Context, executionID, stepID string, attempt int, status types.StepStatus, outputs map[string]types.Value, execErr *types.ExecutionError) error {
	now := e.clock().UTC()
	step := types.StepExecution{
		ExecutionID: executionID,
		StepID:      stepID,
		Attempt:     attempt,
		Status:      status,
		StartedAt:   now,
		FinishedAt:  &now,
		Output:      outputs,
	}
	if prior, found, err := e.store.GetStepExecution(ctx, executionID, stepID); err == nil && found && prior.Attempt == attempt {
		step.StartedAt = prior.StartedAt
		step.InputSnapshot = prior.InputSnapshot
		step.DurationMS = now.Sub(prior.StartedAt).Milliseconds()
	}
	if execErr != nil {
		step.Error = execErr
	}
	return e.store.UpsertStepExecution(ctx, step)
}

// CheckCompletion transitions RUNNING -> COMPLETED once every exit point has
// reached a terminal, non-failed status: COMPLETED, or SKIPPED (an exit
// point skipped because its dependencies were all unreachable is still a
// valid outcome, not a failure) (spec.md §4.5). Callers (the scheduler,
// after each dispatch round) invoke this once per tick; it is a no-op if
// completion conditions aren't yet met.
func (e *Engine) CheckCompletion(ctx context.Context, executionID string, def types.WorkflowDefinition) error {
	for _, exitID := range def.ExitPoints {
		step, found, err := e.store.GetStepExecution(ctx, executionID, exitID)
		if err != nil {
			return err
		}
		if !found || (step.Status != types.StepCompleted && step.Status != types.StepSkipped) {
			return nil
		}
	}
	return e.transitionExecution(ctx, executionID, types.ExecutionCompleted, nil)
}

// ProvideStepInput commits input into the context and transitions the target
// step from AWAITING_INPUT back to RUNNING, ready for re-dispatch (spec.md
// §4.5). It does not resume the execution; callers must still call Resume.
func (e *Engine) ProvideStepInput(ctx context.Context, executionID, stepID string, input types.Delta) error {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return apperror.NewTerminalState(executionID, string(exec.Status))
	}

	step, found, err := e.store.GetStepExecution(ctx, executionID, stepID)
	if err != nil {
		return err
	}
	if !found || step.Status != types.StepAwaitingInput {
		return apperror.Newf(apperror.KindValidationFailed, "step %s/%s is not awaiting input", executionID, stepID)
	}

	snapshot, err := e.contextStore.Snapshot(ctx, executionID)
	if err != nil {
		return err
	}
	newVersion, err := e.contextStore.Commit(ctx, executionID, stepID, input, snapshot.Metadata.Version)
	if err != nil {
		return err
	}

	step.Status = types.StepRunning
	if err := e.store.UpsertStepExecution(ctx, step); err != nil {
		return err
	}
	return e.updateExecutionRecord(ctx, executionID, func(ex *types.WorkflowExecution) {
		ex.ContextVersion = newVersion
	})
}
